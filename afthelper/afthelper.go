// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package afthelper renders the forwarding state of a simulated router as
// entries of the OpenConfig AFT schema, as carried by gRIBI, and resolves
// the next-hops of those entries.
package afthelper

import (
	"fmt"
	"net/netip"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/router"

	aftpb "github.com/openconfig/gribi/v1/proto/gribi_aft"
	spb "github.com/openconfig/gribi/v1/proto/service"
	wpb "github.com/openconfig/ygot/proto/ywrapper"
)

// FIBIndexBase is the first next-hop and next-hop-group index used for
// entries of the longest-prefix-match table. Indices below it are the
// NHLFE and cross-connect indices of the LFIB.
const FIBIndexBase uint64 = 1 << 32

// InterfaceName returns the name used for the interface with index ifIndex
// in interface references.
func InterfaceName(ifIndex uint32) string {
	return fmt.Sprintf("ifindex%d", ifIndex)
}

func nhEntry(ni string, index uint64, addr netip.Addr, ifIndex uint32) *spb.AFTEntry {
	nh := &aftpb.Afts_NextHop{}
	if addr.IsValid() && !addr.IsUnspecified() {
		nh.IpAddress = &wpb.StringValue{Value: addr.String()}
	}
	if ifIndex != 0 {
		nh.InterfaceRef = &aftpb.Afts_NextHop_InterfaceRef{
			Interface: &wpb.StringValue{Value: InterfaceName(ifIndex)},
		}
	}
	return &spb.AFTEntry{
		NetworkInstance: ni,
		Entry: &spb.AFTEntry_NextHop{
			NextHop: &aftpb.Afts_NextHopKey{
				Index:   index,
				NextHop: nh,
			},
		},
	}
}

func nhgEntry(ni string, id, nh uint64) *spb.AFTEntry {
	return &spb.AFTEntry{
		NetworkInstance: ni,
		Entry: &spb.AFTEntry_NextHopGroup{
			NextHopGroup: &aftpb.Afts_NextHopGroupKey{
				Id: id,
				NextHopGroup: &aftpb.Afts_NextHopGroup{
					NextHop: []*aftpb.Afts_NextHopGroup_NextHopKey{{
						Index: nh,
						NextHop: &aftpb.Afts_NextHopGroup_NextHop{
							Weight: &wpb.UintValue{Value: 1},
						},
					}},
				},
			},
		},
	}
}

func ipv4Entry(ni, prefix string, nhg uint64) *spb.AFTEntry {
	return &spb.AFTEntry{
		NetworkInstance: ni,
		Entry: &spb.AFTEntry_Ipv4{
			Ipv4: &aftpb.Afts_Ipv4EntryKey{
				Prefix: prefix,
				Ipv4Entry: &aftpb.Afts_Ipv4Entry{
					NextHopGroup: &wpb.UintValue{Value: nhg},
				},
			},
		},
	}
}

func labelEntry(ni string, label uint32, nhg uint64) *spb.AFTEntry {
	return &spb.AFTEntry{
		NetworkInstance: ni,
		Entry: &spb.AFTEntry_Mpls{
			Mpls: &aftpb.Afts_LabelEntryKey{
				Label: &aftpb.Afts_LabelEntryKey_LabelUint64{
					LabelUint64: uint64(label),
				},
				LabelEntry: &aftpb.Afts_LabelEntry{
					NextHopGroup: &wpb.UintValue{Value: nhg},
				},
			},
		},
	}
}

// FromSnapshot returns the AFT entries in network instance ni for the
// installed entries of the LFIB snapshot s. Each cross-connect is rendered
// as a next-hop-group, with its NHLFE as the single next-hop. Up ILM entries
// are rendered as label entries, and up FTNs for IPv4 FECs as host prefixes.
// Only the first up entry is rendered for a label or FEC, and only the
// next-hops and next-hop-groups referenced by a rendered entry are returned.
// Next-hops are returned first, then next-hop-groups, and then the entries
// that reference them.
func FromSnapshot(ni string, s *lfib.Snapshot) []*spb.AFTEntry {
	if s == nil {
		return nil
	}
	used := map[uint32]bool{}
	var top []*spb.AFTEntry

	labels := map[uint32]bool{}
	for _, i := range s.ILMs {
		if !i.Up {
			continue
		}
		if labels[i.Key.InLabel] {
			log.V(2).Infof("label %d already rendered, skipping ILM %s/%d", i.Key.InLabel, i.Key, i.Index)
			continue
		}
		labels[i.Key.InLabel] = true
		used[i.XCIndex] = true
		top = append(top, labelEntry(ni, i.Key.InLabel, uint64(i.XCIndex)))
	}

	fecs := map[netip.Addr]bool{}
	for _, f := range s.FTNs {
		if !f.Up || address.Of(f.FEC) != address.V4 || fecs[f.FEC] {
			continue
		}
		fecs[f.FEC] = true
		used[f.XCIndex] = true
		top = append(top, ipv4Entry(ni, netip.PrefixFrom(f.FEC, 32).String(), uint64(f.XCIndex)))
	}

	var nhs, nhgs []*spb.AFTEntry
	for _, n := range s.NHLFEs {
		if !used[n.XCIndex] {
			continue
		}
		nhs = append(nhs, nhEntry(ni, uint64(n.Index), n.Key.NextHop, n.Key.OutIface))
		nhgs = append(nhgs, nhgEntry(ni, uint64(n.XCIndex), uint64(n.Index)))
	}

	return append(append(nhs, nhgs...), top...)
}

// FromFIB returns the AFT entries in network instance ni for the IPv4
// entries of the longest-prefix-match table ms. Each entry is given its own
// next-hop and next-hop-group, numbered from FIBIndexBase.
func FromFIB(ni string, ms []fib.Match) []*spb.AFTEntry {
	var nhs, nhgs, top []*spb.AFTEntry
	id := FIBIndexBase
	for _, m := range ms {
		if !m.Prefix.Addr().Is4() {
			continue
		}
		nhs = append(nhs, nhEntry(ni, id, m.NextHop, m.OutIfIndex))
		nhgs = append(nhgs, nhgEntry(ni, id, id))
		top = append(top, ipv4Entry(ni, m.Prefix.String(), id))
		id++
	}
	return append(append(nhs, nhgs...), top...)
}

// GetResponse returns a gRIBI GetResponse containing the forwarding state of
// router r, within a network instance named for the router.
func GetResponse(r *router.Router) *spb.GetResponse {
	entries := FromSnapshot(r.Name, r.LFIB.Snapshot())
	entries = append(entries, FromFIB(r.Name, r.FIB.Entries(address.V4))...)
	return &spb.GetResponse{Entry: entries}
}

// NextHopSummary provides a summary of an next-hop for a particular entry.
type NextHopSummary struct {
	// Weight is the share of traffic that the next-hop gets.
	Weight uint64 `json:"weight"`
	// Address is the IP address of the next-hop.
	Address string `json:"address"`
	// Interface is the name of the interface that the next-hop is reached
	// via.
	Interface string `json:"interface,omitempty"`
	// NetworkInstance is the network instance within which the address was resolved.
	NetworkInstance string `json:"network-instance"`
}

// afts indexes the entries of a single network instance.
type afts struct {
	ipv4   map[string]*aftpb.Afts_Ipv4Entry
	labels map[uint64]*aftpb.Afts_LabelEntry
	nhgs   map[uint64]*aftpb.Afts_NextHopGroup
	nhs    map[uint64]*aftpb.Afts_NextHop
}

func index(entries []*spb.AFTEntry, ni string) (*afts, error) {
	a := &afts{
		ipv4:   map[string]*aftpb.Afts_Ipv4Entry{},
		labels: map[uint64]*aftpb.Afts_LabelEntry{},
		nhgs:   map[uint64]*aftpb.Afts_NextHopGroup{},
		nhs:    map[uint64]*aftpb.Afts_NextHop{},
	}
	found := false
	for _, e := range entries {
		if e.GetNetworkInstance() != ni {
			continue
		}
		found = true
		switch t := e.GetEntry().(type) {
		case *spb.AFTEntry_Ipv4:
			a.ipv4[t.Ipv4.GetPrefix()] = t.Ipv4.GetIpv4Entry()
		case *spb.AFTEntry_Mpls:
			a.labels[t.Mpls.GetLabelUint64()] = t.Mpls.GetLabelEntry()
		case *spb.AFTEntry_NextHopGroup:
			a.nhgs[t.NextHopGroup.GetId()] = t.NextHopGroup.GetNextHopGroup()
		case *spb.AFTEntry_NextHop:
			a.nhs[t.NextHop.GetIndex()] = t.NextHop.GetNextHop()
		default:
			return nil, fmt.Errorf("unknown/unhandled type %T in AFT entries", t)
		}
	}
	if !found {
		return nil, fmt.Errorf("network instance %s does not exist", ni)
	}
	return a, nil
}

// resolve returns the next-hops of the next-hop-group id.
func (a *afts) resolve(ni string, id uint64) (map[string]*NextHopSummary, error) {
	nhg, ok := a.nhgs[id]
	if !ok {
		return nil, fmt.Errorf("got unknown NHG %d in NI %s", id, ni)
	}

	ret := map[string]*NextHopSummary{}
	for _, k := range nhg.GetNextHop() {
		nh, ok := a.nhs[k.GetIndex()]
		if !ok || nh.GetIpAddress().GetValue() == "" {
			return nil, fmt.Errorf("invalid next-hop %d", k.GetIndex())
		}
		addr := nh.GetIpAddress().GetValue()
		ret[addr] = &NextHopSummary{
			Address:         addr,
			Weight:          k.GetNextHop().GetWeight().GetValue(),
			Interface:       nh.GetInterfaceRef().GetInterface().GetValue(),
			NetworkInstance: ni,
		}
	}
	return ret, nil
}

// NextHopAddrsForPrefix resolves the IPv4 prefix within the network-instance
// netinst of the specified entries. It returns a map of next-hop IP address
// to a summary of the resolved next-hop.
func NextHopAddrsForPrefix(entries []*spb.AFTEntry, netinst, prefix string) (map[string]*NextHopSummary, error) {
	a, err := index(entries, netinst)
	if err != nil {
		return nil, err
	}
	v4, ok := a.ipv4[prefix]
	if !ok {
		return nil, fmt.Errorf("cannot find IPv4 prefix %s in AFT", prefix)
	}
	return a.resolve(netinst, v4.GetNextHopGroup().GetValue())
}

// NextHopAddrsForLabel resolves the MPLS label within the network-instance
// netinst of the specified entries. It returns a map of next-hop IP address
// to a summary of the resolved next-hop.
func NextHopAddrsForLabel(entries []*spb.AFTEntry, netinst string, label uint64) (map[string]*NextHopSummary, error) {
	a, err := index(entries, netinst)
	if err != nil {
		return nil, err
	}
	le, ok := a.labels[label]
	if !ok {
		return nil, fmt.Errorf("cannot find label %d in AFT", label)
	}
	return a.resolve(netinst, le.GetNextHopGroup().GetValue())
}
