// Copyright 2026 Google LLC
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

package lfib

import (
	"net/netip"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// nhRecord is the reachability record of a next hop.
type nhRecord struct {
	addr netip.Addr
	// ifIndex is the interface index supplied when the next hop was
	// configured administratively.
	ifIndex uint32
	// connected indicates whether the next hop is reachable.
	connected bool
	// physical indicates that the next hop was configured administratively
	// rather than inferred from the FEC of an FTN.
	physical bool

	// ftns and ilms are the entries whose next hop is this address.
	ftns []*ftn
	ilms []*ilm
}

// nhEvent is a pending change in the reachability of a next hop.
type nhEvent struct {
	addr      netip.Addr
	connected bool
}

// NextHopState is the external representation of a next-hop record.
type NextHopState struct {
	Addr      netip.Addr
	IfIndex   uint32
	Connected bool
	Physical  bool
	// FTNs and ILMs are the number of entries that depend on the next hop.
	FTNs int
	ILMs int
}

func (r *nhRecord) view() NextHopState {
	return NextHopState{
		Addr:      r.addr,
		IfIndex:   r.ifIndex,
		Connected: r.connected,
		Physical:  r.physical,
		FTNs:      len(r.ftns),
		ILMs:      len(r.ilms),
	}
}

// nhRecord returns the record for the next hop a, creating an unconnected
// record if one does not exist. It must be called with mu held.
func (l *LFIB) nhRecord(a netip.Addr) *nhRecord {
	if rec, ok := l.nhs.get(a); ok {
		return rec
	}
	rec := &nhRecord{addr: a}
	l.nhs.set(a, rec)
	log.V(2).Infof("created next-hop %s", a)
	l.record(constants.ADD, constants.NEXTHOP, rec.view())
	return rec
}

// createModify sets the reachability of the next hop a, and re-evaluates
// each of the entries that depend upon it. Changes that are inferred from
// the state of FTNs (physical is false) do not override the state of an
// administratively configured next hop, its dependents are re-evaluated
// against the configured state. It must be called with mu held.
func (l *LFIB) createModify(a netip.Addr, connected, physical bool) {
	rec := l.nhRecord(a)
	switch {
	case !physical && rec.physical:
		log.V(2).Infof("next-hop %s: ignoring inferred state %v for configured next-hop", a, connected)
	case rec.connected != connected || rec.physical != physical:
		rec.connected = connected
		rec.physical = rec.physical || physical
		log.V(2).Infof("next-hop %s connected: %v, physical: %v", a, rec.connected, rec.physical)
		l.record(constants.REPLACE, constants.NEXTHOP, rec.view())
	}

	// Evaluation may change the dependent lists, so iterate over a copy.
	ftns := append([]*ftn(nil), rec.ftns...)
	ilms := append([]*ilm(nil), rec.ilms...)
	for _, f := range ftns {
		l.evaluate(f)
	}
	for _, i := range ilms {
		l.evaluate(i)
	}
}

// enqueue adds an event for the next hop a to the event queue. It must be
// called with mu held.
func (l *LFIB) enqueue(a netip.Addr, connected bool) {
	l.events.Add(nhEvent{addr: a, connected: connected})
}

// processEvents drains the event queue, applying each event in turn. Events
// that are queued whilst the queue is being drained are processed before
// processEvents returns. It must be called with mu held.
func (l *LFIB) processEvents() {
	for n := 0; l.events.Length() > 0; n++ {
		if n == maxEventsPerDrain {
			log.Errorf("next-hop event queue not drained after %d events, discarding %d events", n, l.events.Length())
			for l.events.Length() > 0 {
				l.events.Remove()
			}
			return
		}
		ev := l.events.Remove().(nhEvent)
		l.eventsProcessed.Inc()
		l.createModify(ev.addr, ev.connected, false)
	}
}

// pruneInferred removes the record for the next hop a if it was inferred
// from the FEC of an FTN, no FTN for a remains, and no entry depends upon
// it. It must be called with mu held.
func (l *LFIB) pruneInferred(a netip.Addr) {
	rec, ok := l.nhs.get(a)
	if !ok || rec.physical || len(rec.ftns) != 0 || len(rec.ilms) != 0 {
		return
	}
	if _, ok := l.ftns.get(a); ok {
		return
	}
	l.nhs.delete(a)
	log.V(2).Infof("removed inferred next-hop %s", a)
	l.record(constants.DELETE, constants.NEXTHOP, rec.view())
}

// NHAddDel administratively sets the reachability of the next hop addr,
// reached via the interface with index ifIndex, and processes the resulting
// changes to the entries that depend upon it.
func (l *LFIB) NHAddDel(addr netip.Addr, ifIndex uint32, isAdd bool) error {
	addr = address.Canonical(addr)
	if err := address.Validate(addr); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.unlock()

	log.V(2).Infof("next-hop %s ifindex %d add: %v", addr, ifIndex, isAdd)
	rec := l.nhRecord(addr)
	rec.ifIndex = ifIndex
	l.createModify(addr, isAdd, true)
	l.processEvents()
	return nil
}

// NextHop returns the reachability record for the next hop addr.
func (l *LFIB) NextHop(addr netip.Addr) (NextHopState, error) {
	addr = address.Canonical(addr)
	if err := address.Validate(addr); err != nil {
		return NextHopState{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.nhs.get(addr)
	if !ok {
		return NextHopState{}, status.Errorf(codes.NotFound, "next-hop %s not found", addr)
	}
	return rec.view(), nil
}

// RemoveNextHop removes the record for the next hop addr. A record that has
// dependent entries cannot be removed, and a FailedPrecondition error is
// returned.
func (l *LFIB) RemoveNextHop(addr netip.Addr) error {
	addr = address.Canonical(addr)
	if err := address.Validate(addr); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.unlock()
	rec, ok := l.nhs.get(addr)
	if !ok {
		return status.Errorf(codes.NotFound, "next-hop %s not found", addr)
	}
	if len(rec.ftns) != 0 || len(rec.ilms) != 0 {
		return status.Errorf(codes.FailedPrecondition, "next-hop %s has %d FTN and %d ILM dependents", addr, len(rec.ftns), len(rec.ilms))
	}
	l.nhs.delete(addr)
	log.V(2).Infof("removed next-hop %s", addr)
	l.record(constants.DELETE, constants.NEXTHOP, rec.view())
	return nil
}

// NextHops returns the next-hop records of the LFIB, IPv4 first and in
// address order within each family.
func (l *LFIB) NextHops() []NextHopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ns []NextHopState
	l.nhs.walk(func(_ netip.Addr, r *nhRecord) bool {
		ns = append(ns, r.view())
		return true
	})
	return ns
}
