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

package gnmit

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/openconfig/gnmi/value"
	"github.com/openconfig/lsrsim/constants"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/rib"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// leaf is a single leaf of an entry, relative to the entry's root path.
type leaf struct {
	path []string
	val  any
}

func u(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

func operStatus(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}

func addr(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func labelStack(ls []uint32) string {
	s := make([]string, 0, len(ls))
	for _, l := range ls {
		s = append(s, u(l))
	}
	return strings.Join(s, " ")
}

// entryPath returns the root path and the leaves of the table entry e.
func entryPath(t constants.Table, e any) ([]*gpb.PathElem, []leaf, error) {
	switch v := e.(type) {
	case lfib.FTNState:
		if t != constants.FTN {
			break
		}
		return []*gpb.PathElem{
				{Name: "mpls"},
				{Name: "ftns"},
				{Name: "ftn", Key: map[string]string{"fec": v.FEC.String(), "index": u(v.Index)}},
			}, []leaf{
				{[]string{"state", "next-hop"}, addr(v.NextHop)},
				{[]string{"state", "out-interface-index"}, uint64(v.OutIfIndex)},
				{[]string{"state", "out-labels"}, labelStack(v.OutLabels)},
				{[]string{"state", "oper-status"}, operStatus(v.Up)},
				{[]string{"state", "xc-index"}, uint64(v.XCIndex)},
				{[]string{"state", "nhlfe-index"}, uint64(v.NHLFEIndex)},
				{[]string{"state", "dependents"}, uint64(v.Dependents)},
			}, nil
	case lfib.ILMState:
		if t != constants.ILM {
			break
		}
		return []*gpb.PathElem{
				{Name: "mpls"},
				{Name: "ilms"},
				{Name: "ilm", Key: map[string]string{
					"in-label":     u(v.Key.InLabel),
					"in-interface": u(v.Key.InIface),
					"index":        u(v.Index),
				}},
			}, []leaf{
				{[]string{"state", "owner"}, uint64(v.Owner)},
				{[]string{"state", "next-hop"}, addr(v.NextHop)},
				{[]string{"state", "out-interface-index"}, uint64(v.OutIfIndex)},
				{[]string{"state", "out-label"}, uint64(v.OutLabel)},
				{[]string{"state", "oper-status"}, operStatus(v.Up)},
				{[]string{"state", "xc-index"}, uint64(v.XCIndex)},
				{[]string{"state", "nhlfe-index"}, uint64(v.NHLFEIndex)},
			}, nil
	case lfib.NextHopState:
		if t != constants.NEXTHOP {
			break
		}
		return []*gpb.PathElem{
				{Name: "mpls"},
				{Name: "next-hops"},
				{Name: "next-hop", Key: map[string]string{"address": v.Addr.String()}},
			}, []leaf{
				{[]string{"state", "interface-index"}, uint64(v.IfIndex)},
				{[]string{"state", "connected"}, v.Connected},
				{[]string{"state", "physical"}, v.Physical},
			}, nil
	case rib.Route:
		if t != constants.ROUTE {
			break
		}
		return []*gpb.PathElem{
				{Name: "routes"},
				{Name: "route", Key: map[string]string{"prefix": v.Prefix.String()}},
			}, []leaf{
				{[]string{"state", "mask"}, addr(v.Mask)},
				{[]string{"state", "next-hop"}, addr(v.NextHop)},
				{[]string{"state", "out-interface-index"}, uint64(v.OutIfIndex)},
				{[]string{"state", "creator"}, addr(v.Creator)},
				{[]string{"state", "static"}, v.Static},
			}, nil
	case rib.Peer:
		if t != constants.PEER {
			break
		}
		return []*gpb.PathElem{
				{Name: "peers"},
				{Name: "peer", Key: map[string]string{"address": v.Prefix.String()}},
			}, []leaf{
				{[]string{"state", "out-interface-index"}, uint64(v.OutIfIndex)},
			}, nil
	case rib.PeerRoute:
		if t != constants.PEER_ROUTE {
			break
		}
		return []*gpb.PathElem{
				{Name: "peers"},
				{Name: "peer", Key: map[string]string{"address": v.Peer.String()}},
				{Name: "routes"},
				{Name: "route", Key: map[string]string{"prefix": v.Route.Prefix.String()}},
			}, []leaf{
				{[]string{"state", "next-hop"}, addr(v.Route.NextHop)},
				{[]string{"state", "out-interface-index"}, uint64(v.Route.OutIfIndex)},
			}, nil
	case fib.Match:
		if t != constants.LPM {
			break
		}
		return []*gpb.PathElem{
				{Name: "lpm"},
				{Name: "entry", Key: map[string]string{"prefix": v.Prefix.String()}},
			}, []leaf{
				{[]string{"state", "next-hop"}, addr(v.NextHop)},
				{[]string{"state", "out-interface-index"}, uint64(v.OutIfIndex)},
			}, nil
	}
	return nil, nil, fmt.Errorf("unsupported entry %T for table %s", e, t)
}

// Notification returns the gNMI notification for target that describes the
// change op, made at timestamp ts, to the entry e of table t. Deletions are
// reported as a delete of the entry's root path, and other operations as an
// update of each of the entry's leaves.
func Notification(target string, op constants.OpType, ts int64, t constants.Table, e any) (*gpb.Notification, error) {
	root, leaves, err := entryPath(t, e)
	if err != nil {
		return nil, err
	}
	n := &gpb.Notification{
		Timestamp: ts,
		Prefix:    &gpb.Path{Target: target},
	}

	if op == constants.DELETE {
		n.Delete = []*gpb.Path{{Elem: root}}
		return n, nil
	}

	for _, l := range leaves {
		tv, err := value.FromScalar(l.val)
		if err != nil {
			return nil, fmt.Errorf("cannot encode %s value %v, %v", strings.Join(l.path, "/"), l.val, err)
		}
		elems := append([]*gpb.PathElem{}, root...)
		for _, p := range l.path {
			elems = append(elems, &gpb.PathElem{Name: p})
		}
		n.Update = append(n.Update, &gpb.Update{
			Path: &gpb.Path{Elem: elems},
			Val:  tv,
		})
	}
	return n, nil
}
