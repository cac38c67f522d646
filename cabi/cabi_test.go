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

package cabi

import (
	"flag"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
)

func addr(s string) IPAddr {
	return FromAddr(address.MustParse(s))
}

func routeEntry(pfx, mask, nh string, ifIndex uint32) *RouteEntry {
	return &RouteEntry{Prefix: addr(pfx), Mask: addr(mask), NextHop: addr(nh), OutIfIndex: ifIndex}
}

func TestPeerRouteScenario(t *testing.T) {
	b := New()
	peer := V4(10, 0, 0, 1)

	if got := b.PeerAdd(peer, &PeerEntry{OutIfIndex: 5}); got != constants.OK {
		t.Fatalf("PeerAdd(): got %d, want %d", got, constants.OK)
	}
	if got := b.PeerRouteAdd(peer, routeEntry("192.168.1.0", "255.255.255.0", "10.0.0.1", 5)); got != constants.OK {
		t.Fatalf("PeerRouteAdd(): got %d, want %d", got, constants.OK)
	}

	out := &RouteEntry{NextHop: IPAddr{Addr: make([]byte, 4)}}
	if got := b.PeerRouteLookup(peer, V4(192, 168, 1, 0), out); got != constants.OK {
		t.Fatalf("PeerRouteLookup(): got %d, want %d", got, constants.OK)
	}
	want := &RouteEntry{
		Prefix:     V4(192, 168, 1, 0),
		Mask:       V4(255, 255, 255, 0),
		NextHop:    V4(10, 0, 0, 1),
		OutIfIndex: 5,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("PeerRouteLookup(): did not get expected entry, diff(-want,+got):\n%s", diff)
	}

	if got := b.PeerDelete(peer); got != constants.OK {
		t.Fatalf("PeerDelete(): got %d, want %d", got, constants.OK)
	}
	if got := b.RouteLookup(V4(192, 168, 1, 0), &RouteEntry{}); got != constants.Failed {
		t.Fatalf("RouteLookup() after last peer deleted: got %d, want %d", got, constants.Failed)
	}
}

func TestStatusCodes(t *testing.T) {
	peer, other := V4(10, 0, 0, 1), V4(10, 0, 0, 2)
	rt := routeEntry("192.168.1.0", "255.255.255.0", "10.0.0.1", 5)

	tests := []struct {
		desc string
		fn   func(b *Boundary) constants.Status
		want constants.Status
	}{{
		desc: "peer_add existing",
		fn:   func(b *Boundary) constants.Status { return b.PeerAdd(peer, &PeerEntry{OutIfIndex: 1}) },
		want: constants.Failed,
	}, {
		desc: "peer_add_modify new",
		fn:   func(b *Boundary) constants.Status { return b.PeerAddModify(other, &PeerEntry{OutIfIndex: 1}) },
		want: constants.OK,
	}, {
		desc: "peer_add_modify existing",
		fn:   func(b *Boundary) constants.Status { return b.PeerAddModify(peer, &PeerEntry{OutIfIndex: 9}) },
		want: constants.Modified,
	}, {
		desc: "peer_lookup missing",
		fn:   func(b *Boundary) constants.Status { return b.PeerLookup(other, &PeerEntry{}) },
		want: constants.Failed,
	}, {
		desc: "peer_delete missing",
		fn:   func(b *Boundary) constants.Status { return b.PeerDelete(other) },
		want: constants.Failed,
	}, {
		desc: "peer_route_add missing peer",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteAdd(other, rt) },
		want: constants.Failed,
	}, {
		desc: "peer_route_add existing route",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteAdd(peer, rt) },
		want: constants.SecondaryFailed,
	}, {
		desc: "peer_route_add_modify existing route",
		fn: func(b *Boundary) constants.Status {
			return b.PeerRouteAddModify(peer, routeEntry("192.168.1.0", "255.255.255.0", "10.0.0.9", 6))
		},
		want: constants.Modified,
	}, {
		desc: "peer_route_add_modify new route",
		fn: func(b *Boundary) constants.Status {
			return b.PeerRouteAddModify(peer, routeEntry("192.168.2.0", "255.255.255.0", "10.0.0.1", 5))
		},
		want: constants.OK,
	}, {
		desc: "peer_route_lookup missing route",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteLookup(peer, V4(192, 168, 9, 0), nil) },
		want: constants.SecondaryFailed,
	}, {
		desc: "peer_route_lookup missing peer",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteLookup(other, V4(192, 168, 1, 0), nil) },
		want: constants.Failed,
	}, {
		desc: "peer_route_delete missing route",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteDelete(peer, V4(192, 168, 9, 0)) },
		want: constants.SecondaryFailed,
	}, {
		desc: "peer_route_delete",
		fn:   func(b *Boundary) constants.Status { return b.PeerRouteDelete(peer, V4(192, 168, 1, 0)) },
		want: constants.OK,
	}, {
		desc: "route_add duplicate",
		fn:   func(b *Boundary) constants.Status { return b.RouteAdd(rt) },
		want: constants.Failed,
	}, {
		desc: "route_add static",
		fn: func(b *Boundary) constants.Status {
			return b.RouteAdd(routeEntry("172.16.0.0", "255.240.0.0", "10.0.0.1", 1))
		},
		want: constants.OK,
	}, {
		desc: "route_delete missing",
		fn:   func(b *Boundary) constants.Status { return b.RouteDelete(V4(172, 16, 0, 0)) },
		want: constants.Failed,
	}, {
		desc: "short address buffer",
		fn:   func(b *Boundary) constants.Status { return b.PeerDelete(IPAddr{Family: 1, Addr: []byte{10, 0}}) },
		want: constants.Failed,
	}, {
		desc: "mixed families",
		fn: func(b *Boundary) constants.Status {
			return b.PeerRouteAdd(peer, routeEntry("2001:db8::", "ffff:ffff::", "10.0.0.1", 1))
		},
		want: constants.Failed,
	}, {
		desc: "ftn_del missing",
		fn:   func(b *Boundary) constants.Status { return b.FTNDel(&FTNDelData{FEC: V4(10, 0, 0, 0), FTNIx: 1}) },
		want: constants.Failed,
	}, {
		desc: "ilm_del missing",
		fn:   func(b *Boundary) constants.Status { return b.ILMDel(&ILMDelData{InLabel: 16, ILMIx: 1}) },
		want: constants.Failed,
	}, {
		desc: "nh_add_del",
		fn: func(b *Boundary) constants.Status {
			return b.NHAddDel(&NHAddDel{Addr: V4(20, 0, 0, 1), IfIndex: 3, IsAdd: true})
		},
		want: constants.OK,
	}, {
		desc: "longest_match_add nil entry",
		fn: func(b *Boundary) constants.Status {
			return b.LongestMatchAdd(V4(10, 0, 0, 0), V4(255, 0, 0, 0), nil)
		},
		want: constants.Failed,
	}, {
		desc: "ftn_add nil",
		fn:   func(b *Boundary) constants.Status { return b.FTNAdd(nil) },
		want: constants.Failed,
	}, {
		desc: "ftn_del nil",
		fn:   func(b *Boundary) constants.Status { return b.FTNDel(nil) },
		want: constants.Failed,
	}, {
		desc: "ilm_add nil",
		fn:   func(b *Boundary) constants.Status { return b.ILMAdd(nil) },
		want: constants.Failed,
	}, {
		desc: "ilm_del nil",
		fn:   func(b *Boundary) constants.Status { return b.ILMDel(nil) },
		want: constants.Failed,
	}, {
		desc: "nh_add_del nil",
		fn:   func(b *Boundary) constants.Status { return b.NHAddDel(nil) },
		want: constants.Failed,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			b := New()
			if got := b.PeerAdd(peer, &PeerEntry{OutIfIndex: 5}); got != constants.OK {
				t.Fatalf("cannot add peer, got %d", got)
			}
			if got := b.PeerRouteAdd(peer, rt); got != constants.OK {
				t.Fatalf("cannot add route, got %d", got)
			}
			if got := tt.fn(b); got != tt.want {
				t.Fatalf("did not get expected status, got: %d, want: %d", got, tt.want)
			}
		})
	}
}

func TestMappedAddressFamily(t *testing.T) {
	b := New()
	if got := b.PeerAdd(addr("::ffff:10.0.0.1"), &PeerEntry{OutIfIndex: 1}); got != constants.OK {
		t.Fatalf("PeerAdd(::ffff:10.0.0.1): got %d, want %d", got, constants.OK)
	}
	if got := b.PeerAdd(V4(10, 0, 0, 1), &PeerEntry{OutIfIndex: 2}); got != constants.OK {
		t.Fatalf("PeerAdd(10.0.0.1): got %d, want %d", got, constants.OK)
	}

	var out PeerEntry
	if got := b.PeerLookup(addr("::ffff:10.0.0.1"), &out); got != constants.OK || out.OutIfIndex != 1 {
		t.Fatalf("PeerLookup(::ffff:10.0.0.1): got %d (%+v), want %d with interface 1", got, out, constants.OK)
	}
	if got := b.PeerLookup(V4(10, 0, 0, 1), &out); got != constants.OK || out.OutIfIndex != 2 {
		t.Fatalf("PeerLookup(10.0.0.1): got %d (%+v), want %d with interface 2", got, out, constants.OK)
	}
	for _, f := range []address.Family{address.V4, address.V6} {
		if got := len(b.Router().RIB.Peers(f)); got != 1 {
			t.Errorf("Peers(%s): got %d, want 1", f, got)
		}
	}
}

func TestFTNScenario(t *testing.T) {
	b := New()
	add := &FTNAddData{
		FEC:        V4(10, 0, 0, 0),
		FTNIx:      1,
		NextHop:    V4(20, 0, 0, 1),
		OutIfIndex: 3,
		OutLabels:  []uint32{100},
	}
	if got := b.FTNAdd(add); got != constants.OK {
		t.Fatalf("FTNAdd(): got %d, want %d", got, constants.OK)
	}
	s, err := b.Router().LFIB.FTN(address.MustParse("10.0.0.0"), 1)
	if err != nil {
		t.Fatalf("FTN(): got unexpected error, %v", err)
	}
	if s.Up {
		t.Fatalf("FTN before nh_add_del: got up, want down")
	}

	if got := b.NHAddDel(&NHAddDel{Addr: V4(20, 0, 0, 1), IfIndex: 3, IsAdd: true}); got != constants.OK {
		t.Fatalf("NHAddDel(): got %d, want %d", got, constants.OK)
	}
	if s, _ = b.Router().LFIB.FTN(address.MustParse("10.0.0.0"), 1); !s.Up {
		t.Fatalf("FTN after nh_add_del: got down, want up")
	}

	if got := b.FTNAdd(add); got != constants.Failed {
		t.Fatalf("FTNAdd() duplicate: got %d, want %d", got, constants.Failed)
	}
	if got := b.FTNDel(&FTNDelData{FEC: V4(10, 0, 0, 0), FTNIx: 1}); got != constants.OK {
		t.Fatalf("FTNDel(): got %d, want %d", got, constants.OK)
	}
}

func TestILM(t *testing.T) {
	b := New()
	d := &ILMAddData{InLabel: 1000, InIface: 2, NextHop: V4(20, 0, 0, 1), OutIfIndex: 3, OutLabel: 300, Owner: 7}
	if got := b.ILMAdd(d); got != constants.OK {
		t.Fatalf("ILMAdd(): got %d, want %d", got, constants.OK)
	}
	if d.ILMIx != 1 {
		t.Fatalf("ILMAdd(): got allocated index %d, want 1", d.ILMIx)
	}

	dup := *d
	dup.ILMIx = 0
	if got := b.ILMAdd(&dup); got != constants.Failed {
		t.Fatalf("ILMAdd() same owner: got %d, want %d", got, constants.Failed)
	}

	if got := b.ILMDel(&ILMDelData{InLabel: 1000, InIface: 2, Owner: 7}); got != constants.OK {
		t.Fatalf("ILMDel(): got %d, want %d", got, constants.OK)
	}
}

func TestLongestMatch(t *testing.T) {
	b := New()
	for _, e := range []struct {
		pfx, mask string
		nh        string
		ifIndex   uint32
	}{
		{"10.0.0.0", "255.0.0.0", "192.0.2.1", 1},
		{"10.1.0.0", "255.255.0.0", "192.0.2.2", 2},
	} {
		if got := b.LongestMatchAdd(addr(e.pfx), addr(e.mask), &ForwardingEntry{NextHop: addr(e.nh), OutIfIndex: e.ifIndex}); got != constants.OK {
			t.Fatalf("LongestMatchAdd(%s): got %d, want %d", e.pfx, got, constants.OK)
		}
	}

	tests := []struct {
		desc    string
		inAddr  IPAddr
		want    *ForwardingEntry
		wantRet constants.Status
	}{{
		desc:   "most specific",
		inAddr: V4(10, 1, 2, 3),
		want:   &ForwardingEntry{NextHop: V4(192, 0, 2, 2), OutIfIndex: 2},
	}, {
		desc:   "less specific",
		inAddr: V4(10, 2, 0, 1),
		want:   &ForwardingEntry{NextHop: V4(192, 0, 2, 1), OutIfIndex: 1},
	}, {
		desc:    "no match",
		inAddr:  V4(11, 0, 0, 1),
		want:    &ForwardingEntry{},
		wantRet: constants.Failed,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := &ForwardingEntry{}
			if ret := b.LongestMatchLookup(tt.inAddr, got); ret != tt.wantRet {
				t.Fatalf("LongestMatchLookup(): got %d, want %d", ret, tt.wantRet)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("LongestMatchLookup(): did not get expected entry, diff(-want,+got):\n%s", diff)
			}
		})
	}

	if got := b.LongestMatchAdd(V4(10, 0, 0, 0), addr("ffff::"), &ForwardingEntry{NextHop: V4(192, 0, 2, 1)}); got != constants.Failed {
		t.Fatalf("LongestMatchAdd() with mask of other family: got %d, want %d", got, constants.Failed)
	}
	if got := b.LongestMatchDelete(V4(10, 1, 0, 0), V4(255, 255, 0, 0)); got != constants.OK {
		t.Fatalf("LongestMatchDelete(): got %d, want %d", got, constants.OK)
	}
	if got := b.LongestMatchDelete(V4(10, 1, 0, 0), V4(255, 255, 0, 0)); got != constants.Failed {
		t.Fatalf("LongestMatchDelete() again: got %d, want %d", got, constants.Failed)
	}
}

func TestPeerIterate(t *testing.T) {
	alloc := NewCountingAllocator(nil)
	b := New(WithAllocator(alloc))
	for _, p := range []string{"10.0.0.3", "10.0.0.1", "10.0.0.2", "2001:db8::1"} {
		if got := b.PeerAdd(addr(p), &PeerEntry{OutIfIndex: 1}); got != constants.OK {
			t.Fatalf("PeerAdd(%s): got %d", p, got)
		}
	}

	var got []*PeerEntry
	ret := b.PeerIterate(1, func(e *PeerEntry) bool {
		got = append(got, &PeerEntry{Prefix: IPAddr{Family: e.Prefix.Family, Addr: append([]byte(nil), e.Prefix.Addr...)}, OutIfIndex: e.OutIfIndex})
		return len(got) < 2
	})
	if ret != constants.OK {
		t.Fatalf("PeerIterate(): got %d, want %d", ret, constants.OK)
	}
	want := []*PeerEntry{
		{Prefix: V4(10, 0, 0, 1), OutIfIndex: 1},
		{Prefix: V4(10, 0, 0, 2), OutIfIndex: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("PeerIterate(): did not get expected peers, diff(-want,+got):\n%s", diff)
	}
	if n := alloc.Outstanding(); n != 0 {
		t.Fatalf("PeerIterate(): %d buffers not freed", n)
	}

	var v6 int
	b.PeerIterate(2, func(*PeerEntry) bool { v6++; return true })
	if v6 != 1 {
		t.Fatalf("PeerIterate(IPv6): got %d peers, want 1", v6)
	}
}

func TestInit(t *testing.T) {
	Init()
	Init()
	if got := flag.Lookup("v").Value.String(); got != "2" {
		t.Fatalf("verbosity after Init(): got %s, want 2", got)
	}
}

func TestDefault(t *testing.T) {
	if Default() != Default() {
		t.Fatalf("Default() returned different boundaries")
	}
}
