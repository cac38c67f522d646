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

package rib

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/openconfig/lsrsim/address"
)

// CheckConsistency verifies that the relationship between the peers and
// routes of the RIB is bidirectional: a peer is in the peer set of a route
// if and only if the route is in the route table of the peer. It also checks
// that every route that is referenced by a peer is present in the route
// table, and that no learnt route is held without peers. It returns an error
// describing each of the violations found.
func (r *RIB) CheckConsistency() error {
	var errs []error
	r.t.Each(func(f address.Family, t *table) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for pa, pe := range t.peers {
			if pe.prefix != pa {
				errs = append(errs, fmt.Errorf("%s: peer stored at %s has prefix %s", f, pa, pe.prefix))
			}
			for ra, re := range pe.routes {
				if got, ok := t.routes[ra]; !ok || got != re {
					errs = append(errs, fmt.Errorf("%s: peer %s references route %s that is not in the route table", f, pa, ra))
				}
				if re.peers[pa] != pe {
					errs = append(errs, fmt.Errorf("%s: peer %s references route %s which does not list the peer", f, pa, ra))
				}
			}
		}
		for ra, re := range t.routes {
			if re.prefix != ra {
				errs = append(errs, fmt.Errorf("%s: route stored at %s has prefix %s", f, ra, re.prefix))
			}
			if len(re.peers) == 0 && !re.static {
				errs = append(errs, fmt.Errorf("%s: learnt route %s has no peers", f, ra))
			}
			for pa, pe := range re.peers {
				if got, ok := t.peers[pa]; !ok || got != pe {
					errs = append(errs, fmt.Errorf("%s: route %s lists peer %s that is not in the peer table", f, ra, pa))
				}
				if pe.routes[ra] != re {
					errs = append(errs, fmt.Errorf("%s: route %s lists peer %s which does not reference the route", f, ra, pa))
				}
			}
		}
	})
	return errors.Join(errs...)
}

// fakeRIB is a RIB for use in testing which exposes methods that can be used to more easily
// construct a RIB's contents.
type fakeRIB struct {
	r *RIB
}

// NewFake returns a new Fake RIB.
func NewFake(opt ...RIBOpt) *fakeRIB {
	return &fakeRIB{
		r: New(opt...),
	}
}

// RIB returns the constructed fake RIB to the caller.
func (f *fakeRIB) RIB() *RIB {
	return f.r
}

// InjectPeer adds a peer with the address addr, reached via the interface
// with index ifIndex. It returns an error if the peer cannot be added.
func (f *fakeRIB) InjectPeer(addr string, ifIndex uint32) error {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		return fmt.Errorf("invalid peer address %s, %v", addr, err)
	}
	if _, err := f.r.PeerAddModify(a, ifIndex); err != nil {
		return fmt.Errorf("cannot add peer, err: %v", err)
	}
	return nil
}

// InjectRoute adds the route with prefix pfx (in CIDR form) to the routes
// advertised by peer, with the specified next-hop and interface index. It
// returns an error if the route cannot be added.
func (f *fakeRIB) InjectRoute(peer, pfx, nh string, ifIndex uint32) error {
	pa, err := netip.ParseAddr(peer)
	if err != nil {
		return fmt.Errorf("invalid peer address %s, %v", peer, err)
	}
	p, err := netip.ParsePrefix(pfx)
	if err != nil {
		return fmt.Errorf("invalid prefix %s, %v", pfx, err)
	}
	nha, err := netip.ParseAddr(nh)
	if err != nil {
		return fmt.Errorf("invalid next-hop %s, %v", nh, err)
	}
	if _, err := f.r.PeerRouteAddModify(pa, Route{
		Prefix:     p.Addr(),
		Mask:       maskOf(p),
		NextHop:    nha,
		OutIfIndex: ifIndex,
	}); err != nil {
		return fmt.Errorf("cannot add route, err: %v", err)
	}
	return nil
}

// maskOf returns the network mask of the prefix p.
func maskOf(p netip.Prefix) netip.Addr {
	b := make([]byte, p.Addr().BitLen()/8)
	for i := 0; i < p.Bits(); i++ {
		b[i/8] |= 0x80 >> (i % 8)
	}
	a, _ := netip.AddrFromSlice(b)
	return a
}
