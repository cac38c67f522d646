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

// Package cabi implements the integer status boundary through which a foreign
// control plane programs a router. Each method mirrors one of the exported C
// functions: addresses are copied out of and into caller-owned buffers, and
// errors are collapsed to a constants.Status.
package cabi

import (
	"errors"
	"flag"
	"net/netip"
	"sync"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/rib"
	"github.com/openconfig/lsrsim/router"
)

// Boundary is the integer status interface to a router.
type Boundary struct {
	r     *router.Router
	alloc Allocator
}

// Opt is an interface implemented by options to New.
type Opt interface {
	isBoundaryOpt()
}

type withRouter struct{ r *router.Router }

func (*withRouter) isBoundaryOpt() {}

// WithRouter specifies the router that the boundary operates on. By default
// a new router is created.
func WithRouter(r *router.Router) *withRouter { return &withRouter{r: r} }

type withAllocator struct{ a Allocator }

func (*withAllocator) isBoundaryOpt() {}

// WithAllocator specifies the allocator used for buffers that are handed to
// the caller. By default buffers are allocated from the Go heap.
func WithAllocator(a Allocator) *withAllocator { return &withAllocator{a: a} }

// New returns a new Boundary.
func New(opts ...Opt) *Boundary {
	b := &Boundary{alloc: heapAllocator{}}
	for _, o := range opts {
		switch v := o.(type) {
		case *withRouter:
			b.r = v.r
		case *withAllocator:
			b.alloc = v.a
		}
	}
	if b.r == nil {
		b.r = router.New()
	}
	return b
}

// Router returns the router that b operates on.
func (b *Boundary) Router() *router.Router {
	return b.r
}

var (
	defaultOnce sync.Once
	defaultB    *Boundary

	initOnce sync.Once
)

// Default returns the process-wide boundary, creating it on first use.
func Default() *Boundary {
	defaultOnce.Do(func() {
		defaultB = New()
	})
	return defaultB
}

// Init configures logging at trace verbosity. Calls after the first have no
// effect.
func Init() {
	initOnce.Do(func() {
		for k, v := range map[string]string{"v": "2", "logtostderr": "true"} {
			if err := flag.Set(k, v); err != nil {
				log.Errorf("cannot set logging flag %s, %v", k, err)
			}
		}
		log.V(2).Infof("logging initialised")
	})
}

// errNilArgument is returned when a required argument is nil.
var errNilArgument = errors.New("nil argument")

// result collapses err to a status, logging the cause of any failure.
func result(op string, err error) constants.Status {
	if err != nil {
		log.V(2).Infof("%s: %v", op, err)
		return constants.Failed
	}
	return constants.OK
}

// peerRouteResult collapses err to a status, distinguishing errors that
// concern the route within the peer from those that concern the peer.
func peerRouteResult(op string, err error) constants.Status {
	switch {
	case err == nil:
		return constants.OK
	case errors.Is(err, rib.ErrRouteNotFound), errors.Is(err, rib.ErrRouteExists):
		log.V(2).Infof("%s: %v", op, err)
		return constants.SecondaryFailed
	default:
		return result(op, err)
	}
}

// put writes a into dst, allocating a buffer if dst does not have room.
func (b *Boundary) put(a netip.Addr, dst *IPAddr) error {
	if !a.IsValid() {
		return nil
	}
	if n := len(address.Octets(a)); len(dst.Addr) < n {
		dst.Addr = b.alloc.Alloc(n)
	}
	dst.Family = address.WireFamilyOf(a)
	return address.Put(a, dst.Addr)
}

// addrs copies each of the addresses in in out of the caller's buffers.
func addrs(in ...IPAddr) ([]netip.Addr, error) {
	out := make([]netip.Addr, len(in))
	for i, a := range in {
		var err error
		if out[i], err = a.addr(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *Boundary) writeRoute(rt rib.Route, out *RouteEntry) error {
	if out == nil {
		return nil
	}
	for _, w := range []struct {
		a   netip.Addr
		dst *IPAddr
	}{{rt.Prefix, &out.Prefix}, {rt.Mask, &out.Mask}, {rt.NextHop, &out.NextHop}} {
		if err := b.put(w.a, w.dst); err != nil {
			return err
		}
	}
	out.OutIfIndex = rt.OutIfIndex
	return nil
}

func routeFrom(e *RouteEntry) (rib.Route, error) {
	if e == nil {
		return rib.Route{}, errors.New("nil route entry")
	}
	as, err := addrs(e.Prefix, e.Mask, e.NextHop)
	if err != nil {
		return rib.Route{}, err
	}
	return rib.Route{Prefix: as[0], Mask: as[1], NextHop: as[2], OutIfIndex: e.OutIfIndex}, nil
}

// RouteAdd adds the route e to the global route table.
func (b *Boundary) RouteAdd(e *RouteEntry) constants.Status {
	rt, err := routeFrom(e)
	if err == nil {
		err = b.r.RIB.RouteAdd(rt)
	}
	return result("route_add", err)
}

// RouteLookup looks up prefix in the global route table, writing the route to
// out if it is found.
func (b *Boundary) RouteLookup(prefix IPAddr, out *RouteEntry) constants.Status {
	p, err := prefix.addr()
	if err != nil {
		return result("route_lookup", err)
	}
	rt, err := b.r.RIB.RouteLookup(p)
	if err == nil {
		err = b.writeRoute(rt, out)
	}
	return result("route_lookup", err)
}

// RouteDelete removes prefix from the global route table.
func (b *Boundary) RouteDelete(prefix IPAddr) constants.Status {
	p, err := prefix.addr()
	if err == nil {
		err = b.r.RIB.RouteDelete(p)
	}
	return result("route_delete", err)
}

func ifIndexOf(e *PeerEntry) uint32 {
	if e == nil {
		return 0
	}
	return e.OutIfIndex
}

// PeerAdd adds the peer prefix, reached via e.OutIfIndex. Failed is returned
// if the peer exists.
func (b *Boundary) PeerAdd(prefix IPAddr, e *PeerEntry) constants.Status {
	p, err := prefix.addr()
	if err == nil {
		err = b.r.RIB.PeerAdd(p, ifIndexOf(e))
	}
	return result("peer_add", err)
}

// PeerAddModify adds the peer prefix, or updates its interface if it exists,
// in which case Modified is returned.
func (b *Boundary) PeerAddModify(prefix IPAddr, e *PeerEntry) constants.Status {
	p, err := prefix.addr()
	if err != nil {
		return result("peer_add_modify", err)
	}
	op, err := b.r.RIB.PeerAddModify(p, ifIndexOf(e))
	if err != nil {
		return result("peer_add_modify", err)
	}
	if op == constants.REPLACE {
		return constants.Modified
	}
	return constants.OK
}

// PeerLookup looks up the peer prefix, writing it to out if it is found.
func (b *Boundary) PeerLookup(prefix IPAddr, out *PeerEntry) constants.Status {
	p, err := prefix.addr()
	if err != nil {
		return result("peer_lookup", err)
	}
	pe, err := b.r.RIB.PeerLookup(p)
	if err == nil && out != nil {
		out.OutIfIndex = pe.OutIfIndex
		err = b.put(pe.Prefix, &out.Prefix)
	}
	return result("peer_lookup", err)
}

// PeerDelete removes the peer prefix, along with each route for which it is
// the last advertising peer.
func (b *Boundary) PeerDelete(prefix IPAddr) constants.Status {
	p, err := prefix.addr()
	if err == nil {
		err = b.r.RIB.PeerDelete(p)
	}
	return result("peer_delete", err)
}

// PeerRouteAdd adds the route e to the routes advertised by peer.
// SecondaryFailed is returned if the peer already advertises the route.
func (b *Boundary) PeerRouteAdd(peer IPAddr, e *RouteEntry) constants.Status {
	p, err := peer.addr()
	if err != nil {
		return result("peer_route_add", err)
	}
	rt, err := routeFrom(e)
	if err == nil {
		err = b.r.RIB.PeerRouteAdd(p, rt)
	}
	return peerRouteResult("peer_route_add", err)
}

// PeerRouteAddModify adds the route e to the routes advertised by peer, or
// updates it if the peer already advertises it, in which case Modified is
// returned.
func (b *Boundary) PeerRouteAddModify(peer IPAddr, e *RouteEntry) constants.Status {
	p, err := peer.addr()
	if err != nil {
		return result("peer_route_add_modify", err)
	}
	rt, err := routeFrom(e)
	if err != nil {
		return result("peer_route_add_modify", err)
	}
	op, err := b.r.RIB.PeerRouteAddModify(p, rt)
	if err != nil {
		return peerRouteResult("peer_route_add_modify", err)
	}
	if op == constants.REPLACE {
		return constants.Modified
	}
	return constants.OK
}

// PeerRouteLookup looks up route within the routes advertised by peer,
// writing it to out if it is found. SecondaryFailed is returned if the peer
// exists but does not advertise the route.
func (b *Boundary) PeerRouteLookup(peer, route IPAddr, out *RouteEntry) constants.Status {
	as, err := addrs(peer, route)
	if err != nil {
		return result("peer_route_lookup", err)
	}
	rt, err := b.r.RIB.PeerRouteLookup(as[0], as[1])
	if err == nil {
		err = b.writeRoute(rt, out)
	}
	return peerRouteResult("peer_route_lookup", err)
}

// PeerRouteDelete removes route from the routes advertised by peer.
func (b *Boundary) PeerRouteDelete(peer, route IPAddr) constants.Status {
	as, err := addrs(peer, route)
	if err != nil {
		return result("peer_route_delete", err)
	}
	return peerRouteResult("peer_route_delete", b.r.RIB.PeerRouteDelete(as[0], as[1]))
}

// PeerIterate calls fn for each peer of the family given by its wire value,
// in address order, stopping if fn returns false. The buffer holding the
// peer's address is obtained from the boundary's allocator and is freed when
// fn returns.
func (b *Boundary) PeerIterate(family uint8, fn func(*PeerEntry) bool) constants.Status {
	f := address.V6
	if family == address.WireFamily {
		f = address.V4
	}
	b.r.RIB.PeerIterate(f, func(p rib.Peer) bool {
		buf := b.alloc.Alloc(len(address.Octets(p.Prefix)))
		defer b.alloc.Free(buf)
		e := &PeerEntry{Prefix: IPAddr{Addr: buf}, OutIfIndex: p.OutIfIndex}
		if err := b.put(p.Prefix, &e.Prefix); err != nil {
			log.Errorf("peer_iterate: %v", err)
			return false
		}
		return fn(e)
	})
	return constants.OK
}

// LongestMatchAdd adds the prefix described by prefix and mask to the
// longest-prefix-match table.
func (b *Boundary) LongestMatchAdd(prefix, mask IPAddr, e *ForwardingEntry) constants.Status {
	if e == nil {
		return result("longest_match_add", errNilArgument)
	}
	as, err := addrs(prefix, mask, e.NextHop)
	if err != nil {
		return result("longest_match_add", err)
	}
	p, err := address.Prefix(as[0], as[1])
	if err == nil {
		err = b.r.FIB.Add(p, fib.Entry{NextHop: as[2], OutIfIndex: e.OutIfIndex})
	}
	return result("longest_match_add", err)
}

// LongestMatchLookup finds the most specific prefix in the
// longest-prefix-match table that contains addr, writing its entry to out.
func (b *Boundary) LongestMatchLookup(addr IPAddr, out *ForwardingEntry) constants.Status {
	a, err := addr.addr()
	if err != nil {
		return result("longest_match_lookup", err)
	}
	m, err := b.r.FIB.Lookup(a)
	if err == nil && out != nil {
		out.OutIfIndex = m.OutIfIndex
		err = b.put(m.NextHop, &out.NextHop)
	}
	return result("longest_match_lookup", err)
}

// LongestMatchDelete removes the prefix described by prefix and mask from
// the longest-prefix-match table.
func (b *Boundary) LongestMatchDelete(prefix, mask IPAddr) constants.Status {
	as, err := addrs(prefix, mask)
	if err != nil {
		return result("longest_match_delete", err)
	}
	p, err := address.Prefix(as[0], as[1])
	if err == nil {
		err = b.r.FIB.Delete(p)
	}
	return result("longest_match_delete", err)
}

// FTNAdd adds the FTN described by d.
func (b *Boundary) FTNAdd(d *FTNAddData) constants.Status {
	if d == nil {
		return result("ftn_add", errNilArgument)
	}
	as, err := addrs(d.FEC, d.NextHop)
	if err != nil {
		return result("ftn_add", err)
	}
	return result("ftn_add", b.r.LFIB.FTNAdd(lfib.FTN{
		FEC:        as[0],
		Index:      d.FTNIx,
		NextHop:    as[1],
		OutIfIndex: d.OutIfIndex,
		OutLabels:  append([]uint32(nil), d.OutLabels...),
	}))
}

// FTNDel removes the FTN identified by d.
func (b *Boundary) FTNDel(d *FTNDelData) constants.Status {
	if d == nil {
		return result("ftn_del", errNilArgument)
	}
	fec, err := d.FEC.addr()
	if err == nil {
		err = b.r.LFIB.FTNDel(fec, d.FTNIx)
	}
	return result("ftn_del", err)
}

// ILMAdd adds or updates the ILM entry described by d. If d.ILMIx is zero,
// the allocated index is written to it.
func (b *Boundary) ILMAdd(d *ILMAddData) constants.Status {
	if d == nil {
		return result("ilm_add", errNilArgument)
	}
	nh, err := d.NextHop.addr()
	if err != nil {
		return result("ilm_add", err)
	}
	ix, err := b.r.LFIB.ILMAdd(lfib.ILM{
		InLabel:    d.InLabel,
		InIface:    d.InIface,
		NextHop:    nh,
		OutIfIndex: d.OutIfIndex,
		OutLabel:   d.OutLabel,
		Index:      d.ILMIx,
		Owner:      d.Owner,
	})
	if err == nil {
		d.ILMIx = ix
	}
	return result("ilm_add", err)
}

// ILMDel removes the ILM entry identified by d.
func (b *Boundary) ILMDel(d *ILMDelData) constants.Status {
	if d == nil {
		return result("ilm_del", errNilArgument)
	}
	return result("ilm_del", b.r.LFIB.ILMDel(d.InLabel, d.InIface, d.ILMIx, d.Owner))
}

// NHAddDel sets the reachability of the next hop described by d, and
// propagates the change to the entries that depend on it.
func (b *Boundary) NHAddDel(d *NHAddDel) constants.Status {
	if d == nil {
		return result("nh_add_del", errNilArgument)
	}
	a, err := d.Addr.addr()
	if err == nil {
		err = b.r.LFIB.NHAddDel(a, d.IfIndex, d.IsAdd)
	}
	return result("nh_add_del", err)
}
