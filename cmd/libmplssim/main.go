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

// Binary libmplssim is built with -buildmode=c-shared to export the router's
// tables to a C control plane. Each exported function returns the integer
// status of the corresponding cabi.Boundary method.
package main

// #include "libmplssim.h"
import "C"

import (
	"sync"
	"unsafe"

	"github.com/openconfig/lsrsim/cabi"
	"github.com/openconfig/lsrsim/constants"
)

var (
	once sync.Once
	b    *cabi.Boundary
)

// boundary returns the boundary that the exported functions operate on.
func boundary() *cabi.Boundary {
	once.Do(func() {
		b = cabi.New(cabi.WithAllocator(cAllocator{}))
	})
	return b
}

func ret(s constants.Status) C.int32_t { return C.int32_t(s) }

//export init_logger
func init_logger() {
	cabi.Init()
}

//export route_add
func route_add(entry *C.route_entry) C.int32_t {
	return ret(boundary().RouteAdd(goRoute(entry)))
}

//export route_lookup
func route_lookup(prefix *C.ip_addr_c, entry *C.route_entry) C.int32_t {
	p := goAddr(prefix)
	out := outRoute(entry, p.Family)
	s := boundary().RouteLookup(p, out)
	finishRoute(entry, out)
	return ret(s)
}

//export route_delete
func route_delete(prefix *C.ip_addr_c) C.int32_t {
	return ret(boundary().RouteDelete(goAddr(prefix)))
}

//export peer_add
func peer_add(prefix *C.ip_addr_c, entry *C.peer_entry) C.int32_t {
	return ret(boundary().PeerAdd(goAddr(prefix), goPeer(entry)))
}

//export peer_add_modify
func peer_add_modify(prefix *C.ip_addr_c, entry *C.peer_entry) C.int32_t {
	return ret(boundary().PeerAddModify(goAddr(prefix), goPeer(entry)))
}

//export peer_lookup
func peer_lookup(prefix *C.ip_addr_c, entry *C.peer_entry) C.int32_t {
	p := goAddr(prefix)
	if entry == nil {
		return ret(boundary().PeerLookup(p, nil))
	}
	out := &cabi.PeerEntry{Prefix: outAddr(&entry.prefix, p.Family)}
	s := boundary().PeerLookup(p, out)
	setFamily(&entry.prefix, out.Prefix)
	entry.out_ifindex = C.uint32_t(out.OutIfIndex)
	return ret(s)
}

//export peer_delete
func peer_delete(prefix *C.ip_addr_c) C.int32_t {
	return ret(boundary().PeerDelete(goAddr(prefix)))
}

//export peer_route_add
func peer_route_add(peer *C.ip_addr_c, entry *C.route_entry) C.int32_t {
	return ret(boundary().PeerRouteAdd(goAddr(peer), goRoute(entry)))
}

//export peer_route_add_modify
func peer_route_add_modify(peer *C.ip_addr_c, entry *C.route_entry) C.int32_t {
	return ret(boundary().PeerRouteAddModify(goAddr(peer), goRoute(entry)))
}

//export peer_route_lookup
func peer_route_lookup(peer, route *C.ip_addr_c, entry *C.route_entry) C.int32_t {
	r := goAddr(route)
	out := outRoute(entry, r.Family)
	s := boundary().PeerRouteLookup(goAddr(peer), r, out)
	finishRoute(entry, out)
	return ret(s)
}

//export peer_route_delete
func peer_route_delete(peer, route *C.ip_addr_c) C.int32_t {
	return ret(boundary().PeerRouteDelete(goAddr(peer), goAddr(route)))
}

//export peer_iterate
func peer_iterate(family C.uint8_t, cb C.peer_iterate_cb, arg unsafe.Pointer) C.int32_t {
	if cb == nil {
		return ret(constants.Failed)
	}
	return ret(boundary().PeerIterate(uint8(family), func(e *cabi.PeerEntry) bool {
		ce := (*C.peer_entry)(C.malloc(C.size_t(unsafe.Sizeof(C.peer_entry{}))))
		defer C.free(unsafe.Pointer(ce))
		ce.prefix.family = C.uint8_t(e.Prefix.Family)
		ce.prefix.addr = (*C.uint8_t)(unsafe.Pointer(&e.Prefix.Addr[0]))
		ce.out_ifindex = C.uint32_t(e.OutIfIndex)
		return C.call_peer_iterate_cb(cb, ce, arg) != 0
	}))
}

//export longest_match_add
func longest_match_add(prefix, mask *C.ip_addr_c, entry *C.forwarding_entry) C.int32_t {
	if entry == nil {
		return ret(constants.Failed)
	}
	e := &cabi.ForwardingEntry{NextHop: goAddr(&entry.next_hop), OutIfIndex: uint32(entry.out_ifindex)}
	return ret(boundary().LongestMatchAdd(goAddr(prefix), goAddr(mask), e))
}

//export longest_match_lookup
func longest_match_lookup(addr *C.ip_addr_c, entry *C.forwarding_entry) C.int32_t {
	a := goAddr(addr)
	if entry == nil {
		return ret(boundary().LongestMatchLookup(a, nil))
	}
	out := &cabi.ForwardingEntry{NextHop: outAddr(&entry.next_hop, a.Family)}
	s := boundary().LongestMatchLookup(a, out)
	setFamily(&entry.next_hop, out.NextHop)
	entry.out_ifindex = C.uint32_t(out.OutIfIndex)
	return ret(s)
}

//export longest_match_delete
func longest_match_delete(prefix, mask *C.ip_addr_c) C.int32_t {
	return ret(boundary().LongestMatchDelete(goAddr(prefix), goAddr(mask)))
}

//export ftn_add
func ftn_add(d *C.ftn_add_data) C.int32_t {
	if d == nil {
		return ret(constants.Failed)
	}
	return ret(boundary().FTNAdd(&cabi.FTNAddData{
		FEC:        goAddr(&d.fec),
		FTNIx:      uint32(d.ftn_ix),
		NextHop:    goAddr(&d.next_hop),
		OutIfIndex: uint32(d.out_ifindex),
		OutLabels:  goLabels(d.out_label_number, d.out_label),
	}))
}

//export ftn_del
func ftn_del(d *C.ftn_del_data) C.int32_t {
	if d == nil {
		return ret(constants.Failed)
	}
	return ret(boundary().FTNDel(&cabi.FTNDelData{FEC: goAddr(&d.fec), FTNIx: uint32(d.ftn_ix)}))
}

//export ilm_add
func ilm_add(d *C.ilm_add_data) C.int32_t {
	if d == nil {
		return ret(constants.Failed)
	}
	in := &cabi.ILMAddData{
		InLabel:    uint32(d.in_label),
		InIface:    uint32(d.in_iface),
		NextHop:    goAddr(&d.next_hop),
		OutIfIndex: uint32(d.out_ifindex),
		OutLabel:   uint32(d.out_label),
		ILMIx:      uint32(d.ilm_ix),
		Owner:      uint32(d.owner),
	}
	s := boundary().ILMAdd(in)
	d.ilm_ix = C.uint32_t(in.ILMIx)
	return ret(s)
}

//export ilm_del
func ilm_del(d *C.ilm_del_data) C.int32_t {
	if d == nil {
		return ret(constants.Failed)
	}
	return ret(boundary().ILMDel(&cabi.ILMDelData{
		InLabel: uint32(d.in_label),
		InIface: uint32(d.in_iface),
		ILMIx:   uint32(d.ilm_ix),
		Owner:   uint32(d.owner),
	}))
}

//export nh_add_del
func nh_add_del(d *C.nh_add_del_t) C.int32_t {
	if d == nil {
		return ret(constants.Failed)
	}
	return ret(boundary().NHAddDel(&cabi.NHAddDel{
		Addr:    goAddr(&d.addr),
		IfIndex: uint32(d.ifindex),
		IsAdd:   bool(d.is_add),
	}))
}

func main() {}
