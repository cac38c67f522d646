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

package main

// #include "libmplssim.h"
import "C"

import (
	"unsafe"

	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/cabi"
)

// addrLen returns the number of octets held by an address of the wire family f.
func addrLen(f C.uint8_t) int {
	if uint8(f) == address.WireFamily {
		return 4
	}
	return 16
}

// goAddr copies the address a out of C memory.
func goAddr(a *C.ip_addr_c) cabi.IPAddr {
	if a == nil || a.addr == nil {
		return cabi.IPAddr{}
	}
	return cabi.IPAddr{
		Family: uint8(a.family),
		Addr:   C.GoBytes(unsafe.Pointer(a.addr), C.int(addrLen(a.family))),
	}
}

// outAddr returns an IPAddr whose buffer is the C buffer of a, sized for an
// address of the wire family f. Results written to the IPAddr are written
// directly to C memory.
func outAddr(a *C.ip_addr_c, f uint8) cabi.IPAddr {
	if a == nil || a.addr == nil {
		return cabi.IPAddr{}
	}
	return cabi.IPAddr{
		Family: f,
		Addr:   unsafe.Slice((*byte)(unsafe.Pointer(a.addr)), addrLen(C.uint8_t(f))),
	}
}

// setFamily records the family of the result written to out in a, if the
// result was written to a's buffer. A buffer that was allocated because a
// could not hold the result is freed.
func setFamily(a *C.ip_addr_c, out cabi.IPAddr) {
	if len(out.Addr) == 0 {
		return
	}
	if a != nil && a.addr != nil && unsafe.Pointer(&out.Addr[0]) == unsafe.Pointer(a.addr) {
		a.family = C.uint8_t(out.Family)
		return
	}
	cAllocator{}.Free(out.Addr)
}

func goRoute(e *C.route_entry) *cabi.RouteEntry {
	if e == nil {
		return nil
	}
	return &cabi.RouteEntry{
		Prefix:     goAddr(&e.prefix),
		Mask:       goAddr(&e.mask),
		NextHop:    goAddr(&e.next_hop),
		OutIfIndex: uint32(e.out_ifindex),
	}
}

// outRoute returns a RouteEntry that writes to the buffers of e, sized for
// results of the wire family f.
func outRoute(e *C.route_entry, f uint8) *cabi.RouteEntry {
	if e == nil {
		return nil
	}
	return &cabi.RouteEntry{
		Prefix:  outAddr(&e.prefix, f),
		Mask:    outAddr(&e.mask, f),
		NextHop: outAddr(&e.next_hop, f),
	}
}

func finishRoute(e *C.route_entry, r *cabi.RouteEntry) {
	if e == nil || r == nil {
		return
	}
	setFamily(&e.prefix, r.Prefix)
	setFamily(&e.mask, r.Mask)
	setFamily(&e.next_hop, r.NextHop)
	e.out_ifindex = C.uint32_t(r.OutIfIndex)
}

func goPeer(e *C.peer_entry) *cabi.PeerEntry {
	if e == nil {
		return nil
	}
	return &cabi.PeerEntry{Prefix: goAddr(&e.prefix), OutIfIndex: uint32(e.out_ifindex)}
}

func goLabels(n C.uint32_t, l *C.uint32_t) []uint32 {
	if n == 0 || l == nil {
		return nil
	}
	src := unsafe.Slice((*uint32)(unsafe.Pointer(l)), int(n))
	return append([]uint32(nil), src...)
}

// cAllocator allocates buffers from the C heap, such that they may be
// handed to C callbacks.
type cAllocator struct{}

func (cAllocator) Alloc(n int) []byte {
	return unsafe.Slice((*byte)(C.malloc(C.size_t(n))), n)
}

func (cAllocator) Free(b []byte) {
	if len(b) != 0 {
		C.free(unsafe.Pointer(&b[0]))
	}
}
