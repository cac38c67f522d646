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
	"net/netip"

	"github.com/openconfig/lsrsim/address"
)

// IPAddr is an address as it is passed across the boundary. A Family of 1
// indicates that Addr holds 4 octets, any other value 16 octets. Addr is
// owned by the caller.
type IPAddr struct {
	Family uint8
	Addr   []byte
}

// V4 returns the IPAddr for the IPv4 address with octets a, b, c and d.
func V4(a, b, c, d byte) IPAddr {
	return IPAddr{Family: address.WireFamily, Addr: []byte{a, b, c, d}}
}

// FromAddr returns a newly allocated IPAddr holding a.
func FromAddr(a netip.Addr) IPAddr {
	return IPAddr{Family: address.WireFamilyOf(a), Addr: address.Octets(a)}
}

// addr copies the address out of the caller's buffer.
func (i IPAddr) addr() (netip.Addr, error) {
	return address.FromBytes(i.Family, i.Addr)
}

// RouteEntry is a route as it is passed across the boundary.
type RouteEntry struct {
	Prefix     IPAddr
	Mask       IPAddr
	NextHop    IPAddr
	OutIfIndex uint32
}

// PeerEntry is a peer as it is passed across the boundary.
type PeerEntry struct {
	Prefix     IPAddr
	OutIfIndex uint32
}

// ForwardingEntry is the result of a longest-prefix-match table entry.
type ForwardingEntry struct {
	NextHop    IPAddr
	OutIfIndex uint32
}

// FTNAddData describes an FTN to be added.
type FTNAddData struct {
	FEC        IPAddr
	FTNIx      uint32
	NextHop    IPAddr
	OutIfIndex uint32
	// OutLabels is the label stack to push, outermost first.
	OutLabels []uint32
}

// FTNDelData identifies an FTN to be deleted.
type FTNDelData struct {
	FEC   IPAddr
	FTNIx uint32
}

// ILMAddData describes an ILM entry to be added or updated.
type ILMAddData struct {
	InLabel    uint32
	InIface    uint32
	NextHop    IPAddr
	OutIfIndex uint32
	OutLabel   uint32
	ILMIx      uint32
	Owner      uint32
}

// ILMDelData identifies an ILM entry to be deleted, by ILMIx if it is
// non-zero and by Owner otherwise.
type ILMDelData struct {
	InLabel uint32
	InIface uint32
	ILMIx   uint32
	Owner   uint32
}

// NHAddDel sets the reachability of a next hop.
type NHAddDel struct {
	Addr    IPAddr
	IfIndex uint32
	IsAdd   bool
}
