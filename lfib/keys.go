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
	"fmt"
	"net/netip"
)

// ILMKey is the key of the incoming label map.
type ILMKey struct {
	// InLabel is the label of received packets.
	InLabel uint32
	// InIface is the index of the interface that packets are received on.
	InIface uint32
}

// String returns a human readable form of the key.
func (k ILMKey) String() string {
	return fmt.Sprintf("%d/%d", k.InLabel, k.InIface)
}

// NHLFEKey identifies a next-hop label forwarding entry. Entries with
// the same key share a single NHLFE and cross-connect.
type NHLFEKey struct {
	NextHop  netip.Addr
	OutLabel uint32
	OutIface uint32
	TrunkID  uint16
	LSPID    uint16
	Ingress  netip.Addr
	Egress   netip.Addr
}

// newNHLFEKey returns the key used for an NHLFE that forwards to nh with
// label out via the interface with index iface. Trunk and LSP identifiers,
// and the ingress and egress addresses, are not used by the tables and take
// their zero values.
func newNHLFEKey(nh netip.Addr, out, iface uint32) NHLFEKey {
	return NHLFEKey{
		NextHop:  nh,
		OutLabel: out,
		OutIface: iface,
		Ingress:  netip.IPv4Unspecified(),
		Egress:   netip.IPv4Unspecified(),
	}
}

// XCKey identifies a cross-connect.
type XCKey struct {
	InIface    uint32
	Label      uint32
	XCIndex    uint32
	NHLFEIndex uint32
}

// FTN describes a FEC-to-NHLFE binding to be added to the LFIB.
type FTN struct {
	// FEC is the address of the forwarding equivalence class.
	FEC netip.Addr
	// Index distinguishes FTNs for the same FEC, it is assigned by the caller.
	Index uint32
	// NextHop is the address that labelled packets are forwarded to.
	NextHop netip.Addr
	// OutIfIndex is the index of the outgoing interface.
	OutIfIndex uint32
	// OutLabels is the stack of labels to push, outermost first. The
	// outermost label is the label of the NHLFE.
	OutLabels []uint32
}

// ILM describes an incoming label map entry to be added to the LFIB.
type ILM struct {
	InLabel uint32
	InIface uint32
	// NextHop is the address that swapped packets are forwarded to.
	NextHop    netip.Addr
	OutIfIndex uint32
	OutLabel   uint32
	// Index identifies the entry within the entries for the same key. If it
	// is zero, an index is allocated.
	Index uint32
	// Owner identifies the client that added the entry, at most one entry
	// per key may exist for an owner.
	Owner uint32
}

// Key returns the incoming label map key of the entry.
func (i ILM) Key() ILMKey {
	return ILMKey{InLabel: i.InLabel, InIface: i.InIface}
}
