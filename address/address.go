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

// Package address contains the address value types that are shared by the
// route, forwarding and label tables, along with helpers to convert between
// raw octet buffers and netip values and to select per-family tables.
package address

import (
	"fmt"
	"net/netip"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"lukechampine.com/uint128"
)

// Family is the address family of an address.
type Family uint8

const (
	// Unknown is used for an invalid (zero) address.
	Unknown Family = iota
	// V4 specifies IPv4.
	V4
	// V6 specifies IPv6.
	V6
)

// String returns a human readable name for the family.
func (f Family) String() string {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// WireFamily is the value that is used to indicate IPv4 in the family field
// of an address handed across the foreign function boundary. Any other
// value is treated as IPv6.
const WireFamily uint8 = 1

// Of returns the family of the address a.
func Of(a netip.Addr) Family {
	switch {
	case !a.IsValid():
		return Unknown
	case a.Is4():
		return V4
	default:
		return V6
	}
}

// Canonical returns a with its zone removed. An IPv4-mapped IPv6 address
// keeps its IPv6 family.
func Canonical(a netip.Addr) netip.Addr {
	return a.WithZone("")
}

// Validate returns an InvalidArgument error if a is not a usable address.
func Validate(a netip.Addr) error {
	if !a.IsValid() {
		return status.Errorf(codes.InvalidArgument, "invalid address %v", a)
	}
	return nil
}

// SameFamily returns an InvalidArgument error if the addresses supplied do not
// all share the family of the first.
func SameFamily(addrs ...netip.Addr) error {
	if len(addrs) == 0 {
		return nil
	}
	want := Of(addrs[0])
	for _, a := range addrs {
		if err := Validate(a); err != nil {
			return err
		}
		if got := Of(a); got != want {
			return status.Errorf(codes.InvalidArgument, "address %s is %s, want %s", a, got, want)
		}
	}
	return nil
}

// FromBytes returns the address held in b. A family of WireFamily indicates
// that b holds 4 octets, any other value indicates 16 octets. Extra octets
// are ignored.
func FromBytes(family uint8, b []byte) (netip.Addr, error) {
	if family == WireFamily {
		if len(b) < 4 {
			return netip.Addr{}, status.Errorf(codes.InvalidArgument, "IPv4 address requires 4 bytes, got %d", len(b))
		}
		return netip.AddrFrom4([4]byte(b[:4])), nil
	}
	if len(b) < 16 {
		return netip.Addr{}, status.Errorf(codes.InvalidArgument, "IPv6 address requires 16 bytes, got %d", len(b))
	}
	return netip.AddrFrom16([16]byte(b[:16])), nil
}

// WireFamilyOf returns the family value used across the foreign function
// boundary for a.
func WireFamilyOf(a netip.Addr) uint8 {
	if a.Is4() {
		return WireFamily
	}
	return 2
}

// Octets returns the octets of a, 4 bytes for IPv4 and 16 for IPv6. It is
// used as the key within the radix trees.
func Octets(a netip.Addr) []byte {
	return a.AsSlice()
}

// Put copies the octets of a into b, returning an error if b is too small
// to hold them.
func Put(a netip.Addr, b []byte) error {
	o := Octets(a)
	if len(b) < len(o) {
		return status.Errorf(codes.InvalidArgument, "buffer of %d bytes cannot hold %s", len(b), a)
	}
	copy(b, o)
	return nil
}

// Unspecified returns the unspecified address of family f.
func Unspecified(f Family) netip.Addr {
	if f == V6 {
		return netip.IPv6Unspecified()
	}
	return netip.IPv4Unspecified()
}

// MaskLen returns the prefix length that corresponds to the contiguous
// network mask m. An InvalidArgument error is returned if m is not
// contiguous.
func MaskLen(m netip.Addr) (int, error) {
	if err := Validate(m); err != nil {
		return 0, err
	}
	var buf [16]byte
	copy(buf[:], m.AsSlice())
	u := uint128.FromBytesBE(buf[:])
	if u.IsZero() {
		return 0, nil
	}
	// A contiguous mask's complement is of the form 0..01..1, adding one to
	// it must therefore share no bits with it.
	n := uint128.Max.Xor(u)
	if !n.And(n.AddWrap64(1)).IsZero() {
		return 0, status.Errorf(codes.InvalidArgument, "mask %s is not contiguous", m)
	}
	return 128 - u.TrailingZeros(), nil
}

// Prefix returns the prefix described by the address p and mask m.
func Prefix(p, m netip.Addr) (netip.Prefix, error) {
	if err := SameFamily(p, m); err != nil {
		return netip.Prefix{}, err
	}
	l, err := MaskLen(m)
	if err != nil {
		return netip.Prefix{}, err
	}
	pfx, err := p.Prefix(l)
	if err != nil {
		return netip.Prefix{}, status.Errorf(codes.InvalidArgument, "cannot build prefix %s/%d, %v", p, l, err)
	}
	return pfx, nil
}

// PerFamily stores one value of type T for each address family, such that
// a single table implementation can be used for both IPv4 and IPv6.
type PerFamily[T any] struct {
	V4 T
	V6 T
}

// NewPerFamily returns a PerFamily where each value is created by fn.
func NewPerFamily[T any](fn func(Family) T) *PerFamily[T] {
	return &PerFamily[T]{V4: fn(V4), V6: fn(V6)}
}

// For returns the value for the family of a.
func (p *PerFamily[T]) For(a netip.Addr) T {
	return p.Get(Of(a))
}

// Get returns the value for the family f. IPv6 is returned for any family
// that is not IPv4, matching the boundary's treatment of the family field.
func (p *PerFamily[T]) Get(f Family) T {
	if f == V4 {
		return p.V4
	}
	return p.V6
}

// Each calls fn for each of the families in turn.
func (p *PerFamily[T]) Each(fn func(Family, T)) {
	fn(V4, p.V4)
	fn(V6, p.V6)
}

// MustParse parses s as an address, and panics if it is not valid. It is
// intended for use in tests and static tables.
func MustParse(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(fmt.Sprintf("invalid address %s, %v", s, err))
	}
	return a
}
