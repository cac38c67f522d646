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

	"github.com/k-sone/critbitgo"
	"github.com/openconfig/lsrsim/address"
)

// octetTree is a radix tree keyed by the octets of an address, holding
// values of type T. It is not safe for concurrent use.
type octetTree[T any] struct {
	t *critbitgo.Trie
}

func newOctetTree[T any](address.Family) *octetTree[T] {
	return &octetTree[T]{t: critbitgo.NewTrie()}
}

// get returns the value stored for a.
func (o *octetTree[T]) get(a netip.Addr) (T, bool) {
	v, ok := o.t.Get(address.Octets(a))
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// set stores v for a, replacing any existing value.
func (o *octetTree[T]) set(a netip.Addr, v T) {
	o.t.Set(address.Octets(a), v)
}

// delete removes the value stored for a.
func (o *octetTree[T]) delete(a netip.Addr) bool {
	_, ok := o.t.Delete(address.Octets(a))
	return ok
}

// walk calls fn for each address in the tree in octet order, stopping if
// fn returns false.
func (o *octetTree[T]) walk(fn func(netip.Addr, T) bool) {
	o.t.Walk(nil, func(k []byte, v interface{}) bool {
		a, _ := netip.AddrFromSlice(k)
		return fn(a, v.(T))
	})
}

// len returns the number of addresses in the tree.
func (o *octetTree[T]) len() int {
	return o.t.Size()
}

// perFamilyTree is an octetTree per address family.
type perFamilyTree[T any] struct {
	*address.PerFamily[*octetTree[T]]
}

func newPerFamilyTree[T any]() perFamilyTree[T] {
	return perFamilyTree[T]{address.NewPerFamily(newOctetTree[T])}
}

func (p perFamilyTree[T]) get(a netip.Addr) (T, bool) { return p.For(a).get(a) }
func (p perFamilyTree[T]) set(a netip.Addr, v T)      { p.For(a).set(a, v) }
func (p perFamilyTree[T]) delete(a netip.Addr) bool   { return p.For(a).delete(a) }

// walk calls fn for each address of each family, IPv4 first.
func (p perFamilyTree[T]) walk(fn func(netip.Addr, T) bool) {
	cont := true
	p.Each(func(_ address.Family, t *octetTree[T]) {
		if !cont {
			return
		}
		t.walk(func(a netip.Addr, v T) bool {
			cont = fn(a, v)
			return cont
		})
	})
}

// removeItem returns s with the first occurrence of v removed.
func removeItem[T comparable](s []T, v T) []T {
	for i, e := range s {
		if e == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// containsItem reports whether v is in s.
func containsItem[T comparable](s []T, v T) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
