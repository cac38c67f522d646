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

// Package fib implements a longest-prefix-match forwarding table, held as
// a crit-bit tree per address family. The table is independent of the
// route and peer store.
package fib

import (
	"net"
	"net/netip"
	"sync"

	log "github.com/golang/glog"
	"github.com/k-sone/critbitgo"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Entry is the forwarding information held for a prefix.
type Entry struct {
	// NextHop is the next-hop address for the prefix.
	NextHop netip.Addr
	// OutIfIndex is the index of the outgoing interface.
	OutIfIndex uint32
}

// Match is the result of a longest-prefix-match lookup.
type Match struct {
	// Prefix is the most specific prefix that contained the looked up address.
	Prefix netip.Prefix
	Entry
}

// HookFn is called following each change to the table.
type HookFn func(constants.OpType, netip.Prefix, Entry)

// tree is the forwarding table of a single family.
type tree struct {
	family address.Family

	// mu protects n.
	mu sync.RWMutex
	n  *critbitgo.Net
}

// FIB is a longest-prefix-match table for IPv4 and IPv6.
type FIB struct {
	t    *address.PerFamily[*tree]
	hook HookFn
}

// New returns a new, empty FIB. If hook is non-nil, it is called following
// each change.
func New(hook HookFn) *FIB {
	return &FIB{
		t: address.NewPerFamily(func(f address.Family) *tree {
			return &tree{family: f, n: critbitgo.NewNet()}
		}),
		hook: hook,
	}
}

// ipNet returns the net.IPNet representation of p, used as the key of the tree.
func ipNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

// prefixOf returns the netip.Prefix representation of n, held in the tree
// of family f.
func prefixOf(f address.Family, n *net.IPNet) netip.Prefix {
	a, _ := netip.AddrFromSlice(n.IP)
	if f == address.V4 {
		a = a.Unmap()
	}
	ones, _ := n.Mask.Size()
	return netip.PrefixFrom(a, ones)
}

// checkPrefix validates p, returning it in its canonical, masked, form.
func checkPrefix(p netip.Prefix) (netip.Prefix, error) {
	if !p.IsValid() {
		return netip.Prefix{}, status.Errorf(codes.InvalidArgument, "invalid prefix %v", p)
	}
	return netip.PrefixFrom(address.Canonical(p.Addr()), p.Bits()).Masked(), nil
}

// Add installs the entry e for the prefix p. It returns an AlreadyExists
// error if the prefix is already installed.
func (f *FIB) Add(p netip.Prefix, e Entry) error {
	p, err := checkPrefix(p)
	if err != nil {
		return err
	}
	t := f.t.For(p.Addr())

	t.mu.Lock()
	k := ipNet(p)
	if _, ok, err := t.n.Get(k); err != nil {
		t.mu.Unlock()
		return status.Errorf(codes.InvalidArgument, "invalid prefix %s, %v", p, err)
	} else if ok {
		t.mu.Unlock()
		return status.Errorf(codes.AlreadyExists, "prefix %s already exists", p)
	}
	if err := t.n.Add(k, e); err != nil {
		t.mu.Unlock()
		return status.Errorf(codes.InvalidArgument, "cannot add prefix %s, %v", p, err)
	}
	t.mu.Unlock()

	log.V(2).Infof("fib: added %s via %s ifindex %d", p, e.NextHop, e.OutIfIndex)
	if f.hook != nil {
		f.hook(constants.ADD, p, e)
	}
	return nil
}

// Lookup returns the most specific prefix containing the address a, along
// with its entry. A NotFound error is returned if no prefix contains a.
func (f *FIB) Lookup(a netip.Addr) (Match, error) {
	a = address.Canonical(a)
	if err := address.Validate(a); err != nil {
		return Match{}, err
	}
	t := f.t.For(a)

	t.mu.RLock()
	defer t.mu.RUnlock()
	r, v, err := t.n.MatchIP(net.IP(a.AsSlice()))
	switch {
	case err != nil:
		return Match{}, status.Errorf(codes.InvalidArgument, "invalid address %s, %v", a, err)
	case r == nil:
		return Match{}, status.Errorf(codes.NotFound, "no prefix matches %s", a)
	}
	return Match{Prefix: prefixOf(t.family, r), Entry: v.(Entry)}, nil
}

// Get returns the entry for exactly the prefix p.
func (f *FIB) Get(p netip.Prefix) (Entry, error) {
	p, err := checkPrefix(p)
	if err != nil {
		return Entry{}, err
	}
	t := f.t.For(p.Addr())

	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok, err := t.n.Get(ipNet(p))
	switch {
	case err != nil:
		return Entry{}, status.Errorf(codes.InvalidArgument, "invalid prefix %s, %v", p, err)
	case !ok:
		return Entry{}, status.Errorf(codes.NotFound, "prefix %s not found", p)
	}
	return v.(Entry), nil
}

// Delete removes the prefix p from the table. A NotFound error is returned
// if the prefix is not installed.
func (f *FIB) Delete(p netip.Prefix) error {
	p, err := checkPrefix(p)
	if err != nil {
		return err
	}
	t := f.t.For(p.Addr())

	t.mu.Lock()
	v, ok, err := t.n.Delete(ipNet(p))
	t.mu.Unlock()
	switch {
	case err != nil:
		return status.Errorf(codes.InvalidArgument, "invalid prefix %s, %v", p, err)
	case !ok:
		return status.Errorf(codes.NotFound, "prefix %s not found", p)
	}

	log.V(2).Infof("fib: deleted %s", p)
	if f.hook != nil {
		f.hook(constants.DELETE, p, v.(Entry))
	}
	return nil
}

// Entries returns the installed prefixes of family fam in tree order.
func (f *FIB) Entries(fam address.Family) []Match {
	t := f.t.Get(fam)
	t.mu.RLock()
	defer t.mu.RUnlock()
	var ms []Match
	t.n.Walk(nil, func(n *net.IPNet, v interface{}) bool {
		ms = append(ms, Match{Prefix: prefixOf(t.family, n), Entry: v.(Entry)})
		return true
	})
	return ms
}

// Len returns the number of prefixes installed for family fam.
func (f *FIB) Len(fam address.Family) int {
	t := f.t.Get(fam)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.n.Size()
}
