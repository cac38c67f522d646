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

	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// nhlfe is a next-hop label forwarding entry.
type nhlfe struct {
	key     NHLFEKey
	index   uint32
	xcIndex uint32
}

// xc is a cross-connect, linking the FTN and ILM entries that reference it
// to an NHLFE. A cross-connect and its NHLFE are created and destroyed
// together.
type xc struct {
	key   XCKey
	nhlfe *nhlfe
	// refs is the number of FTN and ILM entries that reference the
	// cross-connect.
	refs int
}

// nextHop returns the next hop of the cross-connect's NHLFE.
func (x *xc) nextHop() netip.Addr {
	if x == nil || x.nhlfe == nil {
		return netip.Addr{}
	}
	return x.nhlfe.key.NextHop
}

// resolveXC returns a reference to the cross-connect for the NHLFE that
// forwards to nh with label out via the interface with index iface, creating
// the NHLFE and cross-connect if they do not exist. A ResourceExhausted
// error is returned if indices cannot be allocated for a new pair, in which
// case no index remains allocated. It must be called with mu held.
func (l *LFIB) resolveXC(nh netip.Addr, out, iface uint32) (*xc, error) {
	k := newNHLFEKey(nh, out, iface)
	if n, ok := l.nhlfes[k]; ok {
		x := l.xcs[n.xcIndex]
		x.refs++
		log.V(2).Infof("sharing xc %d, nhlfe %d for %s label %d, %d references", x.key.XCIndex, n.index, nh, out, x.refs)
		return x, nil
	}

	xcIx := l.xcIDs.Get()
	if xcIx == 0 {
		return nil, status.Errorf(codes.ResourceExhausted, "no cross-connect index available for %s label %d", nh, out)
	}
	nhlfeIx := l.nhlfeIDs.Get()
	if nhlfeIx == 0 {
		l.xcIDs.Put(xcIx)
		return nil, status.Errorf(codes.ResourceExhausted, "no NHLFE index available for %s label %d", nh, out)
	}

	n := &nhlfe{key: k, index: nhlfeIx, xcIndex: xcIx}
	x := &xc{
		key:   XCKey{XCIndex: xcIx, NHLFEIndex: nhlfeIx},
		nhlfe: n,
		refs:  1,
	}
	l.nhlfes[k] = n
	l.nhlfeByIndex[nhlfeIx] = n
	l.xcs[xcIx] = x
	log.V(2).Infof("created xc %d, nhlfe %d for %s label %d ifindex %d", xcIx, nhlfeIx, nh, out, iface)
	return x, nil
}

// releaseXC releases a reference to the cross-connect x. When the last
// reference is released, the cross-connect and its NHLFE are removed and
// their indices are returned to the allocators. It must be called with mu
// held.
func (l *LFIB) releaseXC(x *xc) {
	x.refs--
	if x.refs > 0 {
		log.V(2).Infof("released reference to xc %d, %d remaining", x.key.XCIndex, x.refs)
		return
	}
	if x.refs < 0 {
		log.Errorf("xc %d released more times than it was referenced", x.key.XCIndex)
		return
	}
	delete(l.xcs, x.key.XCIndex)
	l.xcIDs.Put(x.key.XCIndex)
	if n := x.nhlfe; n != nil {
		delete(l.nhlfes, n.key)
		delete(l.nhlfeByIndex, n.index)
		l.nhlfeIDs.Put(n.index)
		x.nhlfe = nil
	}
	log.V(2).Infof("removed xc %d, nhlfe %d", x.key.XCIndex, x.key.NHLFEIndex)
}

// releaseXCs releases each of the cross-connects in xs.
func (l *LFIB) releaseXCs(xs []*xc) {
	for _, x := range xs {
		l.releaseXC(x)
	}
}

// NHLFEState is the external representation of an NHLFE.
type NHLFEState struct {
	Key     NHLFEKey
	Index   uint32
	XCIndex uint32
	// Refs is the number of FTN and ILM entries that resolve to the NHLFE.
	Refs int
}

// XCState is the external representation of a cross-connect.
type XCState struct {
	Key  XCKey
	Refs int
}

// NHLFE returns the NHLFE with index ix.
func (l *LFIB) NHLFE(ix uint32) (NHLFEState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nhlfeByIndex[ix]
	if !ok {
		return NHLFEState{}, status.Errorf(codes.NotFound, "NHLFE %d not found", ix)
	}
	return l.nhlfeView(n), nil
}

// LookupNHLFE returns the NHLFE that forwards to nh with label out via the
// interface with index iface.
func (l *LFIB) LookupNHLFE(nh netip.Addr, out, iface uint32) (NHLFEState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nhlfes[newNHLFEKey(nh, out, iface)]
	if !ok {
		return NHLFEState{}, status.Errorf(codes.NotFound, "NHLFE for %s label %d ifindex %d not found", nh, out, iface)
	}
	return l.nhlfeView(n), nil
}

func (l *LFIB) nhlfeView(n *nhlfe) NHLFEState {
	s := NHLFEState{Key: n.key, Index: n.index, XCIndex: n.xcIndex}
	if x, ok := l.xcs[n.xcIndex]; ok {
		s.Refs = x.refs
	}
	return s
}

// XC returns the cross-connect with index ix.
func (l *LFIB) XC(ix uint32) (XCState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	x, ok := l.xcs[ix]
	if !ok {
		return XCState{}, status.Errorf(codes.NotFound, "cross-connect %d not found", ix)
	}
	return XCState{Key: x.key, Refs: x.refs}, nil
}
