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

// Package lfib implements the MPLS label forwarding state of a router: the
// FEC-to-NHLFE (FTN) table, the incoming label map (ILM), the next-hop label
// forwarding entries (NHLFEs) and cross-connects (XCs) that they resolve to,
// and the next-hop reachability table that determines whether each FTN and
// ILM entry is up.
//
// FTN and ILM entries that resolve to the same NHLFE share its cross-connect,
// and the indices allocated to the NHLFE and cross-connect are released when
// the last entry referencing them is removed.
//
// An entry is up when the next hop of its NHLFE is connected. When an FTN
// comes up, its FEC becomes a connected next hop, such that entries whose
// next hop is the FEC of an up FTN are stacked upon it, and are brought down
// with it. Changes in next-hop reachability are processed through a FIFO
// event queue, such that propagation through a stack of entries is performed
// iteratively.
package lfib

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/openconfig/lsrsim/constants"
	"github.com/openconfig/lsrsim/idmap"
	"go.uber.org/atomic"
)

// unixTS is used to determine the current unix timestamp in nanoseconds since the
// epoch. It is defined such that it can be overloaded by unit tests.
var unixTS = time.Now().UnixNano

// maxEventsPerDrain bounds the number of next-hop events that are processed
// by a single operation, such that a pathological dependency loop cannot
// stall the caller.
const maxEventsPerDrain = 1 << 20

// HookFn is a function that is used as a hook following a change. It takes:
//   - an OpType determining whether an add, remove, or modify (including a
//     change of operational state) occurred.
//   - the timestamp in nanoseconds since the unix epoch of the change.
//   - the table that was changed.
//   - the changed entry as an FTNState, ILMState or NextHopState.
type HookFn func(constants.OpType, int64, constants.Table, any)

// LFIB is the label forwarding information base of a router.
type LFIB struct {
	// mu protects all tables of the LFIB. A single lock is held across each
	// operation, since operations update several tables and propagate state
	// between them.
	mu sync.Mutex

	// xcIDs, nhlfeIDs and ilmIDs allocate the indices of cross-connects,
	// NHLFEs and ILM entries.
	xcIDs    *idmap.IDMap
	nhlfeIDs *idmap.IDMap
	ilmIDs   *idmap.IDMap

	// nhlfes maps NHLFE keys to NHLFEs. The key contains the next-hop
	// address, so entries of both families are held in the one map.
	nhlfes map[NHLFEKey]*nhlfe
	// nhlfeByIndex maps an NHLFE index to the NHLFE.
	nhlfeByIndex map[uint32]*nhlfe
	// xcs maps a cross-connect index to the cross-connect.
	xcs map[uint32]*xc

	// ftns is the FEC table, holding the list of FTNs for each FEC.
	ftns perFamilyTree[*fecEntry]
	// ilms is the incoming label map.
	ilms map[ILMKey][]*ilm

	// nhs is the next-hop reachability table.
	nhs perFamilyTree[*nhRecord]
	// events is the FIFO queue of pending next-hop events.
	events *queue.Queue

	// pending holds changes to be reported to the post-change hook once
	// mu has been released.
	pending []change

	// postChangeHook is called following each change to the LFIB.
	postChangeHook HookFn

	// eventsProcessed counts the next-hop events that have been drained.
	eventsProcessed atomic.Uint64
	// transitions counts the up/down transitions of FTN and ILM entries.
	transitions atomic.Uint64
}

// change is a pending call to the post-change hook.
type change struct {
	op    constants.OpType
	table constants.Table
	entry any
}

// Opt is an interface implemented by options to the LFIB.
type Opt interface {
	isLFIBOpt()
}

// idSpace is the internal implementation of the WithIDSpace option.
type idSpace struct {
	size uint32
}

// isLFIBOpt implements the Opt interface.
func (*idSpace) isLFIBOpt() {}

// WithIDSpace specifies the number of indices that are available to each of
// the cross-connect, NHLFE and ILM allocators.
func WithIDSpace(n uint32) *idSpace {
	return &idSpace{size: n}
}

// hook is the internal implementation of the WithHook option.
type hook struct {
	fn HookFn
}

// isLFIBOpt implements the Opt interface.
func (*hook) isLFIBOpt() {}

// WithHook specifies a function that is called following each change.
func WithHook(fn HookFn) *hook {
	return &hook{fn: fn}
}

// New returns a new, empty, LFIB.
func New(opts ...Opt) *LFIB {
	var size uint32
	var fn HookFn
	for _, o := range opts {
		switch v := o.(type) {
		case *idSpace:
			size = v.size
		case *hook:
			fn = v.fn
		}
	}
	return &LFIB{
		xcIDs:          idmap.New("xc", size),
		nhlfeIDs:       idmap.New("nhlfe", size),
		ilmIDs:         idmap.New("ilm", size),
		nhlfes:         map[NHLFEKey]*nhlfe{},
		nhlfeByIndex:   map[uint32]*nhlfe{},
		xcs:            map[uint32]*xc{},
		ftns:           newPerFamilyTree[*fecEntry](),
		ilms:           map[ILMKey][]*ilm{},
		nhs:            newPerFamilyTree[*nhRecord](),
		events:         queue.New(),
		postChangeHook: fn,
	}
}

// SetHook assigns fn as the post-change hook of the LFIB.
func (l *LFIB) SetHook(fn HookFn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.postChangeHook = fn
}

// record queues a change to be reported to the post-change hook. It must be
// called with mu held.
func (l *LFIB) record(op constants.OpType, t constants.Table, e any) {
	if l.postChangeHook == nil {
		return
	}
	l.pending = append(l.pending, change{op: op, table: t, entry: e})
}

// unlock releases mu and reports the pending changes to the post-change hook.
func (l *LFIB) unlock() {
	cs, fn := l.pending, l.postChangeHook
	l.pending = nil
	l.mu.Unlock()
	if fn == nil {
		return
	}
	ts := unixTS()
	for _, c := range cs {
		fn(c.op, ts, c.table, c.entry)
	}
}

// IDUsage is the number of indices allocated by each of the allocators.
type IDUsage struct {
	XC    int
	NHLFE int
	ILM   int
}

// IDsInUse returns the number of indices that are allocated by each of the
// allocators of the LFIB.
func (l *LFIB) IDsInUse() IDUsage {
	return IDUsage{
		XC:    l.xcIDs.Count(),
		NHLFE: l.nhlfeIDs.Count(),
		ILM:   l.ilmIDs.Count(),
	}
}

// Stats is a summary of the activity of the LFIB.
type Stats struct {
	// EventsProcessed is the number of next-hop events drained from the queue.
	EventsProcessed uint64
	// Transitions is the number of up/down transitions of FTN and ILM entries.
	Transitions uint64
	// XC, NHLFE and ILM are the statistics of each allocator.
	XC    idmap.Stats
	NHLFE idmap.Stats
	ILM   idmap.Stats
}

// Stats returns the statistics of the LFIB.
func (l *LFIB) Stats() Stats {
	return Stats{
		EventsProcessed: l.eventsProcessed.Load(),
		Transitions:     l.transitions.Load(),
		XC:              l.xcIDs.Stats(),
		NHLFE:           l.nhlfeIDs.Stats(),
		ILM:             l.ilmIDs.Stats(),
	}
}
