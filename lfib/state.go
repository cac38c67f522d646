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
	"github.com/openconfig/lsrsim/constants"
)

// entry holds the state that is common to FTN and ILM entries.
type entry struct {
	// xcs are the cross-connects owned by the entry, normally exactly one.
	xcs []*xc
	// up is the operational state of the entry.
	up bool
	// parent is the FTN that the entry is stacked upon, if any.
	parent *ftn
}

// nextHop returns the next hop of the entry's primary cross-connect.
func (e *entry) nextHop() netip.Addr {
	if len(e.xcs) == 0 {
		return netip.Addr{}
	}
	return e.xcs[0].nextHop()
}

// lsp is implemented by the FTN and ILM entries.
type lsp interface {
	base() *entry
	// report queues a change of the entry to the post-change hook.
	report(l *LFIB, op constants.OpType)
	String() string
}

// canUp reports whether the entry e can be brought up, which is the case
// when its primary cross-connect has an NHLFE whose next hop is connected.
// It must be called with mu held.
func (l *LFIB) canUp(e lsp) bool {
	b := e.base()
	if len(b.xcs) == 0 || b.xcs[0].nhlfe == nil {
		return false
	}
	rec, ok := l.nhs.get(b.nextHop())
	return ok && rec.connected
}

// evaluate brings e up if its next hop is connected, and down otherwise. It
// must be called with mu held.
func (l *LFIB) evaluate(e lsp) {
	if !l.canUp(e) {
		l.down(e)
		return
	}
	b := e.base()
	if !b.up {
		b.up = true
		l.transitions.Inc()
		log.V(2).Infof("%s is up", e)
		if f, ok := e.(*ftn); ok {
			// The FEC of an up FTN is itself a reachable next hop.
			l.enqueue(f.fec, true)
		}
		e.report(l, constants.REPLACE)
	}
	l.attachToParent(e)
}

// attachToParent registers e with the first up FTN whose FEC is the next
// hop of e, such that e is brought down with it. It must be called with mu
// held.
func (l *LFIB) attachToParent(e lsp) {
	b := e.base()
	if b.parent != nil {
		return
	}
	fe, ok := l.ftns.get(b.nextHop())
	if !ok {
		return
	}
	for _, p := range fe.ftns {
		if !p.up || lsp(p) == e {
			continue
		}
		switch v := e.(type) {
		case *ftn:
			if !containsItem(p.depFTNs, v) {
				p.depFTNs = append(p.depFTNs, v)
			}
		case *ilm:
			if !containsItem(p.depILMs, v) {
				p.depILMs = append(p.depILMs, v)
			}
		}
		b.parent = p
		log.V(2).Infof("%s stacked on %s", e, p)
		return
	}
}

// detachFromParent removes e from the dependents of its parent. It must be
// called with mu held.
func (l *LFIB) detachFromParent(e lsp) {
	b := e.base()
	p := b.parent
	if p == nil {
		return
	}
	switch v := e.(type) {
	case *ftn:
		p.depFTNs = removeItem(p.depFTNs, v)
	case *ilm:
		p.depILMs = removeItem(p.depILMs, v)
	}
	b.parent = nil
}

// down brings e down, along with every entry stacked upon it. The stack is
// walked breadth first. For each FTN that goes down, an event is queued for
// its FEC reflecting whether any other FTN for the FEC remains up. It must
// be called with mu held.
func (l *LFIB) down(e lsp) {
	work := []lsp{e}
	for len(work) > 0 {
		cur := work[0]
		work = work[1:]

		b := cur.base()
		wasUp := b.up
		b.up = false
		l.detachFromParent(cur)

		if f, ok := cur.(*ftn); ok {
			for _, d := range f.depFTNs {
				d.parent = nil
				work = append(work, d)
			}
			for _, d := range f.depILMs {
				d.parent = nil
				work = append(work, d)
			}
			f.depFTNs, f.depILMs = nil, nil
			if wasUp {
				l.enqueue(f.fec, l.fecUp(f.fec))
			}
		}

		if wasUp {
			l.transitions.Inc()
			log.V(2).Infof("%s is down", cur)
			cur.report(l, constants.REPLACE)
		}
	}
}

// fecUp reports whether any FTN for fec is up. It must be called with mu
// held.
func (l *LFIB) fecUp(fec netip.Addr) bool {
	fe, ok := l.ftns.get(fec)
	if !ok {
		return false
	}
	for _, f := range fe.ftns {
		if f.up {
			return true
		}
	}
	return false
}

// link registers e as a dependent of the next hop of its primary
// cross-connect, creating the next-hop record if required, and evaluates
// its state. It must be called with mu held.
func (l *LFIB) link(e lsp) {
	nh := e.base().nextHop()
	if !nh.IsValid() {
		return
	}
	rec := l.nhRecord(nh)
	switch v := e.(type) {
	case *ftn:
		if !containsItem(rec.ftns, v) {
			rec.ftns = append(rec.ftns, v)
		}
	case *ilm:
		if !containsItem(rec.ilms, v) {
			rec.ilms = append(rec.ilms, v)
		}
	}
	l.evaluate(e)
}

// unlink removes e from the dependents of the next hop of its primary
// cross-connect. It must be called with mu held.
func (l *LFIB) unlink(e lsp) {
	rec, ok := l.nhs.get(e.base().nextHop())
	if !ok {
		return
	}
	switch v := e.(type) {
	case *ftn:
		rec.ftns = removeItem(rec.ftns, v)
	case *ilm:
		rec.ilms = removeItem(rec.ilms, v)
	}
}
