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
	"sort"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ilm is an incoming label map entry.
type ilm struct {
	entry
	key        ILMKey
	index      uint32
	owner      uint32
	outIfIndex uint32
	outLabel   uint32
	// allocated indicates that index was assigned by the ILM allocator.
	allocated bool
}

func (i *ilm) base() *entry { return &i.entry }

func (i *ilm) String() string {
	return fmt.Sprintf("ilm %s/%d", i.key, i.index)
}

func (i *ilm) report(l *LFIB, op constants.OpType) {
	l.record(op, constants.ILM, i.view())
}

// ILMState is the external representation of an ILM entry.
type ILMState struct {
	Key        ILMKey
	Index      uint32
	Owner      uint32
	NextHop    netip.Addr
	OutIfIndex uint32
	OutLabel   uint32
	Up         bool
	XCIndex    uint32
	NHLFEIndex uint32
	// ParentFEC and ParentIndex identify the FTN that the entry is stacked
	// upon, ParentFEC is invalid if the entry is not stacked.
	ParentFEC   netip.Addr
	ParentIndex uint32
}

func (i *ilm) view() ILMState {
	s := ILMState{
		Key:        i.key,
		Index:      i.index,
		Owner:      i.owner,
		NextHop:    i.nextHop(),
		OutIfIndex: i.outIfIndex,
		OutLabel:   i.outLabel,
		Up:         i.up,
	}
	if len(i.xcs) != 0 {
		s.XCIndex, s.NHLFEIndex = i.xcs[0].key.XCIndex, i.xcs[0].key.NHLFEIndex
	}
	if i.parent != nil {
		s.ParentFEC, s.ParentIndex = i.parent.fec, i.parent.index
	}
	return s
}

// findILM returns the entry for key k with index ix. It must be called with
// mu held.
func (l *LFIB) findILM(k ILMKey, ix uint32) *ilm {
	for _, i := range l.ilms[k] {
		if i.index == ix {
			return i
		}
	}
	return nil
}

// findILMByOwner returns the entry for key k added by owner. It must be
// called with mu held.
func (l *LFIB) findILMByOwner(k ILMKey, owner uint32) *ilm {
	for _, i := range l.ilms[k] {
		if i.owner == owner {
			return i
		}
	}
	return nil
}

// ILMAdd adds the ILM entry described by in, returning the index of the
// entry.
//
// If in.Index is non-zero and an entry with that index exists for the key,
// the entry is updated: if its next hop differs from in.NextHop its
// cross-connect is re-resolved, otherwise the call has no effect. If
// in.Index is zero, an index is allocated. An AlreadyExists error is
// returned if an entry for the key exists for the same owner, and a
// ResourceExhausted error if indices cannot be allocated.
func (l *LFIB) ILMAdd(in ILM) (uint32, error) {
	in.NextHop = address.Canonical(in.NextHop)
	if err := address.Validate(in.NextHop); err != nil {
		return 0, err
	}
	k := in.Key()

	l.mu.Lock()
	defer l.unlock()

	if in.Index != 0 {
		if i := l.findILM(k, in.Index); i != nil {
			return i.index, l.updateILM(i, in)
		}
	}

	ix, allocated := in.Index, false
	if ix == 0 {
		if ix = l.ilmIDs.Get(); ix == 0 {
			return 0, status.Errorf(codes.ResourceExhausted, "no ILM index available for %s", k)
		}
		allocated = true
	}
	release := func() {
		if allocated {
			l.ilmIDs.Put(ix)
		}
	}

	if i := l.findILMByOwner(k, in.Owner); i != nil {
		release()
		return 0, status.Errorf(codes.AlreadyExists, "ILM %s already exists for owner %d with index %d", k, in.Owner, i.index)
	}
	x, err := l.resolveXC(in.NextHop, in.OutLabel, in.OutIfIndex)
	if err != nil {
		release()
		return 0, fmt.Errorf("cannot add ILM %s: %w", k, err)
	}

	i := &ilm{
		entry:      entry{xcs: []*xc{x}},
		key:        k,
		index:      ix,
		owner:      in.Owner,
		outIfIndex: in.OutIfIndex,
		outLabel:   in.OutLabel,
		allocated:  allocated,
	}
	l.ilms[k] = append(l.ilms[k], i)
	log.V(2).Infof("added %s owner %d via %s label %d", i, in.Owner, in.NextHop, in.OutLabel)
	i.report(l, constants.ADD)

	l.link(i)
	l.processEvents()
	return ix, nil
}

// updateILM updates the existing entry i with the contents of in. It must be
// called with mu held.
func (l *LFIB) updateILM(i *ilm, in ILM) error {
	if i.nextHop() == in.NextHop {
		log.V(2).Infof("%s: next-hop %s unchanged", i, in.NextHop)
		return nil
	}
	x, err := l.resolveXC(in.NextHop, in.OutLabel, in.OutIfIndex)
	if err != nil {
		return fmt.Errorf("cannot update ILM %s: %w", i, err)
	}

	l.unlink(i)
	l.down(i)
	l.releaseXCs(i.xcs)
	i.xcs = []*xc{x}
	i.outIfIndex, i.outLabel = in.OutIfIndex, in.OutLabel
	log.V(2).Infof("updated %s via %s label %d", i, in.NextHop, in.OutLabel)
	i.report(l, constants.REPLACE)

	l.link(i)
	l.processEvents()
	return nil
}

// ILMDel removes the ILM entry for the key (inLabel, inIface). The entry is
// found by ix if it is non-zero, and by owner otherwise. A NotFound error is
// returned if no entry matches.
func (l *LFIB) ILMDel(inLabel, inIface, ix, owner uint32) error {
	k := ILMKey{InLabel: inLabel, InIface: inIface}

	l.mu.Lock()
	defer l.unlock()

	var i *ilm
	if ix != 0 {
		i = l.findILM(k, ix)
	} else {
		i = l.findILMByOwner(k, owner)
	}
	if i == nil {
		return status.Errorf(codes.NotFound, "ILM %s not found for index %d owner %d", k, ix, owner)
	}

	l.unlink(i)
	l.releaseXCs(i.xcs)
	i.xcs = nil
	l.down(i)
	if rest := removeItem(l.ilms[k], i); len(rest) != 0 {
		l.ilms[k] = rest
	} else {
		delete(l.ilms, k)
	}
	if i.allocated {
		l.ilmIDs.Put(i.index)
	}
	log.V(2).Infof("deleted %s", i)
	i.report(l, constants.DELETE)

	l.processEvents()
	return nil
}

// ILM returns the entry for key k with index ix.
func (l *LFIB) ILM(k ILMKey, ix uint32) (ILMState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.findILM(k, ix)
	if i == nil {
		return ILMState{}, status.Errorf(codes.NotFound, "ILM %s/%d not found", k, ix)
	}
	return i.view(), nil
}

// ILMByOwner returns the entry for key k added by owner.
func (l *LFIB) ILMByOwner(k ILMKey, owner uint32) (ILMState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.findILMByOwner(k, owner)
	if i == nil {
		return ILMState{}, status.Errorf(codes.NotFound, "ILM %s not found for owner %d", k, owner)
	}
	return i.view(), nil
}

// ILMs returns the entries for key k, in the order that they were added.
func (l *LFIB) ILMs(k ILMKey) []ILMState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var is []ILMState
	for _, i := range l.ilms[k] {
		is = append(is, i.view())
	}
	return is
}

// allILMs returns every ILM entry ordered by key. It must be called with mu
// held.
func (l *LFIB) allILMs() []ILMState {
	ks := make([]ILMKey, 0, len(l.ilms))
	for k := range l.ilms {
		ks = append(ks, k)
	}
	sort.Slice(ks, func(a, b int) bool {
		if ks[a].InLabel != ks[b].InLabel {
			return ks[a].InLabel < ks[b].InLabel
		}
		return ks[a].InIface < ks[b].InIface
	})
	var is []ILMState
	for _, k := range ks {
		for _, i := range l.ilms[k] {
			is = append(is, i.view())
		}
	}
	return is
}
