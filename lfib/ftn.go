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

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fecEntry is the node of the FEC table, holding the FTNs for a FEC.
type fecEntry struct {
	ftns []*ftn
}

// ftn is a FEC-to-NHLFE entry.
type ftn struct {
	entry
	fec        netip.Addr
	index      uint32
	outIfIndex uint32
	labels     []uint32

	// depFTNs and depILMs are the entries stacked upon this FTN.
	depFTNs []*ftn
	depILMs []*ilm
}

func (f *ftn) base() *entry { return &f.entry }

func (f *ftn) String() string {
	return fmt.Sprintf("ftn %s/%d", f.fec, f.index)
}

func (f *ftn) report(l *LFIB, op constants.OpType) {
	l.record(op, constants.FTN, f.view())
}

// FTNState is the external representation of an FTN entry.
type FTNState struct {
	FEC        netip.Addr
	Index      uint32
	NextHop    netip.Addr
	OutIfIndex uint32
	OutLabels  []uint32
	Up         bool
	XCIndex    uint32
	NHLFEIndex uint32
	// ParentFEC and ParentIndex identify the FTN that the entry is stacked
	// upon, ParentFEC is invalid if the entry is not stacked.
	ParentFEC   netip.Addr
	ParentIndex uint32
	// Dependents is the number of entries stacked upon the FTN.
	Dependents int
}

func (f *ftn) view() FTNState {
	s := FTNState{
		FEC:        f.fec,
		Index:      f.index,
		NextHop:    f.nextHop(),
		OutIfIndex: f.outIfIndex,
		OutLabels:  append([]uint32(nil), f.labels...),
		Up:         f.up,
		Dependents: len(f.depFTNs) + len(f.depILMs),
	}
	if len(f.xcs) != 0 {
		s.XCIndex, s.NHLFEIndex = f.xcs[0].key.XCIndex, f.xcs[0].key.NHLFEIndex
	}
	if f.parent != nil {
		s.ParentFEC, s.ParentIndex = f.parent.fec, f.parent.index
	}
	return s
}

// findFTN returns the FTN for fec with index ix. It must be called with mu
// held.
func (l *LFIB) findFTN(fec netip.Addr, ix uint32) (*fecEntry, *ftn) {
	fe, ok := l.ftns.get(fec)
	if !ok {
		return nil, nil
	}
	for _, f := range fe.ftns {
		if f.index == ix {
			return fe, f
		}
	}
	return fe, nil
}

// FTNAdd adds the FTN described by in. The NHLFE and cross-connect for the
// FTN's next hop and outermost label are shared with other entries that
// resolve to the same NHLFE, or created. An AlreadyExists error is returned
// if an FTN with the same FEC and index exists, and a ResourceExhausted error
// if indices cannot be allocated for a new NHLFE and cross-connect.
//
// The FTN is brought up if its next hop is connected.
func (l *LFIB) FTNAdd(in FTN) error {
	in.FEC, in.NextHop = address.Canonical(in.FEC), address.Canonical(in.NextHop)
	if err := address.Validate(in.FEC); err != nil {
		return err
	}
	if err := address.Validate(in.NextHop); err != nil {
		return err
	}
	if len(in.OutLabels) == 0 {
		return status.Errorf(codes.InvalidArgument, "FTN %s/%d has no outgoing label", in.FEC, in.Index)
	}

	l.mu.Lock()
	defer l.unlock()

	fe, f := l.findFTN(in.FEC, in.Index)
	if f != nil {
		return status.Errorf(codes.AlreadyExists, "FTN %s/%d already exists", in.FEC, in.Index)
	}
	x, err := l.resolveXC(in.NextHop, in.OutLabels[0], in.OutIfIndex)
	if err != nil {
		return fmt.Errorf("cannot add FTN %s/%d: %w", in.FEC, in.Index, err)
	}

	f = &ftn{
		entry:      entry{xcs: []*xc{x}},
		fec:        in.FEC,
		index:      in.Index,
		outIfIndex: in.OutIfIndex,
		labels:     append([]uint32(nil), in.OutLabels...),
	}
	if fe == nil {
		fe = &fecEntry{}
		l.ftns.set(in.FEC, fe)
	}
	fe.ftns = append(fe.ftns, f)
	log.V(2).Infof("added %s via %s labels %v", f, in.NextHop, in.OutLabels)
	f.report(l, constants.ADD)

	l.link(f)
	l.processEvents()
	return nil
}

// FTNDel removes the FTN for fec with index ix. Its cross-connect reference
// is released, and it is brought down along with every entry stacked upon
// it. A NotFound error is returned if the FTN does not exist.
func (l *LFIB) FTNDel(fec netip.Addr, ix uint32) error {
	fec = address.Canonical(fec)
	if err := address.Validate(fec); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.unlock()

	fe, f := l.findFTN(fec, ix)
	if f == nil {
		return status.Errorf(codes.NotFound, "FTN %s/%d not found", fec, ix)
	}

	l.unlink(f)
	l.releaseXCs(f.xcs)
	f.xcs = nil
	fe.ftns = removeItem(fe.ftns, f)
	l.down(f)
	if len(fe.ftns) == 0 {
		l.ftns.delete(fec)
	}
	log.V(2).Infof("deleted %s", f)
	f.report(l, constants.DELETE)

	l.processEvents()
	l.pruneInferred(fec)
	return nil
}

// FTN returns the FTN for fec with index ix.
func (l *LFIB) FTN(fec netip.Addr, ix uint32) (FTNState, error) {
	fec = address.Canonical(fec)
	if err := address.Validate(fec); err != nil {
		return FTNState{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, f := l.findFTN(fec, ix)
	if f == nil {
		return FTNState{}, status.Errorf(codes.NotFound, "FTN %s/%d not found", fec, ix)
	}
	return f.view(), nil
}

// FTNs returns the FTNs for fec, in the order that they were added.
func (l *LFIB) FTNs(fec netip.Addr) []FTNState {
	fec = address.Canonical(fec)
	if !fec.IsValid() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fe, ok := l.ftns.get(fec)
	if !ok {
		return nil
	}
	var fs []FTNState
	for _, f := range fe.ftns {
		fs = append(fs, f.view())
	}
	return fs
}

// allFTNs returns every FTN, IPv4 FECs first. It must be called with mu
// held.
func (l *LFIB) allFTNs() []FTNState {
	var fs []FTNState
	l.ftns.walk(func(_ netip.Addr, fe *fecEntry) bool {
		for _, f := range fe.ftns {
			fs = append(fs, f.view())
		}
		return true
	})
	return fs
}
