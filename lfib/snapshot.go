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
	"sort"
)

// Snapshot is a point-in-time copy of the contents of the LFIB.
type Snapshot struct {
	FTNs     []FTNState
	ILMs     []ILMState
	NextHops []NextHopState
	NHLFEs   []NHLFEState
	XCs      []XCState
}

// Snapshot returns a copy of the contents of the LFIB. FTNs and next hops are
// ordered by address, ILM entries by key, and NHLFEs and cross-connects by
// index.
func (l *LFIB) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &Snapshot{
		FTNs: l.allFTNs(),
		ILMs: l.allILMs(),
	}
	l.nhs.walk(func(_ netip.Addr, r *nhRecord) bool {
		s.NextHops = append(s.NextHops, r.view())
		return true
	})
	for _, n := range l.nhlfeByIndex {
		s.NHLFEs = append(s.NHLFEs, l.nhlfeView(n))
	}
	sort.Slice(s.NHLFEs, func(i, j int) bool { return s.NHLFEs[i].Index < s.NHLFEs[j].Index })
	for _, x := range l.xcs {
		s.XCs = append(s.XCs, XCState{Key: x.key, Refs: x.refs})
	}
	sort.Slice(s.XCs, func(i, j int) bool { return s.XCs[i].Key.XCIndex < s.XCs[j].Key.XCIndex })
	return s
}
