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
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/constants"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var mustParse = address.MustParse

var cmpAddr = cmpopts.EquateComparable(netip.Addr{})

func ftnIn(fec, nh string, ifIndex, ix uint32, labels ...uint32) FTN {
	return FTN{
		FEC:        mustParse(fec),
		Index:      ix,
		NextHop:    mustParse(nh),
		OutIfIndex: ifIndex,
		OutLabels:  labels,
	}
}

func mustFTN(t *testing.T, l *LFIB, fec string, ix uint32) FTNState {
	t.Helper()
	s, err := l.FTN(mustParse(fec), ix)
	if err != nil {
		t.Fatalf("FTN(%s, %d): got unexpected error, %v", fec, ix, err)
	}
	return s
}

func TestFTNUpOnNextHopAdd(t *testing.T) {
	l := New()
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	if got := mustFTN(t, l, "10.0.0.0", 1); got.Up {
		t.Fatalf("FTN before next-hop is added: got up, want down")
	}

	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}

	want := FTNState{
		FEC:        mustParse("10.0.0.0"),
		Index:      1,
		NextHop:    mustParse("20.0.0.1"),
		OutIfIndex: 3,
		OutLabels:  []uint32{100},
		Up:         true,
		XCIndex:    1,
		NHLFEIndex: 1,
	}
	if diff := cmp.Diff(want, mustFTN(t, l, "10.0.0.0", 1), cmpAddr); diff != "" {
		t.Fatalf("FTN after next-hop added: did not get expected state, diff(-want,+got):\n%s", diff)
	}
}

func TestStackedPropagation(t *testing.T) {
	l := New()
	n := mustParse("20.0.0.1")

	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(A): got unexpected error, %v", err)
	}
	if err := l.NHAddDel(n, 3, true); err != nil {
		t.Fatalf("NHAddDel(up): got unexpected error, %v", err)
	}
	if !mustFTN(t, l, "10.0.0.0", 1).Up {
		t.Fatalf("FTN A: got down, want up")
	}

	// B and the ILM entry use A's FEC as their next hop.
	if err := l.FTNAdd(ftnIn("30.0.0.0", "10.0.0.0", 4, 1, 200, 201)); err != nil {
		t.Fatalf("FTNAdd(B): got unexpected error, %v", err)
	}
	ix, err := l.ILMAdd(ILM{InLabel: 500, InIface: 1, NextHop: mustParse("10.0.0.0"), OutIfIndex: 4, OutLabel: 501, Owner: 1})
	if err != nil {
		t.Fatalf("ILMAdd(): got unexpected error, %v", err)
	}
	ilmKey := ILMKey{InLabel: 500, InIface: 1}

	b := mustFTN(t, l, "30.0.0.0", 1)
	if !b.Up {
		t.Fatalf("FTN B on creation: got down, want up")
	}
	if b.ParentFEC != mustParse("10.0.0.0") || b.ParentIndex != 1 {
		t.Fatalf("FTN B: got parent %s/%d, want 10.0.0.0/1", b.ParentFEC, b.ParentIndex)
	}
	is, err := l.ILM(ilmKey, ix)
	if err != nil {
		t.Fatalf("ILM(): got unexpected error, %v", err)
	}
	if !is.Up {
		t.Fatalf("stacked ILM on creation: got down, want up")
	}
	if got := mustFTN(t, l, "10.0.0.0", 1).Dependents; got != 2 {
		t.Fatalf("FTN A dependents: got %d, want 2", got)
	}

	if err := l.NHAddDel(n, 3, false); err != nil {
		t.Fatalf("NHAddDel(down): got unexpected error, %v", err)
	}
	for _, fec := range []string{"10.0.0.0", "30.0.0.0"} {
		if s := mustFTN(t, l, fec, 1); s.Up {
			t.Errorf("FTN %s after next-hop down: got up, want down", fec)
		}
	}
	if is, _ := l.ILM(ilmKey, ix); is.Up {
		t.Errorf("stacked ILM after next-hop down: got up, want down")
	}
	if nh, _ := l.NextHop(mustParse("10.0.0.0")); nh.Connected {
		t.Errorf("FEC of down FTN: got connected next-hop, want unconnected")
	}

	if err := l.NHAddDel(n, 3, true); err != nil {
		t.Fatalf("NHAddDel(up again): got unexpected error, %v", err)
	}
	if b := mustFTN(t, l, "30.0.0.0", 1); !b.Up || b.ParentIndex != 1 {
		t.Errorf("FTN B after next-hop restored: got %+v, want up and stacked on A", b)
	}
	if is, _ := l.ILM(ilmKey, ix); !is.Up {
		t.Errorf("stacked ILM after next-hop restored: got down, want up")
	}
}

func TestFTNDelCascades(t *testing.T) {
	l := New()
	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}
	for _, in := range []FTN{
		ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100),
		ftnIn("30.0.0.0", "10.0.0.0", 4, 1, 200),
		ftnIn("40.0.0.0", "30.0.0.0", 5, 1, 300),
	} {
		if err := l.FTNAdd(in); err != nil {
			t.Fatalf("FTNAdd(%v): got unexpected error, %v", in, err)
		}
		if s := mustFTN(t, l, in.FEC.String(), 1); !s.Up {
			t.Fatalf("FTN %s: got down, want up", in.FEC)
		}
	}

	if err := l.FTNDel(mustParse("10.0.0.0"), 1); err != nil {
		t.Fatalf("FTNDel(): got unexpected error, %v", err)
	}
	for _, fec := range []string{"30.0.0.0", "40.0.0.0"} {
		if s := mustFTN(t, l, fec, 1); s.Up || s.ParentFEC.IsValid() {
			t.Errorf("FTN %s after parent deleted: got %+v, want down and unstacked", fec, s)
		}
	}
	if got := l.FTNs(mustParse("10.0.0.0")); len(got) != 0 {
		t.Errorf("FTNs(10.0.0.0) after delete: got %v, want none", got)
	}
}

func TestFTNSecondForFECKeepsFECUp(t *testing.T) {
	l := New()
	for _, nh := range []string{"20.0.0.1", "20.0.0.2"} {
		if err := l.NHAddDel(mustParse(nh), 3, true); err != nil {
			t.Fatalf("NHAddDel(%s): got unexpected error, %v", nh, err)
		}
	}
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(1): got unexpected error, %v", err)
	}
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.2", 3, 2, 100)); err != nil {
		t.Fatalf("FTNAdd(2): got unexpected error, %v", err)
	}

	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, false); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}
	nh, err := l.NextHop(mustParse("10.0.0.0"))
	if err != nil {
		t.Fatalf("NextHop(): got unexpected error, %v", err)
	}
	if !nh.Connected {
		t.Fatalf("FEC with one remaining up FTN: got unconnected, want connected")
	}
	if got := len(l.FTNs(mustParse("10.0.0.0"))); got != 2 {
		t.Fatalf("FTNs(): got %d entries, want 2", got)
	}
}

func TestFTNAddErrors(t *testing.T) {
	tests := []struct {
		desc     string
		inFTN    FTN
		wantCode codes.Code
	}{{
		desc:     "duplicate fec and index",
		inFTN:    ftnIn("10.0.0.0", "20.0.0.9", 1, 1, 16),
		wantCode: codes.AlreadyExists,
	}, {
		desc:  "same fec, different index",
		inFTN: ftnIn("10.0.0.0", "20.0.0.1", 3, 2, 100),
	}, {
		desc:     "no labels",
		inFTN:    ftnIn("11.0.0.0", "20.0.0.1", 3, 1),
		wantCode: codes.InvalidArgument,
	}, {
		desc:     "invalid fec",
		inFTN:    FTN{NextHop: mustParse("20.0.0.1"), OutLabels: []uint32{16}},
		wantCode: codes.InvalidArgument,
	}, {
		desc:     "invalid next-hop",
		inFTN:    FTN{FEC: mustParse("11.0.0.0"), OutLabels: []uint32{16}},
		wantCode: codes.InvalidArgument,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			l := New()
			if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
				t.Fatalf("cannot add initial FTN, %v", err)
			}
			if got := status.Code(l.FTNAdd(tt.inFTN)); got != tt.wantCode {
				t.Fatalf("FTNAdd(%+v): did not get expected code, got: %s, want: %s", tt.inFTN, got, tt.wantCode)
			}
			if tt.wantCode != codes.OK {
				if got, want := l.IDsInUse(), (IDUsage{XC: 1, NHLFE: 1}); got != want {
					t.Fatalf("IDsInUse() after failed add: got %+v, want %+v", got, want)
				}
			}
		})
	}
}

func TestFTNDelNotFound(t *testing.T) {
	l := New()
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	for _, tc := range []struct {
		fec string
		ix  uint32
	}{{"10.0.0.0", 2}, {"10.0.0.1", 1}, {"2001:db8::", 1}} {
		if got := status.Code(l.FTNDel(mustParse(tc.fec), tc.ix)); got != codes.NotFound {
			t.Errorf("FTNDel(%s, %d): got code %s, want %s", tc.fec, tc.ix, got, codes.NotFound)
		}
	}
}

func TestNHLFESharing(t *testing.T) {
	l := New()
	a := ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)
	b := ftnIn("11.0.0.0", "20.0.0.1", 3, 1, 100, 42)
	for _, in := range []FTN{a, b} {
		if err := l.FTNAdd(in); err != nil {
			t.Fatalf("FTNAdd(%s): got unexpected error, %v", in.FEC, err)
		}
	}

	sa, sb := mustFTN(t, l, "10.0.0.0", 1), mustFTN(t, l, "11.0.0.0", 1)
	if sa.XCIndex != sb.XCIndex || sa.NHLFEIndex != sb.NHLFEIndex {
		t.Fatalf("FTNs with identical NHLFE keys: got xc %d/%d nhlfe %d/%d, want shared", sa.XCIndex, sb.XCIndex, sa.NHLFEIndex, sb.NHLFEIndex)
	}
	n, err := l.LookupNHLFE(mustParse("20.0.0.1"), 100, 3)
	if err != nil {
		t.Fatalf("LookupNHLFE(): got unexpected error, %v", err)
	}
	if n.Refs != 2 {
		t.Fatalf("NHLFE references: got %d, want 2", n.Refs)
	}

	if err := l.FTNDel(a.FEC, a.Index); err != nil {
		t.Fatalf("FTNDel(a): got unexpected error, %v", err)
	}
	x, err := l.XC(sa.XCIndex)
	if err != nil {
		t.Fatalf("XC(%d) with remaining reference: got unexpected error, %v", sa.XCIndex, err)
	}
	if x.Refs != 1 {
		t.Fatalf("XC(%d) references: got %d, want 1", sa.XCIndex, x.Refs)
	}
	if _, err := l.NHLFE(sa.NHLFEIndex); err != nil {
		t.Fatalf("NHLFE(%d) with remaining reference: got unexpected error, %v", sa.NHLFEIndex, err)
	}

	if err := l.FTNDel(b.FEC, b.Index); err != nil {
		t.Fatalf("FTNDel(b): got unexpected error, %v", err)
	}
	if _, err := l.XC(sa.XCIndex); status.Code(err) != codes.NotFound {
		t.Fatalf("XC(%d) after last reference released: got %v, want NotFound", sa.XCIndex, err)
	}
	if _, err := l.NHLFE(sa.NHLFEIndex); status.Code(err) != codes.NotFound {
		t.Fatalf("NHLFE(%d) after last reference released: got %v, want NotFound", sa.NHLFEIndex, err)
	}
	if got := l.IDsInUse(); got != (IDUsage{}) {
		t.Fatalf("IDsInUse() after all FTNs deleted: got %+v, want none", got)
	}
}

func TestIDRecycling(t *testing.T) {
	l := New()
	fec := mustParse("10.0.0.0")
	for i := 0; i < 3*1024; i++ {
		in := ftnIn("10.0.0.0", "20.0.0.1", 3, 1, uint32(16+i))
		if err := l.FTNAdd(in); err != nil {
			t.Fatalf("FTNAdd() iteration %d: got unexpected error, %v", i, err)
		}
		if err := l.FTNDel(fec, 1); err != nil {
			t.Fatalf("FTNDel() iteration %d: got unexpected error, %v", i, err)
		}
	}
	if got := l.IDsInUse(); got != (IDUsage{}) {
		t.Fatalf("IDsInUse(): got %+v, want none", got)
	}
}

func TestIDExhaustion(t *testing.T) {
	l := New()
	for i := 0; i < 1024; i++ {
		fec := netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)})
		if err := l.FTNAdd(FTN{FEC: fec, Index: 1, NextHop: mustParse("20.0.0.1"), OutLabels: []uint32{uint32(16 + i)}}); err != nil {
			t.Fatalf("FTNAdd(%s): got unexpected error, %v", fec, err)
		}
	}

	fec := mustParse("11.0.0.0")
	err := l.FTNAdd(FTN{FEC: fec, Index: 1, NextHop: mustParse("20.0.0.1"), OutLabels: []uint32{5000}})
	if got := status.Code(err); got != codes.ResourceExhausted {
		t.Fatalf("FTNAdd() 1025th entry: got code %s (%v), want %s", got, err, codes.ResourceExhausted)
	}
	if got := l.FTNs(fec); len(got) != 0 {
		t.Fatalf("FTNs() after failed add: got %v, want none", got)
	}
	if got, want := l.IDsInUse(), (IDUsage{XC: 1024, NHLFE: 1024}); got != want {
		t.Fatalf("IDsInUse(): got %+v, want %+v", got, want)
	}

	// An entry that shares an existing NHLFE needs no new indices.
	if err := l.FTNAdd(FTN{FEC: fec, Index: 1, NextHop: mustParse("20.0.0.1"), OutLabels: []uint32{16}}); err != nil {
		t.Fatalf("FTNAdd() sharing an NHLFE when exhausted: got unexpected error, %v", err)
	}
	if got := l.Stats().XC.Exhausted; got == 0 {
		t.Fatalf("Stats().XC.Exhausted: got 0, want non-zero")
	}
}

func TestILM(t *testing.T) {
	l := New()
	k := ILMKey{InLabel: 1000, InIface: 2}
	base := ILM{InLabel: k.InLabel, InIface: k.InIface, NextHop: mustParse("20.0.0.1"), OutIfIndex: 3, OutLabel: 300}

	in1 := base
	in1.Owner = 1
	ix1, err := l.ILMAdd(in1)
	if err != nil {
		t.Fatalf("ILMAdd(owner 1): got unexpected error, %v", err)
	}
	if ix1 != 1 {
		t.Fatalf("ILMAdd(owner 1): got index %d, want 1", ix1)
	}

	if _, err := l.ILMAdd(in1); status.Code(err) != codes.AlreadyExists {
		t.Fatalf("ILMAdd(owner 1) again: got %v, want AlreadyExists", err)
	}
	if got := l.IDsInUse().ILM; got != 1 {
		t.Fatalf("ILM indices after rejected add: got %d, want 1", got)
	}

	in2 := base
	in2.Owner = 2
	ix2, err := l.ILMAdd(in2)
	if err != nil {
		t.Fatalf("ILMAdd(owner 2): got unexpected error, %v", err)
	}
	s1, _ := l.ILM(k, ix1)
	s2, _ := l.ILM(k, ix2)
	if s1.XCIndex != s2.XCIndex {
		t.Fatalf("ILM entries with identical NHLFE keys: got xc %d and %d, want shared", s1.XCIndex, s2.XCIndex)
	}

	// Update with an unchanged next hop.
	upd := in1
	upd.Index = ix1
	if got, err := l.ILMAdd(upd); err != nil || got != ix1 {
		t.Fatalf("ILMAdd(update, same next-hop): got (%d, %v), want (%d, nil)", got, err, ix1)
	}
	if s, _ := l.ILM(k, ix1); s.XCIndex != s1.XCIndex {
		t.Fatalf("ILM after no-op update: got xc %d, want %d", s.XCIndex, s1.XCIndex)
	}

	// Update with a new next hop moves the entry to a new cross-connect.
	upd.NextHop, upd.OutLabel = mustParse("20.0.0.2"), 301
	if _, err := l.ILMAdd(upd); err != nil {
		t.Fatalf("ILMAdd(update, new next-hop): got unexpected error, %v", err)
	}
	got, err := l.ILM(k, ix1)
	if err != nil {
		t.Fatalf("ILM(): got unexpected error, %v", err)
	}
	want := ILMState{
		Key:        k,
		Index:      ix1,
		Owner:      1,
		NextHop:    mustParse("20.0.0.2"),
		OutIfIndex: 3,
		OutLabel:   301,
		XCIndex:    2,
		NHLFEIndex: 2,
	}
	if diff := cmp.Diff(want, got, cmpAddr); diff != "" {
		t.Fatalf("ILM after update: did not get expected state, diff(-want,+got):\n%s", diff)
	}
	if x, _ := l.XC(s1.XCIndex); x.Refs != 1 {
		t.Fatalf("XC(%d) after update: got %d references, want 1", s1.XCIndex, x.Refs)
	}

	if err := l.NHAddDel(mustParse("20.0.0.2"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}
	if s, _ := l.ILM(k, ix1); !s.Up {
		t.Fatalf("ILM after next-hop added: got down, want up")
	}

	if err := l.ILMDel(k.InLabel, k.InIface, 0, 2); err != nil {
		t.Fatalf("ILMDel(by owner): got unexpected error, %v", err)
	}
	if err := l.ILMDel(k.InLabel, k.InIface, ix1, 0); err != nil {
		t.Fatalf("ILMDel(by index): got unexpected error, %v", err)
	}
	if err := l.ILMDel(k.InLabel, k.InIface, ix1, 0); status.Code(err) != codes.NotFound {
		t.Fatalf("ILMDel() again: got %v, want NotFound", err)
	}
	if got := l.ILMs(k); len(got) != 0 {
		t.Fatalf("ILMs() after delete: got %v, want none", got)
	}
	if got := l.IDsInUse(); got != (IDUsage{}) {
		t.Fatalf("IDsInUse() after delete: got %+v, want none", got)
	}
}

func TestILMCallerIndex(t *testing.T) {
	l := New()
	in := ILM{InLabel: 16, InIface: 1, NextHop: mustParse("2001:db8::1"), OutLabel: 17, Index: 77, Owner: 9}
	ix, err := l.ILMAdd(in)
	if err != nil {
		t.Fatalf("ILMAdd(): got unexpected error, %v", err)
	}
	if ix != 77 {
		t.Fatalf("ILMAdd(): got index %d, want 77", ix)
	}
	if got := l.IDsInUse().ILM; got != 0 {
		t.Fatalf("ILM indices with caller-assigned index: got %d, want 0", got)
	}
	s, err := l.ILMByOwner(in.Key(), 9)
	if err != nil {
		t.Fatalf("ILMByOwner(): got unexpected error, %v", err)
	}
	if s.Index != 77 {
		t.Fatalf("ILMByOwner(): got index %d, want 77", s.Index)
	}
}

func TestILMExhaustion(t *testing.T) {
	l := New(WithIDSpace(2))
	for i := uint32(1); i <= 2; i++ {
		if _, err := l.ILMAdd(ILM{InLabel: 16, NextHop: mustParse("20.0.0.1"), OutLabel: 100, Owner: i}); err != nil {
			t.Fatalf("ILMAdd(owner %d): got unexpected error, %v", i, err)
		}
	}
	if _, err := l.ILMAdd(ILM{InLabel: 16, NextHop: mustParse("20.0.0.1"), OutLabel: 100, Owner: 3}); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("ILMAdd(owner 3): got %v, want ResourceExhausted", err)
	}

	// A failure to allocate a cross-connect releases the allocated ILM index.
	if err := l.ILMDel(16, 0, 0, 2); err != nil {
		t.Fatalf("ILMDel(): got unexpected error, %v", err)
	}
	for _, label := range []uint32{200, 201} {
		if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 1, label, label)); err != nil && label == 200 {
			t.Fatalf("FTNAdd(label %d): got unexpected error, %v", label, err)
		}
	}
	if _, err := l.ILMAdd(ILM{InLabel: 16, NextHop: mustParse("20.0.0.9"), OutLabel: 999, Owner: 4}); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("ILMAdd(new NHLFE when exhausted): got %v, want ResourceExhausted", err)
	}
	if got := l.IDsInUse().ILM; got != 1 {
		t.Fatalf("ILM indices after failed add: got %d, want 1", got)
	}
}

func TestPhysicalNextHopNotOverridden(t *testing.T) {
	l := New()
	fec := mustParse("10.0.0.0")
	if err := l.NHAddDel(fec, 1, false); err != nil {
		t.Fatalf("NHAddDel(%s): got unexpected error, %v", fec, err)
	}
	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	if err := l.FTNAdd(ftnIn("30.0.0.0", "10.0.0.0", 1, 1, 200)); err != nil {
		t.Fatalf("FTNAdd(stacked): got unexpected error, %v", err)
	}

	nh, err := l.NextHop(fec)
	if err != nil {
		t.Fatalf("NextHop(): got unexpected error, %v", err)
	}
	if nh.Connected || !nh.Physical {
		t.Fatalf("configured next-hop with up FTN for its address: got %+v, want physical and unconnected", nh)
	}
	if mustFTN(t, l, "30.0.0.0", 1).Up {
		t.Fatalf("FTN via configured down next-hop: got up, want down")
	}
}

func TestStackedOnConfiguredNextHopReevaluated(t *testing.T) {
	l := New()
	fec := mustParse("10.0.0.0")
	for _, nh := range []netip.Addr{fec, mustParse("20.0.0.1")} {
		if err := l.NHAddDel(nh, 1, true); err != nil {
			t.Fatalf("NHAddDel(%s): got unexpected error, %v", nh, err)
		}
	}
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 1, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(A): got unexpected error, %v", err)
	}
	if err := l.FTNAdd(ftnIn("30.0.0.0", "10.0.0.0", 1, 1, 200)); err != nil {
		t.Fatalf("FTNAdd(B): got unexpected error, %v", err)
	}
	if b := mustFTN(t, l, "30.0.0.0", 1); !b.Up || b.ParentFEC != fec {
		t.Fatalf("FTN B on creation: got %+v, want up and stacked on A", b)
	}

	if err := l.NHAddDel(mustParse("20.0.0.1"), 1, false); err != nil {
		t.Fatalf("NHAddDel(down): got unexpected error, %v", err)
	}
	if mustFTN(t, l, "10.0.0.0", 1).Up {
		t.Fatalf("FTN A after its next-hop went down: got up, want down")
	}
	nh, err := l.NextHop(fec)
	if err != nil {
		t.Fatalf("NextHop(): got unexpected error, %v", err)
	}
	if !nh.Connected || !nh.Physical {
		t.Fatalf("configured next-hop after FEC went down: got %+v, want physical and connected", nh)
	}
	if b := mustFTN(t, l, "30.0.0.0", 1); !b.Up || b.ParentFEC.IsValid() {
		t.Fatalf("FTN B via connected configured next-hop: got %+v, want up and unstacked", b)
	}
}

func TestInferredNextHopPruned(t *testing.T) {
	tests := []struct {
		desc          string
		inConfigured  bool
		inDependent   bool
		wantNextHopOK bool
	}{{
		desc: "inferred next-hop removed with last FTN",
	}, {
		desc:          "configured next-hop is kept",
		inConfigured:  true,
		wantNextHopOK: true,
	}, {
		desc:          "inferred next-hop with dependents is kept",
		inDependent:   true,
		wantNextHopOK: true,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			l := New()
			fec := mustParse("10.0.0.0")
			if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
				t.Fatalf("NHAddDel(): got unexpected error, %v", err)
			}
			if tt.inConfigured {
				if err := l.NHAddDel(fec, 1, true); err != nil {
					t.Fatalf("NHAddDel(%s): got unexpected error, %v", fec, err)
				}
			}
			if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
				t.Fatalf("FTNAdd(): got unexpected error, %v", err)
			}
			if tt.inDependent {
				if err := l.FTNAdd(ftnIn("30.0.0.0", "10.0.0.0", 4, 1, 200)); err != nil {
					t.Fatalf("FTNAdd(stacked): got unexpected error, %v", err)
				}
			}
			if _, err := l.NextHop(fec); err != nil {
				t.Fatalf("NextHop(%s) with up FTN: got unexpected error, %v", fec, err)
			}

			if err := l.FTNDel(fec, 1); err != nil {
				t.Fatalf("FTNDel(): got unexpected error, %v", err)
			}
			_, err := l.NextHop(fec)
			if gotOK := err == nil; gotOK != tt.wantNextHopOK {
				t.Fatalf("NextHop(%s) after FTN deleted: got err %v, want record present: %v", fec, err, tt.wantNextHopOK)
			}
		})
	}
}

func TestInferredNextHopsBounded(t *testing.T) {
	l := New()
	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}
	for i := 0; i < 500; i++ {
		fec := netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)})
		if err := l.FTNAdd(FTN{FEC: fec, Index: 1, NextHop: mustParse("20.0.0.1"), OutIfIndex: 3, OutLabels: []uint32{100}}); err != nil {
			t.Fatalf("FTNAdd(%s): got unexpected error, %v", fec, err)
		}
		if err := l.FTNDel(fec, 1); err != nil {
			t.Fatalf("FTNDel(%s): got unexpected error, %v", fec, err)
		}
	}
	if got := len(l.NextHops()); got != 1 {
		t.Fatalf("NextHops() after FTN churn: got %d records, want 1", got)
	}
}

func TestRemoveNextHop(t *testing.T) {
	l := New()
	nh := mustParse("20.0.0.1")
	if err := l.RemoveNextHop(nh); status.Code(err) != codes.NotFound {
		t.Fatalf("RemoveNextHop() unknown: got %v, want NotFound", err)
	}
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	if err := l.RemoveNextHop(nh); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("RemoveNextHop() with dependents: got %v, want FailedPrecondition", err)
	}
	if err := l.FTNDel(mustParse("10.0.0.0"), 1); err != nil {
		t.Fatalf("FTNDel(): got unexpected error, %v", err)
	}
	if err := l.RemoveNextHop(nh); err != nil {
		t.Fatalf("RemoveNextHop(): got unexpected error, %v", err)
	}
	if _, err := l.NextHop(nh); status.Code(err) != codes.NotFound {
		t.Fatalf("NextHop() after remove: got %v, want NotFound", err)
	}
}

func TestHook(t *testing.T) {
	defer func(fn func() int64) { unixTS = fn }(unixTS)
	unixTS = func() int64 { return 42 }

	type call struct {
		Op    constants.OpType
		TS    int64
		Table constants.Table
		Entry any
	}
	var got []call
	l := New(WithHook(func(op constants.OpType, ts int64, t constants.Table, e any) {
		got = append(got, call{op, ts, t, e})
	}))

	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}

	down := FTNState{
		FEC:        mustParse("10.0.0.0"),
		Index:      1,
		NextHop:    mustParse("20.0.0.1"),
		OutIfIndex: 3,
		OutLabels:  []uint32{100},
		XCIndex:    1,
		NHLFEIndex: 1,
	}
	up := down
	up.Up = true
	want := []call{
		{constants.ADD, 42, constants.FTN, down},
		{constants.ADD, 42, constants.NEXTHOP, NextHopState{Addr: mustParse("20.0.0.1")}},
		{constants.REPLACE, 42, constants.NEXTHOP, NextHopState{Addr: mustParse("20.0.0.1"), IfIndex: 3, Connected: true, Physical: true, FTNs: 1}},
		{constants.REPLACE, 42, constants.FTN, up},
		{constants.ADD, 42, constants.NEXTHOP, NextHopState{Addr: mustParse("10.0.0.0")}},
		{constants.REPLACE, 42, constants.NEXTHOP, NextHopState{Addr: mustParse("10.0.0.0"), Connected: true}},
	}
	if diff := cmp.Diff(want, got, cmpAddr); diff != "" {
		t.Fatalf("did not get expected hook calls, diff(-want,+got):\n%s", diff)
	}
}

func TestSnapshot(t *testing.T) {
	l := New()
	if err := l.FTNAdd(ftnIn("10.0.0.0", "20.0.0.1", 3, 1, 100)); err != nil {
		t.Fatalf("FTNAdd(): got unexpected error, %v", err)
	}
	if err := l.NHAddDel(mustParse("20.0.0.1"), 3, true); err != nil {
		t.Fatalf("NHAddDel(): got unexpected error, %v", err)
	}

	want := &Snapshot{
		FTNs: []FTNState{{
			FEC:        mustParse("10.0.0.0"),
			Index:      1,
			NextHop:    mustParse("20.0.0.1"),
			OutIfIndex: 3,
			OutLabels:  []uint32{100},
			Up:         true,
			XCIndex:    1,
			NHLFEIndex: 1,
		}},
		NextHops: []NextHopState{
			{Addr: mustParse("10.0.0.0"), Connected: true},
			{Addr: mustParse("20.0.0.1"), IfIndex: 3, Connected: true, Physical: true, FTNs: 1},
		},
		NHLFEs: []NHLFEState{{
			Key:     newNHLFEKey(mustParse("20.0.0.1"), 100, 3),
			Index:   1,
			XCIndex: 1,
			Refs:    1,
		}},
		XCs: []XCState{{Key: XCKey{XCIndex: 1, NHLFEIndex: 1}, Refs: 1}},
	}
	if diff := cmp.Diff(want, l.Snapshot(), cmpAddr, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("Snapshot(): did not get expected contents, diff(-want,+got):\n%s", diff)
	}
	if got := l.Stats().EventsProcessed; got != 1 {
		t.Fatalf("Stats().EventsProcessed: got %d, want 1", got)
	}
}

func TestConcurrentOperations(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			nh := netip.AddrFrom4([4]byte{20, 0, 0, byte(w)})
			for i := 0; i < 200; i++ {
				fec := netip.AddrFrom4([4]byte{10, byte(w), 0, byte(i)})
				if err := l.FTNAdd(FTN{FEC: fec, Index: 1, NextHop: nh, OutLabels: []uint32{uint32(100 + i)}}); err != nil {
					t.Errorf("FTNAdd(%s): got unexpected error, %v", fec, err)
					return
				}
				if err := l.NHAddDel(nh, 1, i%2 == 0); err != nil {
					t.Errorf("NHAddDel(%s): got unexpected error, %v", nh, err)
					return
				}
				if err := l.FTNDel(fec, 1); err != nil {
					t.Errorf("FTNDel(%s): got unexpected error, %v", fec, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if got := l.IDsInUse(); got != (IDUsage{}) {
		t.Fatalf("IDsInUse() after concurrent churn: got %+v, want none", got)
	}
	if got := len(l.Snapshot().FTNs); got != 0 {
		t.Fatalf("FTNs after concurrent churn: got %d, want 0", got)
	}
}

func ExampleLFIB_FTNAdd() {
	l := New()
	_ = l.FTNAdd(FTN{FEC: address.MustParse("10.0.0.0"), Index: 1, NextHop: address.MustParse("20.0.0.1"), OutIfIndex: 3, OutLabels: []uint32{100}})
	_ = l.NHAddDel(address.MustParse("20.0.0.1"), 3, true)
	s, _ := l.FTN(address.MustParse("10.0.0.0"), 1)
	fmt.Println(s.Up, s.XCIndex, s.NHLFEIndex)
	// Output: true 1 1
}
