// Copyright 2021 Google LLC
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

// Package chk implements checks against the state of a simulated router, it
// can be used to determine whether the router's tables contain the expected
// entries, and whether they are internally consistent.
//
// Package chk relies on the testing package, and therefore is a test only package -
// that should be used as a helper to tests that are executed by 'go test'.
package chk

import (
	"net/netip"
	"testing"

	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/router"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// mustAddr parses s as an address, failing the test if it is not valid.
func mustAddr(t testing.TB, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("invalid address %q, %v", s, err)
	}
	return a
}

// ftn returns the FTN for fec with index ix, failing the test if it does
// not exist.
func ftn(t testing.TB, r *router.Router, fec string, ix uint32) lfib.FTNState {
	t.Helper()
	f, err := r.LFIB.FTN(mustAddr(t, fec), ix)
	if err != nil {
		t.Fatalf("FTN %s/%d does not exist, %v", fec, ix, err)
	}
	return f
}

// FTNUp checks that the FTN for fec with index ix exists and is up.
func FTNUp(t testing.TB, r *router.Router, fec string, ix uint32) {
	t.Helper()
	if f := ftn(t, r, fec, ix); !f.Up {
		t.Fatalf("FTN %s/%d is down, want up, got: %+v", fec, ix, f)
	}
}

// FTNDown checks that the FTN for fec with index ix exists and is down.
func FTNDown(t testing.TB, r *router.Router, fec string, ix uint32) {
	t.Helper()
	if f := ftn(t, r, fec, ix); f.Up {
		t.Fatalf("FTN %s/%d is up, want down, got: %+v", fec, ix, f)
	}
}

// ilm returns the ILM entry for the key (inLabel, inIface) with index ix,
// failing the test if it does not exist.
func ilm(t testing.TB, r *router.Router, inLabel, inIface, ix uint32) lfib.ILMState {
	t.Helper()
	i, err := r.LFIB.ILM(lfib.ILMKey{InLabel: inLabel, InIface: inIface}, ix)
	if err != nil {
		t.Fatalf("ILM %d/%d index %d does not exist, %v", inLabel, inIface, ix, err)
	}
	return i
}

// ILMUp checks that the ILM entry for (inLabel, inIface) with index ix exists
// and is up.
func ILMUp(t testing.TB, r *router.Router, inLabel, inIface, ix uint32) {
	t.Helper()
	if i := ilm(t, r, inLabel, inIface, ix); !i.Up {
		t.Fatalf("ILM %d/%d index %d is down, want up, got: %+v", inLabel, inIface, ix, i)
	}
}

// ILMDown checks that the ILM entry for (inLabel, inIface) with index ix
// exists and is down.
func ILMDown(t testing.TB, r *router.Router, inLabel, inIface, ix uint32) {
	t.Helper()
	if i := ilm(t, r, inLabel, inIface, ix); i.Up {
		t.Fatalf("ILM %d/%d index %d is up, want down, got: %+v", inLabel, inIface, ix, i)
	}
}

// HasNextHop checks that the router has a next-hop record for addr with the
// specified reachability.
func HasNextHop(t testing.TB, r *router.Router, addr string, connected bool) {
	t.Helper()
	got, err := r.LFIB.NextHop(mustAddr(t, addr))
	if err != nil {
		t.Fatalf("next-hop %s does not exist, %v", addr, err)
	}
	if got.Connected != connected {
		t.Fatalf("next-hop %s does not have expected state, got connected: %v, want: %v (%+v)", addr, got.Connected, connected, got)
	}
}

// RIBConsistent checks that the peers and routes of the router's route
// store refer to one another correctly.
func RIBConsistent(t testing.TB, r *router.Router) {
	t.Helper()
	if err := r.RIB.CheckConsistency(); err != nil {
		t.Fatalf("route store is inconsistent, %v", err)
	}
}

// NoLeakedIDs checks that every index allocated by the router's label
// forwarding tables is held by an entry. Each allocated cross-connect and
// NHLFE index must belong to an NHLFE that is referenced, and the number of
// allocated ILM indices cannot exceed the number of ILM entries, since
// entries may carry an index chosen by the caller.
func NoLeakedIDs(t testing.TB, r *router.Router) {
	t.Helper()
	s := r.LFIB.Snapshot()
	u := r.LFIB.IDsInUse()
	if u.XC != len(s.XCs) {
		t.Fatalf("cross-connect indices leaked, %d allocated, %d cross-connects", u.XC, len(s.XCs))
	}
	if u.NHLFE != len(s.NHLFEs) {
		t.Fatalf("NHLFE indices leaked, %d allocated, %d NHLFEs", u.NHLFE, len(s.NHLFEs))
	}
	if u.ILM > len(s.ILMs) {
		t.Fatalf("ILM indices leaked, %d allocated, %d ILM entries", u.ILM, len(s.ILMs))
	}
	for _, x := range s.XCs {
		if x.Refs == 0 {
			t.Fatalf("cross-connect %d is not referenced", x.Key.XCIndex)
		}
	}
}

// HasErrorCode checks that err carries the status code want. A nil error is
// treated as having the code OK.
func HasErrorCode(t testing.TB, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Fatalf("did not get expected error code, got: %v (%v), want: %v", got, err, want)
	}
}
