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

// Package router composes the tables of a simulated label switching router:
// the route and peer store, the longest-prefix-match table and the label
// forwarding tables. A Router is the explicit context that every operation is
// performed against, such that independent routers can coexist in a process.
package router

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/rib"
)

// DefaultName is the name of a router that is not given one.
const DefaultName = "DUT"

// Router is a simulated label switching router.
type Router struct {
	// ID uniquely identifies the router instance.
	ID uuid.UUID
	// Name is the name of the router, used as its telemetry target.
	Name string

	// RIB is the route and peer store.
	RIB *rib.RIB
	// FIB is the longest-prefix-match table.
	FIB *fib.FIB
	// LFIB holds the MPLS label forwarding state.
	LFIB *lfib.LFIB
}

// Opt is an interface implemented by options to New.
type Opt interface {
	isRouterOpt()
}

type name struct{ s string }

func (*name) isRouterOpt() {}

// WithName sets the name of the router.
func WithName(s string) *name { return &name{s: s} }

type id struct{ u uuid.UUID }

func (*id) isRouterOpt() {}

// WithID sets the ID of the router rather than generating one.
func WithID(u uuid.UUID) *id { return &id{u: u} }

type idSpace struct{ n uint32 }

func (*idSpace) isRouterOpt() {}

// WithIDSpace sets the number of indices available to each of the label
// forwarding allocators.
func WithIDSpace(n uint32) *idSpace { return &idSpace{n: n} }

type ribHook struct{ fn rib.RIBHookFn }

func (*ribHook) isRouterOpt() {}

// WithRIBHook sets the function called following each change to the RIB.
func WithRIBHook(fn rib.RIBHookFn) *ribHook { return &ribHook{fn: fn} }

type fibHook struct{ fn fib.HookFn }

func (*fibHook) isRouterOpt() {}

// WithFIBHook sets the function called following each change to the FIB.
func WithFIBHook(fn fib.HookFn) *fibHook { return &fibHook{fn: fn} }

type lfibHook struct{ fn lfib.HookFn }

func (*lfibHook) isRouterOpt() {}

// WithLFIBHook sets the function called following each change to the LFIB.
func WithLFIBHook(fn lfib.HookFn) *lfibHook { return &lfibHook{fn: fn} }

// New returns a new router with empty tables.
func New(opts ...Opt) *Router {
	r := &Router{
		ID:   uuid.New(),
		Name: DefaultName,
	}
	var (
		ribOpts  []rib.RIBOpt
		lfibOpts []lfib.Opt
		fibFn    fib.HookFn
	)
	for _, o := range opts {
		switch v := o.(type) {
		case *name:
			r.Name = v.s
		case *id:
			r.ID = v.u
		case *idSpace:
			lfibOpts = append(lfibOpts, lfib.WithIDSpace(v.n))
		case *ribHook:
			ribOpts = append(ribOpts, rib.WithHook(v.fn))
		case *fibHook:
			fibFn = v.fn
		case *lfibHook:
			lfibOpts = append(lfibOpts, lfib.WithHook(v.fn))
		}
	}
	r.RIB = rib.New(ribOpts...)
	r.FIB = fib.New(fibFn)
	r.LFIB = lfib.New(lfibOpts...)
	log.V(2).Infof("created %s", r)
	return r
}

// String returns a human readable identifier for the router.
func (r *Router) String() string {
	return fmt.Sprintf("router %s (%s)", r.Name, r.ID)
}

// Close releases the contents of the router's route and peer store. Each
// peer is removed in the same manner as an explicit delete.
func (r *Router) Close() {
	log.V(2).Infof("closing %s", r)
	r.RIB.Close()
}
