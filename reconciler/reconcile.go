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

// Package reconciler reconciles the label forwarding state of two routers -- the
// intended router is assumed to contain the desired entries, whereas the
// 'target' router is to be programmed. The reconciler:
//
//   - Takes a snapshot of the label forwarding tables of each router.
//   - Calculates a diff between the two snapshots, expressed as configuration
//     steps.
//   - Applies the steps to the target router to make it consistent with the
//     intended router.
package reconciler

import (
	"context"
	"fmt"
	"net/netip"
	"slices"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/config"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/router"
)

// R reconciles a target router against an intended one.
type R struct {
	intended, target Target
}

// Target is an interface that abstracts a router in the reconciler. It allows
// the label forwarding state to be retrieved, and changed by applying
// configuration steps.
type Target interface {
	// Snapshot returns the contents of the label forwarding tables.
	Snapshot(context.Context) (*lfib.Snapshot, error)
	// Apply makes the changes described by steps, in order.
	Apply(context.Context, []config.Step) error
	// CleanUp is called to indicate that the Target should remove any
	// state as it is no longer required.
	CleanUp()
}

// LocalRouter wraps a router that is available within the process.
type LocalRouter struct {
	r *router.Router
	// owned indicates that the router was created by the reconciler, and
	// is closed by CleanUp.
	owned bool
}

// NewLocalRouter returns a Target for the router r.
func NewLocalRouter(r *router.Router) *LocalRouter {
	return &LocalRouter{r: r}
}

// FromConfig returns a Target for a new router to which cfg has been
// applied. It is typically used as the intended router.
func FromConfig(cfg *config.Config) (*LocalRouter, error) {
	r := router.New(cfg.RouterOpts()...)
	if err := cfg.Apply(r); err != nil {
		r.Close()
		return nil, fmt.Errorf("cannot build intended router, %v", err)
	}
	return &LocalRouter{r: r, owned: true}, nil
}

// Snapshot returns the contents of the local router's label forwarding tables.
func (l *LocalRouter) Snapshot(_ context.Context) (*lfib.Snapshot, error) {
	return l.r.LFIB.Snapshot(), nil
}

// Apply applies steps to the local router.
func (l *LocalRouter) Apply(_ context.Context, steps []config.Step) error {
	return (&config.Config{Steps: steps}).Apply(l.r)
}

// CleanUp closes the router if it was created by FromConfig.
func (l *LocalRouter) CleanUp() {
	if l.owned {
		l.r.Close()
	}
}

var (
	// Compile time check that LocalRouter implements the Target interface.
	_ Target = &LocalRouter{}
)

// New returns a new reconciler with the specified intended and target routers.
func New(intended, target Target) *R {
	return &R{
		intended: intended,
		target:   target,
	}
}

// Reconcile performs a reconciliation operation between the intended and
// target routers. It returns the steps that were applied to the target.
func (r *R) Reconcile(ctx context.Context) ([]config.Step, error) {
	iSnap, err := r.intended.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot reconcile, cannot get contents of intended, %v", err)
	}

	tSnap, err := r.target.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot reconcile, cannot get contents of target, %v", err)
	}

	steps := Diff(iSnap, tSnap)
	if len(steps) == 0 {
		log.V(2).Infof("target is consistent with intended, no steps to apply")
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.V(2).Infof("applying %d steps to target", len(steps))
	if err := r.target.Apply(ctx, steps); err != nil {
		return nil, fmt.Errorf("cannot reconcile, cannot apply steps to target, %v", err)
	}
	return steps, nil
}

type ftnKey struct {
	fec   netip.Addr
	index uint32
}

type ilmKey struct {
	key   lfib.ILMKey
	owner uint32
}

// Diff returns the difference between the src and dst snapshots expressed as
// configuration steps that, applied to the router dst was taken from, make
// its label forwarding state consistent with src. That is to say:
//
//   - entries that are present in dst but not src are deleted.
//   - entries that are present in both whose next hop or labels differ are
//     deleted and re-added.
//   - entries that are present in src but not dst are added.
//   - configured next hops whose reachability differs are set to the value
//     in src, and configured next hops that are only present in dst are set
//     to be unreachable.
//
// Deletes are returned before adds, and next-hop changes last. ILM entries
// are re-added without an index, such that one is allocated by dst.
func Diff(src, dst *lfib.Snapshot) []config.Step {
	if src == nil {
		src = &lfib.Snapshot{}
	}
	if dst == nil {
		dst = &lfib.Snapshot{}
	}

	srcFTNs := map[ftnKey]lfib.FTNState{}
	for _, f := range src.FTNs {
		srcFTNs[ftnKey{f.FEC, f.Index}] = f
	}
	dstFTNs := map[ftnKey]lfib.FTNState{}
	for _, f := range dst.FTNs {
		dstFTNs[ftnKey{f.FEC, f.Index}] = f
	}
	srcILMs := map[ilmKey]lfib.ILMState{}
	for _, i := range src.ILMs {
		srcILMs[ilmKey{i.Key, i.Owner}] = i
	}
	dstILMs := map[ilmKey]lfib.ILMState{}
	for _, i := range dst.ILMs {
		dstILMs[ilmKey{i.Key, i.Owner}] = i
	}

	var dels, adds, nhs []config.Step

	for _, d := range dst.ILMs {
		if s, ok := srcILMs[ilmKey{d.Key, d.Owner}]; !ok || !sameILM(s, d) {
			dels = append(dels, config.Step{DeleteILM: &config.ILM{
				InLabel: d.Key.InLabel,
				InIface: d.Key.InIface,
				Index:   d.Index,
				Owner:   d.Owner,
			}})
		}
	}
	for _, d := range dst.FTNs {
		if s, ok := srcFTNs[ftnKey{d.FEC, d.Index}]; !ok || !sameFTN(s, d) {
			dels = append(dels, config.Step{DeleteFTN: &config.FTN{FEC: d.FEC.String(), Index: d.Index}})
		}
	}

	for _, s := range src.FTNs {
		if d, ok := dstFTNs[ftnKey{s.FEC, s.Index}]; !ok || !sameFTN(s, d) {
			adds = append(adds, config.Step{AddFTN: &config.FTN{
				FEC:     s.FEC.String(),
				Index:   s.Index,
				NextHop: s.NextHop.String(),
				IfIndex: s.OutIfIndex,
				Labels:  append([]uint32(nil), s.OutLabels...),
			}})
		}
	}
	for _, s := range src.ILMs {
		if d, ok := dstILMs[ilmKey{s.Key, s.Owner}]; !ok || !sameILM(s, d) {
			adds = append(adds, config.Step{AddILM: &config.ILM{
				InLabel:  s.Key.InLabel,
				InIface:  s.Key.InIface,
				NextHop:  s.NextHop.String(),
				IfIndex:  s.OutIfIndex,
				OutLabel: s.OutLabel,
				Owner:    s.Owner,
			}})
		}
	}

	srcNHs := map[netip.Addr]lfib.NextHopState{}
	for _, n := range src.NextHops {
		if n.Physical {
			srcNHs[n.Addr] = n
		}
	}
	dstNHs := map[netip.Addr]lfib.NextHopState{}
	for _, n := range dst.NextHops {
		dstNHs[n.Addr] = n
	}
	for _, s := range src.NextHops {
		if !s.Physical {
			continue
		}
		if d, ok := dstNHs[s.Addr]; ok && d.Physical && d.Connected == s.Connected && d.IfIndex == s.IfIndex {
			continue
		}
		nhs = append(nhs, config.Step{NextHop: &config.NextHop{
			Address:   s.Addr.String(),
			IfIndex:   s.IfIndex,
			Connected: s.Connected,
		}})
	}
	for _, d := range dst.NextHops {
		if _, ok := srcNHs[d.Addr]; ok || !d.Physical || !d.Connected {
			continue
		}
		nhs = append(nhs, config.Step{NextHop: &config.NextHop{
			Address: d.Addr.String(),
			IfIndex: d.IfIndex,
		}})
	}

	return append(append(dels, adds...), nhs...)
}

func sameFTN(a, b lfib.FTNState) bool {
	return a.NextHop == b.NextHop && a.OutIfIndex == b.OutIfIndex && slices.Equal(a.OutLabels, b.OutLabels)
}

func sameILM(a, b lfib.ILMState) bool {
	return a.NextHop == b.NextHop && a.OutIfIndex == b.OutIfIndex && a.OutLabel == b.OutLabel
}
