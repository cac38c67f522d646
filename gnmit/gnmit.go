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

// Package gnmit is a single-target gNMI collector that streams the state of
// a simulated router's tables. It supports the Subscribe RPC using the
// libraries from openconfig/gnmi, with the contents of the target cached by
// the gNMI cache.
package gnmit

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/openconfig/gnmi/cache"
	"github.com/openconfig/gnmi/subscribe"
	"go.uber.org/atomic"
	"google.golang.org/grpc"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

// queueDepth is the number of updates that may be pending before
// TargetUpdate blocks.
const queueDepth = 1024

// Opt is an interface implemented by options to New.
type Opt interface {
	isCollectorOpt()
}

type metadata struct{ period time.Duration }

func (*metadata) isCollectorOpt() {}

// WithMetadata specifies that the cache's metadata, other than meta/sync and
// meta/connected, and its size statistics are refreshed every period.
func WithMetadata(period time.Duration) *metadata { return &metadata{period: period} }

type serverOpts struct{ opts []grpc.ServerOption }

func (*serverOpts) isCollectorOpt() {}

// WithServerOpts specifies the options used to create the collector's gRPC
// server, such as its transport credentials.
func WithServerOpts(opts ...grpc.ServerOption) *serverOpts { return &serverOpts{opts: opts} }

// Stats is a summary of the updates handled by a collector.
type Stats struct {
	// Handled is the number of updates written to the cache.
	Handled uint64
	// Errors is the number of updates that the cache rejected.
	Errors uint64
	// Dropped is the number of updates discarded because the collector had
	// stopped.
	Dropped uint64
}

// Collector is a basic gNMI target that supports only the Subscribe
// RPC, and acts as a cache for exactly one target.
type Collector struct {
	// target is the name of the target.
	target string
	cache  *cache.Cache
	srv    *grpc.Server
	addr   string

	// inCh carries updates to the goroutine that writes them to the cache.
	inCh chan *gpb.SubscribeResponse
	// done is closed when the collector stops handling updates.
	done chan struct{}
	// stop is closed by Stop.
	stop     chan struct{}
	stopOnce sync.Once

	handled, errors, dropped atomic.Uint64
}

// New returns a collector for the target named target, serving gNMI on addr
// (in the form host:port). The collector stops handling updates when ctx is
// done or Stop is called.
func New(ctx context.Context, addr, target string, opts ...Opt) (*Collector, error) {
	var (
		srvOpts []grpc.ServerOption
		period  time.Duration
	)
	for _, o := range opts {
		switch v := o.(type) {
		case *metadata:
			period = v.period
		case *serverOpts:
			srvOpts = append(srvOpts, v.opts...)
		}
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %s, %v", addr, err)
	}

	c := &Collector{
		target: target,
		cache:  cache.New([]string{target}),
		srv:    grpc.NewServer(srvOpts...),
		addr:   lis.Addr().String(),
		inCh:   make(chan *gpb.SubscribeResponse, queueDepth),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}

	subscribeSrv, err := subscribe.NewServer(c.cache)
	if err != nil {
		lis.Close()
		return nil, fmt.Errorf("cannot create gNMI subscribe server, %v", err)
	}
	gpb.RegisterGNMIServer(c.srv, subscribeSrv)
	c.cache.SetClient(subscribeSrv.Update)
	c.cache.GetTarget(target).Connect()

	go c.run(ctx, period)
	go c.srv.Serve(lis)
	log.V(2).Infof("gnmit: serving target %s on %s", target, c.addr)
	return c, nil
}

// run writes queued updates to the cache, and refreshes the cache metadata
// every period if it is non-zero, until the collector is stopped.
func (c *Collector) run(ctx context.Context, period time.Duration) {
	defer close(c.done)
	var tick <-chan time.Time
	if period > 0 {
		t := time.NewTicker(period)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case msg := <-c.inCh:
			if err := c.handleUpdate(msg); err != nil {
				c.errors.Inc()
				log.Errorf("gnmit: target %s, %v", c.target, err)
				continue
			}
			c.handled.Inc()
		case <-tick:
			c.cache.UpdateMetadata()
			c.cache.UpdateSize()
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
	}
}

// Name returns the name of the collector's target.
func (c *Collector) Name() string {
	return c.target
}

// Addr returns the address that the collector is listening on.
func (c *Collector) Addr() string {
	return c.addr
}

// Stop halts the gNMI server and stops handling updates.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.srv.Stop()
	})
}

// Stats returns the update statistics of the collector.
func (c *Collector) Stats() Stats {
	return Stats{
		Handled: c.handled.Load(),
		Errors:  c.errors.Load(),
		Dropped: c.dropped.Load(),
	}
}

// handleUpdate writes resp to the target's cache.
func (c *Collector) handleUpdate(resp *gpb.SubscribeResponse) error {
	t := c.cache.GetTarget(c.target)
	switch v := resp.Response.(type) {
	case *gpb.SubscribeResponse_Update:
		return t.GnmiUpdate(v.Update)
	case *gpb.SubscribeResponse_SyncResponse:
		t.Sync()
		return nil
	default:
		return fmt.Errorf("unsupported response %T", v)
	}
}

// TargetUpdate queues resp to be written to the cache and sent to
// subscribers. Updates queued after the collector has stopped are
// discarded.
func (c *Collector) TargetUpdate(resp *gpb.SubscribeResponse) {
	select {
	case c.inCh <- resp:
	case <-c.done:
		c.dropped.Inc()
		log.V(2).Infof("gnmit: target %s stopped, discarding update", c.target)
	}
}

// Publish queues the notification n for the target.
func (c *Collector) Publish(n *gpb.Notification) {
	c.TargetUpdate(&gpb.SubscribeResponse{
		Response: &gpb.SubscribeResponse_Update{Update: n},
	})
}

// Sync marks the target as synchronised, such that subscribers receive a
// sync response after the initial contents of the cache.
func (c *Collector) Sync() {
	c.TargetUpdate(&gpb.SubscribeResponse{
		Response: &gpb.SubscribeResponse_SyncResponse{SyncResponse: true},
	})
}
