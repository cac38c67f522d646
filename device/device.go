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

// Package device wraps a simulated router with a gNMI target that streams
// the state of its tables, and a gRIBI target that serves its forwarding
// entries.
package device

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/config"
	"github.com/openconfig/lsrsim/constants"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/gnmit"
	"github.com/openconfig/lsrsim/router"
	"github.com/openconfig/lsrsim/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	spb "github.com/openconfig/gribi/v1/proto/service"
)

// unixTS returns the current time in nanoseconds since the unix epoch. It is
// used to timestamp changes to the longest-prefix-match table, which does not
// supply a timestamp to its hook.
var unixTS = func() int64 { return time.Now().UnixNano() }

// metadataPeriod is the interval at which the gNMI cache's metadata is
// refreshed.
const metadataPeriod = 30 * time.Second

// Device is a wrapper struct that contains all functionalities
// for containing a gRIBI and gNMI target for a simulated router.
type Device struct {
	// r is the router whose tables are exposed.
	r *router.Router

	// gribiAddr is the address that the server is listening on
	// for gRIBI.
	gribiAddr string
	// gribiSrv is the gRIBI server.
	gribiSrv *server.Server

	// gnmiAddr is the address that the server is listening on
	// for gNMI.
	gnmiAddr string
	// gnmiSrv is the gNMI collector implementation.
	gnmiSrv *gnmit.Collector
}

// DevOpt is an interface implemented by options to New.
type DevOpt interface {
	isDevOpt()
}

// listenAddr is the host and port that a server listens on.
type listenAddr struct {
	host string
	port int
}

func (l *listenAddr) String() string {
	return net.JoinHostPort(l.host, fmt.Sprint(l.port))
}

type gribiAddrOpt struct{ listenAddr }

func (*gribiAddrOpt) isDevOpt() {}

// GRIBIPort specifies the host and port that the gRIBI server listens on.
func GRIBIPort(host string, port int) *gribiAddrOpt {
	return &gribiAddrOpt{listenAddr{host: host, port: port}}
}

type gnmiAddrOpt struct{ listenAddr }

func (*gnmiAddrOpt) isDevOpt() {}

// GNMIAddr specifies the host and port that the gNMI server listens on.
func GNMIAddr(host string, port int) *gnmiAddrOpt {
	return &gnmiAddrOpt{listenAddr{host: host, port: port}}
}

type configOpt struct{ cfg *config.Config }

func (*configOpt) isDevOpt() {}

// DeviceConfig sets the startup configuration of the device to c. The
// configuration names the router, and its contents are applied to the
// router's tables once the gNMI server is started, such that they are
// streamed to subscribers.
func DeviceConfig(c *config.Config) *configOpt {
	return &configOpt{cfg: c}
}

// TLSCred is a device option that specifies the TLS credentials used by the
// gNMI and gRIBI servers.
type TLSCred struct {
	C credentials.TransportCredentials
}

func (*TLSCred) isDevOpt() {}

// TLSCredsFromFile loads the credentials from the specified cert and key file
// and returns them such that they can be used for the gNMI and gRIBI servers.
func TLSCredsFromFile(certFile, keyFile string) (*TLSCred, error) {
	t, err := credentials.NewServerTLSFromFile(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &TLSCred{C: t}, nil
}

// options is the resolved set of options handed to New. Where an option is
// repeated, the first occurrence is used.
type options struct {
	gribi, gnmi *listenAddr
	cfg         *config.Config
	creds       *TLSCred
}

func resolve(opts []DevOpt) *options {
	o := &options{}
	for _, opt := range opts {
		switch v := opt.(type) {
		case *gribiAddrOpt:
			if o.gribi == nil {
				o.gribi = &v.listenAddr
			}
		case *gnmiAddrOpt:
			if o.gnmi == nil {
				o.gnmi = &v.listenAddr
			}
		case *configOpt:
			if o.cfg == nil {
				o.cfg = v.cfg
			}
		case *TLSCred:
			if o.creds == nil {
				o.creds = v
			}
		}
	}
	if o.gribi == nil {
		o.gribi = &listenAddr{host: "localhost"}
	}
	if o.gnmi == nil {
		o.gnmi = &listenAddr{host: "localhost"}
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	return o
}

// New returns a new device whose router is configured by the DeviceConfig
// option, with its gNMI and gRIBI servers started. It returns the device, a
// function to stop the servers, or any errors that are encountered. Servers
// listen on a free port of localhost unless an address is specified.
func New(ctx context.Context, opts ...DevOpt) (*Device, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	d := &Device{}

	o := resolve(opts)
	var srvOpts []grpc.ServerOption
	if o.creds != nil {
		srvOpts = append(srvOpts, grpc.Creds(o.creds.C))
	}

	if err := d.startgNMI(ctx, o.gnmi, o.cfg.Name, srvOpts...); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("cannot start gNMI server, %v", err)
	}

	ropts := append(o.cfg.RouterOpts(),
		router.WithRIBHook(d.publish),
		router.WithLFIBHook(d.publish),
		router.WithFIBHook(func(op constants.OpType, p netip.Prefix, e fib.Entry) {
			d.publish(op, unixTS(), constants.LPM, fib.Match{Prefix: p, Entry: e})
		}),
	)
	d.r = router.New(ropts...)

	if err := o.cfg.Apply(d.r); err != nil {
		d.gnmiSrv.Stop()
		cancel()
		return nil, nil, fmt.Errorf("cannot apply configuration, %v", err)
	}
	d.gnmiSrv.Sync()

	stopgRIBI, err := d.startgRIBI(o.gribi, srvOpts...)
	if err != nil {
		d.gnmiSrv.Stop()
		cancel()
		return nil, nil, fmt.Errorf("cannot start gRIBI server, %v", err)
	}

	stop := func() {
		stopgRIBI()
		d.gnmiSrv.Stop()
		d.r.Close()
		cancel()
	}
	return d, stop, nil
}

// publish is the post-change hook of each of the router's tables, streaming
// the change to gNMI subscribers.
func (d *Device) publish(o constants.OpType, ts int64, t constants.Table, e any) {
	n, err := gnmit.Notification(d.gnmiSrv.Name(), o, ts, t, e)
	if err != nil {
		log.Errorf("invalid notification for %s %s, %v", o, t, err)
		return
	}
	d.gnmiSrv.Publish(n)
}

// startgRIBI starts the read-only gRIBI server for the device's router on
// addr. It returns a function to stop the server.
func (d *Device) startgRIBI(addr *listenAddr, opt ...grpc.ServerOption) (func(), error) {
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("cannot listen on %s, %v", addr, err)
	}

	s := grpc.NewServer(opt...)
	d.gribiSrv = server.New(d.r)
	spb.RegisterGRIBIServer(s, d.gribiSrv)
	d.gribiAddr = l.Addr().String()
	go s.Serve(l)
	return s.Stop, nil
}

// startgNMI starts the gNMI collector for target on addr. Cache metadata is
// refreshed every metadataPeriod.
func (d *Device) startgNMI(ctx context.Context, addr *listenAddr, target string, opt ...grpc.ServerOption) error {
	c, err := gnmit.New(ctx, addr.String(), target, gnmit.WithMetadata(metadataPeriod), gnmit.WithServerOpts(opt...))
	if err != nil {
		return err
	}
	d.gnmiAddr = c.Addr()
	d.gnmiSrv = c
	return nil
}

// Router returns the router of the device.
func (d *Device) Router() *router.Router {
	return d.r
}

// GRIBIAddr returns the address that the gRIBI server is listening on.
func (d *Device) GRIBIAddr() string {
	return d.gribiAddr
}

// GNMIAddr returns the address that the gNMI server is listening on.
func (d *Device) GNMIAddr() string {
	return d.gnmiAddr
}

// TelemetryStats returns the statistics of the device's gNMI collector.
func (d *Device) TelemetryStats() gnmit.Stats {
	return d.gnmiSrv.Stats()
}
