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

// Package config defines the YAML startup configuration of a simulated
// router, and applies it to the router's tables.
package config

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"

	log "github.com/golang/glog"
	"github.com/openconfig/lsrsim/address"
	"github.com/openconfig/lsrsim/fib"
	"github.com/openconfig/lsrsim/idmap"
	"github.com/openconfig/lsrsim/lfib"
	"github.com/openconfig/lsrsim/rib"
	"github.com/openconfig/lsrsim/router"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a router.
type Config struct {
	// Name is the name of the router, used as its gNMI target and gRIBI
	// network instance.
	Name string `yaml:"name"`
	// IDSpace is the number of indices available to each of the LFIB's
	// allocators.
	IDSpace uint32 `yaml:"id-space"`

	Peers    []Peer    `yaml:"peers,omitempty"`
	Routes   []Route   `yaml:"routes,omitempty"`
	LPM      []LPM     `yaml:"lpm,omitempty"`
	FTNs     []FTN     `yaml:"ftns,omitempty"`
	ILMs     []ILM     `yaml:"ilms,omitempty"`
	NextHops []NextHop `yaml:"next-hops,omitempty"`

	// Steps are applied in order after the contents of the tables.
	Steps []Step `yaml:"steps,omitempty"`
}

// Peer is a peer adjacency and the routes that it advertises.
type Peer struct {
	Address string  `yaml:"address"`
	IfIndex uint32  `yaml:"if-index"`
	Routes  []Route `yaml:"routes,omitempty"`
}

// Route is an entry of the route table.
type Route struct {
	Prefix  string `yaml:"prefix"`
	Mask    string `yaml:"mask"`
	NextHop string `yaml:"next-hop"`
	IfIndex uint32 `yaml:"if-index"`
}

// LPM is an entry of the longest-prefix-match table.
type LPM struct {
	// Prefix is in CIDR notation.
	Prefix  string `yaml:"prefix"`
	NextHop string `yaml:"next-hop"`
	IfIndex uint32 `yaml:"if-index"`
}

// FTN is a FEC-to-NHLFE entry.
type FTN struct {
	FEC     string   `yaml:"fec"`
	Index   uint32   `yaml:"index"`
	NextHop string   `yaml:"next-hop"`
	IfIndex uint32   `yaml:"if-index"`
	Labels  []uint32 `yaml:"labels"`
}

// ILM is an incoming label map entry.
type ILM struct {
	InLabel  uint32 `yaml:"in-label"`
	InIface  uint32 `yaml:"in-iface"`
	NextHop  string `yaml:"next-hop"`
	IfIndex  uint32 `yaml:"if-index"`
	OutLabel uint32 `yaml:"out-label"`
	Index    uint32 `yaml:"index,omitempty"`
	Owner    uint32 `yaml:"owner,omitempty"`
}

// NextHop sets the reachability of a next hop.
type NextHop struct {
	Address   string `yaml:"address"`
	IfIndex   uint32 `yaml:"if-index"`
	Connected bool   `yaml:"connected"`
}

// Step is a single change applied to a router. Exactly one field must be
// set.
type Step struct {
	NextHop     *NextHop `yaml:"next-hop,omitempty"`
	AddFTN      *FTN     `yaml:"add-ftn,omitempty"`
	DeleteFTN   *FTN     `yaml:"delete-ftn,omitempty"`
	AddILM      *ILM     `yaml:"add-ilm,omitempty"`
	DeleteILM   *ILM     `yaml:"delete-ilm,omitempty"`
	DeletePeer  string   `yaml:"delete-peer,omitempty"`
	DeleteRoute string   `yaml:"delete-route,omitempty"`
}

// DefaultConfig returns the configuration of an empty router.
func DefaultConfig() *Config {
	return &Config{
		Name:    router.DefaultName,
		IDSpace: idmap.DefaultSize,
	}
}

// Parse returns the configuration described by the YAML document b. Fields
// that are not specified take their values from DefaultConfig. Unknown
// fields are an error.
func Parse(b []byte) (*Config, error) {
	c := DefaultConfig()
	d := yaml.NewDecoder(bytes.NewReader(b))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil {
		return nil, fmt.Errorf("cannot parse configuration, %v", err)
	}
	if c.IDSpace == 0 {
		return nil, fmt.Errorf("invalid id-space 0")
	}
	return c, nil
}

// Load reads the configuration from the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read configuration, %v", err)
	}
	return Parse(b)
}

// Marshal returns the YAML representation of c.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// RouterOpts returns the options used to create a router for c.
func (c *Config) RouterOpts() []router.Opt {
	return []router.Opt{
		router.WithName(c.Name),
		router.WithIDSpace(c.IDSpace),
	}
}

func parseAddr(field, s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid %s %q, %v", field, s, err)
	}
	return address.Canonical(a), nil
}

func (rt Route) route() (rib.Route, error) {
	p, err := parseAddr("prefix", rt.Prefix)
	if err != nil {
		return rib.Route{}, err
	}
	m, err := parseAddr("mask", rt.Mask)
	if err != nil {
		return rib.Route{}, err
	}
	nh, err := parseAddr("next-hop", rt.NextHop)
	if err != nil {
		return rib.Route{}, err
	}
	return rib.Route{Prefix: p, Mask: m, NextHop: nh, OutIfIndex: rt.IfIndex}, nil
}

func (f FTN) ftn() (lfib.FTN, error) {
	fec, err := parseAddr("fec", f.FEC)
	if err != nil {
		return lfib.FTN{}, err
	}
	nh, err := parseAddr("next-hop", f.NextHop)
	if err != nil {
		return lfib.FTN{}, err
	}
	return lfib.FTN{FEC: fec, Index: f.Index, NextHop: nh, OutIfIndex: f.IfIndex, OutLabels: f.Labels}, nil
}

func (i ILM) ilm() (lfib.ILM, error) {
	nh, err := parseAddr("next-hop", i.NextHop)
	if err != nil {
		return lfib.ILM{}, err
	}
	return lfib.ILM{
		InLabel:    i.InLabel,
		InIface:    i.InIface,
		NextHop:    nh,
		OutIfIndex: i.IfIndex,
		OutLabel:   i.OutLabel,
		Index:      i.Index,
		Owner:      i.Owner,
	}, nil
}

func applyNextHop(r *router.Router, n *NextHop) error {
	a, err := parseAddr("next-hop address", n.Address)
	if err != nil {
		return err
	}
	return r.LFIB.NHAddDel(a, n.IfIndex, n.Connected)
}

func addFTN(r *router.Router, f *FTN) error {
	in, err := f.ftn()
	if err != nil {
		return err
	}
	return r.LFIB.FTNAdd(in)
}

func addILM(r *router.Router, i *ILM) error {
	in, err := i.ilm()
	if err != nil {
		return err
	}
	_, err = r.LFIB.ILMAdd(in)
	return err
}

// Apply adds the contents of c to the tables of router r: peers and the
// routes that they advertise, directly installed routes, longest-prefix-match
// entries, FTN and ILM entries, and next-hop reachability, followed by each
// of the steps in order. Apply stops at the first error.
func (c *Config) Apply(r *router.Router) error {
	for _, p := range c.Peers {
		a, err := parseAddr("peer address", p.Address)
		if err != nil {
			return err
		}
		if err := r.RIB.PeerAdd(a, p.IfIndex); err != nil {
			return fmt.Errorf("cannot add peer %s, %w", a, err)
		}
		for _, rt := range p.Routes {
			in, err := rt.route()
			if err != nil {
				return err
			}
			if err := r.RIB.PeerRouteAdd(a, in); err != nil {
				return fmt.Errorf("cannot add route %s for peer %s, %w", in.Prefix, a, err)
			}
		}
	}

	for _, rt := range c.Routes {
		in, err := rt.route()
		if err != nil {
			return err
		}
		if err := r.RIB.RouteAdd(in); err != nil {
			return fmt.Errorf("cannot add route %s, %w", in.Prefix, err)
		}
	}

	for _, e := range c.LPM {
		p, err := netip.ParsePrefix(e.Prefix)
		if err != nil {
			return fmt.Errorf("invalid lpm prefix %q, %v", e.Prefix, err)
		}
		nh, err := parseAddr("next-hop", e.NextHop)
		if err != nil {
			return err
		}
		if err := r.FIB.Add(p, fib.Entry{NextHop: nh, OutIfIndex: e.IfIndex}); err != nil {
			return fmt.Errorf("cannot add lpm entry %s, %w", p, err)
		}
	}

	for i := range c.FTNs {
		if err := addFTN(r, &c.FTNs[i]); err != nil {
			return fmt.Errorf("cannot add FTN %s/%d, %w", c.FTNs[i].FEC, c.FTNs[i].Index, err)
		}
	}
	for i := range c.ILMs {
		if err := addILM(r, &c.ILMs[i]); err != nil {
			return fmt.Errorf("cannot add ILM %d/%d, %w", c.ILMs[i].InLabel, c.ILMs[i].InIface, err)
		}
	}
	for i := range c.NextHops {
		if err := applyNextHop(r, &c.NextHops[i]); err != nil {
			return fmt.Errorf("cannot set next-hop %s, %w", c.NextHops[i].Address, err)
		}
	}

	for i, s := range c.Steps {
		if err := s.apply(r); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	log.V(2).Infof("applied configuration to %s", r)
	return nil
}

// apply makes the change described by s to router r.
func (s Step) apply(r *router.Router) error {
	switch {
	case s.NextHop != nil:
		return applyNextHop(r, s.NextHop)
	case s.AddFTN != nil:
		return addFTN(r, s.AddFTN)
	case s.DeleteFTN != nil:
		fec, err := parseAddr("fec", s.DeleteFTN.FEC)
		if err != nil {
			return err
		}
		return r.LFIB.FTNDel(fec, s.DeleteFTN.Index)
	case s.AddILM != nil:
		return addILM(r, s.AddILM)
	case s.DeleteILM != nil:
		return r.LFIB.ILMDel(s.DeleteILM.InLabel, s.DeleteILM.InIface, s.DeleteILM.Index, s.DeleteILM.Owner)
	case s.DeletePeer != "":
		a, err := parseAddr("peer address", s.DeletePeer)
		if err != nil {
			return err
		}
		return r.RIB.PeerDelete(a)
	case s.DeleteRoute != "":
		a, err := parseAddr("prefix", s.DeleteRoute)
		if err != nil {
			return err
		}
		return r.RIB.RouteDelete(a)
	}
	return fmt.Errorf("empty step")
}
