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

// Package server defines a gRIBI server that exposes the forwarding state of
// a simulated router through the Get RPC. The router's tables are programmed
// through its own API, so the server does not accept Modify requests.
package server

import (
	"sync"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/openconfig/lsrsim/afthelper"
	"github.com/openconfig/lsrsim/router"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	spb "github.com/openconfig/gribi/v1/proto/service"
)

// Server implements the gRIBI service.
type Server struct {
	spb.UnimplementedGRIBIServer

	r *router.Router

	// csMu protects the cs map.
	csMu sync.RWMutex
	// cs stores the number of entries sent to each client that is connected
	// to the Get RPC, keyed by a UUID generated at connection time.
	cs map[string]int
}

// New creates a new gRIBI server for the router r.
func New(r *router.Router) *Server {
	return &Server{
		r:  r,
		cs: map[string]int{},
	}
}

// Modify implements the gRIBI Modify RPC, which is not supported.
func (s *Server) Modify(ms spb.GRIBI_ModifyServer) error {
	return status.Errorf(codes.Unimplemented, "Modify is not supported, %s is programmed through its own API", s.r)
}

// newClient creates a new client context within the server using the specified string
// ID.
func (s *Server) newClient(id string) error {
	s.csMu.Lock()
	defer s.csMu.Unlock()
	if _, ok := s.cs[id]; ok {
		return status.Errorf(codes.Internal, "cannot create new client with duplicate ID, %s", id)
	}
	s.cs[id] = 0
	return nil
}

// deleteClient removes the client context with the specified ID.
func (s *Server) deleteClient(id string) {
	s.csMu.Lock()
	defer s.csMu.Unlock()
	delete(s.cs, id)
}

// Clients returns the number of clients with a Get RPC in progress.
func (s *Server) Clients() int {
	s.csMu.RLock()
	defer s.csMu.RUnlock()
	return len(s.cs)
}

// matches reports whether the entry e is of the AFT type t.
func matches(e *spb.AFTEntry, t spb.AFTType) bool {
	switch t {
	case spb.AFTType_ALL:
		return true
	case spb.AFTType_IPV4:
		_, ok := e.GetEntry().(*spb.AFTEntry_Ipv4)
		return ok
	case spb.AFTType_MPLS:
		_, ok := e.GetEntry().(*spb.AFTEntry_Mpls)
		return ok
	case spb.AFTType_NEXTHOP:
		_, ok := e.GetEntry().(*spb.AFTEntry_NextHop)
		return ok
	case spb.AFTType_NEXTHOP_GROUP:
		_, ok := e.GetEntry().(*spb.AFTEntry_NextHopGroup)
		return ok
	}
	return false
}

// Get implements the gRIBI Get RPC, returning the installed entries of the
// router that are of the requested AFT type.
func (s *Server) Get(req *spb.GetRequest, stream spb.GRIBI_GetServer) error {
	switch ni := req.GetNetworkInstance().(type) {
	case *spb.GetRequest_All:
	case *spb.GetRequest_Name:
		if ni.Name != s.r.Name {
			return status.Errorf(codes.NotFound, "network instance %s does not exist", ni.Name)
		}
	default:
		return status.Errorf(codes.InvalidArgument, "unspecified network instance, %v", req)
	}

	switch req.GetAft() {
	case spb.AFTType_ALL, spb.AFTType_IPV4, spb.AFTType_MPLS, spb.AFTType_NEXTHOP, spb.AFTType_NEXTHOP_GROUP:
	default:
		return status.Errorf(codes.Unimplemented, "AFT type %s is not supported", req.GetAft())
	}

	id := uuid.New().String()
	if err := s.newClient(id); err != nil {
		return err
	}
	defer s.deleteClient(id)

	resp := &spb.GetResponse{}
	for _, e := range afthelper.GetResponse(s.r).GetEntry() {
		if matches(e, req.GetAft()) {
			resp.Entry = append(resp.Entry, e)
		}
	}
	log.V(2).Infof("client %s: sending %d %s entries", id, len(resp.Entry), req.GetAft())
	if err := stream.Send(resp); err != nil {
		return status.Errorf(codes.Unknown, "cannot send to client, %v", err)
	}

	s.csMu.Lock()
	s.cs[id] += len(resp.Entry)
	s.csMu.Unlock()
	return nil
}
