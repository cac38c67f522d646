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

// package constants defines constants that are shared amongst multiple lsrsim packages.
package constants

// OpType indicates the type of operation that was performed in contexts where it
// is not available, such as callbacks to user-provided functions.
type OpType int64

const (
	_ OpType = iota
	// ADD indicates that the operation called was an Add, or that an add-or-modify
	// operation created a new entry.
	ADD
	// DELETE indicates that the operation called was a Delete.
	DELETE
	// REPLACE indicates that the operation called was a Modify, or that an
	// add-or-modify operation updated an existing entry.
	REPLACE
)

// String returns the name of the operation.
func (o OpType) String() string {
	switch o {
	case ADD:
		return "ADD"
	case DELETE:
		return "DELETE"
	case REPLACE:
		return "REPLACE"
	default:
		return "UNKNOWN"
	}
}

// Table is an enumerated type describing the tables held by a router.
type Table int64

const (
	_ Table = iota
	// ROUTE specifies the global route table.
	ROUTE
	// PEER specifies the peer adjacency table.
	PEER
	// PEER_ROUTE specifies the per-peer route tables.
	PEER_ROUTE
	// LPM specifies the longest-prefix-match forwarding table.
	LPM
	// NEXTHOP specifies the next-hop reachability table.
	NEXTHOP
	// FTN specifies the FEC-to-NHLFE table.
	FTN
	// ILM specifies the incoming label map.
	ILM
)

var tableName = map[Table]string{
	ROUTE:      "route",
	PEER:       "peer",
	PEER_ROUTE: "peer-route",
	LPM:        "lpm",
	NEXTHOP:    "next-hop",
	FTN:        "ftn",
	ILM:        "ilm",
}

// String returns the name of the table.
func (t Table) String() string {
	if n, ok := tableName[t]; ok {
		return n
	}
	return "unknown"
}

// Status is the integer status code returned across the foreign function
// boundary.
type Status int32

const (
	// OK indicates that an entry was created or found.
	OK Status = 0
	// Modified indicates that an add-or-modify operation updated an existing
	// entry.
	Modified Status = 1
	// Failed indicates that the primary key was not found, already existed,
	// or that the operation could not be completed.
	Failed Status = -1
	// SecondaryFailed indicates that the secondary key of a two-level
	// operation (e.g., the route within a peer) was not found or already
	// existed.
	SecondaryFailed Status = -2
)
