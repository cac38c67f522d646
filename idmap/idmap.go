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

// Package idmap implements a fixed-capacity allocator of small integer
// handles, used for cross-connect, NHLFE and ILM indices.
package idmap

import (
	"sync"

	log "github.com/golang/glog"
	"go.uber.org/atomic"
	"gvisor.dev/gvisor/pkg/bitmap"
)

// DefaultSize is the number of handles that an IDMap holds unless
// otherwise specified.
const DefaultSize = 1024

// IDMap hands out 1-based indices in the range [1, size], always returning
// the lowest index that is free. The index 0 is never allocated, and is
// returned to indicate that the map is exhausted.
type IDMap struct {
	// name is used in log messages.
	name string
	// size is the number of usable indices.
	size uint32

	// mu protects bm.
	mu sync.Mutex
	// bm holds the occupancy of each index, bit i is index i+1.
	bm bitmap.Bitmap

	// allocs and exhausted count successful and failed allocations.
	allocs    atomic.Uint64
	exhausted atomic.Uint64
}

// New returns a new IDMap with name n holding size indices. A size of 0
// selects DefaultSize.
func New(n string, size uint32) *IDMap {
	if size == 0 {
		size = DefaultSize
	}
	return &IDMap{
		name: n,
		size: size,
		bm:   bitmap.New(size),
	}
}

// Get allocates the lowest free index, returning 0 if no index is free.
func (m *IDMap) Get() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	bit, err := m.bm.FirstZero(0)
	if err != nil || bit >= m.size {
		m.exhausted.Inc()
		log.V(2).Infof("idmap %s: no free index in %d slots", m.name, m.size)
		return 0
	}
	m.bm.Add(bit)
	m.allocs.Inc()
	log.V(2).Infof("idmap %s: allocated %d", m.name, bit+1)
	return bit + 1
}

// Put releases the index id. Releasing 0, an index beyond the size of the map,
// or an index that is not allocated is logged and otherwise ignored.
func (m *IDMap) Put(id uint32) {
	if id == 0 || id > m.size {
		log.Errorf("idmap %s: cannot release out of range index %d", m.name, id)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isSet(id - 1) {
		log.Errorf("idmap %s: release of free index %d", m.name, id)
		return
	}
	m.bm.Remove(id - 1)
	log.V(2).Infof("idmap %s: released %d", m.name, id)
}

// InUse reports whether the index id is currently allocated.
func (m *IDMap) InUse(id uint32) bool {
	if id == 0 || id > m.size {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isSet(id - 1)
}

// isSet reports whether bit is set, it must be called with mu held.
func (m *IDMap) isSet(bit uint32) bool {
	first, err := m.bm.FirstOne(bit)
	return err == nil && first == bit
}

// Count returns the number of allocated indices.
func (m *IDMap) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.bm.GetNumOnes())
}

// Size returns the number of indices that the map can hand out.
func (m *IDMap) Size() int {
	return int(m.size)
}

// Stats is a summary of the allocations made by an IDMap.
type Stats struct {
	// InUse is the number of indices currently allocated.
	InUse int
	// Allocations is the number of successful calls to Get.
	Allocations uint64
	// Exhausted is the number of calls to Get that found no free index.
	Exhausted uint64
}

// Stats returns the allocation statistics of the map.
func (m *IDMap) Stats() Stats {
	return Stats{
		InUse:       m.Count(),
		Allocations: m.allocs.Load(),
		Exhausted:   m.exhausted.Load(),
	}
}
