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

package cabi

import "go.uber.org/atomic"

// Allocator supplies the buffers that addresses are written into when the
// caller has not provided one, and the scratch buffers that are handed to
// PeerIterate callbacks.
type Allocator interface {
	// Alloc returns a buffer of n bytes.
	Alloc(n int) []byte
	// Free returns a buffer obtained from Alloc.
	Free(b []byte)
}

// heapAllocator allocates from the Go heap.
type heapAllocator struct{}

func (heapAllocator) Alloc(n int) []byte { return make([]byte, n) }
func (heapAllocator) Free([]byte)        {}

// CountingAllocator wraps an Allocator and counts the buffers that are
// outstanding.
type CountingAllocator struct {
	Allocator
	outstanding atomic.Int64
}

// NewCountingAllocator returns a CountingAllocator wrapping a. If a is nil,
// buffers are allocated from the Go heap.
func NewCountingAllocator(a Allocator) *CountingAllocator {
	if a == nil {
		a = heapAllocator{}
	}
	return &CountingAllocator{Allocator: a}
}

// Alloc implements the Allocator interface.
func (c *CountingAllocator) Alloc(n int) []byte {
	c.outstanding.Inc()
	return c.Allocator.Alloc(n)
}

// Free implements the Allocator interface.
func (c *CountingAllocator) Free(b []byte) {
	c.outstanding.Dec()
	c.Allocator.Free(b)
}

// Outstanding returns the number of buffers that have been allocated and not
// freed.
func (c *CountingAllocator) Outstanding() int64 {
	return c.outstanding.Load()
}
