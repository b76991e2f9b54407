// Copyright 2026 The vmcore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pagetables

import (
	"unsafe"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

// PTEs is a collection of entries: exactly one page-table page.
type PTEs [entriesPerPage]PTE

// Allocator is used to provide page-table pages and to translate between
// their physical addresses and mapped views.
//
// An Allocator is accessed only under the lock of the directory owning the
// tables, except for LookupPTEs of a page reachable from an already-read
// entry.
type Allocator interface {
	// NewPTEs returns a new, zeroed set of PTEs. Returns ErrNoMemory
	// when no physical page is available; the failed operation
	// propagates that to its own caller.
	NewPTEs() (*PTEs, error)

	// PhysicalFor gives the physical address for a set of PTEs returned
	// by NewPTEs.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs resolves a physical address produced by PhysicalFor
	// back to its PTEs.
	LookupPTEs(physical uintptr) *PTEs

	// FreePTEs marks a set of PTEs as free for reuse. The page must have
	// come from NewPTEs; returning it twice is a contract violation.
	FreePTEs(ptes *PTEs)
}

// RuntimeAllocator is an Allocator that allocates table pages from the Go
// heap and uses their virtual addresses as physical addresses. It exists
// for configurations (and tests) with no frame pool; the identity mapping
// is exactly what a kernel running on an identity-mapped physmap sees.
type RuntimeAllocator struct {
	// used tracks pages handed out and not yet freed.
	used map[*PTEs]struct{}

	// pool holds freed pages for reuse.
	pool []*PTEs
}

// NewRuntimeAllocator returns an allocator that uses runtime allocation.
func NewRuntimeAllocator() *RuntimeAllocator {
	return &RuntimeAllocator{
		used: make(map[*PTEs]struct{}),
	}
}

// NewPTEs implements Allocator.NewPTEs.
//
// The Go runtime page-aligns allocations of page size, which PhysicalFor
// relies on.
func (r *RuntimeAllocator) NewPTEs() (*PTEs, error) {
	var ptes *PTEs
	if n := len(r.pool); n > 0 {
		ptes = r.pool[n-1]
		r.pool = r.pool[:n-1]
		*ptes = PTEs{} // Zero the reused page.
	} else {
		ptes = new(PTEs)
	}
	r.used[ptes] = struct{}{}
	return ptes, nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (r *RuntimeAllocator) PhysicalFor(ptes *PTEs) uintptr {
	return uintptr(unsafe.Pointer(ptes))
}

// LookupPTEs implements Allocator.LookupPTEs.
func (r *RuntimeAllocator) LookupPTEs(physical uintptr) *PTEs {
	if physical&hostarch.PageMask != 0 {
		panic("RuntimeAllocator.LookupPTEs: unaligned physical address")
	}
	return (*PTEs)(unsafe.Pointer(physical))
}

// FreePTEs implements Allocator.FreePTEs.
func (r *RuntimeAllocator) FreePTEs(ptes *PTEs) {
	if _, ok := r.used[ptes]; !ok {
		panic("RuntimeAllocator.FreePTEs: page not allocated by this allocator")
	}
	delete(r.used, ptes)
	r.pool = append(r.pool, ptes)
}

// InUse returns the number of outstanding table pages. Test helper.
func (r *RuntimeAllocator) InUse() int {
	return len(r.used)
}
