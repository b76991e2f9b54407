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

package mm

import (
	"unsafe"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
	"github.com/ycechungAI/vmcore/pkg/memory/pgalloc"
)

// PoolAllocator backs page-table pages with frames from the physical
// pool, so table pages and data pages draw from the same physical budget.
// Frame addresses are identity-mapped: the frame's address is its physical
// address, as on a kernel physmap.
type PoolAllocator struct {
	pool *pgalloc.Pool
}

// NewPoolAllocator returns an allocator drawing from pool.
func NewPoolAllocator(pool *pgalloc.Pool) *PoolAllocator {
	return &PoolAllocator{pool: pool}
}

// NewPTEs implements pagetables.Allocator.NewPTEs. Exhaustion of the pool
// surfaces as ErrNoMemory to whatever operation needed the table page.
func (a *PoolAllocator) NewPTEs() (*pagetables.PTEs, error) {
	addr, err := a.pool.Allocate()
	if err != nil {
		return nil, err
	}
	return (*pagetables.PTEs)(unsafe.Pointer(&a.pool.Mapping(addr)[0])), nil
}

// PhysicalFor implements pagetables.Allocator.PhysicalFor.
func (a *PoolAllocator) PhysicalFor(ptes *pagetables.PTEs) uintptr {
	return uintptr(unsafe.Pointer(ptes))
}

// LookupPTEs implements pagetables.Allocator.LookupPTEs.
func (a *PoolAllocator) LookupPTEs(physical uintptr) *pagetables.PTEs {
	if physical&hostarch.PageMask != 0 {
		panic("PoolAllocator.LookupPTEs: unaligned physical address")
	}
	return (*pagetables.PTEs)(unsafe.Pointer(physical))
}

// FreePTEs implements pagetables.Allocator.FreePTEs.
func (a *PoolAllocator) FreePTEs(ptes *pagetables.PTEs) {
	a.pool.Free(a.PhysicalFor(ptes))
}
