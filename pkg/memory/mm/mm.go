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

// Package mm composes the address-space core: it owns the physical frame
// pool and the kernel page directory, creates address spaces (one
// RegionTree plus one PageDirectory each), resolves page faults, and
// validates physical-address mapping requests before anything reaches a
// page table.
package mm

import (
	"github.com/ycechungAI/vmcore/pkg/errors/kernelerr"
	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/memory/pagedir"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
	"github.com/ycechungAI/vmcore/pkg/memory/pgalloc"
)

// Layout fixes the virtual window handed to each address space's region
// tree.
type Layout struct {
	// MinAddr is the lowest mappable address. Keeping it above zero
	// gives every address space a null guard.
	MinAddr hostarch.Addr

	// MaxAddr is the exclusive upper bound of the user window.
	MaxAddr hostarch.Addr
}

// Window returns the layout as a range.
func (l Layout) Window() hostarch.AddrRange {
	return hostarch.AddrRange{Start: l.MinAddr, End: l.MaxAddr}
}

// DefaultLayout returns the conventional user window for a hierarchy: the
// lower half of the translatable range, with a 64K null guard.
func DefaultLayout(h pagetables.Hierarchy) Layout {
	return Layout{
		MinAddr: 0x10000,
		MaxAddr: hostarch.Addr(h.AddressLimit() >> 1),
	}
}

// MemoryManager is the global collaborator of the address-space core. One
// is created per boot.
type MemoryManager struct {
	hierarchy pagetables.Hierarchy
	pool      *pgalloc.Pool
	alloc     *PoolAllocator
	kernel    *pagedir.PageDirectory
}

// NewMemoryManager boots the memory core: it creates a physical pool of
// totalFrames page frames, builds the kernel page directory from it, and
// returns the manager. Since the kernel directory is a process-wide
// singleton, so is the MemoryManager; a second call panics.
func NewMemoryManager(h pagetables.Hierarchy, totalFrames int) (*MemoryManager, error) {
	pool, err := pgalloc.New(totalFrames)
	if err != nil {
		return nil, err
	}
	alloc := NewPoolAllocator(pool)
	kernel, err := pagedir.InitKernelDirectory(h, alloc)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Infof("mm: initialized with %s translation, %d frames", h, totalFrames)
	return &MemoryManager{
		hierarchy: h,
		pool:      pool,
		alloc:     alloc,
		kernel:    kernel,
	}, nil
}

// Hierarchy returns the configured translation hierarchy.
func (m *MemoryManager) Hierarchy() pagetables.Hierarchy {
	return m.hierarchy
}

// KernelDirectory returns the kernel's page directory.
func (m *MemoryManager) KernelDirectory() *pagedir.PageDirectory {
	return m.kernel
}

// Pool returns the physical frame pool.
func (m *MemoryManager) Pool() *pgalloc.Pool {
	return m.pool
}

// ValidatePhysicalRange checks a request to map the physical range
// [physical, physical+length) into userspace. Ranges outside the frame
// pool are rejected: userspace must never gain a window onto arbitrary
// physical memory.
func (m *MemoryManager) ValidatePhysicalRange(physical uintptr, length uint64) error {
	if m.pool.Contains(physical, length) {
		return nil
	}
	log.Warningf("mm: rejecting map of physical range [%#x, +%#x)", physical, length)
	return kernelerr.ErrInvalidArgument
}

// ActivateAddressSpace installs as's page directory on cpu. This is the
// context-switch entry point; the caller controls preemption around it.
func (m *MemoryManager) ActivateAddressSpace(cpu *pagedir.CPU, as *AddressSpace) {
	cpu.Activate(as.pd)
}

// ActivateKernel installs the kernel directory on cpu, as on the boot path
// or when switching to a kernel-only thread.
func (m *MemoryManager) ActivateKernel(cpu *pagedir.CPU) {
	cpu.Activate(m.kernel)
}

// HandleFault services a hardware page fault at addr in as, attempted
// with access at. The region owning addr is found, the access checked,
// and one frame demand-allocated and mapped.
//
// Returns ErrFault when no region owns addr or the region does not permit
// the access, and ErrNoMemory when no frame (or table page) is available.
// A fault on an already-mapped page is spurious and succeeds without
// side effects.
func (m *MemoryManager) HandleFault(as *AddressSpace, addr hostarch.Addr, at hostarch.AccessType) error {
	return as.handleFault(addr, at)
}
