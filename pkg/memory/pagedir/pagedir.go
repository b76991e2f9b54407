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

// Package pagedir implements the page directory: the owner of one address
// space's hardware paging root.
//
// Every live directory is a member of a process-wide registry keyed by its
// physical root, so the directory active on an execution unit can be
// recovered from the hardware register value alone. A directory never
// stores "I am active": activity is computed by comparing roots.
//
// Lock order: registry lock and per-directory lock are never nested.
// Registration runs at the end of construction and deregistration at the
// start of destruction, both under the registry lock only.
package pagedir

import (
	"fmt"
	"sync/atomic"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
	"github.com/ycechungAI/vmcore/pkg/sync"
)

// PageDirectory owns the paging hierarchy root of one address space.
//
// Directories are reference-counted: any code holding a reference may map
// and unmap entries under the directory's lock. The lock is reentrant per
// OS thread, so a fault handler that allocates while handling a fault may
// re-enter.
type PageDirectory struct {
	// refs counts references. The directory is destroyed when it drops
	// to zero. The kernel directory holds a permanent reference and is
	// never destroyed.
	refs atomic.Int64

	// mu guards all mutation of the directory's page-table entries.
	mu sync.RecursiveMutex

	// pt is the owned translation hierarchy.
	pt *pagetables.PageTables

	// owner is a non-owning back-reference to the address space this
	// directory belongs to; nil for the kernel directory. It does not
	// control any lifetime.
	owner any

	// kernel is set on the boot-time singleton.
	kernel bool

	// dead is set at the start of destruction, before the tables are
	// released, so misuse panics instead of corrupting freed pages.
	dead atomic.Bool
}

// NewUserDirectory creates the page directory for one userspace address
// space. The directory is fully initialized ("bound") and registered on
// return. Returns ErrNoMemory if the root page cannot be allocated.
//
// The caller holds the initial reference.
func NewUserDirectory(owner any, h pagetables.Hierarchy, alloc pagetables.Allocator) (*PageDirectory, error) {
	pt, err := pagetables.New(alloc, h)
	if err != nil {
		return nil, err
	}
	pd := &PageDirectory{
		pt:    pt,
		owner: owner,
	}
	pd.refs.Store(1)
	// Construction is complete; make the directory discoverable.
	register(pd)
	log.Debugf("pagedir: created %s directory, root %#x", h, pd.RootPhysical())
	return pd, nil
}

// RootPhysical returns the physical address of the directory's paging
// root: the value loaded into the hardware register (CR3 and its
// analogues) to activate this directory.
func (pd *PageDirectory) RootPhysical() uintptr {
	return pd.pt.RootPhysical()
}

// Owner returns the address-space back-reference given at creation, or nil
// for the kernel directory.
func (pd *PageDirectory) Owner() any {
	return pd.owner
}

// IsKernel returns true for the boot-time kernel directory.
func (pd *PageDirectory) IsKernel() bool {
	return pd.kernel
}

// Hierarchy returns the directory's translation hierarchy.
func (pd *PageDirectory) Hierarchy() pagetables.Hierarchy {
	return pd.pt.Hierarchy()
}

// IncRef adds a reference. Taking a reference on a directory whose count
// already dropped to zero is a contract violation and panics.
func (pd *PageDirectory) IncRef() {
	if n := pd.refs.Add(1); n <= 1 {
		panic(fmt.Sprintf("PageDirectory.IncRef: resurrecting directory with %d refs", n-1))
	}
}

// DecRef drops a reference. When the last reference drops, the directory
// deregisters itself and returns all of its table pages to the allocator.
// The directory must not be active on any execution unit at that point.
//
// Dropping the kernel directory's permanent reference, or dropping past
// zero, panics.
func (pd *PageDirectory) DecRef() {
	n := pd.refs.Add(-1)
	if n < 0 {
		panic("PageDirectory.DecRef: ref count went negative")
	}
	if n > 0 {
		return
	}
	if pd.kernel {
		panic("PageDirectory.DecRef: kernel directory is never destroyed")
	}
	// Destruction starts by leaving the registry, so FindCurrent can
	// never surface a directory whose pages are being released.
	deregister(pd)
	pd.dead.Store(true)
	log.Debugf("pagedir: destroying directory, root %#x", pd.RootPhysical())
	pd.pt.Release()
}

// Map installs [addr, addr+length) -> physical under the directory lock.
// See pagetables.PageTables.Map for semantics.
func (pd *PageDirectory) Map(addr hostarch.Addr, length uint64, opts pagetables.MapOpts, physical uintptr) (bool, error) {
	pd.checkAlive()
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.pt.Map(addr, length, opts, physical)
}

// Unmap removes [addr, addr+length) under the directory lock.
func (pd *PageDirectory) Unmap(addr hostarch.Addr, length uint64) bool {
	pd.checkAlive()
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.pt.Unmap(addr, length)
}

// Lookup translates addr under the directory lock.
func (pd *PageDirectory) Lookup(addr hostarch.Addr) (uintptr, pagetables.MapOpts, bool) {
	pd.checkAlive()
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.pt.Lookup(addr)
}

// IsEmptyRange reports whether the range carries no mappings, under the
// directory lock.
func (pd *PageDirectory) IsEmptyRange(addr hostarch.Addr, length uint64) bool {
	pd.checkAlive()
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.pt.IsEmptyRange(addr, length)
}

func (pd *PageDirectory) checkAlive() {
	if pd.dead.Load() {
		panic("pagedir: use of destroyed directory")
	}
}
