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

// Package pagetables provides a generic implementation of hardware page
// tables.
//
// The hierarchy depth (3-level or 4-level translation) is a
// configuration-time choice expressed by a Hierarchy descriptor; one walker
// serves both depths. The package does not do any caching or invalidation;
// the page-directory layer sequences those.
package pagetables

import (
	"fmt"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate and track page-table pages. It may
	// be accessed concurrently only under the owning directory's lock.
	Allocator Allocator

	// hierarchy describes the translation depth. Immutable.
	hierarchy Hierarchy

	// root is the root page table page.
	root *PTEs

	// rootPhysical is the physical address of root, the value loaded
	// into the hardware paging-root register on activation.
	rootPhysical uintptr

	// released is set by Release; any use afterwards is a contract
	// violation.
	released bool
}

// New returns new PageTables with the given hierarchy, or an error if the
// allocator cannot provide the root page.
func New(a Allocator, h Hierarchy) (*PageTables, error) {
	root, err := a.NewPTEs()
	if err != nil {
		return nil, err
	}
	return &PageTables{
		Allocator:    a,
		hierarchy:    h,
		root:         root,
		rootPhysical: a.PhysicalFor(root),
	}, nil
}

// Hierarchy returns the translation hierarchy descriptor.
func (p *PageTables) Hierarchy() Hierarchy {
	return p.hierarchy
}

// RootPhysical returns the physical root of these tables. This is the
// value to load into the hardware register to activate them.
func (p *PageTables) RootPhysical() uintptr {
	return p.rootPhysical
}

// Map installs a mapping of [addr, addr+length) to the contiguous physical
// pages starting at physical, with the given options. Calling Map with an
// empty access type is equivalent to Unmap.
//
// invalidate is true iff a previously present entry was overwritten, in
// which case the caller owes the hardware an invalidation. err is non-nil
// when a page-table page could not be allocated; entries installed before
// the failure remain installed.
//
// Preconditions: addr, length and physical are page-aligned; the range lies
// below the hierarchy's translation limit. Violations panic.
func (p *PageTables) Map(addr hostarch.Addr, length uint64, opts MapOpts, physical uintptr) (invalidate bool, err error) {
	if !opts.AccessType.Any() {
		return p.Unmap(addr, length), nil
	}
	start, end := p.checkRange(addr, length)
	if physical&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("pagetables.Map: unaligned physical %#x", physical))
	}
	v := mapVisitor{
		target:   start,
		physical: physical,
		opts:     opts,
	}
	w := walker{pageTables: p, visitor: &v}
	w.iterateRange(start, end)
	return v.prev, w.err
}

// Unmap unmaps the given range, reclaiming any page-table pages left with
// no live entries.
//
// Returns true iff at least one present entry was cleared.
//
// Preconditions: as for Map.
func (p *PageTables) Unmap(addr hostarch.Addr, length uint64) bool {
	start, end := p.checkRange(addr, length)
	v := unmapVisitor{}
	w := walker{pageTables: p, visitor: &v}
	w.iterateRange(start, end)
	return v.count > 0
}

// Lookup returns the physical address and options for the page containing
// addr. found is false if no mapping is present.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical uintptr, opts MapOpts, found bool) {
	pageAddr := addr.RoundDown()
	start, end := p.checkRange(pageAddr, hostarch.PageSize)
	v := lookupVisitor{}
	w := walker{pageTables: p, visitor: &v}
	w.iterateRange(start, end)
	if !v.found {
		return 0, MapOpts{}, false
	}
	return v.physical + uintptr(addr-pageAddr), v.opts, true
}

// IsEmptyRange returns true iff the given range carries no mappings.
func (p *PageTables) IsEmptyRange(addr hostarch.Addr, length uint64) bool {
	start, end := p.checkRange(addr, length)
	v := emptyVisitor{empty: true}
	w := walker{pageTables: p, visitor: &v}
	w.iterateRange(start, end)
	return v.empty
}

// Release returns every page-table page, the root included, to the
// allocator. The tables must not be active on any execution unit. Any use
// after Release panics.
func (p *PageTables) Release() {
	if p.released {
		panic("PageTables.Release: already released")
	}
	p.releaseLevel(p.root, 0)
	p.root = nil
	p.released = true
}

func (p *PageTables) releaseLevel(table *PTEs, level int) {
	if level < p.hierarchy.Levels()-1 {
		for i := 0; i < entriesPerPage; i++ {
			entry := &table[i]
			if entry.Valid() {
				p.releaseLevel(p.Allocator.LookupPTEs(entry.Address()), level+1)
			}
		}
	}
	p.Allocator.FreePTEs(table)
}

// checkRange validates a mapping request and returns it as uintptr bounds.
func (p *PageTables) checkRange(addr hostarch.Addr, length uint64) (uintptr, uintptr) {
	if p.released {
		panic("pagetables: use after Release")
	}
	if length == 0 {
		panic("pagetables: zero-length range")
	}
	if !addr.IsPageAligned() || length&hostarch.PageMask != 0 {
		panic(fmt.Sprintf("pagetables: unaligned range [%v, +%#x)", addr, length))
	}
	end, ok := addr.AddLength(length)
	if !ok || uintptr(end) > p.hierarchy.AddressLimit() {
		panic(fmt.Sprintf("pagetables: range [%v, +%#x) exceeds translation limit %#x", addr, length, p.hierarchy.AddressLimit()))
	}
	return uintptr(addr), uintptr(end)
}
