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
	"fmt"

	"github.com/ycechungAI/vmcore/pkg/errors/kernelerr"
	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/memory/pagedir"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
	"github.com/ycechungAI/vmcore/pkg/memory/regiontree"
	"github.com/ycechungAI/vmcore/pkg/sync"
)

// regionBacking is what an mm-owned region maps: its permissions and the
// frames demand-allocated into it so far.
type regionBacking struct {
	perms hostarch.AccessType

	// frames are pool frames owned by this backing, freed when the
	// region goes away. Guarded by the address space's lock.
	frames []uintptr

	// external is set for physical-range mappings whose frames belong
	// to someone else (device memory); teardown unmaps but never frees.
	external bool
}

func (b *regionBacking) mapOpts() pagetables.MapOpts {
	return pagetables.MapOpts{AccessType: b.perms.Effective(), User: true}
}

// AddressSpace owns one RegionTree and one PageDirectory: the virtual
// memory of one process.
type AddressSpace struct {
	mm *MemoryManager

	// mu serializes mapping mutation and teardown. It nests outside the
	// region tree's lock and the directory's lock.
	mu sync.Mutex

	regions *regiontree.RegionTree
	pd      *pagedir.PageDirectory

	// stacks holds the unbacked region handles this address space owns
	// (the tree does not walk them).
	stacks []*regiontree.Region

	torn bool
}

// NewAddressSpace creates an empty address space over the given layout.
// Returns ErrNoMemory if the directory root cannot be allocated.
func (m *MemoryManager) NewAddressSpace(layout Layout) (*AddressSpace, error) {
	window := layout.Window()
	if uintptr(window.End) > m.hierarchy.AddressLimit() {
		panic(fmt.Sprintf("mm: layout %v exceeds %s translation limit", window, m.hierarchy))
	}
	as := &AddressSpace{
		mm:      m,
		regions: regiontree.New(window),
	}
	pd, err := pagedir.NewUserDirectory(as, m.hierarchy, m.alloc)
	if err != nil {
		return nil, err
	}
	as.pd = pd
	return as, nil
}

// Regions returns the address space's region tree.
func (as *AddressSpace) Regions() *regiontree.RegionTree {
	return as.regions
}

// PageDirectory returns the address space's page directory.
func (as *AddressSpace) PageDirectory() *pagedir.PageDirectory {
	return as.pd
}

// MMapOpts specifies a request to create a memory mapping.
type MMapOpts struct {
	// Length is the length of the mapping; rounded up to the page size.
	Length uint64

	// Perms is the set of permissions for the mapping.
	Perms hostarch.AccessType

	// Addr is the fixed address for the mapping. Ignored unless Fixed.
	Addr hostarch.Addr

	// Fixed requires the mapping to be placed exactly at Addr.
	Fixed bool

	// Randomized asks for a randomized base instead of first fit.
	// Ignored if Fixed.
	Randomized bool

	// Alignment is the required base alignment; 0 means page-aligned.
	Alignment uint64

	// Precommit eagerly allocates and maps frames for the whole range
	// instead of waiting for faults.
	Precommit bool

	// Name is the diagnostic name, e.g. "[heap]".
	Name string
}

// MMap reserves a region per opts and, if asked, populates it. Placement
// failures surface the region tree's error; population failures roll the
// whole mapping back and return ErrNoMemory.
func (as *AddressSpace) MMap(opts MMapOpts) (hostarch.AddrRange, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	var (
		r   *regiontree.Region
		err error
	)
	switch {
	case opts.Fixed:
		r, err = as.regions.AllocateSpecific(opts.Addr, opts.Length)
	case opts.Randomized:
		r, err = as.regions.AllocateRandomized(opts.Length, opts.Alignment)
	default:
		r, err = as.regions.AllocateAnywhere(opts.Length, opts.Alignment)
	}
	if err != nil {
		return hostarch.AddrRange{}, err
	}
	r.SetName(opts.Name)
	b := &regionBacking{perms: opts.Perms}
	r.SetBacking(b)

	if opts.Precommit {
		if err := as.populateLocked(r, b); err != nil {
			as.destroyRegionLocked(r)
			return hostarch.AddrRange{}, err
		}
	}
	return r.Range(), nil
}

// MapStack reserves a stack: an unbacked region at a randomized base that
// the tree does not iterate and this address space owns directly. Pages
// appear on first fault.
func (as *AddressSpace) MapStack(size uint64) (hostarch.AddrRange, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	r, err := as.regions.AllocateUnbackedRandomized(size, 0)
	if err != nil {
		return hostarch.AddrRange{}, err
	}
	r.SetName("[stack]")
	r.SetBacking(&regionBacking{perms: hostarch.ReadWrite})
	as.stacks = append(as.stacks, r)
	log.Debugf("mm: stack at %v", r.Range())
	return r.Range(), nil
}

// MapPhysical maps the physical range [physical, physical+length) at a
// tree-chosen base. The range is validated first: requests outside the
// frame pool are rejected with ErrInvalidArgument. The frames are not
// owned by the mapping and are never freed by it.
func (as *AddressSpace) MapPhysical(physical uintptr, length uint64, perms hostarch.AccessType) (hostarch.AddrRange, error) {
	if err := as.mm.ValidatePhysicalRange(physical, length); err != nil {
		return hostarch.AddrRange{}, err
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	r, err := as.regions.AllocateAnywhere(length, 0)
	if err != nil {
		return hostarch.AddrRange{}, err
	}
	b := &regionBacking{perms: perms, external: true}
	r.SetBacking(b)
	if _, err := as.pd.Map(r.Base(), r.Size(), b.mapOpts(), physical); err != nil {
		as.destroyRegionLocked(r)
		return hostarch.AddrRange{}, err
	}
	return r.Range(), nil
}

// MUnmap removes the mapping previously created over exactly
// [addr, addr+length). Partial unmapping of a region is not supported;
// a range that does not match a region returns ErrInvalidArgument.
func (as *AddressSpace) MUnmap(addr hostarch.Addr, length uint64) error {
	if length == 0 {
		return kernelerr.ErrInvalidArgument
	}
	rounded, ok := hostarch.PageRoundUp(length)
	if !ok {
		return kernelerr.ErrInvalidArgument
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	r := as.regions.FindContaining(addr)
	if r == nil || r.Base() != addr || r.Size() != rounded {
		return kernelerr.ErrInvalidArgument
	}
	if r.IsUnbacked() {
		for i, s := range as.stacks {
			if s == r {
				as.stacks = append(as.stacks[:i], as.stacks[i+1:]...)
				break
			}
		}
	}
	as.destroyRegionLocked(r)
	return nil
}

// Teardown releases everything: all hardware mappings, all regions, all
// owned frames, and the address space's reference on its directory. The
// directory must not be active on any execution unit. Teardown is
// terminal; any further use of the address space panics.
func (as *AddressSpace) Teardown() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	// Unmap hardware state and return frames first; the bulk region
	// removal below assumes it already happened.
	var all []*regiontree.Region
	as.regions.ForEachRegion(func(r *regiontree.Region) bool {
		all = append(all, r)
		return true
	})
	all = append(all, as.stacks...)
	for _, r := range all {
		as.unmapRegionLocked(r)
	}
	as.stacks = nil
	as.regions.RemoveAllRegions()
	as.pd.DecRef()
	as.torn = true
}

// handleFault is the locked body of MemoryManager.HandleFault.
func (as *AddressSpace) handleFault(addr hostarch.Addr, at hostarch.AccessType) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.checkAlive()

	r := as.regions.FindContaining(addr)
	if r == nil {
		log.Debugf("mm: fault at unowned address %v", addr)
		return kernelerr.ErrFault
	}
	b := backingOf(r)
	if !b.perms.SupersetOf(at) {
		log.Debugf("mm: fault at %v: access %v exceeds %v", addr, at, b.perms)
		return kernelerr.ErrFault
	}

	page := addr.RoundDown()
	if _, _, found := as.pd.Lookup(page); found {
		// Spurious: already resolved.
		return nil
	}
	frame, err := as.mm.pool.Allocate()
	if err != nil {
		return err
	}
	if _, err := as.pd.Map(page, hostarch.PageSize, b.mapOpts(), frame); err != nil {
		as.mm.pool.Free(frame)
		return err
	}
	b.frames = append(b.frames, frame)
	return nil
}

// populateLocked allocates and maps frames for r's whole range.
func (as *AddressSpace) populateLocked(r *regiontree.Region, b *regionBacking) error {
	for off := uint64(0); off < r.Size(); off += hostarch.PageSize {
		frame, err := as.mm.pool.Allocate()
		if err != nil {
			return err
		}
		if _, err := as.pd.Map(r.Base()+hostarch.Addr(off), hostarch.PageSize, b.mapOpts(), frame); err != nil {
			as.mm.pool.Free(frame)
			return err
		}
		b.frames = append(b.frames, frame)
	}
	return nil
}

// unmapRegionLocked tears down r's hardware mappings and owned frames,
// leaving r tracked.
func (as *AddressSpace) unmapRegionLocked(r *regiontree.Region) {
	as.pd.Unmap(r.Base(), r.Size())
	b := backingOf(r)
	if !b.external {
		for _, frame := range b.frames {
			as.mm.pool.Free(frame)
		}
	}
	b.frames = nil
}

// destroyRegionLocked unmaps r and removes it from the tree.
func (as *AddressSpace) destroyRegionLocked(r *regiontree.Region) {
	as.unmapRegionLocked(r)
	as.regions.Remove(r)
}

func (as *AddressSpace) checkAlive() {
	if as.torn {
		panic("mm: use of torn-down address space")
	}
}

func backingOf(r *regiontree.Region) *regionBacking {
	b, ok := r.Backing().(*regionBacking)
	if !ok {
		panic(fmt.Sprintf("mm: region %v has foreign backing", r))
	}
	return b
}
