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

// Package regiontree implements the interval allocator that tracks which
// sub-ranges of one fixed virtual window are in use.
//
// The tree owns bookkeeping only: reserving a range here installs no
// hardware mapping, and removing one tears none down. Callers sequence
// those through the page-directory layer.
//
// Lock order: the tree lock is a leaf. No callback reachable from a locked
// method may call back into the same tree.
package regiontree

import (
	"fmt"

	"github.com/google/btree"
	"github.com/ycechungAI/vmcore/pkg/errors/kernelerr"
	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/rand"
	"github.com/ycechungAI/vmcore/pkg/sync"
)

// btreeDegree is the branching factor of the underlying B-tree. The value
// is uncritical; 16 keeps nodes within a cache line or two for the small
// region counts typical of one address space.
const btreeDegree = 16

// maxRandomTries bounds the number of randomized placement attempts before
// AllocateRandomized falls back to first fit.
const maxRandomTries = 16

// RegionTree tracks the allocated regions of one virtual window, ordered
// by base address.
//
// All methods are safe to call concurrently.
type RegionTree struct {
	// mu protects regions and every Region.tree backref. None of the
	// operations below may block while holding it.
	mu sync.Mutex

	// window is the fixed total range. Immutable.
	window hostarch.AddrRange

	// regions orders live regions by base address. Region ranges never
	// overlap and are always subsets of window.
	regions *btree.BTreeG[*Region]
}

// New creates a RegionTree managing the given window.
//
// The window must be non-empty, well formed, and page-aligned; violations
// panic.
func New(window hostarch.AddrRange) *RegionTree {
	if !window.WellFormed() || window.Length() == 0 {
		panic(fmt.Sprintf("regiontree.New: empty or malformed window %v", window))
	}
	if !window.IsPageAligned() {
		panic(fmt.Sprintf("regiontree.New: unaligned window %v", window))
	}
	return &RegionTree{
		window: window,
		regions: btree.NewG(btreeDegree, func(a, b *Region) bool {
			return a.rng.Start < b.rng.Start
		}),
	}
}

// Window returns the total range managed by the tree.
func (t *RegionTree) Window() hostarch.AddrRange {
	return t.window
}

// Count returns the number of tracked regions, unbacked ones included.
func (t *RegionTree) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regions.Len()
}

// AllocateAnywhere reserves a free range of at least size bytes, aligned to
// alignment, using address-ordered first fit. size is rounded up to the
// page size before searching. alignment 0 means page alignment; otherwise
// it must be a power of two (and is raised to the page size if smaller).
//
// Returns ErrNoMemory when no gap fits. A zero size is a contract violation
// and panics.
func (t *RegionTree) AllocateAnywhere(size, alignment uint64) (*Region, error) {
	size, alignment = checkAllocation(size, alignment)

	t.mu.Lock()
	defer t.mu.Unlock()
	base, ok := t.findFirstFitLocked(size, alignment)
	if !ok {
		return nil, kernelerr.ErrNoMemory
	}
	return t.insertLocked(base, size, false), nil
}

// AllocateSpecific reserves exactly [base, base+size). size is rounded up
// to the page size.
//
// Returns ErrInvalidArgument if base is not page-aligned or the range does
// not lie within the window, and ErrExists if the range overlaps a live
// region. Zero size and end-of-address-space overflow are contract
// violations and panic.
func (t *RegionTree) AllocateSpecific(base hostarch.Addr, size uint64) (*Region, error) {
	size, _ = checkAllocation(size, 0)
	rng, ok := base.ToRange(size)
	if !ok {
		panic(fmt.Sprintf("RegionTree.AllocateSpecific: %v + %#x wraps", base, size))
	}
	if !base.IsPageAligned() || !t.window.IsSupersetOf(rng) {
		return nil, kernelerr.ErrInvalidArgument
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.overlapsLocked(rng) {
		return nil, kernelerr.ErrExists
	}
	return t.insertLocked(base, size, false), nil
}

// AllocateRandomized reserves a free range like AllocateAnywhere, but
// chooses the base address randomly for address-space layout randomization.
// Up to maxRandomTries candidate bases are drawn from the window; if all of
// them collide with live regions, placement falls back to first fit, so
// ErrNoMemory means the same thing it means for AllocateAnywhere.
func (t *RegionTree) AllocateRandomized(size, alignment uint64) (*Region, error) {
	return t.allocateRandomized(size, alignment, false)
}

// AllocateUnbackedRandomized reserves an unbacked region at a randomized
// base. Placement follows AllocateRandomized; ownership follows
// AllocateUnbackedAnywhere.
func (t *RegionTree) AllocateUnbackedRandomized(size, alignment uint64) (*Region, error) {
	return t.allocateRandomized(size, alignment, true)
}

func (t *RegionTree) allocateRandomized(size, alignment uint64, unbacked bool) (*Region, error) {
	size, alignment = checkAllocation(size, alignment)

	t.mu.Lock()
	defer t.mu.Unlock()
	if size <= t.window.Length() {
		span := t.window.Length() - size
		for range maxRandomTries {
			base := t.window.Start + hostarch.Addr(rand.Uint64()%(span+1))
			base, ok := base.AlignUp(alignment)
			if !ok {
				continue
			}
			rng, ok := base.ToRange(size)
			if !ok || !t.window.IsSupersetOf(rng) {
				continue
			}
			if t.overlapsLocked(rng) {
				continue
			}
			return t.insertLocked(base, size, unbacked), nil
		}
	}

	// All candidates collided (or the request fills the window); fall back
	// to first fit.
	base, ok := t.findFirstFitLocked(size, alignment)
	if !ok {
		return nil, kernelerr.ErrNoMemory
	}
	return t.insertLocked(base, size, unbacked), nil
}

// AllocateUnbackedAnywhere reserves a range like AllocateAnywhere but marks
// the region unbacked: the tree still excludes the range from future
// allocation and FindContaining still resolves it (faults on a stack must
// find their region), but ForEachRegion skips it and the caller owns the
// handle, freeing it with Region.Release.
func (t *RegionTree) AllocateUnbackedAnywhere(size, alignment uint64) (*Region, error) {
	size, alignment = checkAllocation(size, alignment)

	t.mu.Lock()
	defer t.mu.Unlock()
	base, ok := t.findFirstFitLocked(size, alignment)
	if !ok {
		return nil, kernelerr.ErrNoMemory
	}
	return t.insertLocked(base, size, true), nil
}

// Remove removes a tracked region. Removing a region that is not tracked
// (double remove, or a stale handle after RemoveAllRegions) is a contract
// violation and panics.
func (t *RegionTree) Remove(r *Region) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r.tree != t {
		panic(fmt.Sprintf("RegionTree.Remove: region %v is not tracked by this tree", r))
	}
	if _, ok := t.regions.Delete(r); !ok {
		panic(fmt.Sprintf("RegionTree.Remove: region %v missing from tree", r))
	}
	r.tree = nil
}

// RemoveAllRegions drops every tracked region at once, leaving the full
// window allocatable. The caller asserts that all hardware mappings for
// the dropped regions have already been torn down; this is a precondition,
// not checked here. Calling it on an empty tree is a no-op.
//
// Outstanding unbacked handles become stale: releasing one afterwards
// panics.
func (t *RegionTree) RemoveAllRegions() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions.Ascend(func(r *Region) bool {
		r.tree = nil
		return true
	})
	t.regions.Clear(false)
}

// FindContaining returns the region owning addr, or nil. Unbacked regions
// are included: the fault path must resolve them.
func (t *RegionTree) FindContaining(addr hostarch.Addr) *Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	var found *Region
	t.regions.DescendLessOrEqual(&Region{rng: hostarch.AddrRange{Start: addr}}, func(r *Region) bool {
		if r.rng.Contains(addr) {
			found = r
		}
		return false
	})
	return found
}

// ForEachRegion calls f on each tracked backed region in ascending base
// order, stopping early if f returns false. Unbacked regions are not
// walked; their owners manage them individually.
func (t *RegionTree) ForEachRegion(f func(*Region) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions.Ascend(func(r *Region) bool {
		if r.unbacked {
			return true
		}
		return f(r)
	})
}

// checkAllocation validates and normalizes an allocation request. Zero
// size, size overflow on page rounding, and a non-power-of-two alignment
// are contract violations.
func checkAllocation(size, alignment uint64) (uint64, uint64) {
	if size == 0 {
		panic("regiontree: zero-size allocation")
	}
	rounded, ok := hostarch.PageRoundUp(size)
	if !ok {
		panic(fmt.Sprintf("regiontree: size %#x wraps when page-rounded", size))
	}
	if alignment == 0 {
		alignment = hostarch.PageSize
	}
	if !hostarch.IsPowerOfTwo(alignment) {
		panic(fmt.Sprintf("regiontree: alignment %#x is not a power of two", alignment))
	}
	if alignment < hostarch.PageSize {
		alignment = hostarch.PageSize
	}
	return rounded, alignment
}

// insertLocked creates and tracks a region at [base, base+size).
//
// Preconditions: t.mu is locked; the range is within the window and
// overlaps nothing.
func (t *RegionTree) insertLocked(base hostarch.Addr, size uint64, unbacked bool) *Region {
	r := &Region{
		rng:      hostarch.AddrRange{Start: base, End: base + hostarch.Addr(size)},
		unbacked: unbacked,
		tree:     t,
	}
	if _, present := t.regions.ReplaceOrInsert(r); present {
		panic(fmt.Sprintf("RegionTree.insertLocked: duplicate base %v", base))
	}
	return r
}

// overlapsLocked returns true if rng intersects any tracked region.
//
// Preconditions: t.mu is locked; rng is well formed and non-empty.
func (t *RegionTree) overlapsLocked(rng hostarch.AddrRange) bool {
	overlap := false
	pivot := &Region{rng: hostarch.AddrRange{Start: rng.Start}}
	// The nearest region at or below rng.Start may extend into rng.
	t.regions.DescendLessOrEqual(pivot, func(r *Region) bool {
		overlap = r.rng.Overlaps(rng)
		return false
	})
	if overlap {
		return true
	}
	// Any region strictly above rng.Start overlaps iff it starts before
	// rng.End; the first one suffices, they are ordered.
	t.regions.AscendGreaterOrEqual(pivot, func(r *Region) bool {
		overlap = r.rng.Start < rng.End
		return false
	})
	return overlap
}

// findFirstFitLocked scans the gaps between regions (and between the
// window bounds and the outermost regions) in ascending address order and
// returns the lowest aligned base where size bytes fit.
//
// Preconditions: t.mu is locked; size and alignment were normalized by
// checkAllocation.
func (t *RegionTree) findFirstFitLocked(size, alignment uint64) (hostarch.Addr, bool) {
	var found hostarch.Addr
	var ok bool
	gapLow := t.window.Start
	tryGap := func(gap hostarch.AddrRange) bool {
		base, aok := gap.Start.AlignUp(alignment)
		if !aok {
			return false
		}
		end, eok := base.AddLength(size)
		if !eok || end > gap.End {
			return false
		}
		found, ok = base, true
		return true
	}
	t.regions.Ascend(func(r *Region) bool {
		if tryGap(hostarch.AddrRange{Start: gapLow, End: r.rng.Start}) {
			return false
		}
		gapLow = r.rng.End
		return true
	})
	if !ok {
		tryGap(hostarch.AddrRange{Start: gapLow, End: t.window.End})
	}
	return found, ok
}
