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

// visitor is called on each leaf entry touched by a walk.
type visitor interface {
	// visit is called on each leaf entry in the walked range. Entries
	// that are not valid are only visited when requiresAlloc is true.
	// Returning false aborts the walk.
	visit(start uintptr, pte *PTE) bool

	// requiresAlloc indicates that new table pages should be allocated
	// along the walked path. Walks that do not allocate skip absent
	// subtrees entirely.
	requiresAlloc() bool
}

// walker walks page tables, one level at a time.
//
// The walker reclaims interior table pages whose entries are all clear
// after the visit, counting clear entries the same way at every level, so
// an unmap that empties a subtree returns its pages to the allocator.
type walker struct {
	// pageTables are the tables being walked.
	pageTables *PageTables

	// visitor is the set of arguments.
	visitor visitor

	// err is set when an allocating walk runs out of table pages. The
	// walk stops at the failure point; entries already installed stay.
	err error
}

// boundaryEnd returns the lesser of end and the next entry boundary above
// start at the given span.
func boundaryEnd(start, end, size uintptr) uintptr {
	next := (start + size) &^ (size - 1)
	if next < start || next > end {
		return end
	}
	return next
}

// iterateRange walks [start, end) from the root.
//
// Preconditions: start and end are page-aligned; end is within the
// hierarchy's address limit; the owning directory's lock is held for any
// mutating visitor.
func (w *walker) iterateRange(start, end uintptr) {
	w.walkLevel(w.pageTables.root, 0, start, end)
}

// walkLevel walks [start, end) within one table page at the given level.
// It returns the number of entries within the walked index range that are
// clear on return, and whether the walk should continue.
//
// The clear count can only reach entriesPerPage when the walked range
// spanned the whole table, which is exactly the condition under which the
// caller may reclaim the page.
func (w *walker) walkLevel(table *PTEs, level int, start, end uintptr) (uint16, bool) {
	h := w.pageTables.hierarchy
	if level == h.Levels()-1 {
		return w.walkLeaf(table, start, end)
	}

	size := h.entrySize(level)
	var clearEntries uint16
	for start < end {
		nextBoundary := boundaryEnd(start, end, size)
		entry := &table[h.index(start, level)]
		var child *PTEs
		if !entry.Valid() {
			if !w.visitor.requiresAlloc() {
				// Skip over this entry.
				clearEntries++
				start = nextBoundary
				continue
			}

			// Allocate the next level.
			child, w.err = w.pageTables.Allocator.NewPTEs()
			if w.err != nil {
				return clearEntries, false
			}
			entry.setPageTable(w.pageTables.Allocator.PhysicalFor(child))
		} else {
			child = w.pageTables.Allocator.LookupPTEs(entry.Address())
		}

		childClear, cont := w.walkLevel(child, level+1, start, nextBoundary)

		// Check if we no longer need this page.
		if childClear == entriesPerPage {
			entry.Clear()
			w.pageTables.Allocator.FreePTEs(child)
			clearEntries++
		}
		if !cont {
			return clearEntries, false
		}
		start = nextBoundary
	}
	return clearEntries, true
}

// walkLeaf visits the leaf entries in [start, end) within one table page.
func (w *walker) walkLeaf(table *PTEs, start, end uintptr) (uint16, bool) {
	h := w.pageTables.hierarchy
	size := h.entrySize(h.Levels() - 1)
	var clearEntries uint16
	for start < end {
		entry := &table[h.index(start, h.Levels()-1)]
		if !entry.Valid() && !w.visitor.requiresAlloc() {
			clearEntries++
			start += size
			continue
		}
		if !w.visitor.visit(start, entry) {
			return clearEntries, false
		}
		if !entry.Valid() && !w.visitor.requiresAlloc() {
			// The visit cleared it.
			clearEntries++
		}
		start += size
	}
	return clearEntries, true
}

// mapVisitor installs leaf entries pointing at a contiguous physical run.
type mapVisitor struct {
	// target is the virtual address at which physical is mapped.
	target uintptr

	// physical is the base of the physical run.
	physical uintptr

	// opts are the mapping options.
	opts MapOpts

	// prev is set when a previously present entry was overwritten.
	prev bool
}

func (v *mapVisitor) requiresAlloc() bool { return true }

func (v *mapVisitor) visit(start uintptr, pte *PTE) bool {
	p := v.physical + (start - v.target)
	if pte.Valid() && (pte.Address() != p || pte.Opts() != v.opts) {
		v.prev = true
	}
	pte.Set(p, v.opts)
	return true
}

// unmapVisitor clears leaf entries.
type unmapVisitor struct {
	// count is the number of previously present entries cleared.
	count int
}

func (v *unmapVisitor) requiresAlloc() bool { return false }

func (v *unmapVisitor) visit(_ uintptr, pte *PTE) bool {
	pte.Clear()
	v.count++
	return true
}

// lookupVisitor reads a single leaf entry.
type lookupVisitor struct {
	physical uintptr
	opts     MapOpts
	found    bool
}

func (v *lookupVisitor) requiresAlloc() bool { return false }

func (v *lookupVisitor) visit(_ uintptr, pte *PTE) bool {
	v.physical = pte.Address()
	v.opts = pte.Opts()
	v.found = true
	return false
}

// emptyVisitor checks whether any leaf entry in the range is present.
type emptyVisitor struct {
	empty bool
}

func (v *emptyVisitor) requiresAlloc() bool { return false }

func (v *emptyVisitor) visit(_ uintptr, _ *PTE) bool {
	// Only valid entries are visited on non-allocating walks.
	v.empty = false
	return false
}
