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
	"testing"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

type mapping struct {
	start    hostarch.Addr
	length   uint64
	physical uintptr
	opts     MapOpts
}

// checkMappings confirms that exactly the given leaf mappings are present,
// by probing every page of each mapping and every page adjacent to it.
func checkMappings(t *testing.T, pt *PageTables, ms []mapping) {
	t.Helper()
	for _, m := range ms {
		for off := uint64(0); off < m.length; off += hostarch.PageSize {
			addr := m.start + hostarch.Addr(off)
			physical, opts, found := pt.Lookup(addr)
			if !found {
				t.Errorf("no mapping at %v", addr)
				continue
			}
			if want := m.physical + uintptr(off); physical != want {
				t.Errorf("at %v: physical %#x, want %#x", addr, physical, want)
			}
			if opts != m.opts {
				t.Errorf("at %v: opts %v, want %v", addr, opts, m.opts)
			}
		}
		if m.start >= hostarch.PageSize {
			if _, _, found := pt.Lookup(m.start - hostarch.PageSize); found {
				t.Errorf("unexpected mapping below %v", m.start)
			}
		}
		if _, _, found := pt.Lookup(m.start + hostarch.Addr(m.length)); found {
			t.Errorf("unexpected mapping above %v", m.start+hostarch.Addr(m.length))
		}
	}
}

func newPageTables(t *testing.T, h Hierarchy) (*PageTables, *RuntimeAllocator) {
	t.Helper()
	a := NewRuntimeAllocator()
	pt, err := New(a, h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pt, a
}

// forEachHierarchy runs f once per supported translation depth.
func forEachHierarchy(t *testing.T, f func(t *testing.T, h Hierarchy)) {
	for _, h := range []Hierarchy{ThreeLevel, FourLevel} {
		t.Run(h.String(), func(t *testing.T) { f(t, h) })
	}
}

func TestMapUnmapLookup(t *testing.T) {
	forEachHierarchy(t, func(t *testing.T, h Hierarchy) {
		pt, _ := newPageTables(t, h)
		opts := MapOpts{AccessType: hostarch.ReadWrite, User: true}
		ms := []mapping{
			{0x400000, hostarch.PageSize, 0x1000, opts},
			{0x80000000, 4 * hostarch.PageSize, 0x20000, opts},
		}
		for _, m := range ms {
			if _, err := pt.Map(m.start, m.length, m.opts, m.physical); err != nil {
				t.Fatalf("Map(%v): %v", m.start, err)
			}
		}
		checkMappings(t, pt, ms)

		if !pt.Unmap(ms[0].start, ms[0].length) {
			t.Error("Unmap of a present mapping returned false")
		}
		if _, _, found := pt.Lookup(ms[0].start); found {
			t.Errorf("mapping at %v survived Unmap", ms[0].start)
		}
		checkMappings(t, pt, ms[1:])
	})
}

func TestMapOptions(t *testing.T) {
	forEachHierarchy(t, func(t *testing.T, h Hierarchy) {
		pt, _ := newPageTables(t, h)
		ms := []mapping{
			{0x400000, hostarch.PageSize, 0x1000, MapOpts{AccessType: hostarch.Read, User: true}},
			{0x402000, hostarch.PageSize, 0x3000, MapOpts{AccessType: hostarch.ReadExecute, User: true}},
			{0x404000, hostarch.PageSize, 0x5000, MapOpts{AccessType: hostarch.ReadWrite, Global: true}},
		}
		for _, m := range ms {
			if _, err := pt.Map(m.start, m.length, m.opts, m.physical); err != nil {
				t.Fatalf("Map(%v): %v", m.start, err)
			}
		}
		checkMappings(t, pt, ms)
	})
}

func TestMapInvalidate(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	opts := MapOpts{AccessType: hostarch.ReadWrite, User: true}
	invalidate, err := pt.Map(0x400000, hostarch.PageSize, opts, 0x1000)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if invalidate {
		t.Error("first Map of an empty range requested invalidation")
	}
	// Replacing a present entry owes an invalidation.
	invalidate, err = pt.Map(0x400000, hostarch.PageSize, opts, 0x2000)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !invalidate {
		t.Error("overwriting Map did not request invalidation")
	}
	checkMappings(t, pt, []mapping{
		{0x400000, hostarch.PageSize, 0x2000, opts},
	})
}

func TestMapEmptyAccessUnmaps(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	opts := MapOpts{AccessType: hostarch.ReadWrite, User: true}
	if _, err := pt.Map(0x400000, hostarch.PageSize, opts, 0x1000); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := pt.Map(0x400000, hostarch.PageSize, MapOpts{AccessType: hostarch.NoAccess}, 0x1000); err != nil {
		t.Fatalf("Map with no access: %v", err)
	}
	if _, _, found := pt.Lookup(0x400000); found {
		t.Error("mapping survived a no-access Map")
	}
}

func TestTableReclaim(t *testing.T) {
	forEachHierarchy(t, func(t *testing.T, h Hierarchy) {
		pt, a := newPageTables(t, h)
		base := a.InUse() // Root only.
		opts := MapOpts{AccessType: hostarch.ReadWrite, User: true}
		if _, err := pt.Map(0x400000, hostarch.PageSize, opts, 0x1000); err != nil {
			t.Fatalf("Map: %v", err)
		}
		if a.InUse() != base+h.Levels()-1 {
			t.Errorf("after Map: %d pages in use, want %d", a.InUse(), base+h.Levels()-1)
		}
		// A table page is reclaimed only by a walk spanning it entirely, so
		// unmapping just the page leaves the chain in place...
		pt.Unmap(0x400000, hostarch.PageSize)
		if a.InUse() != base+h.Levels()-1 {
			t.Errorf("after narrow Unmap: %d pages in use, want %d", a.InUse(), base+h.Levels()-1)
		}
		// ...while a full-range sweep returns every empty table.
		pt.Unmap(0, uint64(h.AddressLimit()))
		if a.InUse() != base {
			t.Errorf("after full sweep: %d pages in use, want %d", a.InUse(), base)
		}
	})
}

func TestIsEmptyRange(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	if !pt.IsEmptyRange(0x400000, 16*hostarch.PageSize) {
		t.Error("fresh tables reported a non-empty range")
	}
	opts := MapOpts{AccessType: hostarch.Read, User: true}
	if _, err := pt.Map(0x404000, hostarch.PageSize, opts, 0x1000); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if pt.IsEmptyRange(0x400000, 16*hostarch.PageSize) {
		t.Error("range containing a mapping reported empty")
	}
	if !pt.IsEmptyRange(0x400000, 4*hostarch.PageSize) {
		t.Error("range below the mapping reported non-empty")
	}
}

func TestLookupOffset(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	opts := MapOpts{AccessType: hostarch.Read, User: true}
	if _, err := pt.Map(0x400000, hostarch.PageSize, opts, 0x1000); err != nil {
		t.Fatalf("Map: %v", err)
	}
	physical, _, found := pt.Lookup(0x400123)
	if !found {
		t.Fatal("no mapping at 0x400123")
	}
	if physical != 0x1123 {
		t.Errorf("physical %#x, want 0x1123", physical)
	}
}

func TestRelease(t *testing.T) {
	forEachHierarchy(t, func(t *testing.T, h Hierarchy) {
		pt, a := newPageTables(t, h)
		opts := MapOpts{AccessType: hostarch.ReadWrite, User: true}
		if _, err := pt.Map(0x400000, 8*hostarch.PageSize, opts, 0x1000); err != nil {
			t.Fatalf("Map: %v", err)
		}
		pt.Release()
		if a.InUse() != 0 {
			t.Errorf("%d pages still in use after Release", a.InUse())
		}
	})
}

func TestUseAfterReleasePanics(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	pt.Release()
	defer func() {
		if recover() == nil {
			t.Error("Lookup after Release did not panic")
		}
	}()
	pt.Lookup(0x400000)
}

func TestUnalignedRangePanics(t *testing.T) {
	pt, _ := newPageTables(t, FourLevel)
	defer func() {
		if recover() == nil {
			t.Error("unaligned Map did not panic")
		}
	}()
	pt.Map(0x400123, hostarch.PageSize, MapOpts{AccessType: hostarch.Read}, 0x1000)
}

func TestRangeBeyondLimitPanics(t *testing.T) {
	pt, _ := newPageTables(t, ThreeLevel)
	addr := hostarch.Addr(ThreeLevel.AddressLimit()) - hostarch.PageSize
	defer func() {
		if recover() == nil {
			t.Error("Map beyond the translation limit did not panic")
		}
	}()
	pt.Map(addr, 2*hostarch.PageSize, MapOpts{AccessType: hostarch.Read}, 0x1000)
}

func TestHierarchyGeometry(t *testing.T) {
	for _, test := range []struct {
		h      Hierarchy
		bits   int
		limit  uintptr
		levels int
	}{
		{ThreeLevel, 39, 1 << 39, 3},
		{FourLevel, 48, 1 << 48, 4},
	} {
		if got := test.h.VirtualBits(); got != test.bits {
			t.Errorf("%s: VirtualBits %d, want %d", test.h, got, test.bits)
		}
		if got := test.h.AddressLimit(); got != test.limit {
			t.Errorf("%s: AddressLimit %#x, want %#x", test.h, got, test.limit)
		}
		if got := test.h.Levels(); got != test.levels {
			t.Errorf("%s: Levels %d, want %d", test.h, got, test.levels)
		}
	}
	if _, err := HierarchyForLevels(5); err == nil {
		t.Error("HierarchyForLevels(5) succeeded")
	}
}
