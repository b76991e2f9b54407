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
	"fmt"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

const (
	// pteShift is log2 of the number of entries in one table page: 512
	// 8-byte entries fill a 4K page on every supported configuration.
	pteShift = 9

	// entriesPerPage is the number of entries in one table page.
	entriesPerPage = 1 << pteShift

	indexMask = entriesPerPage - 1
)

// Hierarchy describes a translation hierarchy: how many table levels sit
// between the paging root and a mapped page. It is fixed when the page
// tables are created; all walking logic consumes it generically.
type Hierarchy struct {
	name   string
	levels int
}

// The supported hierarchies. FourLevel is x86-64-style 48-bit translation
// (PML4 -> PDPT -> PD -> PT); ThreeLevel is the 39-bit variant used by
// smaller configurations.
var (
	FourLevel  = Hierarchy{name: "4-level", levels: 4}
	ThreeLevel = Hierarchy{name: "3-level", levels: 3}
)

// HierarchyForLevels returns the hierarchy with the given depth.
func HierarchyForLevels(levels int) (Hierarchy, error) {
	switch levels {
	case 3:
		return ThreeLevel, nil
	case 4:
		return FourLevel, nil
	default:
		return Hierarchy{}, fmt.Errorf("unsupported hierarchy depth %d", levels)
	}
}

// Levels returns the number of table levels.
func (h Hierarchy) Levels() int {
	return h.levels
}

// VirtualBits returns the number of translated virtual-address bits.
func (h Hierarchy) VirtualBits() int {
	return hostarch.PageShift + h.levels*pteShift
}

// AddressLimit returns the exclusive upper bound of translatable virtual
// addresses.
func (h Hierarchy) AddressLimit() uintptr {
	return uintptr(1) << h.VirtualBits()
}

// shift returns the virtual-address shift of entries at the given level,
// where level 0 is the root and h.Levels()-1 is the leaf level.
func (h Hierarchy) shift(level int) uint {
	return uint(hostarch.PageShift + (h.levels-1-level)*pteShift)
}

// entrySize returns the span of virtual address covered by one entry at
// the given level.
func (h Hierarchy) entrySize(level int) uintptr {
	return uintptr(1) << h.shift(level)
}

// index returns the table index selecting addr at the given level.
func (h Hierarchy) index(addr uintptr, level int) uint16 {
	return uint16((addr >> h.shift(level)) & indexMask)
}

// String implements fmt.Stringer.String.
func (h Hierarchy) String() string {
	return h.name
}
