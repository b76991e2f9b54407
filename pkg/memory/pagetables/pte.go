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
	"sync/atomic"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

// Entry bit layout, x86-64 style. The layout is the hardware contract;
// these values can never change.
const (
	present               = 0x001
	writable              = 0x002
	user                  = 0x004
	accessed              = 0x020
	dirty                 = 0x040
	global                = 0x100
	executeDisable uint64 = 1 << 63

	// addrMask extracts the physical page frame from an entry.
	addrMask = 0x000ffffffffff000
)

// MapOpts are x86 options.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// Global indicates the page is globally accessible.
	Global bool

	// User indicates the page is a user page.
	User bool
}

// String implements fmt.Stringer.String.
func (m MapOpts) String() string {
	mode := "k"
	if m.User {
		mode = "u"
	}
	if m.Global {
		mode += "g"
	}
	return fmt.Sprintf("%v:%s", m.AccessType, mode)
}

// PTE is a page table entry.
//
// Entries are updated atomically so a concurrent hardware walk (or a
// concurrent reader holding only the directory lock for a different range)
// never observes a torn entry.
type PTE struct {
	val atomic.Uint64
}

// Clear clears this PTE, including super page information.
func (p *PTE) Clear() {
	p.val.Store(0)
}

// Valid returns true iff this entry is valid.
func (p *PTE) Valid() bool {
	return p.val.Load()&present != 0
}

// Address extracts the physical address. This should only be used if Valid
// returned true.
func (p *PTE) Address() uintptr {
	return uintptr(p.val.Load() & addrMask)
}

// Opts returns the PTE options. These are only coherent if Valid returns
// true.
func (p *PTE) Opts() MapOpts {
	v := p.val.Load()
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    v&present != 0,
			Write:   v&writable != 0,
			Execute: v&executeDisable == 0,
		},
		Global: v&global != 0,
		User:   v&user != 0,
	}
}

// Set sets this PTE value.
//
// Setting an entry with no read access clears it: hardware cannot express
// a present, unreadable page at this layout.
func (p *PTE) Set(addr uintptr, opts MapOpts) {
	if !opts.AccessType.Any() {
		p.Clear()
		return
	}
	v := uint64(addr)&addrMask | present | accessed
	if opts.User {
		v |= user
	}
	if opts.Global {
		v |= global
	}
	if !opts.AccessType.Execute {
		v |= executeDisable
	}
	if opts.AccessType.Write {
		v |= writable | dirty
	}
	p.val.Store(v)
}

// setPageTable sets this PTE to point at a next-level page table page. The
// permissions are maximal at interior levels; real restrictions live in
// the leaf entries.
func (p *PTE) setPageTable(addr uintptr) {
	if uintptr(uint64(addr)&addrMask) != addr {
		// This should never happen.
		panic(fmt.Sprintf("unaligned page-table address %#x", addr))
	}
	v := uint64(addr)&addrMask | present | user | writable | accessed | dirty
	p.val.Store(v)
}
