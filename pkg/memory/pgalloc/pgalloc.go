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

// Package pgalloc provides the physical page-frame pool.
//
// The pool stands in for the machine's physical memory: frames are carved
// out of one anonymous mapping and identified by their address, which the
// paging layers treat as the physical address. Allocation never blocks on
// I/O; the lock covers only free-list manipulation.
package pgalloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ycechungAI/vmcore/pkg/errors/kernelerr"
	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/sync"
)

// Pool hands out page frames from a fixed arena.
type Pool struct {
	// mu protects the free list. Critical sections are short and never
	// block; contention is spin-wait discipline, not cooperative
	// suspension.
	mu sync.Mutex

	// arena is the backing anonymous mapping. Immutable after New.
	arena []byte

	// base is the address of arena[0]. Immutable after New.
	base uintptr

	// frames is the arena size in pages. Immutable after New.
	frames int

	// free is a LIFO of free frame addresses.
	free []uintptr

	// allocated tracks outstanding frames for double-free detection.
	allocated map[uintptr]struct{}

	closed bool
}

// New creates a pool of the given number of page frames.
func New(frames int) (*Pool, error) {
	if frames <= 0 {
		panic(fmt.Sprintf("pgalloc.New: invalid frame count %d", frames))
	}
	arena, err := unix.Mmap(-1, 0, frames*hostarch.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap of %d-frame arena failed: %w", frames, err)
	}
	p := &Pool{
		arena:     arena,
		base:      uintptr(unsafe.Pointer(&arena[0])),
		frames:    frames,
		free:      make([]uintptr, 0, frames),
		allocated: make(map[uintptr]struct{}),
	}
	// Highest address first, so frames come out in ascending order.
	for i := frames - 1; i >= 0; i-- {
		p.free = append(p.free, p.base+uintptr(i*hostarch.PageSize))
	}
	return p, nil
}

// Allocate returns a zeroed page frame. Returns ErrNoMemory when the pool
// is exhausted.
func (p *Pool) Allocate() (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		panic("pgalloc: Allocate on closed pool")
	}
	n := len(p.free)
	if n == 0 {
		return 0, kernelerr.ErrNoMemory
	}
	addr := p.free[n-1]
	p.free = p.free[:n-1]
	p.allocated[addr] = struct{}{}
	clear(p.mappingLocked(addr))
	return addr, nil
}

// Free returns a frame to the pool. Freeing an address that is not an
// outstanding frame is a contract violation and panics.
func (p *Pool) Free(addr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.allocated[addr]; !ok {
		panic(fmt.Sprintf("pgalloc.Free: %#x is not an allocated frame", addr))
	}
	delete(p.allocated, addr)
	p.free = append(p.free, addr)
}

// Mapping returns the byte view of the frame at addr.
//
// Preconditions: addr is a frame address within the pool.
func (p *Pool) Mapping(addr uintptr) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mappingLocked(addr)
}

func (p *Pool) mappingLocked(addr uintptr) []byte {
	if !p.containsFrame(addr) {
		panic(fmt.Sprintf("pgalloc.Mapping: %#x outside pool %v", addr, p.physicalRange()))
	}
	off := addr - p.base
	return p.arena[off : off+hostarch.PageSize]
}

// Contains reports whether the physical range [addr, addr+length) lies
// entirely within the pool. Used by the memory manager to reject attempts
// to map arbitrary physical memory.
func (p *Pool) Contains(addr uintptr, length uint64) bool {
	if length == 0 {
		return false
	}
	end := addr + uintptr(length)
	if end < addr {
		return false
	}
	r := p.physicalRange()
	return addr >= uintptr(r.Start) && end <= uintptr(r.End)
}

// FreeFrames returns the number of frames currently available.
func (p *Pool) FreeFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// TotalFrames returns the pool size in frames.
func (p *Pool) TotalFrames() int {
	return p.frames
}

// Close unmaps the arena. All frames must have been freed; leaked frames
// are a contract violation and panic, since their page-table pages would
// dangle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if len(p.allocated) != 0 {
		panic(fmt.Sprintf("pgalloc.Close: %d frames still allocated", len(p.allocated)))
	}
	p.closed = true
	log.Debugf("pgalloc: releasing %d-frame arena %v", p.frames, p.physicalRange())
	return unix.Munmap(p.arena)
}

func (p *Pool) containsFrame(addr uintptr) bool {
	return addr >= p.base && addr < p.base+uintptr(p.frames*hostarch.PageSize) && addr&hostarch.PageMask == p.base&hostarch.PageMask
}

func (p *Pool) physicalRange() hostarch.AddrRange {
	return hostarch.AddrRange{
		Start: hostarch.Addr(p.base),
		End:   hostarch.Addr(p.base + uintptr(p.frames*hostarch.PageSize)),
	}
}
