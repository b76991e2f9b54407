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

package pgalloc

import (
	"testing"

	"github.com/ycechungAI/vmcore/pkg/errors/kernelerr"
	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

func newPool(t *testing.T, frames int) *Pool {
	t.Helper()
	p, err := New(frames)
	if err != nil {
		t.Fatalf("New(%d): %v", frames, err)
	}
	return p
}

func TestAllocateFree(t *testing.T) {
	p := newPool(t, 4)
	defer p.Close()

	if p.TotalFrames() != 4 || p.FreeFrames() != 4 {
		t.Fatalf("fresh pool: %d/%d frames free", p.FreeFrames(), p.TotalFrames())
	}

	addrs := make([]uintptr, 4)
	for i := range addrs {
		addr, err := p.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if addr&hostarch.PageMask != 0 {
			t.Errorf("frame %#x not page aligned", addr)
		}
		addrs[i] = addr
	}
	// Frames come out in ascending address order.
	for i := 1; i < len(addrs); i++ {
		if addrs[i] != addrs[i-1]+hostarch.PageSize {
			t.Errorf("frame %d at %#x, want %#x", i, addrs[i], addrs[i-1]+hostarch.PageSize)
		}
	}
	if p.FreeFrames() != 0 {
		t.Errorf("%d frames free after draining the pool", p.FreeFrames())
	}
	for _, addr := range addrs {
		p.Free(addr)
	}
	if p.FreeFrames() != 4 {
		t.Errorf("%d frames free after returning all, want 4", p.FreeFrames())
	}
}

func TestExhaustion(t *testing.T) {
	p := newPool(t, 2)
	defer p.Close()

	a, _ := p.Allocate()
	b, _ := p.Allocate()
	if _, err := p.Allocate(); err != kernelerr.ErrNoMemory {
		t.Errorf("Allocate on empty pool: got %v, want ErrNoMemory", err)
	}
	// Returning a frame makes allocation succeed again.
	p.Free(a)
	c, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Free: %v", err)
	}
	p.Free(b)
	p.Free(c)
}

func TestAllocateZeroes(t *testing.T) {
	p := newPool(t, 1)
	defer p.Close()

	addr, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// Dirty the frame, recycle it, and confirm the next allocation sees
	// zeroes.
	for i := range p.Mapping(addr) {
		p.Mapping(addr)[i] = 0xff
	}
	p.Free(addr)
	addr, err = p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer p.Free(addr)
	for i, b := range p.Mapping(addr) {
		if b != 0 {
			t.Fatalf("recycled frame dirty at offset %d: %#x", i, b)
		}
	}
}

func TestDoubleFreePanics(t *testing.T) {
	p := newPool(t, 1)
	defer p.Close()

	addr, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	p.Free(addr)
	defer func() {
		if recover() == nil {
			t.Error("double Free did not panic")
		}
	}()
	p.Free(addr)
}

func TestForeignFreePanics(t *testing.T) {
	p := newPool(t, 1)
	defer p.Close()
	defer func() {
		if recover() == nil {
			t.Error("Free of a foreign address did not panic")
		}
	}()
	p.Free(0x1000)
}

func TestContains(t *testing.T) {
	p := newPool(t, 4)
	defer p.Close()

	addr, err := p.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer p.Free(addr)

	for _, test := range []struct {
		addr   uintptr
		length uint64
		want   bool
	}{
		{addr, hostarch.PageSize, true},
		{addr, 4 * hostarch.PageSize, true},
		{addr, 5 * hostarch.PageSize, false},
		{addr - hostarch.PageSize, hostarch.PageSize, false},
		{addr, 0, false},
		{0x1000, hostarch.PageSize, false},
	} {
		if got := p.Contains(test.addr, test.length); got != test.want {
			t.Errorf("Contains(%#x, %#x): got %t, want %t", test.addr, test.length, got, test.want)
		}
	}
}

func TestCloseWithLeakPanics(t *testing.T) {
	p := newPool(t, 1)
	if _, err := p.Allocate(); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Close with an outstanding frame did not panic")
		}
	}()
	p.Close()
}

func TestCloseIdempotent(t *testing.T) {
	p := newPool(t, 1)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
