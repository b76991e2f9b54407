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

package pagedir

import (
	"runtime"
	"testing"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
)

// resetKernel clears the boot singleton so each test can exercise the boot
// path from scratch.
func resetKernel() {
	kernelOnce.Lock()
	defer kernelOnce.Unlock()
	if kernelDir != nil {
		deregister(kernelDir)
		kernelDir = nil
	}
}

func newUserDirectory(t *testing.T) *PageDirectory {
	t.Helper()
	pd, err := NewUserDirectory(nil, pagetables.FourLevel, pagetables.NewRuntimeAllocator())
	if err != nil {
		t.Fatalf("NewUserDirectory: %v", err)
	}
	return pd
}

func TestUserDirectoryLifecycle(t *testing.T) {
	before := registeredCount()
	pd := newUserDirectory(t)
	if registeredCount() != before+1 {
		t.Error("directory not registered on creation")
	}
	if got := FindByRoot(pd.RootPhysical()); got != pd {
		t.Errorf("FindByRoot: got %p, want %p", got, pd)
	}
	if pd.IsKernel() {
		t.Error("user directory claims to be the kernel directory")
	}

	pd.DecRef()
	if registeredCount() != before {
		t.Error("directory still registered after destruction")
	}
	if got := FindByRoot(pd.RootPhysical()); got != nil {
		t.Errorf("FindByRoot after destruction: got %p, want nil", got)
	}
}

func TestRefCounting(t *testing.T) {
	pd := newUserDirectory(t)
	pd.IncRef()
	pd.DecRef()
	// Still alive: one reference remains.
	if got := FindByRoot(pd.RootPhysical()); got != pd {
		t.Error("directory destroyed with a reference outstanding")
	}
	pd.DecRef()
	if got := FindByRoot(pd.RootPhysical()); got != nil {
		t.Error("directory survived its last DecRef")
	}
}

func TestResurrectPanics(t *testing.T) {
	pd := newUserDirectory(t)
	pd.DecRef()
	defer func() {
		if recover() == nil {
			t.Error("IncRef on a destroyed directory did not panic")
		}
	}()
	pd.IncRef()
}

func TestUseAfterDestroyPanics(t *testing.T) {
	pd := newUserDirectory(t)
	pd.DecRef()
	defer func() {
		if recover() == nil {
			t.Error("Lookup on a destroyed directory did not panic")
		}
	}()
	pd.Lookup(0x400000)
}

func TestKernelDirectorySingleton(t *testing.T) {
	resetKernel()
	defer resetKernel()

	kd, err := InitKernelDirectory(pagetables.FourLevel, pagetables.NewRuntimeAllocator())
	if err != nil {
		t.Fatalf("InitKernelDirectory: %v", err)
	}
	if !kd.IsKernel() {
		t.Error("kernel directory not marked kernel")
	}
	if got := KernelDirectory(); got != kd {
		t.Errorf("KernelDirectory: got %p, want %p", got, kd)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("second InitKernelDirectory did not panic")
			}
		}()
		InitKernelDirectory(pagetables.FourLevel, pagetables.NewRuntimeAllocator())
	}()

	// The permanent reference can never be dropped.
	defer func() {
		if recover() == nil {
			t.Error("DecRef of the kernel directory did not panic")
		}
		kd.refs.Store(1)
	}()
	kd.DecRef()
}

func TestKernelDirectoryBeforeBootPanics(t *testing.T) {
	resetKernel()
	defer func() {
		if recover() == nil {
			t.Error("KernelDirectory before boot did not panic")
		}
	}()
	KernelDirectory()
}

func TestActivateAndFindCurrent(t *testing.T) {
	cpu := NewCPU(0)
	if got := FindCurrent(cpu); got != nil {
		t.Errorf("FindCurrent on a fresh unit: got %p, want nil", got)
	}

	pd1 := newUserDirectory(t)
	defer pd1.DecRef()
	pd2 := newUserDirectory(t)
	defer pd2.DecRef()

	cpu.Activate(pd1)
	if got := FindCurrent(cpu); got != pd1 {
		t.Errorf("FindCurrent: got %p, want %p", got, pd1)
	}
	if !cpu.IsActive(pd1) || cpu.IsActive(pd2) {
		t.Error("activity not computed from the live root")
	}

	// A context switch replaces the root wholesale.
	cpu.Activate(pd2)
	if got := FindCurrent(cpu); got != pd2 {
		t.Errorf("FindCurrent after switch: got %p, want %p", got, pd2)
	}
	if cpu.IsActive(pd1) || !cpu.IsActive(pd2) {
		t.Error("activity did not follow the switch")
	}
}

func TestActivatePerUnit(t *testing.T) {
	pd1 := newUserDirectory(t)
	defer pd1.DecRef()
	pd2 := newUserDirectory(t)
	defer pd2.DecRef()

	cpu0, cpu1 := NewCPU(0), NewCPU(1)
	cpu0.Activate(pd1)
	cpu1.Activate(pd2)
	// The same directory can be live on one unit and not another.
	if !cpu0.IsActive(pd1) || cpu0.IsActive(pd2) {
		t.Error("cpu0 root wrong")
	}
	if !cpu1.IsActive(pd2) || cpu1.IsActive(pd1) {
		t.Error("cpu1 root wrong")
	}
}

func TestActivateDestroyedPanics(t *testing.T) {
	pd := newUserDirectory(t)
	pd.DecRef()
	cpu := NewCPU(0)
	defer func() {
		if recover() == nil {
			t.Error("Activate of a destroyed directory did not panic")
		}
	}()
	cpu.Activate(pd)
}

func TestMapLookupUnmap(t *testing.T) {
	pd := newUserDirectory(t)
	defer pd.DecRef()

	opts := pagetables.MapOpts{AccessType: hostarch.ReadWrite, User: true}
	if _, err := pd.Map(0x400000, hostarch.PageSize, opts, 0x1000); err != nil {
		t.Fatalf("Map: %v", err)
	}
	physical, got, found := pd.Lookup(0x400000)
	if !found || physical != 0x1000 || got != opts {
		t.Errorf("Lookup: (%#x, %v, %t), want (0x1000, %v, true)", physical, got, found, opts)
	}
	if pd.IsEmptyRange(0x400000, hostarch.PageSize) {
		t.Error("mapped range reported empty")
	}
	if !pd.Unmap(0x400000, hostarch.PageSize) {
		t.Error("Unmap of a present mapping returned false")
	}
	if !pd.IsEmptyRange(0x400000, hostarch.PageSize) {
		t.Error("unmapped range reported non-empty")
	}
}

// TestLockReentry verifies that a thread already holding the directory lock
// can re-enter it, as a fault handler mapping a page mid-fault does.
func TestLockReentry(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pd := newUserDirectory(t)
	defer pd.DecRef()

	pd.mu.Lock()
	defer pd.mu.Unlock()

	// Re-enters pd.mu on the same thread; deadlock here fails the test by
	// timeout.
	opts := pagetables.MapOpts{AccessType: hostarch.Read, User: true}
	if _, err := pd.Map(0x400000, hostarch.PageSize, opts, 0x1000); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, _, found := pd.Lookup(0x400000); !found {
		t.Error("mapping not visible under the reentered lock")
	}
}
