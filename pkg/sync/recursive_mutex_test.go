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

package sync

import (
	"runtime"
	"testing"
	"time"
)

func TestRecursiveMutexReentry(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var m RecursiveMutex
	m.Lock()
	if !m.IsHeldByCurrentThread() {
		t.Error("IsHeldByCurrentThread false while held")
	}
	// Reentry on the owning thread must not block.
	m.Lock()
	m.Lock()
	m.Unlock()
	m.Unlock()
	if !m.IsHeldByCurrentThread() {
		t.Error("mutex released before the outermost Unlock")
	}
	m.Unlock()
	if m.IsHeldByCurrentThread() {
		t.Error("IsHeldByCurrentThread true after release")
	}
}

func TestRecursiveMutexExcludesOtherThreads(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var m RecursiveMutex
	m.Lock()

	acquired := make(chan struct{})
	release := make(chan struct{})
	go func() {
		// A different goroutine (hence, with LockOSThread, a different
		// thread) must block until the owner fully releases.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		m.Lock()
		close(acquired)
		<-release
		m.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second thread acquired a held RecursiveMutex")
	case <-time.After(10 * time.Millisecond):
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second thread never acquired the released mutex")
	}
	close(release)
}

func TestRecursiveMutexUnlockUnheldPanics(t *testing.T) {
	var m RecursiveMutex
	defer func() {
		if recover() == nil {
			t.Error("Unlock of an unheld RecursiveMutex did not panic")
		}
	}()
	m.Unlock()
}

func TestRecursiveMutexUnlockByOtherThreadPanics(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var m RecursiveMutex
	m.Lock()
	defer m.Unlock()

	done := make(chan bool)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer func() {
			done <- recover() != nil
		}()
		m.Unlock()
	}()
	if !<-done {
		t.Error("Unlock from a non-owning thread did not panic")
	}
}
