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
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// RecursiveMutex is a mutex that may be re-acquired by the thread that
// already holds it. Reentrancy is tied to OS thread identity (gettid), so
// callers that rely on it must be locked to their OS thread
// (runtime.LockOSThread) for the duration of the critical section.
//
// Unlocking from a thread other than the owner, or unlocking an unlocked
// RecursiveMutex, is a contract violation and panics.
//
// The zero value is an unlocked RecursiveMutex.
type RecursiveMutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

// Lock locks m. If m is already held by the calling thread, the hold depth
// is incremented and Lock returns immediately.
func (m *RecursiveMutex) Lock() {
	tid := int64(unix.Gettid())
	if m.owner.Load() == tid {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(tid)
	m.depth = 1
}

// Unlock undoes one call to Lock. The mutex is released when the depth
// returns to zero.
func (m *RecursiveMutex) Unlock() {
	tid := int64(unix.Gettid())
	owner := m.owner.Load()
	if owner != tid {
		panic(fmt.Sprintf("RecursiveMutex.Unlock: called from tid %d, held by tid %d", tid, owner))
	}
	m.depth--
	if m.depth < 0 {
		panic("RecursiveMutex.Unlock: unbalanced unlock")
	}
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

// IsHeldByCurrentThread returns true if the calling thread holds m. It is
// advisory: the result is stable only while the caller cannot race with
// itself, i.e. when used for assertions.
func (m *RecursiveMutex) IsHeldByCurrentThread() bool {
	return m.owner.Load() == int64(unix.Gettid())
}
