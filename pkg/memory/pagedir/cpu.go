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
	"fmt"
	"sync/atomic"

	"github.com/ycechungAI/vmcore/pkg/log"
)

// CPU models one execution unit's paging-root register. Activation is
// observable only on the unit it happened on; it establishes no cross-unit
// ordering by itself. TLB maintenance is the caller's concern.
//
// On hardware, Activate is the CR3/TTBR write; here the register is a
// cell, which keeps directory-identity semantics intact and testable.
type CPU struct {
	// id identifies the unit in logs only.
	id int

	// pagingRoot is the live translation root. Written only by
	// Activate, read by FindCurrent.
	pagingRoot atomic.Uint64
}

// NewCPU returns an execution unit with no active directory (as at boot,
// before paging is handed over).
func NewCPU(id int) *CPU {
	return &CPU{id: id}
}

// ID returns the unit's identifier.
func (c *CPU) ID() int {
	return c.id
}

// Activate makes pd the live translation table for this unit.
//
// Preconditions: the caller has interrupts/preemption under control for
// the current thread; activating a directory while another thread's
// context is partially restored on this unit corrupts execution. The
// directory must be live (referenced), which Activate asserts.
func (c *CPU) Activate(pd *PageDirectory) {
	if pd.dead.Load() {
		panic(fmt.Sprintf("CPU%d.Activate: directory already destroyed", c.id))
	}
	root := pd.RootPhysical()
	c.pagingRoot.Store(uint64(root))
	log.Debugf("cpu%d: activated paging root %#x", c.id, root)
}

// PagingRoot returns the live root register value; zero when no directory
// has ever been activated on this unit.
func (c *CPU) PagingRoot() uintptr {
	return uintptr(c.pagingRoot.Load())
}

// IsActive returns true iff pd's root is the unit's live root. Activity is
// computed by comparison, never stored.
func (c *CPU) IsActive(pd *PageDirectory) bool {
	return c.PagingRoot() == pd.RootPhysical()
}
