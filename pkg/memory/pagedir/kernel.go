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
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
	"github.com/ycechungAI/vmcore/pkg/sync"
)

// The kernel's own page directory: a distinguished singleton built once at
// boot and never torn down. It describes the shared kernel address range
// and holds a permanent reference, so DecRef can never destroy it.
var (
	kernelOnce sync.Mutex
	kernelDir  *PageDirectory
)

// InitKernelDirectory builds the kernel page directory. It is invoked once
// at boot; a second call is a contract violation and panics. Returns
// ErrNoMemory if the root page cannot be allocated, in which case boot
// cannot proceed.
func InitKernelDirectory(h pagetables.Hierarchy, alloc pagetables.Allocator) (*PageDirectory, error) {
	kernelOnce.Lock()
	defer kernelOnce.Unlock()
	if kernelDir != nil {
		panic("pagedir: kernel directory already initialized")
	}
	pt, err := pagetables.New(alloc, h)
	if err != nil {
		return nil, err
	}
	pd := &PageDirectory{
		pt:     pt,
		kernel: true,
	}
	pd.refs.Store(1) // Permanent.
	register(pd)
	kernelDir = pd
	log.Infof("pagedir: kernel directory ready, %s translation, root %#x", h, pd.RootPhysical())
	return pd, nil
}

// KernelDirectory returns the kernel page directory. Calling it before
// InitKernelDirectory is a boot-ordering bug and panics.
func KernelDirectory() *PageDirectory {
	kernelOnce.Lock()
	defer kernelOnce.Unlock()
	if kernelDir == nil {
		panic("pagedir: kernel directory not initialized")
	}
	return kernelDir
}
