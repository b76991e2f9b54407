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

	"github.com/ycechungAI/vmcore/pkg/sync"
)

// The process-wide directory registry, keyed by physical root. Guarded by
// its own lock; directory creation and destruction in unrelated address
// spaces contend only here, and only briefly.
var (
	registryMu sync.Mutex
	registry   = map[uintptr]*PageDirectory{}
)

func register(pd *PageDirectory) {
	root := pd.RootPhysical()
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, ok := registry[root]; ok {
		panic(fmt.Sprintf("pagedir: root %#x already registered to %p", root, prev))
	}
	registry[root] = pd
}

func deregister(pd *PageDirectory) {
	root := pd.RootPhysical()
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry[root] != pd {
		panic(fmt.Sprintf("pagedir: deregistering unregistered root %#x", root))
	}
	delete(registry, root)
}

// FindByRoot returns the registered directory whose paging root is the
// given physical address, or nil if the root is untracked.
//
// The returned reference is borrowed: the caller must already be
// preventing destruction, which holds in the intended use (the directory
// is active on the caller's execution unit, and an active directory is
// never destroyed).
func FindByRoot(root uintptr) *PageDirectory {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registry[root]
}

// FindCurrent returns the directory active on the given execution unit, or
// nil if the live root does not correspond to a tracked directory (as is
// transiently the case during boot).
func FindCurrent(c *CPU) *PageDirectory {
	return FindByRoot(c.PagingRoot())
}

// registeredCount returns the registry size. Test helper.
func registeredCount() int {
	registryMu.Lock()
	defer registryMu.Unlock()
	return len(registry)
}
