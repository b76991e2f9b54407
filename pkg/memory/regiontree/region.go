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

package regiontree

import (
	"fmt"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

// Region is one allocated, non-overlapping virtual range inside a
// RegionTree. A Region is created only by the tree's allocation methods and
// stays tracked by the tree until Release (or the tree's bulk removal)
// drops it.
//
// The range is immutable for the Region's lifetime. The tree back-reference
// exists only so Release can find its way home; it carries no ownership.
type Region struct {
	rng      hostarch.AddrRange
	name     string
	unbacked bool

	// tree is the owning tree; nil once the region has been released.
	// Guarded by the owning tree's lock.
	tree *RegionTree

	// backing describes what the region maps. It is opaque to the tree;
	// the address-space layer owns its meaning and lifetime.
	backing any
}

// SetBacking attaches the caller's backing object.
func (r *Region) SetBacking(b any) {
	r.backing = b
}

// Backing returns the attached backing object, or nil.
func (r *Region) Backing() any {
	return r.backing
}

// Range returns the virtual range occupied by r.
func (r *Region) Range() hostarch.AddrRange {
	return r.rng
}

// Base returns the first address of r.
func (r *Region) Base() hostarch.Addr {
	return r.rng.Start
}

// Size returns the length of r in bytes. Always a multiple of the page
// size.
func (r *Region) Size() uint64 {
	return r.rng.Length()
}

// Name returns the diagnostic name given at allocation, e.g. "[stack]".
func (r *Region) Name() string {
	return r.name
}

// SetName sets the diagnostic name.
func (r *Region) SetName(name string) {
	r.name = name
}

// IsUnbacked returns true if r was allocated with AllocateUnbackedAnywhere
// and is therefore individually owned by its caller.
func (r *Region) IsUnbacked() bool {
	return r.unbacked
}

// Release removes r from its tree, making the range available again.
// Releasing a region twice is a contract violation and panics; so is
// releasing a region already dropped by RemoveAllRegions.
func (r *Region) Release() {
	t := r.tree
	if t == nil {
		panic(fmt.Sprintf("Region%v.Release: already released", r.rng))
	}
	t.Remove(r)
}

// String implements fmt.Stringer.String.
func (r *Region) String() string {
	if r.name != "" {
		return fmt.Sprintf("%v %s", r.rng, r.name)
	}
	return r.rng.String()
}
