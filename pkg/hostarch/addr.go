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

package hostarch

import "fmt"

// Addr represents a generic virtual address.
type Addr uintptr

// AddLength adds the given length to start and returns the result. ok is true
// iff adding the length did not overflow the range of Addr.
//
// Note: end returned is not valid if !ok.
func (v Addr) AddLength(length uint64) (end Addr, ok bool) {
	end = v + Addr(length)
	// As of this writing, this function is called with a length that is
	// guaranteed to fit in uint64 on all supported platforms.
	ok = end >= v
	return
}

// RoundDown is equivalent to function PageRoundDown.
func (v Addr) RoundDown() Addr {
	return v &^ Addr(PageMask)
}

// RoundUp is equivalent to function PageRoundUp.
func (v Addr) RoundUp() (addr Addr, ok bool) {
	addr = (v + PageMask) &^ Addr(PageMask)
	ok = addr >= v
	return
}

// MustRoundUp is equivalent to function PageRoundUp, but panics if rounding up
// overflows.
func (v Addr) MustRoundUp() Addr {
	addr, ok := v.RoundUp()
	if !ok {
		panic(fmt.Sprintf("hostarch.Addr(%#x).RoundUp() wraps", uintptr(v)))
	}
	return addr
}

// IsPageAligned returns true if v.RoundDown() == v.
func (v Addr) IsPageAligned() bool {
	return v.RoundDown() == v
}

// AlignUp rounds v up to a multiple of alignment, which must be a power of
// two. ok is false iff rounding up wrapped around.
func (v Addr) AlignUp(alignment uint64) (addr Addr, ok bool) {
	if !IsPowerOfTwo(alignment) {
		panic(fmt.Sprintf("invalid alignment %#x", alignment))
	}
	mask := Addr(alignment - 1)
	addr = (v + mask) &^ mask
	ok = addr >= v
	return
}

// IsAligned returns true if v is a multiple of alignment.
func (v Addr) IsAligned(alignment uint64) bool {
	if !IsPowerOfTwo(alignment) {
		panic(fmt.Sprintf("invalid alignment %#x", alignment))
	}
	return v&Addr(alignment-1) == 0
}

// ToRange returns [v, v+length).
func (v Addr) ToRange(length uint64) (AddrRange, bool) {
	end, ok := v.AddLength(length)
	return AddrRange{v, end}, ok
}

// String implements fmt.Stringer.String.
func (v Addr) String() string {
	return fmt.Sprintf("%#x", uintptr(v))
}
