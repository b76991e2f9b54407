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

// Package hostarch defines the virtual-address vocabulary shared by the
// memory packages: addresses, address ranges, page geometry, and access
// types.
package hostarch

// Page geometry. The allocation granularity of every component in this
// module is PageSize; larger translation granules are a property of the
// paging hierarchy, not of this package.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
	PageMask  = PageSize - 1
)

// PageRoundUp returns the smallest multiple of PageSize not less than x.
// ok is false iff rounding up wrapped around.
func PageRoundUp(x uint64) (val uint64, ok bool) {
	val = (x + PageMask) &^ uint64(PageMask)
	ok = val >= x
	return
}

// PageRoundDown returns the largest multiple of PageSize not greater than x.
func PageRoundDown(x uint64) uint64 {
	return x &^ uint64(PageMask)
}

// IsPowerOfTwo returns true if x is a non-zero power of two.
func IsPowerOfTwo(x uint64) bool {
	return x != 0 && x&(x-1) == 0
}
