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

// Package kernelerr contains the canonical error values returned by the
// memory core. Resource exhaustion and request collisions are recoverable
// and surface as these values; contract violations panic instead and never
// appear here.
package kernelerr

import (
	goErrors "errors"

	"github.com/ycechungAI/vmcore/pkg/errors"
)

// The canonical errors. Comparison is by identity (errors.Is works, since
// each value is a singleton).
var (
	// ErrNoMemory is returned when no virtual gap or physical frame can
	// satisfy an allocation. The triggering operation fails; nothing else
	// is affected.
	ErrNoMemory = errors.New(errors.CodeNoMemory, "out of memory")

	// ErrInvalidArgument is returned for requests outside the owning
	// window or otherwise malformed in a caller-visible, recoverable way.
	ErrInvalidArgument = errors.New(errors.CodeInvalidArgument, "invalid argument")

	// ErrExists is returned when a specific-address request collides with
	// a live region.
	ErrExists = errors.New(errors.CodeExists, "range already allocated")

	// ErrFault is returned when no region owns a faulting address.
	ErrFault = errors.New(errors.CodeFault, "no region at address")
)

// Equals compares a standard error to an *errors.Error by code.
func Equals(e *errors.Error, err error) bool {
	var target *errors.Error
	if !goErrors.As(err, &target) {
		return false
	}
	return e.Code() == target.Code()
}
