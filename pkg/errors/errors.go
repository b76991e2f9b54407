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

// Package errors holds the standardized error definition for vmcore.
package errors

// Code enumerates the recoverable error classes of the memory core. Values
// are stable; they are the module's equivalent of an errno namespace.
type Code uint32

// Error codes.
const (
	// CodeNoMemory indicates resource exhaustion: no virtual gap or no
	// physical frame satisfies the request.
	CodeNoMemory Code = iota + 1

	// CodeInvalidArgument indicates a well-formed but unsatisfiable
	// request, e.g. a specific range outside the tree's window.
	CodeInvalidArgument

	// CodeExists indicates a collision with an existing allocation.
	CodeExists

	// CodeFault indicates an address owned by no region.
	CodeFault
)

// Error represents an error code with a descriptive message.
type Error struct {
	code    Code
	message string
}

// New creates a new *Error.
func New(code Code, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Error implements error.Error.
func (e *Error) Error() string { return e.message }

// Code returns the underlying code value.
func (e *Error) Code() Code { return e.code }
