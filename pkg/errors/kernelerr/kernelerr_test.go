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

package kernelerr

import (
	goErrors "errors"
	"fmt"
	"testing"

	"github.com/ycechungAI/vmcore/pkg/errors"
)

func TestSingletonIdentity(t *testing.T) {
	if !goErrors.Is(ErrNoMemory, ErrNoMemory) {
		t.Error("errors.Is fails on the same singleton")
	}
	if goErrors.Is(ErrNoMemory, ErrExists) {
		t.Error("distinct singletons compare equal")
	}
}

func TestEquals(t *testing.T) {
	wrapped := fmt.Errorf("mapping failed: %w", ErrNoMemory)
	if !Equals(ErrNoMemory, wrapped) {
		t.Error("Equals does not see through wrapping")
	}
	if Equals(ErrExists, wrapped) {
		t.Error("Equals matched the wrong code")
	}
	if Equals(ErrNoMemory, goErrors.New("unrelated")) {
		t.Error("Equals matched a foreign error")
	}
}

func TestCodes(t *testing.T) {
	for _, test := range []struct {
		err  *errors.Error
		code errors.Code
	}{
		{ErrNoMemory, errors.CodeNoMemory},
		{ErrInvalidArgument, errors.CodeInvalidArgument},
		{ErrExists, errors.CodeExists},
		{ErrFault, errors.CodeFault},
	} {
		if test.err.Code() != test.code {
			t.Errorf("%v: code %v, want %v", test.err, test.err.Code(), test.code)
		}
	}
}
