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

package log

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, errors.New("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err != nil {
		t.Fatalf("Write (failing): %v", err)
	}
	if _, err := w.Write([]byte("error\n")); err != nil {
		t.Fatalf("Write (failing): %v", err)
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(tw.lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(tw.lines))
	}
	if !strings.Contains(tw.lines[1], "Dropped") {
		t.Errorf("recovery line %q does not report dropped messages", tw.lines[1])
	}
	if tw.lines[2] != "line 2\n" {
		t.Errorf("output resumed with %q", tw.lines[2])
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}

	l.Debugf("debug %d", 1)
	if len(tw.lines) != 0 {
		t.Error("Debugf emitted below the Debug level")
	}
	l.Infof("info %d", 2)
	l.Warningf("warning %d", 3)
	if len(tw.lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(tw.lines))
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Error("IsLogging(Debug) false after SetLevel(Debug)")
	}
	l.Debugf("debug %d", 4)
	if len(tw.lines) != 3 {
		t.Error("Debugf dropped at the Debug level")
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{
		Warning: "Warning",
		Info:    "Info",
		Debug:   "Debug",
	} {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String(): got %q, want %q", level, got, want)
		}
	}
	if got := fmt.Sprint(Level(42)); !strings.Contains(got, "42") {
		t.Errorf("invalid level prints as %q", got)
	}
}
