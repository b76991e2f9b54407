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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paging.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
levels = 4
window_start = 0x10000
window_end = 0x40000000
frames = 1024
`)
	cfg, h, window, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if h != pagetables.FourLevel {
		t.Errorf("hierarchy %v, want %v", h, pagetables.FourLevel)
	}
	want := hostarch.AddrRange{Start: 0x10000, End: 0x40000000}
	if window != want {
		t.Errorf("window %v, want %v", window, want)
	}
	if cfg.Frames != 1024 {
		t.Errorf("frames %d, want 1024", cfg.Frames)
	}
}

func TestLoadConfigBadLevels(t *testing.T) {
	path := writeConfig(t, `
levels = 5
window_start = 0x10000
window_end = 0x40000000
frames = 16
`)
	if _, _, _, err := loadConfig(path); err == nil {
		t.Error("loadConfig accepted an unsupported hierarchy depth")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("loadConfig of a missing file succeeded")
	}
}
