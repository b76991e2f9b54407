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
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
)

// layoutCmd prints the translation geometry of a paging config.
type layoutCmd struct {
	configPath string
}

// Name implements subcommands.Command.Name.
func (*layoutCmd) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*layoutCmd) Synopsis() string {
	return "print the translation geometry of a paging config"
}

// Usage implements subcommands.Command.Usage.
func (*layoutCmd) Usage() string {
	return "layout -config <path>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *layoutCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to the TOML paging config")
}

// Execute implements subcommands.Command.Execute.
func (c *layoutCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.configPath == "" {
		fmt.Println("layout: -config is required")
		return subcommands.ExitUsageError
	}
	cfg, h, window, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Printf("layout: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("hierarchy:      %s\n", h)
	fmt.Printf("virtual bits:   %d\n", h.VirtualBits())
	fmt.Printf("address limit:  %#x\n", h.AddressLimit())
	fmt.Printf("user window:    %v (%d pages)\n", window, window.Length()/hostarch.PageSize)
	fmt.Printf("physical pool:  %d frames (%d KiB)\n", cfg.Frames, cfg.Frames*hostarch.PageSize/1024)
	return subcommands.ExitSuccess
}
