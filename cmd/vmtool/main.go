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

// vmtool inspects vmcore paging configurations and replays allocation
// traces against a region tree.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/log"
	"github.com/ycechungAI/vmcore/pkg/memory/pagetables"
)

// config is the TOML description of a paging setup.
type config struct {
	// Levels selects the translation hierarchy depth: 3 or 4.
	Levels int `toml:"levels"`

	// WindowStart and WindowEnd bound the user virtual window.
	WindowStart uint64 `toml:"window_start"`
	WindowEnd   uint64 `toml:"window_end"`

	// Frames is the physical pool size in pages.
	Frames int `toml:"frames"`
}

func loadConfig(path string) (config, pagetables.Hierarchy, hostarch.AddrRange, error) {
	var c config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, pagetables.Hierarchy{}, hostarch.AddrRange{}, err
	}
	h, err := pagetables.HierarchyForLevels(c.Levels)
	if err != nil {
		return c, h, hostarch.AddrRange{}, err
	}
	window := hostarch.AddrRange{
		Start: hostarch.Addr(c.WindowStart),
		End:   hostarch.Addr(c.WindowEnd),
	}
	return c, h, window, nil
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(layoutCmd), "")
	subcommands.Register(new(traceCmd), "")

	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	if *debug {
		logger.SetLevel(logrus.DebugLevel)
		log.SetLevel(log.Debug)
	}
	log.SetTarget(log.LogrusEmitter{Logger: logger})

	os.Exit(int(subcommands.Execute(context.Background())))
}
