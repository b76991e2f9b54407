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
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"

	"github.com/ycechungAI/vmcore/pkg/hostarch"
	"github.com/ycechungAI/vmcore/pkg/memory/regiontree"
)

// traceCmd replays an allocation trace against a region tree and prints
// the resulting map.
//
// Trace lines:
//
//	anywhere <size> [alignment]
//	specific <base> <size>
//	randomized <size> [alignment]
//	free <base>
//
// Numbers accept 0x prefixes. Blank lines and lines starting with # are
// skipped.
type traceCmd struct {
	configPath string
	tracePath  string
}

// Name implements subcommands.Command.Name.
func (*traceCmd) Name() string {
	return "trace"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*traceCmd) Synopsis() string {
	return "replay an allocation trace against a region tree"
}

// Usage implements subcommands.Command.Usage.
func (*traceCmd) Usage() string {
	return "trace -config <path> -trace <path>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *traceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to the TOML paging config")
	f.StringVar(&c.tracePath, "trace", "", "path to the trace file")
}

// Execute implements subcommands.Command.Execute.
func (c *traceCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.configPath == "" || c.tracePath == "" {
		fmt.Println("trace: -config and -trace are required")
		return subcommands.ExitUsageError
	}
	_, _, window, err := loadConfig(c.configPath)
	if err != nil {
		fmt.Printf("trace: %v\n", err)
		return subcommands.ExitFailure
	}
	file, err := os.Open(c.tracePath)
	if err != nil {
		fmt.Printf("trace: %v\n", err)
		return subcommands.ExitFailure
	}
	defer file.Close()

	tree := regiontree.New(window)
	byBase := make(map[hostarch.Addr]*regiontree.Region)

	lineno := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := replay(tree, byBase, line); err != nil {
			fmt.Printf("trace:%d: %s: %v\n", lineno, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("trace: %v\n", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("window %v, %d regions:\n", tree.Window(), tree.Count())
	tree.ForEachRegion(func(r *regiontree.Region) bool {
		fmt.Printf("  %v\n", r)
		return true
	})
	return subcommands.ExitSuccess
}

func replay(tree *regiontree.RegionTree, byBase map[hostarch.Addr]*regiontree.Region, line string) error {
	fields := strings.Fields(line)
	op, args := fields[0], fields[1:]

	num := func(i int) (uint64, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("missing argument %d", i+1)
		}
		return strconv.ParseUint(args[i], 0, 64)
	}
	optNum := func(i int) (uint64, error) {
		if i >= len(args) {
			return 0, nil
		}
		return num(i)
	}

	var (
		r   *regiontree.Region
		err error
	)
	switch op {
	case "anywhere", "randomized":
		size, serr := num(0)
		if serr != nil {
			return serr
		}
		align, aerr := optNum(1)
		if aerr != nil {
			return aerr
		}
		if op == "anywhere" {
			r, err = tree.AllocateAnywhere(size, align)
		} else {
			r, err = tree.AllocateRandomized(size, align)
		}
	case "specific":
		base, berr := num(0)
		if berr != nil {
			return berr
		}
		size, serr := num(1)
		if serr != nil {
			return serr
		}
		r, err = tree.AllocateSpecific(hostarch.Addr(base), size)
	case "free":
		base, berr := num(0)
		if berr != nil {
			return berr
		}
		freed, ok := byBase[hostarch.Addr(base)]
		if !ok {
			return fmt.Errorf("no region at %#x", base)
		}
		delete(byBase, hostarch.Addr(base))
		tree.Remove(freed)
		return nil
	default:
		return fmt.Errorf("unknown op %q", op)
	}
	if err != nil {
		return err
	}
	byBase[r.Base()] = r
	return nil
}
