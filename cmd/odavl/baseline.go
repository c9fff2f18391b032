// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/baseline"
	"github.com/kraklabs/odavl/pkg/odavl/vcs"
)

// runBaseline dispatches the 'baseline' command group: create, list, delete.
func runBaseline(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: odavl baseline {create|list|delete} ...")
		os.Exit(2)
	}

	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	store := baseline.NewStore(env.paths.BaselinesDir)

	switch args[0] {
	case "create":
		baselineCreate(store, env, args[1:], globals)
	case "list":
		baselineList(store, globals)
	case "delete":
		baselineDelete(store, args[1:], globals)
	default:
		fmt.Fprintf(os.Stderr, "odavl baseline: unknown subcommand %q\n", args[0])
		os.Exit(2)
	}
}

func baselineCreate(store *baseline.Store, env *environment, args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("baseline create", flag.ExitOnError)
	name := fs.String("name", "default", "Baseline name")
	force := fs.Bool("force", false, "Overwrite an existing baseline")
	_ = fs.Parse(args)

	if err := env.lock.TryAcquire(); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer env.lock.Release()

	orch, err := env.buildOrchestrator(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	files, err := listFiles(env.root)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	result := orch.Executor.Run(context.Background(), files)

	detectorNames := make([]string, 0)
	seen := map[string]bool{}
	for _, iss := range result.Issues {
		if !seen[iss.Detector] {
			seen[iss.Detector] = true
			detectorNames = append(detectorNames, iss.Detector)
		}
	}

	b, err := store.Create(*name, result.Issues, "odavl-cli", vcs.CurrentCommit(env.root), vcs.CurrentBranch(env.root), detectorNames, *force)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if !globals.Quiet {
		ui.Success(fmt.Sprintf("baseline %q created with %d issues", *name, b.TotalIssues))
	}
}

func baselineList(store *baseline.Store, globals GlobalFlags) {
	names, err := store.List()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if globals.JSON {
		fmt.Println(toJSONArray(names))
		return
	}
	if len(names) == 0 {
		ui.Info("no baselines")
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func baselineDelete(store *baseline.Store, args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("baseline delete", flag.ExitOnError)
	name := fs.String("name", "", "Baseline name")
	_ = fs.Parse(args)
	if *name == "" {
		errors.FatalError(errors.NewInputError("Missing --name", "baseline delete requires --name <baseline>", "", nil), globals.JSON)
	}
	if err := store.Delete(*name); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if !globals.Quiet {
		ui.Success(fmt.Sprintf("baseline %q deleted", *name))
	}
}

func toJSONArray(names []string) string {
	out := "["
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += `"` + n + `"`
	}
	return out + "]"
}
