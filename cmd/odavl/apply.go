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
	"encoding/json"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// runApply executes the 'apply' command: one ODAVL cycle with DECIDE
// restricted to the recipes named in a plan file.
//
// Flags:
//   - --plan: path to a JSON file containing a model.Plan's "recipes" field
func runApply(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	planPath := fs.String("plan", "", "Path to a plan JSON file naming the recipes to apply")
	_ = fs.Parse(args)

	if *planPath == "" {
		errors.FatalError(errors.NewInputError("Missing --plan", "apply requires --plan <file>", "pass the path to a plan JSON file", nil), globals.JSON)
	}

	raw, err := os.ReadFile(*planPath)
	if err != nil {
		errors.FatalError(errors.NewInputError("Cannot read plan file", err.Error(), "check the --plan path", err), globals.JSON)
	}
	var plan model.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		errors.FatalError(errors.NewInputError("Invalid plan file", err.Error(), "the plan file must be JSON matching model.Plan", err), globals.JSON)
	}

	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
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

	report, err := orch.RunPlan(context.Background(), files, plan.Recipes)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	printRunReport(report, globals)
}
