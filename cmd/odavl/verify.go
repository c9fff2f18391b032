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
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/baseline"
	"github.com/kraklabs/odavl/pkg/odavl/model"
	"github.com/kraklabs/odavl/pkg/odavl/orchestrator"
)

// runVerify executes the 'verify' command: re-run OBSERVE, DECIDE, and the
// pre-action gate check without acting. Exit 0 if the gate would admit the
// plan, 1 otherwise, per spec §6.
//
// Flags:
//   - --baseline: compare current issues against a named baseline instead of
//     running the gate check, failing only on new issues at or above the
//     configured minSeverity (spec §4.5's diff exit-code contract).
func runVerify(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	baselineName := fs.String("baseline", "", "Compare current issues against a named baseline")
	_ = fs.Parse(args)

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

	if *baselineName != "" {
		runBaselineDiff(env, orch, files, *baselineName, globals)
		return
	}

	report, err := orch.Verify(context.Background(), files)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	printRunReport(report, globals)

	if report.Outcome != model.OutcomeSuccess && report.Outcome != model.OutcomeNoop {
		os.Exit(1)
	}
	if report.Outcome == model.OutcomeNoop && report.GateVerdict.Reason != "" && !report.GateVerdict.Admitted {
		os.Exit(1)
	}
}

// runBaselineDiff re-observes the workspace and compares it against a stored
// baseline, exiting non-zero only if a new issue meets or exceeds the
// manifest's minSeverity (spec §4.5: "exit non-zero only if new issues >=
// fail-level").
func runBaselineDiff(env *environment, orch *orchestrator.Orchestrator, files []string, name string, globals GlobalFlags) {
	store := baseline.NewStore(env.paths.BaselinesDir)
	b, err := store.Load(name)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	result := orch.Executor.Run(context.Background(), files)
	diff := baseline.Compare(result.Issues, b)

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(diff)
	} else if !globals.Quiet {
		fmt.Printf("odavl verify --baseline %s: %d new, %d resolved, %d unchanged (%.1f%%)\n",
			name, len(diff.New), len(diff.Resolved), len(diff.Unchanged), diff.DeltaPercent)
	}

	failLevel := model.Severity(env.manifest.Detectors.MinSeverity)
	for _, iss := range diff.New {
		if iss.Severity.Rank() >= failLevel.Rank() {
			if !globals.JSON && !globals.Quiet {
				ui.Warning(fmt.Sprintf("new issue at or above %s: %s:%d %s", failLevel, iss.File, iss.Line, iss.Message))
			}
			os.Exit(1)
		}
	}
}
