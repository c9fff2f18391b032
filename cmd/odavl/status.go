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
	"encoding/json"
	"fmt"
	"os"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/snapshot"
	"github.com/kraklabs/odavl/pkg/odavl/trust"
)

type statusReport struct {
	Root             string                 `json:"root"`
	RiskBudget       interface{}            `json:"riskBudget"`
	Recipes          map[string]interface{} `json:"recipeTrust,omitempty"`
	Snapshots        []string               `json:"snapshots"`
	EnabledDetectors []string               `json:"enabledDetectors,omitempty"`
}

// runStatus prints the current risk budget, per-recipe trust scores, and
// known undo snapshots — a read-only supplement to the spec's core CLI
// surface, useful before deciding whether to `odavl undo`.
func runStatus(args []string, globals GlobalFlags) {
	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	trustStore := trust.Open(env.paths.RecipesTrustFile)
	snapStore := snapshot.NewStore(env.paths.UndoDir, defaultSnapshotRetention)
	ids, err := snapStore.List()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	orch, err := env.buildOrchestrator(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	recipeTrust := map[string]interface{}{}
	for id := range orch.Recipes {
		recipeTrust[id] = trustStore.Get(id)
	}

	report := statusReport{
		Root:             env.root,
		RiskBudget:       env.gates.RiskBudget,
		Recipes:          recipeTrust,
		Snapshots:        ids,
		EnabledDetectors: env.manifest.Detectors.Enabled,
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(report)
		return
	}

	ui.Header("odavl status")
	ui.Info(fmt.Sprintf("root: %s", env.root))
	ui.Info(fmt.Sprintf("risk budget: maxFiles=%d maxLOC=%d riskScoreBudget=%.2f",
		env.gates.RiskBudget.MaxFilesPerRun, env.gates.RiskBudget.MaxLinesOfCodeChange, env.gates.RiskBudget.RiskScoreBudget))
	ui.SubHeader("recipe trust")
	for id, t := range recipeTrust {
		ui.Info(fmt.Sprintf("  %s: %+v", id, t))
	}
	ui.SubHeader("snapshots")
	ui.Info(fmt.Sprintf("  %d known, retained %d most recent", len(ids), defaultSnapshotRetention))
}
