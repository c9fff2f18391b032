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

// Package gate implements C7, the risk-budget gate: pre-action admission
// checks on a proposed plan and post-action verification checks against the
// metrics captured after a recipe runs. Any post-action failure is a gate
// violation (spec §4.7), which the orchestrator must answer with rollback.
package gate

import (
	"fmt"

	"github.com/kraklabs/odavl/pkg/odavl/glob"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// Verdict is the outcome of evaluating a plan.
type Verdict struct {
	Admitted bool
	Reason   string
}

func admit() Verdict          { return Verdict{Admitted: true} }
func reject(reason string) Verdict { return Verdict{Admitted: false, Reason: reason} }

// EvaluatePre runs the pre-action checks of spec §4.7: forbidden paths,
// file/LOC limits, and per-recipe risk-score budgets.
func EvaluatePre(plan model.Plan, budget model.RiskBudget) Verdict {
	for _, f := range plan.Files {
		if glob.Match(f, budget.ForbiddenPathPatterns) {
			return reject(fmt.Sprintf("forbidden path: %s", f))
		}
	}

	if len(plan.Files) > budget.MaxFilesPerRun {
		return reject(fmt.Sprintf("plan touches %d files, budget allows %d", len(plan.Files), budget.MaxFilesPerRun))
	}
	if plan.EstimatedLOCChange > budget.MaxLinesOfCodeChange {
		return reject(fmt.Sprintf("plan changes %d LOC, budget allows %d", plan.EstimatedLOCChange, budget.MaxLinesOfCodeChange))
	}

	var totalRisk float64
	for recipe, score := range plan.RiskScores {
		if score > budget.MaxRiskPerAction {
			return reject(fmt.Sprintf("recipe %s risk score %.2f exceeds per-action budget %.2f", recipe, score, budget.MaxRiskPerAction))
		}
		totalRisk += score
	}
	if totalRisk > budget.RiskScoreBudget {
		return reject(fmt.Sprintf("total risk score %.2f exceeds run budget %.2f", totalRisk, budget.RiskScoreBudget))
	}

	return admit()
}

// EvaluatePost runs the VERIFY-phase checks of spec §4.7: new type errors
// and new warnings introduced by the action, relative to the budget's
// ceilings.
func EvaluatePost(plan model.Plan, budget model.RiskBudget) Verdict {
	newTypeErrors := plan.PostTypeErrors - plan.PreTypeErrors
	if newTypeErrors < 0 {
		newTypeErrors = 0
	}
	newWarnings := plan.PostWarnings - plan.PreWarnings
	if newWarnings < 0 {
		newWarnings = 0
	}

	if newTypeErrors > budget.MaxTypeErrorsAfter {
		return reject(fmt.Sprintf("%d new type errors exceeds budget %d", newTypeErrors, budget.MaxTypeErrorsAfter))
	}
	if newWarnings > budget.MaxWarningsAfter {
		return reject(fmt.Sprintf("%d new warnings exceeds budget %d", newWarnings, budget.MaxWarningsAfter))
	}
	return admit()
}
