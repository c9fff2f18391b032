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

package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/odavl/pkg/odavl/model"
)

func budget() model.RiskBudget {
	return model.RiskBudget{
		MaxFilesPerRun:        10,
		MaxLinesOfCodeChange:  200,
		MaxTypeErrorsAfter:    0,
		MaxWarningsAfter:      2,
		ForbiddenPathPatterns: []string{".odavl/**", "vendor/**"},
		RiskScoreBudget:       1.0,
		MaxRiskPerAction:      0.5,
	}
}

func TestEvaluatePre_AdmitsWithinBudget(t *testing.T) {
	plan := model.Plan{Files: []string{"main.go"}, EstimatedLOCChange: 5, RiskScores: map[string]float64{"gofmt-fix": 0.05}}
	v := EvaluatePre(plan, budget())
	assert.True(t, v.Admitted)
}

func TestEvaluatePre_RejectsForbiddenPath(t *testing.T) {
	plan := model.Plan{Files: []string{"vendor/pkg/thing.go"}}
	v := EvaluatePre(plan, budget())
	assert.False(t, v.Admitted)
	assert.Contains(t, v.Reason, "forbidden path")
}

func TestEvaluatePre_RejectsOverFileLimit(t *testing.T) {
	files := make([]string, 11)
	for i := range files {
		files[i] = "f.go"
	}
	plan := model.Plan{Files: files}
	v := EvaluatePre(plan, budget())
	assert.False(t, v.Admitted)
}

func TestEvaluatePre_RejectsOverLOCLimit(t *testing.T) {
	plan := model.Plan{Files: []string{"a.go"}, EstimatedLOCChange: 500}
	v := EvaluatePre(plan, budget())
	assert.False(t, v.Admitted)
}

func TestEvaluatePre_RejectsPerActionRiskOverage(t *testing.T) {
	plan := model.Plan{Files: []string{"a.go"}, RiskScores: map[string]float64{"risky": 0.9}}
	v := EvaluatePre(plan, budget())
	assert.False(t, v.Admitted)
	assert.Contains(t, v.Reason, "risky")
}

func TestEvaluatePre_RejectsTotalRiskOverage(t *testing.T) {
	plan := model.Plan{Files: []string{"a.go"}, RiskScores: map[string]float64{"a": 0.4, "b": 0.4, "c": 0.4}}
	v := EvaluatePre(plan, budget())
	assert.False(t, v.Admitted)
	assert.Contains(t, v.Reason, "total risk")
}

func TestEvaluatePost_AdmitsNoRegression(t *testing.T) {
	plan := model.Plan{PreTypeErrors: 2, PostTypeErrors: 2, PreWarnings: 3, PostWarnings: 4}
	v := EvaluatePost(plan, budget())
	assert.True(t, v.Admitted)
}

func TestEvaluatePost_RejectsNewTypeErrors(t *testing.T) {
	plan := model.Plan{PreTypeErrors: 0, PostTypeErrors: 1}
	v := EvaluatePost(plan, budget())
	assert.False(t, v.Admitted)
}

func TestEvaluatePost_RejectsNewWarningsOverBudget(t *testing.T) {
	plan := model.Plan{PreWarnings: 0, PostWarnings: 3}
	v := EvaluatePost(plan, budget())
	assert.False(t, v.Admitted)
}

func TestEvaluatePost_IgnoresImprovement(t *testing.T) {
	plan := model.Plan{PreTypeErrors: 5, PostTypeErrors: 2, PreWarnings: 5, PostWarnings: 1}
	v := EvaluatePost(plan, budget())
	assert.True(t, v.Admitted)
}
