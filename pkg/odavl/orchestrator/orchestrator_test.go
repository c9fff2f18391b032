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

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/odavl/pkg/odavl/attest"
	"github.com/kraklabs/odavl/pkg/odavl/cache"
	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
	"github.com/kraklabs/odavl/pkg/odavl/policy"
	"github.com/kraklabs/odavl/pkg/odavl/recipe"
	"github.com/kraklabs/odavl/pkg/odavl/snapshot"
	"github.com/kraklabs/odavl/pkg/odavl/trust"
)

// markerDetector flags any file containing the marker byte string, so tests
// can drive OBSERVE/VERIFY deterministically without a real static analyzer.
type markerDetector struct{ marker string }

func (m *markerDetector) Name() string        { return "marker" }
func (m *markerDetector) Scope() detect.Scope { return detect.ScopeFile }
func (m *markerDetector) Supports(string) bool { return true }
func (m *markerDetector) Analyze(_ context.Context, req detect.Request) ([]model.Issue, error) {
	if !contains(req.Content, m.marker) {
		return nil, nil
	}
	return []model.Issue{{File: req.Path, Line: 1, Severity: model.SeverityLow, Detector: "marker", RuleID: "marker/found", Message: "marker found"}}, nil
}

func contains(b []byte, s string) bool {
	return len(s) > 0 && (string(b) == s || (len(b) >= len(s) && indexOf(string(b), s) >= 0))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// stripRecipe replaces every file's marker content with clean content.
type stripRecipe struct{ id string }

func (s *stripRecipe) Declaration() model.RecipeDeclaration {
	return model.RecipeDeclaration{ID: s.id, MaxFilesTouched: 10, MaxLinesChanged: 100, RiskScore: 0.1}
}

func (s *stripRecipe) Plan(_ context.Context, rctx recipe.Context) (recipe.ModificationPlan, error) {
	var plan recipe.ModificationPlan
	for _, iss := range rctx.Issues {
		if iss.Detector != "marker" {
			continue
		}
		plan.Changes = append(plan.Changes, recipe.FileChange{Path: iss.File, NewContent: []byte("clean\n")})
	}
	return plan, nil
}

// noopRecipe never proposes any change, used to exercise the OutcomeNoop path.
type noopRecipe struct{}

func (noopRecipe) Declaration() model.RecipeDeclaration {
	return model.RecipeDeclaration{ID: "noop-recipe"}
}
func (noopRecipe) Plan(context.Context, recipe.Context) (recipe.ModificationPlan, error) {
	return recipe.ModificationPlan{}, nil
}

func newTestOrchestrator(t *testing.T, recipes map[string]recipe.Recipe, budget model.RiskBudget) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()
	odavlDir := filepath.Join(root, ".odavl")
	require.NoError(t, os.MkdirAll(odavlDir, 0755))

	executor := detect.NewExecutor([]detect.Detector{&markerDetector{marker: "marker"}}, cache.Open(filepath.Join(odavlDir, "cache"), nil), detect.Options{
		WorkspaceRoot: root,
		Deterministic: true,
	})

	return &Orchestrator{
		Executor:    executor,
		Recipes:     recipes,
		Trust:       trust.Open(filepath.Join(odavlDir, "trust.json")),
		Gate:        budget,
		Snapshots:   snapshot.NewStore(filepath.Join(odavlDir, "undo"), 10),
		Attestation: attest.NewChain(filepath.Join(odavlDir, "attestations"), filepath.Join(odavlDir, "anchor.json")),
		Policy:      policy.Open(filepath.Join(odavlDir, "policy.json"), filepath.Join(odavlDir, "history.json")),
	}, root
}

func wideBudget() model.RiskBudget {
	return model.RiskBudget{
		MaxFilesPerRun:       50,
		MaxLinesOfCodeChange: 500,
		MaxTypeErrorsAfter:   0,
		MaxWarningsAfter:     10,
		RiskScoreBudget:      10,
		MaxRiskPerAction:     1,
	}
}

func TestRun_SuccessFixesFlaggedFile(t *testing.T) {
	recipes := map[string]recipe.Recipe{"fix": &stripRecipe{id: "fix"}}
	orch, root := newTestOrchestrator(t, recipes, wideBudget())

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("has marker inside\n"), 0644))

	report, err := orch.Run(context.Background(), []string{target})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.Contains(t, report.RecipesApplied, "fix")

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "clean\n", string(content))
}

func TestRun_NoopWhenNothingToFix(t *testing.T) {
	recipes := map[string]recipe.Recipe{"noop": noopRecipe{}}
	orch, root := newTestOrchestrator(t, recipes, wideBudget())

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("clean\n"), 0644))

	report, err := orch.Run(context.Background(), []string{target})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoop, report.Outcome)
}

func TestRun_PreActionRejectionLeavesFileUntouched(t *testing.T) {
	recipes := map[string]recipe.Recipe{"fix": &stripRecipe{id: "fix"}}
	tightBudget := wideBudget()
	tightBudget.ForbiddenPathPatterns = []string{"**.txt"}
	orch, root := newTestOrchestrator(t, recipes, tightBudget)

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("has marker inside\n"), 0644))

	report, err := orch.Run(context.Background(), []string{target})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoop, report.Outcome)
	assert.False(t, report.GateVerdict.Admitted)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "has marker inside\n", string(content), "pre-action rejection must leave the file untouched")
}

func TestRunPlan_RestrictsToNamedRecipes(t *testing.T) {
	recipes := map[string]recipe.Recipe{
		"fix":   &stripRecipe{id: "fix"},
		"other": &stripRecipe{id: "other"},
	}
	orch, root := newTestOrchestrator(t, recipes, wideBudget())

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("has marker inside\n"), 0644))

	report, err := orch.RunPlan(context.Background(), []string{target}, []string{"other"})
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, report.RecipesApplied)
}

func TestVerify_ReportsAdmittedPlanWithoutWriting(t *testing.T) {
	recipes := map[string]recipe.Recipe{"fix": &stripRecipe{id: "fix"}}
	orch, root := newTestOrchestrator(t, recipes, wideBudget())

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("has marker inside\n"), 0644))

	report, err := orch.Verify(context.Background(), []string{target})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, report.Outcome)
	assert.True(t, report.GateVerdict.Admitted)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "has marker inside\n", string(content), "verify must never write")
}
