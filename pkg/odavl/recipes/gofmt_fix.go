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

// Package recipes bundles the reference fix recipes shipped with odavl,
// paralleling pkg/odavl/detectors: each recipe is a closed-box
// transformation keyed to one or more detector RuleIDs.
package recipes

import (
	"context"
	"os"
	"path/filepath"

	"go/format"

	"github.com/kraklabs/odavl/pkg/odavl/model"
	"github.com/kraklabs/odavl/pkg/odavl/recipe"
)

// GoFmtFix reformats every file the gofmt detector flagged as not
// gofmt-formatted. It never touches a file the detector reported as
// unparseable (gofmt/parse-error) — format.Source would fail on it too.
type GoFmtFix struct{}

func NewGoFmtFix() *GoFmtFix { return &GoFmtFix{} }

func (g *GoFmtFix) Declaration() model.RecipeDeclaration {
	return model.RecipeDeclaration{
		ID:                      "gofmt-fix",
		ProtectedPathsRespected: true,
		MaxFilesTouched:         50,
		MaxLinesChanged:         2000,
		RiskScore:               0.05,
	}
}

func (g *GoFmtFix) Plan(_ context.Context, rctx recipe.Context) (recipe.ModificationPlan, error) {
	var plan recipe.ModificationPlan
	seen := map[string]bool{}

	for _, iss := range rctx.Issues {
		if iss.Detector != "gofmt" || iss.RuleID != "gofmt/diff" {
			continue
		}
		if seen[iss.File] {
			continue
		}
		seen[iss.File] = true

		abs := iss.File
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rctx.WorkspaceRoot, iss.File)
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		formatted, err := format.Source(content)
		if err != nil {
			continue
		}
		if string(formatted) == string(content) {
			continue
		}
		plan.Changes = append(plan.Changes, recipe.FileChange{Path: iss.File, NewContent: formatted})
	}
	return plan, nil
}
