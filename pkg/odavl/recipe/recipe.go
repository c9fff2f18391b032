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

// Package recipe declares the pluggable fix-recipe contract (spec §9):
// execution is a closed box that returns a modification plan. The core
// never imports a concrete recipe implementation directly.
package recipe

import (
	"context"

	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// Context carries everything a recipe needs to compose a plan.
type Context struct {
	WorkspaceRoot string
	Issues        []model.Issue
}

// FileChange is one file's proposed new content.
type FileChange struct {
	Path       string
	NewContent []byte
}

// ModificationPlan is what a recipe returns from Plan: the files it intends
// to touch and their proposed new content, used by C6 to snapshot and by C7
// to evaluate pre-action admission.
type ModificationPlan struct {
	Changes []FileChange
}

// Recipe is the pluggable, declarative code-transformation contract.
type Recipe interface {
	Declaration() model.RecipeDeclaration
	// Plan inspects ctx.Issues and returns the file changes it would make;
	// it performs no I/O itself. An empty plan (no changes) means the
	// recipe found nothing to fix.
	Plan(ctx context.Context, rctx Context) (ModificationPlan, error)
}
