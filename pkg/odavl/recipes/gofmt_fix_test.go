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

package recipes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/odavl/pkg/odavl/model"
	"github.com/kraklabs/odavl/pkg/odavl/recipe"
)

func TestGoFmtFix_Plan_ReformatsFlaggedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	unformatted := "package a\nfunc  F (){}\n"
	require.NoError(t, os.WriteFile(path, []byte(unformatted), 0644))

	r := NewGoFmtFix()
	plan, err := r.Plan(context.Background(), recipe.Context{
		WorkspaceRoot: dir,
		Issues: []model.Issue{
			{File: path, Detector: "gofmt", RuleID: "gofmt/diff"},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, path, plan.Changes[0].Path)
	assert.NotEqual(t, unformatted, string(plan.Changes[0].NewContent))
}

func TestGoFmtFix_Plan_IgnoresOtherDetectors(t *testing.T) {
	r := NewGoFmtFix()
	plan, err := r.Plan(context.Background(), recipe.Context{
		Issues: []model.Issue{{File: "a.go", Detector: "longline", RuleID: "longline/max-width"}},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
}

func TestGoFmtFix_Plan_SkipsUnparseableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.go")
	require.NoError(t, os.WriteFile(path, []byte("not valid go {{{"), 0644))

	r := NewGoFmtFix()
	plan, err := r.Plan(context.Background(), recipe.Context{
		WorkspaceRoot: dir,
		Issues:        []model.Issue{{File: path, Detector: "gofmt", RuleID: "gofmt/diff"}},
	})
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
}

func TestGoFmtFix_Declaration(t *testing.T) {
	decl := NewGoFmtFix().Declaration()
	assert.Equal(t, "gofmt-fix", decl.ID)
	assert.Greater(t, decl.MaxFilesTouched, 0)
}
