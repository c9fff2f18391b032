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

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	data := []byte("export const x = 1;")
	h1 := Hash(data)
	h2 := Hash(data)
	require.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHash_DifferentContent(t *testing.T) {
	h1 := Hash([]byte("a"))
	h2 := Hash([]byte("b"))
	assert.NotEqual(t, h1, h2)
}

func TestNormalize_StripsRootAndTrailingSlash(t *testing.T) {
	got := Normalize("/repo", "/repo/src/a.ts/")
	assert.Equal(t, "src/a.ts", got)
}

func TestNormalize_ForwardSlashes(t *testing.T) {
	got := Normalize("", "src\\a.ts")
	assert.NotContains(t, got, "\\")
}

func TestDetectRenames_EmptyWithoutCommits(t *testing.T) {
	renames := DetectRenames("/nonexistent", "", "")
	assert.Empty(t, renames)
}
