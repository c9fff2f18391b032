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

package snapshot

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureAndRestore_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(target, []byte("package a\n"), 0644))

	store := NewStore(filepath.Join(dir, "undo"), 10)
	snap, err := store.Capture("test", map[string][]byte{target: []byte("package a\n")}, map[string][]byte{target: []byte("package a // fixed\n")})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("package a // fixed\n"), 0644))

	restored, err := store.Restore(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, restored.ID)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "package a\n", string(content))
}

func TestRestore_UnknownID_ReturnsErrNotFound(t *testing.T) {
	store := NewStore(t.TempDir(), 10)
	_, err := store.Restore("does-not-exist")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotFound))
}

func TestList_OnlyCountsValidSnapshots(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 10)
	target := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	_, err := store.Capture("test", map[string][]byte{target: []byte("x")}, map[string][]byte{target: []byte("y")})
	require.NoError(t, err)

	// an incomplete snapshot directory (no metadata.json) must never count.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "snapshot-incomplete"), 0755))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestPrune_KeepsOnlyMostRecent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 2)
	target := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	for i := 0; i < 4; i++ {
		_, err := store.Capture("test", map[string][]byte{target: []byte("x")}, map[string][]byte{target: []byte("y")})
		require.NoError(t, err)
	}

	require.NoError(t, store.Prune())
	ids, err := store.List()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
