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

// Package snapshot implements C6, the snapshot/undo store: it captures
// pre-action file state before every destructive action sequence and
// restores it atomically on rollback, guaranteeing at-most-once destructive
// modification per run.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/kraklabs/odavl/internal/atomicfile"
	ierrors "github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// ErrNotFound is returned by Restore when the requested snapshot id does
// not exist; the CLI maps this to a dedicated exit code distinct from a
// general input error.
var ErrNotFound = errors.New("snapshot not found")

// Store manages snapshots rooted at <odavlDir>/undo.
type Store struct {
	dir       string
	retention int
}

// NewStore creates a Store keeping at most retention snapshots (spec §4.6;
// retention policy is one of the spec's explicitly open questions, resolved
// here as a simple keep-last-N trim run after every successful commit).
func NewStore(dir string, retention int) *Store {
	if retention <= 0 {
		retention = 10
	}
	return &Store{dir: dir, retention: retention}
}

func (s *Store) snapshotDir(id string) string {
	return filepath.Join(s.dir, "snapshot-"+id)
}

// Capture assigns a new UUID, copies the current bytes of every path in
// the plan into the snapshot directory, computes the unified diff for the
// intended post-content, and writes metadata.json atomically. If the
// process aborts partway, the incomplete directory is left behind but
// Restore/List never treat a directory lacking metadata.json as valid
// (spec §4.6's "never presented as valid" guarantee).
func (s *Store) Capture(planType string, files map[string][]byte, postContent map[string][]byte) (*model.Snapshot, error) {
	id := uuid.NewString()
	dir := s.snapshotDir(id)

	snap := &model.Snapshot{
		ID:        id,
		CreatedAt: time.Now(),
		PlanType:  planType,
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	linesChanged := 0
	var diffParts []string
	for _, path := range paths {
		pre := files[path]
		dest := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
			return nil, ierrors.NewPermissionError("Cannot create snapshot directory", err.Error(), "check filesystem permissions", err)
		}
		if err := atomicfile.Write(dest, pre, 0600); err != nil {
			return nil, ierrors.NewPermissionError("Cannot write snapshot file copy", err.Error(), "check filesystem permissions", err)
		}
		snap.Files = append(snap.Files, model.SnapshotFile{Path: path, PreBytes: pre})

		post := postContent[path]
		udiff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(pre)),
			B:        difflib.SplitLines(string(post)),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(udiff)
		if err == nil && text != "" {
			diffParts = append(diffParts, text)
			linesChanged += countChangedLines(text)
		}
	}

	snap.UnifiedDiff = joinDiffs(diffParts)
	snap.Metadata = model.SnapshotMetadata{FilesModified: len(paths), LinesChanged: linesChanged}

	if err := atomicfile.WriteJSON(filepath.Join(dir, "metadata.json"), snap, 0600); err != nil {
		return nil, ierrors.NewPermissionError("Cannot write snapshot metadata", err.Error(), "check filesystem permissions", err)
	}
	return snap, nil
}

// Restore writes every captured file's bytes back atomically. Either the
// restored bytes are fully present for a file or the prior (post-action)
// state remains for it — per-file atomicity from atomicfile.Write.
func (s *Store) Restore(id string) (*model.Snapshot, error) {
	dir := s.snapshotDir(id)
	metaPath := filepath.Join(dir, "metadata.json")

	var snap model.Snapshot
	if err := atomicfile.ReadJSON(metaPath, &snap); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q under %s", ErrNotFound, id, s.dir)
		}
		return nil, ierrors.NewInternalError(
			"Snapshot metadata corrupt",
			err.Error(),
			"this snapshot cannot be restored automatically; recover manually from the snapshot directory",
			err,
		)
	}

	for _, f := range snap.Files {
		if err := atomicfile.Write(f.Path, f.PreBytes, 0644); err != nil {
			return nil, ierrors.NewPermissionError(
				"Cannot restore file",
				fmt.Sprintf("failed restoring %s: %v", f.Path, err),
				"check filesystem permissions and retry 'odavl undo'",
				err,
			)
		}
	}
	return &snap, nil
}

// List returns the IDs of every valid (metadata.json present) snapshot.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) <= len("snapshot-") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, name, "metadata.json")); err != nil {
			continue
		}
		ids = append(ids, name[len("snapshot-"):])
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune removes the oldest snapshots beyond the configured retention,
// invoked after a run successfully commits (spec §4.6). "Oldest" is by
// CreatedAt, not by id: ids are random UUIDs and sort lexicographically in
// no relation to capture order.
func (s *Store) Prune() error {
	ids, err := s.List()
	if err != nil {
		return err
	}
	if len(ids) <= s.retention {
		return nil
	}

	type aged struct {
		id        string
		createdAt time.Time
	}
	entries := make([]aged, 0, len(ids))
	for _, id := range ids {
		var meta struct {
			CreatedAt time.Time `json:"createdAt"`
		}
		if err := atomicfile.ReadJSON(filepath.Join(s.snapshotDir(id), "metadata.json"), &meta); err != nil {
			continue
		}
		entries = append(entries, aged{id: id, createdAt: meta.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	if len(entries) <= s.retention {
		return nil
	}
	toRemove := entries[:len(entries)-s.retention]
	for _, e := range toRemove {
		if err := os.RemoveAll(s.snapshotDir(e.id)); err != nil {
			return err
		}
	}
	return nil
}

func countChangedLines(diffText string) int {
	n := 0
	for _, line := range difflib.SplitLines(diffText) {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
			n++
		}
	}
	return n
}

func joinDiffs(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p
	}
	return out
}
