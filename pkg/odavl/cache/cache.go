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

// Package cache implements C2, the incremental detection cache: a file
// fingerprint to per-detector issue list map that invalidates on hash
// mismatch. A corrupt result file is treated as a miss and silently
// rebuilt, never fatal.
package cache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kraklabs/odavl/internal/atomicfile"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// fileResult is the on-disk shape of results/<normalizedPath>.json.
type fileResult struct {
	Path      string                 `json:"path"`
	Hash      string                 `json:"hash"`
	Timestamp time.Time              `json:"timestamp"`
	Detectors map[string][]model.Issue `json:"detectors"`
}

// Store is the on-disk incremental cache rooted at <odavlDir>/cache.
type Store struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	hashes map[string]string // normalized path -> hex hash, mirrors file-hashes.json
}

// Open loads (or lazily initializes) the cache rooted at dir (typically
// ".odavl/cache"). A missing or corrupt hashes file starts from empty state.
func Open(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, logger: logger, hashes: map[string]string{}}

	var onDisk map[string]string
	if err := atomicfile.ReadJSON(s.hashesPath(), &onDisk); err == nil {
		s.hashes = onDisk
	} else if !os.IsNotExist(err) {
		logger.Warn("cache hashes file corrupt, rebuilding", "path", s.hashesPath(), "error", err)
	}
	return s
}

func (s *Store) hashesPath() string {
	return filepath.Join(s.dir, "file-hashes.json")
}

func (s *Store) resultPath(normalizedPath string) string {
	return filepath.Join(s.dir, "results", normalizedPath+".json")
}

// Lookup returns the cached issues for path if its hash matches currentHash
// and every detector in detectorSet is present; otherwise ok is false.
func (s *Store) Lookup(path, currentHash string, detectorSet []string) (issues []model.Issue, ok bool) {
	s.mu.Lock()
	storedHash, known := s.hashes[path]
	s.mu.Unlock()
	if !known || storedHash != currentHash {
		return nil, false
	}

	var fr fileResult
	if err := atomicfile.ReadJSON(s.resultPath(path), &fr); err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache result file corrupt, treating as miss", "path", path, "error", err)
		}
		return nil, false
	}
	if fr.Hash != currentHash {
		return nil, false
	}

	var combined []model.Issue
	for _, name := range detectorSet {
		detIssues, present := fr.Detectors[name]
		if !present {
			return nil, false
		}
		combined = append(combined, detIssues...)
	}
	return combined, true
}

// Store overwrites detector's slot for path and updates the stored hash and
// timestamp.
func (s *Store) Store(path, hash, detector string, issues []model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fr fileResult
	if err := atomicfile.ReadJSON(s.resultPath(path), &fr); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cache result file corrupt on store, overwriting", "path", path, "error", err)
	}
	if fr.Detectors == nil || fr.Hash != hash {
		fr = fileResult{Path: path, Hash: hash, Detectors: map[string][]model.Issue{}}
	}
	fr.Hash = hash
	fr.Timestamp = time.Now()
	fr.Detectors[detector] = issues

	if err := atomicfile.WriteJSON(s.resultPath(path), fr, 0600); err != nil {
		return err
	}

	s.hashes[path] = hash
	return atomicfile.WriteJSON(s.hashesPath(), s.hashes, 0600)
}

// Clear empties the entire cache.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = map[string]string{}
	if err := os.RemoveAll(filepath.Join(s.dir, "results")); err != nil {
		return err
	}
	return atomicfile.WriteJSON(s.hashesPath(), s.hashes, 0600)
}

// ClearPath invalidates a single file's cache entry.
func (s *Store) ClearPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, path)
	if err := os.Remove(s.resultPath(path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return atomicfile.WriteJSON(s.hashesPath(), s.hashes, 0600)
}
