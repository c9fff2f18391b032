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

// Package baseline implements C5, the baseline/diff engine: storing accepted
// issue sets and comparing current analysis runs against them via exact and
// fuzzy (+/-3 line) fingerprint matching.
package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/odavl/internal/atomicfile"
	ierrors "github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/pkg/odavl/issue"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

const schemaVersion = 1

// ErrNotFound is returned by Load when the named baseline does not exist.
var ErrNotFound = errors.New("baseline not found")

// Store manages baseline documents rooted at <odavlDir>/baselines.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Create writes a new baseline atomically; it refuses to overwrite an
// existing baseline unless force is true.
func (s *Store) Create(name string, issues []model.Issue, createdBy, vcsCommit, vcsBranch string, detectorSet []string, force bool) (*model.Baseline, error) {
	if !force {
		if _, err := os.Stat(s.path(name)); err == nil {
			return nil, ierrors.NewInputError(
				"Baseline already exists",
				fmt.Sprintf("a baseline named %q already exists", name),
				"pass force=true (CLI: --force) to overwrite it",
				nil,
			)
		}
	}

	now := time.Now()
	bIssues := make([]model.BaselineIssue, 0, len(issues))
	for _, iss := range issues {
		bIssues = append(bIssues, model.BaselineIssue{Issue: iss, FirstSeen: now})
	}

	b := &model.Baseline{
		SchemaVersion: schemaVersion,
		CreatedAt:     now,
		CreatedBy:     createdBy,
		VCSCommit:     vcsCommit,
		VCSBranch:     vcsBranch,
		DetectorSet:   detectorSet,
		TotalIssues:   len(bIssues),
		Issues:        bIssues,
	}

	if err := atomicfile.WriteJSON(s.path(name), b, 0644); err != nil {
		return nil, ierrors.NewPermissionError(
			"Cannot write baseline file",
			err.Error(),
			"check filesystem permissions for the baselines directory",
			err,
		)
	}
	return b, nil
}

// Load reads and validates a named baseline.
func (s *Store) Load(name string) (*model.Baseline, error) {
	var b model.Baseline
	if err := atomicfile.ReadJSON(s.path(name), &b); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, ierrors.NewConfigError(
			"Baseline file is invalid",
			err.Error(),
			"the baseline may be corrupt; recreate it with 'odavl baseline create'",
			err,
		)
	}
	if b.SchemaVersion != schemaVersion {
		return nil, ierrors.NewConfigError(
			"Unsupported baseline schema version",
			fmt.Sprintf("found schemaVersion %d, expected %d", b.SchemaVersion, schemaVersion),
			"recreate the baseline with the current odavl version",
			nil,
		)
	}
	return &b, nil
}

// List returns the names of every baseline on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".json" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a named baseline.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

type bucketKey struct {
	path   string
	ruleID string
}

// Compare implements the matching algorithm of spec §4.5: exact fingerprint
// match first, else a fuzzy +/-3 line match within the same (path, ruleId)
// bucket; remaining current issues are new, remaining baseline entries are
// resolved.
func Compare(current []model.Issue, b *model.Baseline) model.ComparisonResult {
	buckets := map[bucketKey][]*model.BaselineIssue{}
	byFingerprint := map[string]*model.BaselineIssue{}
	consumed := map[string]bool{}

	baselineCopy := make([]model.BaselineIssue, len(b.Issues))
	copy(baselineCopy, b.Issues)

	for i := range baselineCopy {
		bi := &baselineCopy[i]
		byFingerprint[bi.Fingerprint] = bi
		key := bucketKey{path: bi.File, ruleID: bi.RuleID}
		buckets[key] = append(buckets[key], bi)
	}

	var result model.ComparisonResult
	for _, cur := range current {
		if bi, ok := byFingerprint[cur.Fingerprint]; ok && !consumed[bi.Fingerprint] {
			consumed[bi.Fingerprint] = true
			result.Unchanged = append(result.Unchanged, cur)
			continue
		}

		key := bucketKey{path: cur.File, ruleID: cur.RuleID}
		var candidates []*model.BaselineIssue
		for _, bi := range buckets[key] {
			if consumed[bi.Fingerprint] {
				continue
			}
			if abs(bi.Line-cur.Line) <= 3 {
				candidates = append(candidates, bi)
			}
		}

		if len(candidates) == 1 {
			consumed[candidates[0].Fingerprint] = true
			result.Unchanged = append(result.Unchanged, cur)
			continue
		}

		result.New = append(result.New, cur)
	}

	for _, bi := range baselineCopy {
		if !consumed[bi.Fingerprint] {
			result.Resolved = append(result.Resolved, bi)
		}
	}

	total := len(b.Issues)
	if total > 0 {
		result.DeltaPercent = float64(len(result.New)-len(result.Resolved)) / float64(total) * 100
	}
	return result
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// FingerprintAll returns a new slice of the issues with the multi-tier
// fingerprint assigned, deduplicated and sorted by issue.Normalize.
func FingerprintAll(issues []model.Issue, normalizedPaths map[string]string) []model.Issue {
	return issue.Normalize(issues, normalizedPaths)
}
