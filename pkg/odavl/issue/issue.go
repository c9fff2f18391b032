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

// Package issue implements C4: severity normalization, multi-tier issue
// fingerprinting, deduplication, and the canonical sort that guarantees
// determinism regardless of input ordering (P1, P2, P6).
package issue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// SeverityTable maps a detector's own severity strings to the five-level
// scale. Pluggable detectors supply their own; see severity.go for the
// bundled reference detectors' tables.
type SeverityTable map[string]model.Severity

// Normalize translates raw (per detector) to the five-level scale, falling
// back to SeverityInfo for anything unmapped.
func (t SeverityTable) Normalize(raw string) model.Severity {
	if sev, ok := t[strings.ToLower(raw)]; ok {
		return sev
	}
	return model.SeverityInfo
}

// Fingerprint computes the multi-tier fingerprint described in spec §3. The
// first tier whose inputs are all non-empty is used.
func Fingerprint(iss model.Issue, normalizedPath string) string {
	if iss.RuleID != "" && iss.Detector != "" && iss.Severity != "" && iss.CodeSnippet != "" {
		return hashHex(fmt.Sprintf("%s|%s|%s|%s", iss.RuleID, iss.Detector, iss.Severity, snippet3(iss.CodeSnippet)))
	}
	if normalizedPath != "" && iss.RuleID != "" {
		return hashHex(fmt.Sprintf("%s|%d|%s", normalizedPath, iss.Line, iss.RuleID))[:16]
	}
	return hashHex(fmt.Sprintf("%s|%d|%s", normalizedPath, iss.Line, iss.Message))[:16]
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// snippet3 clamps a code snippet to at most 3 lines for tier-1 fingerprinting.
func snippet3(snippet string) string {
	lines := strings.Split(snippet, "\n")
	if len(lines) > 3 {
		lines = lines[:3]
	}
	return strings.Join(lines, "\n")
}

// dedupeKey identifies issues that should collapse to one, keeping the
// highest severity.
type dedupeKey struct {
	path   string
	line   int
	column int
	ruleID string
}

// Normalize computes fingerprints for every issue, deduplicates issues that
// share { path, line, column, ruleId } (keeping the highest severity), and
// sorts the result by (file, line, column, detector, ruleId, fingerprint),
// all ascending, so parallel and sequential runs are bit-identical.
func Normalize(issues []model.Issue, normalizedPaths map[string]string) []model.Issue {
	byKey := make(map[dedupeKey]model.Issue, len(issues))
	order := make([]dedupeKey, 0, len(issues))

	for _, iss := range issues {
		norm := normalizedPaths[iss.File]
		if norm == "" {
			norm = iss.File
		}
		iss.Fingerprint = Fingerprint(iss, norm)

		key := dedupeKey{path: norm, line: iss.Line, column: iss.Column, ruleID: strings.ToLower(iss.RuleID)}
		existing, present := byKey[key]
		if !present {
			byKey[key] = iss
			order = append(order, key)
			continue
		}
		if iss.Severity.Rank() > existing.Severity.Rank() {
			byKey[key] = iss
		}
	}

	result := make([]model.Issue, 0, len(order))
	for _, key := range order {
		result = append(result, byKey[key])
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Detector != b.Detector {
			return a.Detector < b.Detector
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Fingerprint < b.Fingerprint
	})
	return result
}
