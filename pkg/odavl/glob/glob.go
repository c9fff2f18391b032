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

// Package glob provides the forbidden-path glob matching used by the
// risk-budget gate.
package glob

import (
	"path/filepath"
	"strings"
)

// Match reports whether path matches any of the glob patterns. Supports
// doublestar-style "**" segments in addition to filepath.Match's single-"*"
// semantics, following the exclude-glob matching idiom the pack's ingestion
// config uses for fileTaxonomy globs.
func Match(path string, patterns []string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		if matchOne(filepath.ToSlash(pattern), path) {
			return true
		}
	}
	return false
}

func matchOne(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		ok, _ := filepath.Match(pattern, path)
		if ok {
			return true
		}
		// also allow a plain prefix pattern like "vendor/" to veto a subtree
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(path, pattern) {
			return true
		}
		return false
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], strings.TrimPrefix(parts[1], "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := strings.TrimPrefix(path, prefix)
	if suffix == "" {
		return true
	}
	ok, _ := filepath.Match(suffix, rest)
	if ok {
		return true
	}
	return strings.HasSuffix(rest, suffix)
}
