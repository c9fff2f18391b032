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

// Package fingerprint implements C1, the content hasher: SHA-256 of file
// bytes, workspace-relative path normalization, and best-effort VCS rename
// detection used as a hint by the incremental cache.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Hash returns the lowercase hex SHA-256 digest of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Normalize strips the workspace root, converts to forward slashes, drops
// any trailing slash, and NFC-normalizes the result so that equal-looking
// paths from different filesystems compare equal.
func Normalize(root, path string) string {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = strings.TrimSuffix(rel, "/")
	return norm.NFC.String(rel)
}

// DetectRenames shells out to `git diff --name-status -M` between two
// revisions and returns a best-effort oldPath -> newPath map. Returns an
// empty map (never an error) if VCS is unavailable; the result is used only
// as a hint.
func DetectRenames(repoPath, prevCommit, currentCommit string) map[string]string {
	renames := map[string]string{}
	if prevCommit == "" || currentCommit == "" {
		return renames
	}

	cmd := exec.Command("git", "diff", "--name-status", "-M", prevCommit, currentCommit)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return renames
	}

	lines := bytes.Split(out, []byte("\n"))
	for _, line := range lines {
		fields := strings.Fields(string(line))
		if len(fields) < 3 {
			continue
		}
		status := fields[0]
		if !strings.HasPrefix(status, "R") {
			continue
		}
		renames[fields[1]] = fields[2]
	}
	return renames
}
