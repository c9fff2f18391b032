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

// Package vcs provides the small amount of git metadata the baseline engine
// embeds (current commit, current branch); best-effort, never fatal if git
// is unavailable.
package vcs

import (
	"os/exec"
	"strings"
)

// CurrentCommit returns the repo's HEAD commit hash, or "" if unavailable.
func CurrentCommit(repoPath string) string {
	return run(repoPath, "rev-parse", "HEAD")
}

// CurrentBranch returns the repo's current branch name, or "" if unavailable
// (e.g. detached HEAD, or not a git repo).
func CurrentBranch(repoPath string) string {
	branch := run(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if branch == "HEAD" {
		return ""
	}
	return branch
}

func run(repoPath string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
