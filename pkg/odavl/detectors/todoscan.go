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

package detectors

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// TODOScan flags TODO and FIXME comments. FIXME is treated as medium
// severity (a known-broken state), TODO as informational.
type TODOScan struct{}

func NewTODOScan() *TODOScan { return &TODOScan{} }

func (t *TODOScan) Name() string        { return "todoscan" }
func (t *TODOScan) Scope() detect.Scope { return detect.ScopeFile }
func (t *TODOScan) Supports(path string) bool {
	return true
}

func (t *TODOScan) Analyze(_ context.Context, req detect.Request) ([]model.Issue, error) {
	var issues []model.Issue
	scanner := bufio.NewScanner(bytes.NewReader(req.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		upper := strings.ToUpper(text)

		switch {
		case strings.Contains(upper, "FIXME"):
			issues = append(issues, model.Issue{
				File: req.Path, Line: line, Severity: model.SeverityMedium,
				Message: "FIXME left in source", Detector: t.Name(), RuleID: "todoscan/fixme",
				CodeSnippet: strings.TrimSpace(text),
			})
		case strings.Contains(upper, "TODO"):
			issues = append(issues, model.Issue{
				File: req.Path, Line: line, Severity: model.SeverityInfo,
				Message: "TODO left in source", Detector: t.Name(), RuleID: "todoscan/todo",
				CodeSnippet: strings.TrimSpace(text),
			})
		}
	}
	return issues, nil
}
