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
	"fmt"
	"strings"

	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// LongLine flags lines past a configured column limit. File-scoped, no
// external tool dependency.
type LongLine struct {
	MaxWidth int
}

func NewLongLine(maxWidth int) *LongLine {
	if maxWidth <= 0 {
		maxWidth = 120
	}
	return &LongLine{MaxWidth: maxWidth}
}

func (l *LongLine) Name() string        { return "longline" }
func (l *LongLine) Scope() detect.Scope { return detect.ScopeFile }

func (l *LongLine) Supports(path string) bool {
	return !strings.HasSuffix(path, ".json") && !strings.HasSuffix(path, ".md")
}

func (l *LongLine) Analyze(_ context.Context, req detect.Request) ([]model.Issue, error) {
	var issues []model.Issue
	scanner := bufio.NewScanner(bytes.NewReader(req.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) <= l.MaxWidth {
			continue
		}
		issues = append(issues, model.Issue{
			File:     req.Path,
			Line:     line,
			Column:   l.MaxWidth + 1,
			Severity: model.SeverityLow,
			Message:  fmt.Sprintf("line exceeds %d characters (%d)", l.MaxWidth, len(text)),
			Detector: l.Name(),
			RuleID:   "longline/max-width",
		})
	}
	return issues, nil
}
