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
	"context"
	"strings"

	"go/format"

	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// GoFmt flags Go source files that are not gofmt-formatted. No suitable
// third-party formatter library exists in the retrieved example pack for
// this narrow concern (see DESIGN.md); go/format is the standard library's
// own canonical formatter and is what gofmt itself is built on.
type GoFmt struct{}

func NewGoFmt() *GoFmt { return &GoFmt{} }

func (g *GoFmt) Name() string        { return "gofmt" }
func (g *GoFmt) Scope() detect.Scope { return detect.ScopeFile }
func (g *GoFmt) Supports(path string) bool {
	return strings.HasSuffix(path, ".go")
}

func (g *GoFmt) Analyze(_ context.Context, req detect.Request) ([]model.Issue, error) {
	formatted, err := format.Source(req.Content)
	if err != nil {
		return []model.Issue{{
			File: req.Path, Line: 1, Severity: model.SeverityHigh,
			Message: "file does not parse: " + err.Error(), Detector: g.Name(), RuleID: "gofmt/parse-error",
		}}, nil
	}
	if string(formatted) == string(req.Content) {
		return nil, nil
	}
	return []model.Issue{{
		File: req.Path, Line: 1, Severity: model.SeverityLow,
		Message: "file is not gofmt-formatted", Detector: g.Name(), RuleID: "gofmt/diff",
	}}, nil
}
