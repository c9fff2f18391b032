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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// GoSyntax is a lightweight structural detector over Go source: it flags
// functions longer than MaxFunctionLines using a Tree-sitter AST instead of
// shelling out to go vet/gofmt, cheaper when only function shape matters.
type GoSyntax struct {
	MaxFunctionLines int
}

func NewGoSyntax(maxFunctionLines int) *GoSyntax {
	if maxFunctionLines <= 0 {
		maxFunctionLines = 80
	}
	return &GoSyntax{MaxFunctionLines: maxFunctionLines}
}

func (g *GoSyntax) Name() string        { return "gosyntax" }
func (g *GoSyntax) Scope() detect.Scope { return detect.ScopeFile }
func (g *GoSyntax) Supports(path string) bool {
	return strings.HasSuffix(path, ".go")
}

func (g *GoSyntax) Analyze(ctx context.Context, req detect.Request) ([]model.Issue, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, req.Content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var issues []model.Issue
	walk(tree.RootNode(), func(n *sitter.Node) {
		if n.Type() != "function_declaration" && n.Type() != "method_declaration" {
			return
		}
		startLine := int(n.StartPoint().Row) + 1
		endLine := int(n.EndPoint().Row) + 1
		length := endLine - startLine + 1
		if length <= g.MaxFunctionLines {
			return
		}
		name := functionName(n, req.Content)
		issues = append(issues, model.Issue{
			File: req.Path, Line: startLine, EndLine: endLine,
			Severity: model.SeverityMedium,
			Message:  fmt.Sprintf("function %s is %d lines long (limit %d)", name, length, g.MaxFunctionLines),
			Detector: g.Name(), RuleID: "gosyntax/function-length",
		})
	})
	return issues, nil
}

func functionName(n *sitter.Node, content []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() == "identifier" || child.Type() == "field_identifier" {
			return child.Content(content)
		}
	}
	return "<anonymous>"
}

func walk(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), visit)
	}
}
