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
	"errors"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// GoVet wraps the `go vet` external tool as a workspace-scoped detector,
// following the pack's exec.Command subprocess idiom for VCS tooling. If the
// go toolchain is absent, Analyze returns DetectorUnavailable-shaped
// behavior: an error the executor turns into a warning, never a fatal abort.
type GoVet struct {
	WorkDir string
}

func NewGoVet(workDir string) *GoVet {
	return &GoVet{WorkDir: workDir}
}

func (g *GoVet) Name() string        { return "govet" }
func (g *GoVet) Scope() detect.Scope { return detect.ScopeWorkspace }
func (g *GoVet) Supports(path string) bool { return true }

var vetLine = regexp.MustCompile(`^(.+\.go):(\d+):(\d+): (.+)$`)

func (g *GoVet) Analyze(ctx context.Context, _ detect.Request) ([]model.Issue, error) {
	cmd := exec.CommandContext(ctx, "go", "vet", "./...")
	cmd.Dir = g.WorkDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return nil, errors.New("go vet unavailable: " + err.Error())
		}
	}

	var issues []model.Issue
	scanner := bufio.NewScanner(bytes.NewReader(stderr.Bytes()))
	for scanner.Scan() {
		m := vetLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		issues = append(issues, model.Issue{
			File: m[1], Line: line, Column: col,
			Severity: model.SeverityHigh, Message: m[4],
			Detector: g.Name(), RuleID: "govet/diagnostic",
		})
	}
	return issues, nil
}
