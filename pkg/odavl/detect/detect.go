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

// Package detect implements C3, the deterministic detector executor: file,
// workspace, and global scoped detectors run over a sorted file list,
// consulting the incremental cache, bounded by a configurable worker pool in
// parallel mode and strictly sequential in CI/deterministic mode. Parallel
// and sequential modes must produce bit-identical output (P1, P2).
package detect

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/odavl/pkg/odavl/cache"
	"github.com/kraklabs/odavl/pkg/odavl/fingerprint"
	"github.com/kraklabs/odavl/pkg/odavl/issue"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// Scope is the declared granularity at which a Detector runs.
type Scope string

const (
	ScopeFile      Scope = "file"
	ScopeWorkspace Scope = "workspace"
	ScopeGlobal    Scope = "global"
)

// Detector is the pluggable analyzer contract (spec §9 design notes). Core
// code never imports a concrete detector; it only calls through this
// interface.
type Detector interface {
	Name() string
	Scope() Scope
	Supports(path string) bool
	Analyze(ctx context.Context, req Request) ([]model.Issue, error)
}

// Request carries everything a detector needs for one invocation.
type Request struct {
	Path    string   // file being analyzed (file-scoped) or "" (workspace/global)
	Content []byte   // file content, file-scoped only
	Files   []string // full sorted file list, workspace-scoped
}

// ProgressCallback mirrors the teacher's pipeline progress shape:
// current/total processed so far and the current phase name.
type ProgressCallback func(current, total int64, phase string)

// Options configures one executor run.
type Options struct {
	WorkspaceRoot string
	NumWorkers    int // <=1 or len(files) < 10 forces sequential execution
	Deterministic bool // CI mode: always sequential regardless of NumWorkers
	PerDetectorTimeout time.Duration
	OnProgress    ProgressCallback
	Logger        *slog.Logger
}

// RunResult is the concatenated, normalized-order output of one executor run
// plus any non-fatal warnings accumulated along the way.
type RunResult struct {
	Issues   []model.Issue
	Warnings []string
}

// Executor runs a registered set of detectors against a file list.
type Executor struct {
	fileDetectors      []Detector
	workspaceDetectors []Detector
	globalDetectors    []Detector
	cache              *cache.Store
	opts               Options
}

// NewExecutor registers detectors by scope and binds them to an incremental
// cache and execution options.
func NewExecutor(detectors []Detector, c *cache.Store, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PerDetectorTimeout == 0 {
		opts.PerDetectorTimeout = 30 * time.Second
	}
	e := &Executor{cache: c, opts: opts}
	for _, d := range detectors {
		switch d.Scope() {
		case ScopeWorkspace:
			e.workspaceDetectors = append(e.workspaceDetectors, d)
		case ScopeGlobal:
			e.globalDetectors = append(e.globalDetectors, d)
		default:
			e.fileDetectors = append(e.fileDetectors, d)
		}
	}
	return e
}

// WorkspaceRoot returns the root directory this executor resolves file
// fingerprints against.
func (e *Executor) WorkspaceRoot() string {
	return e.opts.WorkspaceRoot
}

// detectorNamesFor returns the sorted names of the file-scoped detectors that
// apply to path, used as the cache's detectorSet key.
func (e *Executor) detectorNamesFor(path string) []string {
	var names []string
	for _, d := range e.fileDetectors {
		if d.Supports(path) {
			names = append(names, d.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Run executes the full algorithm described in spec §4.3: sort files,
// file-scoped detectors via cache-or-run, workspace detectors once,
// global detectors once, all merged in canonical order.
func (e *Executor) Run(ctx context.Context, files []string) RunResult {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	numWorkers := e.opts.NumWorkers
	if e.opts.Deterministic || numWorkers <= 1 || len(sorted) < 10 {
		numWorkers = 1
	}

	var result RunResult
	if numWorkers <= 1 {
		result = e.runFileDetectorsSequential(ctx, sorted)
	} else {
		result = e.runFileDetectorsParallel(ctx, sorted, numWorkers)
	}

	wsIssues, wsWarnings := e.runWorkspaceDetectors(ctx, sorted)
	result.Issues = append(result.Issues, wsIssues...)
	result.Warnings = append(result.Warnings, wsWarnings...)

	glIssues, glWarnings := e.runGlobalDetectors(ctx)
	result.Issues = append(result.Issues, glIssues...)
	result.Warnings = append(result.Warnings, glWarnings...)

	normalizedPaths := make(map[string]string, len(result.Issues))
	for _, iss := range result.Issues {
		if _, ok := normalizedPaths[iss.File]; !ok {
			normalizedPaths[iss.File] = fingerprint.Normalize(e.opts.WorkspaceRoot, iss.File)
		}
	}
	result.Issues = issue.Normalize(result.Issues, normalizedPaths)
	return result
}

// perFileResult is the file-index-addressable slot the parallel executor
// writes into before an in-order merge, per spec §9.
type perFileResult struct {
	index    int
	path     string
	issues   []model.Issue
	warnings []string
}

func (e *Executor) runFileDetectorsSequential(ctx context.Context, files []string) RunResult {
	var result RunResult
	for i, path := range files {
		r := e.analyzeFile(ctx, i, path)
		result.Issues = append(result.Issues, r.issues...)
		result.Warnings = append(result.Warnings, r.warnings...)
		e.reportProgress(int64(i+1), int64(len(files)), "detect")
	}
	return result
}

func (e *Executor) runFileDetectorsParallel(ctx context.Context, files []string, numWorkers int) RunResult {
	jobs := make(chan int, len(files))
	resultsChan := make(chan perFileResult, len(files))

	var progressCount int64
	total := int64(len(files))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				resultsChan <- e.analyzeFile(ctx, i, files[i])
				current := atomic.AddInt64(&progressCount, 1)
				e.reportProgress(current, total, "detect")
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	ordered := make([]perFileResult, len(files))
	for r := range resultsChan {
		ordered[r.index] = r
	}

	var result RunResult
	for _, r := range ordered {
		result.Issues = append(result.Issues, r.issues...)
		result.Warnings = append(result.Warnings, r.warnings...)
	}
	return result
}

func (e *Executor) analyzeFile(ctx context.Context, index int, path string) perFileResult {
	res := perFileResult{index: index, path: path}

	content, err := os.ReadFile(path)
	if err != nil {
		res.warnings = append(res.warnings, "cannot read "+path+": "+err.Error())
		return res
	}

	normPath := fingerprint.Normalize(e.opts.WorkspaceRoot, path)
	hash := fingerprint.Hash(content)
	names := e.detectorNamesFor(path)

	if cached, ok := e.cache.Lookup(normPath, hash, names); ok {
		res.issues = cached
		return res
	}

	detectorResults := map[string][]model.Issue{}
	for _, d := range e.fileDetectors {
		if !d.Supports(path) {
			continue
		}
		issues, warn := e.runOneDetector(ctx, d, Request{Path: path, Content: content})
		if warn != "" {
			res.warnings = append(res.warnings, warn)
		}
		detectorResults[d.Name()] = issues
		res.issues = append(res.issues, issues...)
		if warn == "" {
			_ = e.cache.Store(normPath, hash, d.Name(), issues)
		}
	}
	return res
}

func (e *Executor) runWorkspaceDetectors(ctx context.Context, files []string) ([]model.Issue, []string) {
	var issues []model.Issue
	var warnings []string
	for _, d := range e.workspaceDetectors {
		got, warn := e.runOneDetector(ctx, d, Request{Files: files})
		if warn != "" {
			warnings = append(warnings, warn)
		}
		issues = append(issues, got...)
	}
	return issues, warnings
}

func (e *Executor) runGlobalDetectors(ctx context.Context) ([]model.Issue, []string) {
	var issues []model.Issue
	var warnings []string
	for _, d := range e.globalDetectors {
		got, warn := e.runOneDetector(ctx, d, Request{})
		if warn != "" {
			warnings = append(warnings, warn)
		}
		issues = append(issues, got...)
	}
	return issues, warnings
}

// runOneDetector invokes a single detector under its per-file timeout. A
// timeout or error never aborts the run: it is surfaced as a warning and the
// detector's slot is simply empty for this invocation (DetectorTimeout /
// DetectorUnavailable, spec §7).
func (e *Executor) runOneDetector(ctx context.Context, d Detector, req Request) ([]model.Issue, string) {
	dctx, cancel := context.WithTimeout(ctx, e.opts.PerDetectorTimeout)
	defer cancel()

	type outcome struct {
		issues []model.Issue
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		issues, err := d.Analyze(dctx, req)
		done <- outcome{issues: issues, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			e.opts.Logger.Warn("detector failed", "detector", d.Name(), "error", o.err)
			return nil, d.Name() + ": " + o.err.Error()
		}
		return o.issues, ""
	case <-dctx.Done():
		e.opts.Logger.Warn("detector timed out", "detector", d.Name())
		return nil, d.Name() + ": timed out"
	}
}

func (e *Executor) reportProgress(current, total int64, phase string) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(current, total, phase)
	}
}
