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

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/odavl/internal/config"
	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/lockfile"
	"github.com/kraklabs/odavl/pkg/odavl/attest"
	"github.com/kraklabs/odavl/pkg/odavl/cache"
	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/detectors"
	"github.com/kraklabs/odavl/pkg/odavl/orchestrator"
	"github.com/kraklabs/odavl/pkg/odavl/policy"
	"github.com/kraklabs/odavl/pkg/odavl/recipe"
	"github.com/kraklabs/odavl/pkg/odavl/recipes"
	"github.com/kraklabs/odavl/pkg/odavl/snapshot"
	"github.com/kraklabs/odavl/pkg/odavl/trust"
)

const defaultSnapshotRetention = 20

// environment bundles the loaded configuration and every component an
// orchestrator run needs.
type environment struct {
	root     string
	paths    config.Paths
	manifest *config.Manifest
	gates    *config.Gates
	logger   *slog.Logger
	lock     *lockfile.Lock
}

func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	if globals.Verbose == 1 {
		level = slog.LevelInfo
	}
	if globals.Verbose >= 2 {
		level = slog.LevelDebug
	}
	if globals.Quiet {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadEnvironment discovers the .odavl root, loads manifest/gates, and
// prepares (but does not acquire) the cross-process lock.
func loadEnvironment(globals GlobalFlags) (*environment, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.NewInternalError("Cannot determine working directory", err.Error(), "", err)
	}
	root, err := config.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	manifest, err := config.LoadManifest(root)
	if err != nil {
		return nil, err
	}
	gates, err := config.LoadGates(root)
	if err != nil {
		return nil, err
	}
	paths := config.ResolvePaths(root)
	return &environment{
		root:     root,
		paths:    paths,
		manifest: manifest,
		gates:    gates,
		logger:   newLogger(globals),
		lock:     lockfile.New(paths.OdavlDir),
	}, nil
}

// buildOrchestrator wires every component per SPEC_FULL.md's component
// table, using the environment's loaded manifest/gates. A terminal progress
// bar drives OBSERVE's per-file scan feedback unless globals suppress it.
func (e *environment) buildOrchestrator(globals GlobalFlags) (*orchestrator.Orchestrator, error) {
	if err := os.MkdirAll(e.paths.CacheDir, 0755); err != nil {
		return nil, err
	}
	c := cache.Open(e.paths.CacheDir, e.logger)

	enabledDetectors := e.buildDetectors()
	executor := detect.NewExecutor(enabledDetectors, c, detect.Options{
		WorkspaceRoot: e.root,
		NumWorkers:    runtime.NumCPU(),
		Logger:        e.logger,
		OnProgress:    scanProgress(globals),
	})

	trustStore := trust.Open(e.paths.RecipesTrustFile)
	snapStore := snapshot.NewStore(e.paths.UndoDir, defaultSnapshotRetention)
	chain := attest.NewChain(e.paths.AttestationsDir, filepath.Join(e.paths.TrustDir, "anchor.json"))
	ledger := policy.Open(filepath.Join(e.paths.PolicyLedgerDir, "history.json"), e.paths.HistoryFile)

	return &orchestrator.Orchestrator{
		Executor:    executor,
		Recipes:     e.buildRecipes(),
		Trust:       trustStore,
		Gate:        e.gates.RiskBudget,
		Snapshots:   snapStore,
		Attestation: chain,
		Policy:      ledger,
		Logger:      e.logger,
	}, nil
}

// scanProgress renders a terminal progress bar over OBSERVE's file scan,
// mirroring the teacher's ingestion progress bar; disabled for --json and
// --quiet where a bar would just corrupt machine-readable or suppressed
// output.
func scanProgress(globals GlobalFlags) detect.ProgressCallback {
	if globals.JSON || globals.Quiet {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(current, total int64, phase string) {
		if bar == nil {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription(phase),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set64(current)
	}
}

func (e *environment) buildDetectors() []detect.Detector {
	enabled := map[string]bool{}
	for _, name := range e.manifest.Detectors.Enabled {
		enabled[name] = true
	}
	disabled := map[string]bool{}
	for _, name := range e.manifest.Detectors.Disabled {
		disabled[name] = true
	}
	include := func(name string) bool {
		if disabled[name] {
			return false
		}
		return len(enabled) == 0 || enabled[name]
	}

	var ds []detect.Detector
	if include("gofmt") {
		ds = append(ds, detectors.NewGoFmt())
	}
	if include("govet") {
		ds = append(ds, detectors.NewGoVet(e.root))
	}
	if include("gosyntax") {
		ds = append(ds, detectors.NewGoSyntax(80))
	}
	if include("longline") {
		ds = append(ds, detectors.NewLongLine(120))
	}
	if include("todoscan") {
		ds = append(ds, detectors.NewTODOScan())
	}
	return ds
}

// buildRecipes returns the bundled reference recipes, keyed by their
// declared IDs. It only decides which recipes are registered at all; the
// manifest's selectionStrategy and trustThreshold are not read, and DECIDE
// orders the recipes by trust.Rank.
func (e *environment) buildRecipes() map[string]recipe.Recipe {
	all := []recipe.Recipe{
		recipes.NewGoFmtFix(),
	}
	out := make(map[string]recipe.Recipe, len(all))
	for _, r := range all {
		out[r.Declaration().ID] = r
	}
	return out
}

// listFiles walks root collecting every file outside the .git, .odavl,
// vendor and node_modules directories. The manifest's fileTaxonomy is not
// applied.
func listFiles(root string) ([]string, error) {
	var files []string
	skipDirs := map[string]bool{".git": true, ".odavl": true, "vendor": true, "node_modules": true}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
