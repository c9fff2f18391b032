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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/metrics"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/orchestrator"
)

var watchSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true, "build": true, ".odavl": true, "bin": true,
}

const watchDebounce = 1500 * time.Millisecond

// runRun executes the 'run' command: one ODAVL cycle, or a debounced loop
// over filesystem changes with --watch.
//
// Flags:
//   - --watch: re-run whenever a tracked file changes
func runRun(args []string, globals GlobalFlags, metricsAddr string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	watch := fs.Bool("watch", false, "Re-run on every file change")
	_ = fs.Parse(args)

	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if err := env.lock.TryAcquire(); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer env.lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	metrics.Serve(ctx, metricsAddr, env.logger)

	orch, err := env.buildOrchestrator(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !*watch {
		report := executeOnce(ctx, env, orch, globals)
		if report.Outcome != "success" && report.Outcome != "noop" {
			os.Exit(1)
		}
		return
	}

	watchAndRun(ctx, env, orch, globals)
}

func executeOnce(ctx context.Context, env *environment, orch *orchestrator.Orchestrator, globals GlobalFlags) orchestrator.RunReport {
	files, err := listFiles(env.root)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	report, err := orch.Run(ctx, files)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	printRunReport(report, globals)
	return report
}

func printRunReport(report orchestrator.RunReport, globals GlobalFlags) {
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(report)
		return
	}
	switch report.Outcome {
	case "success":
		ui.Success(fmt.Sprintf("odavl run: success (%s)", strings.Join(report.RecipesApplied, ", ")))
	case "noop":
		ui.Info("odavl run: no viable plan, nothing to do")
	case "rolledBack":
		ui.Warning("odavl run: rolled back after gate violation")
	case "aborted":
		ui.Warning("odavl run: cancelled")
	}
}

// watchAndRun follows the teacher's fsnotify debounce pattern: watch every
// non-skipped directory recursively, coalesce bursts of events into a
// single re-run after the debounce window elapses.
func watchAndRun(ctx context.Context, env *environment, orch *orchestrator.Orchestrator, globals GlobalFlags) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer watcher.Close()

	addDirs(watcher, env.root)
	ui.Info(fmt.Sprintf("watching %s for changes", env.root))

	executeOnce(ctx, env, orch, globals)

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if strings.Contains(event.Name, string(filepath.Separator)+".odavl"+string(filepath.Separator)) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			env.logger.Warn("odavl.watch.error", "err", err)
		case <-timerCh:
			timerCh = nil
			executeOnce(ctx, env, orch, globals)
		}
	}
}

func addDirs(watcher *fsnotify.Watcher, root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if watchSkipDirs[base] || (strings.HasPrefix(base, ".") && base != filepath.Base(root)) {
			return filepath.SkipDir
		}
		_ = watcher.Add(path)
		return nil
	})
}
