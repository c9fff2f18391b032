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
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/config"
	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
)

// runInit creates .odavl/manifest.yml and .odavl/gates.yml in the current
// directory.
//
// Flags:
//   - --force: overwrite an existing .odavl directory
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing .odavl directory")
	_ = fs.Parse(args)

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	odavlDir := filepath.Join(cwd, config.DirName)
	if _, statErr := os.Stat(odavlDir); statErr == nil && !*force {
		errors.FatalError(errors.NewConfigError(
			".odavl already exists",
			odavlDir+" already exists",
			"pass --force to overwrite",
			nil,
		), globals.JSON)
	}

	if err := os.MkdirAll(odavlDir, 0755); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	name := filepath.Base(cwd)
	manifest := config.DefaultManifest(name)
	gates := config.DefaultGates()

	if err := config.SaveManifest(cwd, manifest); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if err := config.SaveGates(cwd, gates); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	paths := config.ResolvePaths(cwd)
	for _, dir := range []string{paths.CacheDir, paths.BaselinesDir, paths.AttestationsDir, paths.PolicyLedgerDir, paths.UndoDir, paths.TrustDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			errors.FatalError(err, globals.JSON)
		}
	}

	if !globals.Quiet {
		ui.Success(fmt.Sprintf("Initialized %s", odavlDir))
		ui.Info("Edit .odavl/manifest.yml and .odavl/gates.yml, then run `odavl run`.")
	}
}
