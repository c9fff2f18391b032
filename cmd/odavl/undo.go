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
	stderrors "errors"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/snapshot"
)

// runUndo executes the 'undo' command: restore a prior snapshot by id.
// Exit 0 if restored, 3 if the snapshot id is missing, per spec §6.
//
// Flags:
//   - --snapshot: snapshot id to restore
func runUndo(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	id := fs.String("snapshot", "", "Snapshot id to restore")
	_ = fs.Parse(args)

	if *id == "" {
		errors.FatalError(errors.NewInputError("Missing --snapshot", "undo requires --snapshot <uuid>", "run 'odavl status' to list known snapshots", nil), globals.JSON)
	}

	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	if err := env.lock.TryAcquire(); err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer env.lock.Release()

	store := snapshot.NewStore(env.paths.UndoDir, defaultSnapshotRetention)
	snap, err := store.Restore(*id)
	if err != nil {
		if stderrors.Is(err, snapshot.ErrNotFound) {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(3)
		}
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		ui.Success("restored snapshot " + snap.ID)
	}
}
