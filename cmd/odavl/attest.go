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

	"github.com/kraklabs/odavl/internal/errors"
	"github.com/kraklabs/odavl/internal/ui"
	"github.com/kraklabs/odavl/pkg/odavl/attest"
)

// runAttest dispatches the 'attest' command group: verify-chain and
// rotate-key, a supplement to the core spec surface for operating the C10
// attestation ledger directly.
func runAttest(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: odavl attest {verify-chain|rotate-key}")
		os.Exit(2)
	}

	env, err := loadEnvironment(globals)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	chain := attest.NewChain(env.paths.AttestationsDir, filepath.Join(env.paths.TrustDir, "anchor.json"))

	switch args[0] {
	case "verify-chain":
		report, err := chain.VerifyAll()
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if globals.JSON {
			fmt.Printf(`{"total":%d,"verified":%d,"ratio":%f}`+"\n", report.Total, report.Verified, report.Ratio())
			return
		}
		ui.Info(fmt.Sprintf("attestation chain: %d/%d records verified (ratio %.4f)", report.Verified, report.Total, report.Ratio()))
		if report.Ratio() < 1.0 {
			os.Exit(1)
		}
	case "rotate-key":
		if err := env.lock.TryAcquire(); err != nil {
			errors.FatalError(err, globals.JSON)
		}
		defer env.lock.Release()
		anchor, err := chain.RotateKey()
		if err != nil {
			errors.FatalError(err, globals.JSON)
		}
		if !globals.Quiet {
			ui.Success(fmt.Sprintf("trust anchor rotated: new key id %s", anchor.ID))
			ui.Warning("attestations signed under the previous key will no longer verify")
		}
	default:
		fmt.Fprintf(os.Stderr, "odavl attest: unknown subcommand %q\n", args[0])
		os.Exit(2)
	}
}
