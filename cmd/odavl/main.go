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

// Package main implements the odavl CLI: a self-governing Observe-Decide-
// Act-Verify-Learn control loop over a repository.
//
// Usage:
//
//	odavl init                    Create .odavl/manifest.yml and gates.yml
//	odavl run [--watch]           Execute one ODAVL cycle (or loop on change)
//	odavl apply --plan <file>     Run one cycle limited to a plan file's recipes
//	odavl undo --snapshot <id>    Restore a prior snapshot
//	odavl verify                  Re-run analysis and gate checks, no changes
//	odavl baseline <subcommand>   Manage baselines (create|list|delete)
//	odavl status [--json]         Show current risk budget and trust state
//	odavl attest rotate-key       Rotate the attestation trust anchor
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/odavl/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags that apply to every subcommand.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput  = flag.Bool("json", false, "Output in JSON format (for applicable commands)")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
		metricsAddr = flag.String("metrics-addr", "", "Address to serve Prometheus /metrics on (e.g. :9091)")
	)

	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `odavl - Observe, Decide, Act, Verify, Learn

odavl is a self-governing control loop that detects issues in a
repository, proposes bounded fixes, verifies they did not regress
anything, and learns which fixes to trust over time.

Usage:
  odavl <command> [options]

Commands:
  init              Create .odavl/manifest.yml and gates.yml
  run               Execute one ODAVL cycle
  apply             Run one cycle limited to the recipes in a plan file
  undo              Restore a prior snapshot
  verify            Re-run analysis and gate checks without acting
  baseline          Manage baselines (create|list|delete)
  status            Show current risk budget and trust state
  attest            Manage the attestation trust anchor
  completion        Generate shell completion script (bash|zsh|fish)

Global Options:
  --json            Output in JSON format (for applicable commands)
  --no-color        Disable color output (respects NO_COLOR env var)
  -v, --verbose     Increase verbosity (-v for info, -vv for debug)
  -q, --quiet       Suppress non-essential output
  --metrics-addr    Serve Prometheus metrics on this address
  -V, --version     Show version and exit

Examples:
  odavl init                     Initialize .odavl in the current repo
  odavl run                      Run one ODAVL cycle
  odavl run --watch              Re-run on every file change
  odavl baseline create --name v1  Snapshot the current issue set as baseline "v1"
  odavl undo --snapshot <id>     Restore a prior snapshot by ID
  odavl verify                   Check whether the gate would admit a run
  odavl attest verify-chain      Verify attestation chain integrity

For detailed command help: odavl <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("odavl version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	if *quiet && *verbose > 0 {
		fmt.Fprintf(os.Stderr, "Error: cannot use --quiet and --verbose together\n")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "run":
		runRun(cmdArgs, globals, *metricsAddr)
	case "apply":
		runApply(cmdArgs, globals)
	case "undo":
		runUndo(cmdArgs, globals)
	case "verify":
		runVerify(cmdArgs, globals)
	case "baseline":
		runBaseline(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "attest":
		runAttest(cmdArgs, globals)
	case "completion":
		runCompletion(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
