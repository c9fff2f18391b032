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
)

var subcommands = []string{
	"init", "run", "apply", "undo", "verify", "baseline", "status", "attest", "completion",
}

const bashCompletion = `_odavl_completions() {
    local cur prev
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"
    if [ "$COMP_CWORD" -eq 1 ]; then
        COMPREPLY=($(compgen -W "%s" -- "$cur"))
        return
    fi
    case "$prev" in
        baseline)
            COMPREPLY=($(compgen -W "create list delete" -- "$cur"))
            ;;
        attest)
            COMPREPLY=($(compgen -W "verify-chain rotate-key" -- "$cur"))
            ;;
    esac
}
complete -F _odavl_completions odavl
`

const zshCompletion = `#compdef odavl
_odavl() {
    local -a subcmds
    subcmds=(%s)
    _describe 'command' subcmds
}
_odavl
`

const fishCompletion = `complete -c odavl -f
complete -c odavl -n "__fish_use_subcommand" -a "%s"
complete -c odavl -n "__fish_seen_subcommand_from baseline" -a "create list delete"
complete -c odavl -n "__fish_seen_subcommand_from attest" -a "verify-chain rotate-key"
`

// runCompletion prints a shell completion script to stdout for the named
// shell. pflag, unlike cobra, ships no completion generator, so this is
// written by hand against odavl's fixed subcommand set.
func runCompletion(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: odavl completion {bash|zsh|fish}")
		os.Exit(2)
	}

	list := joinSpace(subcommands)
	switch args[0] {
	case "bash":
		fmt.Printf(bashCompletion, list)
	case "zsh":
		fmt.Printf(zshCompletion, list)
	case "fish":
		fmt.Printf(fishCompletion, list)
	default:
		fmt.Fprintf(os.Stderr, "odavl completion: unsupported shell %q\n", args[0])
		os.Exit(2)
	}
}

func joinSpace(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
