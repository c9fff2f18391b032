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

// Package ui provides the colored terminal output primitives shared by every
// odavl subcommand: headers, labels, dimmed text, and the color objects used
// for inline emphasis. Color is disabled automatically for non-tty output and
// for NO_COLOR/--no-color/--json.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	Dim    = color.New(color.Faint)
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Cyan   = color.New(color.FgCyan)
	Red    = color.New(color.FgRed)
	Bold   = color.New(color.Bold)
)

// InitColors enables or disables ANSI color globally based on the --no-color
// flag, the NO_COLOR env var, and whether stdout is a terminal.
func InitColors(noColor bool) {
	isTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	if noColor || os.Getenv("NO_COLOR") != "" || !isTTY {
		color.NoColor = true
	}
}

// Header prints a bold top-level section title.
func Header(title string) {
	_, _ = Bold.Printf("\n%s\n", title)
	fmt.Println(dashes(len(title)))
}

// SubHeader prints a secondary section title.
func SubHeader(title string) {
	_, _ = Bold.Printf("\n%s\n", title)
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func Info(msg string)                       { fmt.Println(msg) }
func Infof(format string, args ...any)       { fmt.Printf(format+"\n", args...) }
func Success(msg string)                     { _, _ = Green.Println(msg) }
func Successf(format string, args ...any)    { _, _ = Green.Printf(format+"\n", args...) }
func Warning(msg string)                     { _, _ = Yellow.Println(msg) }
func Warningf(format string, args ...any)    { _, _ = Yellow.Printf(format+"\n", args...) }
func ErrorMsg(msg string)                    { _, _ = Red.Println(msg) }

// Label renders a dim field-name prefix, e.g. "Run ID:".
func Label(s string) string {
	return Dim.Sprint(s)
}

// DimText renders arbitrary text in the dim color.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders an integer count in bold, without digit grouping.
func CountText(n int) string {
	return Bold.Sprint(n)
}
