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

// Package errors defines the typed, user-facing error model used throughout
// odavl. Every constructor carries a title, a detail, and a suggestion so the
// CLI can print actionable guidance instead of a bare Go error string.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Kind classifies a CIEError for exit-code mapping and machine consumption.
type Kind string

const (
	KindConfig     Kind = "config"
	KindInput      Kind = "input"
	KindInternal   Kind = "internal"
	KindPermission Kind = "permission"
	KindNetwork    Kind = "network"
	KindDatabase   Kind = "database"
)

// exitCodes maps each Kind to a process exit code: internal errors exit 1,
// config and input errors 2, permission 3, network 4, database 5.
var exitCodes = map[Kind]int{
	KindConfig:     2,
	KindInput:      2,
	KindPermission: 3,
	KindNetwork:    4,
	KindDatabase:   5,
	KindInternal:   1,
}

// CIEError is the structured error type returned by odavl's own code paths.
// Title is a one-line summary, Detail explains what went wrong, Suggestion
// tells the operator what to try next. Err wraps the underlying cause, if any.
type CIEError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

func (e *CIEError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Title, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *CIEError) Unwrap() error { return e.Err }

func newErr(kind Kind, title, detail, suggestion string, err error) *CIEError {
	return &CIEError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Err: err}
}

func NewConfigError(title, detail, suggestion string, err error) error {
	return newErr(KindConfig, title, detail, suggestion, err)
}

func NewInputError(title, detail, suggestion string, err error) error {
	return newErr(KindInput, title, detail, suggestion, err)
}

func NewInternalError(title, detail, suggestion string, err error) error {
	return newErr(KindInternal, title, detail, suggestion, err)
}

func NewPermissionError(title, detail, suggestion string, err error) error {
	return newErr(KindPermission, title, detail, suggestion, err)
}

func NewNetworkError(title, detail, suggestion string, err error) error {
	return newErr(KindNetwork, title, detail, suggestion, err)
}

func NewDatabaseError(title, detail, suggestion string, err error) error {
	return newErr(KindDatabase, title, detail, suggestion, err)
}

// FatalError prints err (as JSON when jsonMode is set, otherwise as
// human-readable stderr text) and terminates the process with an exit code
// derived from its Kind. Plain, non-CIEError errors exit 1.
func FatalError(err error, jsonMode bool) {
	if err == nil {
		return
	}

	cerr, ok := err.(*CIEError)
	if !ok {
		cerr = &CIEError{Kind: KindInternal, Title: err.Error()}
	}

	if jsonMode {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(map[string]any{
			"error":      cerr.Title,
			"kind":       cerr.Kind,
			"detail":     cerr.Detail,
			"suggestion": cerr.Suggestion,
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cerr.Title)
		if cerr.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", cerr.Detail)
		}
		if cerr.Err != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", cerr.Err)
		}
		if cerr.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "\n%s\n", cerr.Suggestion)
		}
	}

	code, ok := exitCodes[cerr.Kind]
	if !ok {
		code = 1
	}
	os.Exit(code)
}
