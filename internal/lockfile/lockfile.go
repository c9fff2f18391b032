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

// Package lockfile guards .odavl/ against concurrent writers. A run acquires
// the lock before OBSERVE begins and releases it after LEARN (or ROLLBACK)
// completes; a second process attempting to run concurrently fails fast
// rather than blocking indefinitely, per the shared-resource policy.
package lockfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/kraklabs/odavl/internal/errors"
)

const lockFileName = "run.lock"

// Lock is an exclusive, cross-process file lock over a workspace's .odavl
// directory.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock for the .odavl directory under odavlDir.
func New(odavlDir string) *Lock {
	return &Lock{fl: flock.New(filepath.Join(odavlDir, lockFileName))}
}

// TryAcquire attempts to take the lock without blocking. It returns a
// KindInternal-wrapped error describing contention if another process
// already holds it.
func (l *Lock) TryAcquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return errors.NewInternalError("Cannot acquire run lock", err.Error(), "check filesystem permissions on .odavl", err)
	}
	if !ok {
		return errors.NewInternalError(
			"Another odavl run is in progress",
			fmt.Sprintf("lock file %s is held by another process", l.fl.Path()),
			"wait for the other run to finish, or remove the lock file if it crashed",
			nil,
		)
	}
	return nil
}

// AcquireWithTimeout polls for the lock until it is acquired or timeout
// elapses, failing fast rather than blocking indefinitely.
func (l *Lock) AcquireWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ok, err := l.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return errors.NewInternalError("Cannot acquire run lock", err.Error(), "check filesystem permissions on .odavl", err)
	}
	if !ok {
		return errors.NewInternalError(
			"Timed out waiting for run lock",
			fmt.Sprintf("lock file %s stayed held for longer than %s", l.fl.Path(), timeout),
			"check whether another odavl run is actually in progress",
			nil,
		)
	}
	return nil
}

// Release unlocks the lock file. Safe to call on an unheld lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
