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

package trust

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_FloorsConfidenceAtZero(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "trust.json"))
	s.Apply("r1", OutcomeFailure)
	rt := s.Apply("r1", OutcomeFailure)
	assert.Equal(t, 0.0, rt.Confidence)
	assert.Equal(t, 2, rt.Failures)
}

func TestApply_AccumulatesSuccess(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "trust.json"))
	s.Apply("r1", OutcomeSuccess)
	rt := s.Apply("r1", OutcomeSuccess)
	assert.InDelta(t, 0.10, rt.Confidence, 1e-9)
	assert.Equal(t, 2, rt.Runs)
}

func TestRank_OrdersByConfidenceThenRunsThenID(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "trust.json"))
	s.Apply("b", OutcomeSuccess)
	s.Apply("a", OutcomeSuccess)
	s.Apply("a", OutcomeSuccess)
	s.Apply("c", OutcomeSuccess) // ties with b on confidence and runs; id breaks the tie

	ranked := s.Rank([]string{"a", "b", "c"})
	require.Equal(t, []string{"a", "b", "c"}, ranked)
}

func TestSaveAndReopen_PersistsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trust.json")
	s := Open(path)
	s.Apply("r1", OutcomeSuccess)
	require.NoError(t, s.Save())

	reopened := Open(path)
	assert.Equal(t, 1, reopened.Get("r1").Runs)
}

func TestReplay_MatchesApplySequence(t *testing.T) {
	now := time.Now()
	stream := []RecipeOutcome{
		{RecipeID: "r1", Outcome: OutcomeSuccess, Timestamp: now},
		{RecipeID: "r1", Outcome: OutcomeRollback, Timestamp: now},
		{RecipeID: "r1", Outcome: OutcomeSuccess, Timestamp: now},
	}

	s := Open(filepath.Join(t.TempDir(), "trust.json"))
	for _, ro := range stream {
		s.Apply(ro.RecipeID, ro.Outcome)
	}

	replayed := Replay(stream)
	live := s.Get("r1")
	assert.Equal(t, live.Runs, replayed["r1"].Runs)
	assert.Equal(t, live.Successes, replayed["r1"].Successes)
	assert.Equal(t, live.Rollbacks, replayed["r1"].Rollbacks)
	assert.InDelta(t, live.Confidence, replayed["r1"].Confidence, 1e-9)
}
