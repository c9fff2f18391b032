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

// Package trust implements C8, the recipe trust scorer: per-recipe
// confidence maintained as a pure, replayable fold over an outcome stream
// (spec §4.8, P9).
package trust

import (
	"sort"
	"sync"
	"time"

	"github.com/kraklabs/odavl/internal/atomicfile"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// Outcome is one recipe invocation's result, the unit of the outcome stream.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRollback Outcome = "rollback"
)

// Deltas are the confidence adjustments applied per outcome kind. Exported
// so Replay can be driven with the same constants used by Apply.
var Deltas = map[Outcome]float64{
	OutcomeSuccess:  0.05,
	OutcomeFailure:  -0.10,
	OutcomeRollback: -0.05,
}

// Store persists per-recipe trust state at <odavlDir>/recipes-trust.json.
type Store struct {
	path string

	mu    sync.Mutex
	trust map[string]model.RecipeTrust
}

func Open(path string) *Store {
	s := &Store{path: path, trust: map[string]model.RecipeTrust{}}
	var onDisk map[string]model.RecipeTrust
	if err := atomicfile.ReadJSON(path, &onDisk); err == nil {
		s.trust = onDisk
	}
	return s
}

// Apply folds one outcome into recipeID's confidence, following the update
// rule of spec §4.8: confidence is unbounded above, floored at 0.
func (s *Store) Apply(recipeID string, outcome Outcome) model.RecipeTrust {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt := s.trust[recipeID]
	rt.Runs++
	switch outcome {
	case OutcomeSuccess:
		rt.Successes++
	case OutcomeFailure:
		rt.Failures++
	case OutcomeRollback:
		rt.Rollbacks++
	}
	rt.Confidence += Deltas[outcome]
	if rt.Confidence < 0 {
		rt.Confidence = 0
	}
	rt.LastUpdated = time.Now()
	s.trust[recipeID] = rt
	return rt
}

// Get returns the current trust state for a recipe (zero value if unknown).
func (s *Store) Get(recipeID string) model.RecipeTrust {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust[recipeID]
}

// Save persists the current state atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicfile.WriteJSON(s.path, s.trust, 0600)
}

// Rank orders recipe IDs by confidence desc, tie-broken by runs desc then id
// asc, per spec §4.8's deterministic ranking query.
func (s *Store) Rank(recipeIDs []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := append([]string(nil), recipeIDs...)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := s.trust[ranked[i]], s.trust[ranked[j]]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Runs != b.Runs {
			return a.Runs > b.Runs
		}
		return ranked[i] < ranked[j]
	})
	return ranked
}

// Replay rebuilds trust state from zero given the full outcome stream,
// recipe by recipe, and returns the resulting state. Used to prove P9:
// replaying the stream reproduces the current confidences exactly.
func Replay(stream []RecipeOutcome) map[string]model.RecipeTrust {
	trust := map[string]model.RecipeTrust{}
	for _, ro := range stream {
		rt := trust[ro.RecipeID]
		rt.Runs++
		switch ro.Outcome {
		case OutcomeSuccess:
			rt.Successes++
		case OutcomeFailure:
			rt.Failures++
		case OutcomeRollback:
			rt.Rollbacks++
		}
		rt.Confidence += Deltas[ro.Outcome]
		if rt.Confidence < 0 {
			rt.Confidence = 0
		}
		rt.LastUpdated = ro.Timestamp
		trust[ro.RecipeID] = rt
	}
	return trust
}

// RecipeOutcome is one entry in the replayable outcome stream.
type RecipeOutcome struct {
	RecipeID  string
	Outcome   Outcome
	Timestamp time.Time
}
