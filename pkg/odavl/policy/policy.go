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

// Package policy implements C11, the append-only policy ledger and its
// adaptive governance rule: scaling risk-budget limits from the rolling
// trust trend observed in recent run history.
package policy

import (
	"math"
	"sync"
	"time"

	"github.com/kraklabs/odavl/internal/atomicfile"
	"github.com/kraklabs/odavl/pkg/odavl/model"
)

// Ledger persists PolicyLedgerEntry records at <odavlDir>/policy-ledger/history.json
// and RunHistoryEntry records at <odavlDir>/history.json.
type Ledger struct {
	policyPath string
	historyPath string

	mu      sync.Mutex
	entries []model.PolicyLedgerEntry
	history []model.RunHistoryEntry
}

func Open(policyPath, historyPath string) *Ledger {
	l := &Ledger{policyPath: policyPath, historyPath: historyPath}
	_ = atomicfile.ReadJSON(policyPath, &l.entries)
	_ = atomicfile.ReadJSON(historyPath, &l.history)
	return l
}

// AppendPolicy appends a ledger entry; never rewrites prior entries (I3, P7).
func (l *Ledger) AppendPolicy(entry model.PolicyLedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return atomicfile.WriteJSON(l.policyPath, l.entries, 0600)
}

// AppendRun appends a run-history entry; never rewrites prior entries.
func (l *Ledger) AppendRun(entry model.RunHistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, entry)
	return atomicfile.WriteJSON(l.historyPath, l.history, 0600)
}

// History returns a defensive copy of the run history.
func (l *Ledger) History() []model.RunHistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.RunHistoryEntry, len(l.history))
	copy(out, l.history)
	return out
}

// PolicyEntries returns a defensive copy of the policy ledger.
func (l *Ledger) PolicyEntries() []model.PolicyLedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.PolicyLedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

const (
	raiseWindow     = 5
	raiseThreshold  = 0.90
	lowerWindow     = 3
	lowerThreshold  = 0.80
	scalePct        = 0.10
)

// Adjustment describes a governance decision: Changed is false when the
// rolling trust trend warrants no action.
type Adjustment struct {
	Changed bool
	Budget  model.RiskBudget
	Entry   model.PolicyLedgerEntry
}

// Evaluate implements spec §4.11: inspect the rolling mean trust over the
// last run-history entries and scale maxFilesPerRun / maxLinesOfCodeChange
// accordingly. maxTypeErrorsAfter and forbidden paths are never touched
// here; they require an explicit MANUAL_OVERRIDE entry.
func Evaluate(history []model.RunHistoryEntry, current model.RiskBudget) Adjustment {
	raiseMean, raiseOK := rollingMeanOfSuccesses(history, raiseWindow)
	if raiseOK && raiseMean >= raiseThreshold {
		return scale(current, scalePct, raiseMean, math.Ceil)
	}

	lowerMean, lowerOK := rollingMean(history, lowerWindow)
	if lowerOK && lowerMean < lowerThreshold {
		return scale(current, -scalePct, lowerMean, math.Floor)
	}

	return Adjustment{Changed: false, Budget: current}
}

func rollingMean(history []model.RunHistoryEntry, window int) (float64, bool) {
	if len(history) < window {
		return 0, false
	}
	recent := history[len(history)-window:]
	var sum float64
	for _, h := range recent {
		sum += h.TrustAfter
	}
	return sum / float64(window), true
}

// rollingMeanOfSuccesses mirrors rollingMean but restricted to the window's
// success-outcome entries, matching the spec wording "last 5 successful
// runs" for the raise rule.
func rollingMeanOfSuccesses(history []model.RunHistoryEntry, window int) (float64, bool) {
	var successes []model.RunHistoryEntry
	for i := len(history) - 1; i >= 0 && len(successes) < window; i-- {
		if history[i].Outcome == model.OutcomeSuccess {
			successes = append(successes, history[i])
		}
	}
	if len(successes) < window {
		return 0, false
	}
	var sum float64
	for _, h := range successes {
		sum += h.TrustAfter
	}
	return sum / float64(window), true
}

func scale(budget model.RiskBudget, pct, trust float64, round func(float64) float64) Adjustment {
	newBudget := budget
	changes := map[string]model.FieldChange{}

	newFiles := int(round(float64(budget.MaxFilesPerRun) * (1 + pct)))
	if newFiles < 1 {
		newFiles = 1
	}
	if newFiles != budget.MaxFilesPerRun {
		changes["maxFilesPerRun"] = model.FieldChange{Old: float64(budget.MaxFilesPerRun), New: float64(newFiles), DeltaPct: pct * 100}
		newBudget.MaxFilesPerRun = newFiles
	}

	newLOC := int(round(float64(budget.MaxLinesOfCodeChange) * (1 + pct)))
	if newLOC < 1 {
		newLOC = 1
	}
	if newLOC != budget.MaxLinesOfCodeChange {
		changes["maxLinesOfCodeChange"] = model.FieldChange{Old: float64(budget.MaxLinesOfCodeChange), New: float64(newLOC), DeltaPct: pct * 100}
		newBudget.MaxLinesOfCodeChange = newLOC
	}

	if len(changes) == 0 {
		return Adjustment{Changed: false, Budget: budget}
	}

	direction := "raised"
	if pct < 0 {
		direction = "lowered"
	}

	entry := model.PolicyLedgerEntry{
		Timestamp:        time.Now(),
		Event:            model.PolicyAdaptiveAdjustment,
		Changes:          changes,
		Reason:           "rolling trust trend " + direction + " limits",
		TrustScoreAtTime: trust,
	}
	return Adjustment{Changed: true, Budget: newBudget, Entry: entry}
}
