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

// Package orchestrator implements C9, the ODAVL phase state machine. A
// single orchestrator drives one run at a time, strictly serial, sequencing
// OBSERVE -> DECIDE -> ACT -> VERIFY -> LEARN with a ROLLBACK branch on gate
// violation or cancellation mid-ACT. It is the one package that imports
// every other odavl component, wiring them together; nothing downstream
// imports back into it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kraklabs/odavl/internal/metrics"
	"github.com/kraklabs/odavl/pkg/odavl/attest"
	"github.com/kraklabs/odavl/pkg/odavl/detect"
	"github.com/kraklabs/odavl/pkg/odavl/gate"
	"github.com/kraklabs/odavl/pkg/odavl/model"
	"github.com/kraklabs/odavl/pkg/odavl/policy"
	"github.com/kraklabs/odavl/pkg/odavl/recipe"
	"github.com/kraklabs/odavl/pkg/odavl/snapshot"
	"github.com/kraklabs/odavl/pkg/odavl/trust"
)

// Phase names the orchestrator's state machine states.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseObserve  Phase = "OBSERVE"
	PhaseDecide   Phase = "DECIDE"
	PhaseAct      Phase = "ACT"
	PhaseVerify   Phase = "VERIFY"
	PhaseLearn    Phase = "LEARN"
	PhaseRollback Phase = "ROLLBACK"
)

// Metrics is the OBSERVE/VERIFY snapshot compared across a run.
type Metrics struct {
	IssueCounts map[model.Severity]int
	TypeErrors  int
	Warnings    int
}

// Orchestrator owns every component a single run touches.
type Orchestrator struct {
	Executor    *detect.Executor
	Recipes     map[string]recipe.Recipe
	Trust       *trust.Store
	Gate        model.RiskBudget
	Snapshots   *snapshot.Store
	Attestation *attest.Chain
	Policy      *policy.Ledger
	Logger      *slog.Logger
}

// RunReport is what a completed run returns to its caller (CLI or
// `odavl --watch` loop).
type RunReport struct {
	Outcome        model.RunOutcome
	RecipesApplied []string
	Snapshot       *model.Snapshot
	Observed       Metrics
	Verified       Metrics
	GateVerdict    gate.Verdict
	AttestationID  string
	Cancelled      bool
}

// Run executes one full ODAVL cycle over files, per spec §4.9.
func (o *Orchestrator) Run(ctx context.Context, files []string) (RunReport, error) {
	return o.run(ctx, files, nil)
}

// RunPlan executes one ODAVL cycle with DECIDE restricted to onlyRecipes
// (the `apply --plan` CLI surface): OBSERVE and VERIFY are unchanged, but
// only the named recipes are eligible for selection.
func (o *Orchestrator) RunPlan(ctx context.Context, files []string, onlyRecipes []string) (RunReport, error) {
	return o.run(ctx, files, onlyRecipes)
}

// Verify re-runs OBSERVE, DECIDE, and the pre-action gate check without
// ever reaching ACT. Its RunReport.Outcome reflects the gate's verdict:
// OutcomeSuccess if a plan exists and is admitted, OutcomeNoop otherwise
// (no viable plan, or the gate rejects it) — the CLI maps this directly
// to spec §6's "exit matches gate result" contract for `odavl verify`.
func (o *Orchestrator) Verify(ctx context.Context, files []string) (RunReport, error) {
	observed := o.runExecutor(ctx, files)
	observedMetrics := summarize(observed.Issues)
	if ctx.Err() != nil {
		return RunReport{Outcome: model.OutcomeAborted, Cancelled: true, Observed: observedMetrics}, nil
	}

	candidates := o.recipeIDs()
	ranked := o.Trust.Rank(candidates)
	plan, plannedRecipes, _, err := o.decide(ctx, ranked, observed.Issues)
	if err != nil {
		return RunReport{}, err
	}
	if len(plannedRecipes) == 0 {
		return RunReport{Outcome: model.OutcomeNoop, Observed: observedMetrics, Verified: observedMetrics}, nil
	}

	verdict := gate.EvaluatePre(plan, o.Gate)
	outcome := model.OutcomeNoop
	if verdict.Admitted {
		outcome = model.OutcomeSuccess
	}
	return RunReport{
		Outcome:        outcome,
		RecipesApplied: plannedRecipes,
		Observed:       observedMetrics,
		Verified:       observedMetrics,
		GateVerdict:    verdict,
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, files []string, onlyRecipes []string) (RunReport, error) {
	start := time.Now()
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// OBSERVE
	phaseStart := time.Now()
	observed := o.runExecutor(ctx, files)
	metrics.PhaseDuration.WithLabelValues(string(PhaseObserve)).Observe(time.Since(phaseStart).Seconds())
	logger.Info("odavl.observe", "files", len(files), "issues", len(observed.Issues))

	if ctx.Err() != nil {
		return o.cancelReport(ctx, "observe", nil)
	}

	observedMetrics := summarize(observed.Issues)

	// DECIDE
	phaseStart = time.Now()
	candidates := o.recipeIDs()
	if len(onlyRecipes) > 0 {
		candidates = intersect(candidates, onlyRecipes)
	}
	ranked := o.Trust.Rank(candidates)
	plan, plannedRecipes, changes, decideErr := o.decide(ctx, ranked, observed.Issues)
	metrics.PhaseDuration.WithLabelValues(string(PhaseDecide)).Observe(time.Since(phaseStart).Seconds())
	if decideErr != nil {
		return RunReport{}, decideErr
	}

	if len(plannedRecipes) == 0 {
		logger.Info("odavl.decide.noop")
		rec, err := o.recordRun(model.OutcomeNoop, nil, observedMetrics, observedMetrics)
		return RunReport{Outcome: model.OutcomeNoop, Observed: observedMetrics, Verified: observedMetrics, AttestationID: attestationID(rec)}, err
	}

	preVerdict := gate.EvaluatePre(plan, o.Gate)
	if !preVerdict.Admitted {
		metrics.GateViolationsTotal.WithLabelValues("pre").Inc()
		logger.Warn("odavl.decide.rejected", "reason", preVerdict.Reason)
		rec, err := o.recordRun(model.OutcomeNoop, nil, observedMetrics, observedMetrics)
		return RunReport{Outcome: model.OutcomeNoop, GateVerdict: preVerdict, Observed: observedMetrics, Verified: observedMetrics, AttestationID: attestationID(rec)}, err
	}

	if ctx.Err() != nil {
		return o.cancelReport(ctx, "decide", nil)
	}

	// ACT
	phaseStart = time.Now()
	snap, touched, actErr := o.act(ctx, changes, plan)
	metrics.PhaseDuration.WithLabelValues(string(PhaseAct)).Observe(time.Since(phaseStart).Seconds())
	if actErr != nil {
		return o.rollback(ctx, snap, plannedRecipes, observedMetrics, actErr)
	}
	if ctx.Err() != nil {
		return o.rollback(ctx, snap, plannedRecipes, observedMetrics, ctx.Err())
	}

	// VERIFY
	phaseStart = time.Now()
	verifyResult := o.runExecutor(ctx, touched)
	metrics.PhaseDuration.WithLabelValues(string(PhaseVerify)).Observe(time.Since(phaseStart).Seconds())
	verifiedMetrics := summarize(verifyResult.Issues)

	plan.PostTypeErrors = verifiedMetrics.TypeErrors
	plan.PostWarnings = verifiedMetrics.Warnings
	plan.PreTypeErrors = observedMetrics.TypeErrors
	plan.PreWarnings = observedMetrics.Warnings

	postVerdict := gate.EvaluatePost(plan, o.Gate)
	if ctx.Err() != nil || !postVerdict.Admitted {
		if !postVerdict.Admitted {
			metrics.GateViolationsTotal.WithLabelValues("post").Inc()
			logger.Warn("odavl.verify.violation", "reason", postVerdict.Reason)
		}
		report, err := o.rollback(ctx, snap, plannedRecipes, observedMetrics, fmt.Errorf("gate violation: %s", postVerdict.Reason))
		report.GateVerdict = postVerdict
		return report, err
	}

	// LEARN (success)
	for _, id := range plannedRecipes {
		o.Trust.Apply(id, trust.OutcomeSuccess)
	}
	rec, err := o.recordRun(model.OutcomeSuccess, plannedRecipes, observedMetrics, verifiedMetrics)
	if pruneErr := o.Snapshots.Prune(); pruneErr != nil {
		logger.Warn("odavl.learn.prune", "err", pruneErr)
	}
	metrics.RunsTotal.WithLabelValues(string(model.OutcomeSuccess)).Inc()
	logger.Info("odavl.learn.success", "recipes", plannedRecipes, "elapsed", time.Since(start))

	return RunReport{
		Outcome:        model.OutcomeSuccess,
		RecipesApplied: plannedRecipes,
		Snapshot:       snap,
		Observed:       observedMetrics,
		Verified:       verifiedMetrics,
		GateVerdict:    postVerdict,
		AttestationID:  attestationID(rec),
	}, err
}

func (o *Orchestrator) runExecutor(ctx context.Context, files []string) detect.RunResult {
	return o.Executor.Run(ctx, files)
}

// decide asks each trust-ranked recipe to plan its changes against the
// observed issues, admits the ones whose declared limits still fit inside
// the running budget, and returns the concrete file changes ACT will apply.
// Recipes perform no I/O in Plan, so calling it here (rather than deferring
// to ACT) lets the gate's forbidden-path check see real file paths before
// anything is written.
func (o *Orchestrator) decide(ctx context.Context, rankedIDs []string, issues []model.Issue) (model.Plan, []string, []recipe.FileChange, error) {
	plan := model.Plan{RiskScores: map[string]float64{}}
	var chosen []string
	var changes []recipe.FileChange
	touchedFiles := map[string]bool{}

	rctx := recipe.Context{WorkspaceRoot: o.Executor.WorkspaceRoot(), Issues: issues}

	for _, id := range rankedIDs {
		if ctx.Err() != nil {
			return plan, nil, nil, ctx.Err()
		}
		r, ok := o.Recipes[id]
		if !ok {
			continue
		}
		decl := r.Declaration()
		mp, err := r.Plan(ctx, rctx)
		if err != nil {
			return plan, nil, nil, fmt.Errorf("recipe %s: %w", id, err)
		}
		if len(mp.Changes) == 0 {
			continue
		}

		loc := estimateLOC(mp.Changes)
		projectedFiles := len(touchedFiles)
		for _, ch := range mp.Changes {
			if !touchedFiles[ch.Path] {
				projectedFiles++
			}
		}
		projectedLOC := plan.EstimatedLOCChange + loc
		if projectedFiles > o.Gate.MaxFilesPerRun || projectedLOC > o.Gate.MaxLinesOfCodeChange {
			continue
		}
		if decl.MaxFilesTouched > 0 && len(mp.Changes) > decl.MaxFilesTouched {
			continue
		}

		chosen = append(chosen, id)
		plan.Recipes = append(plan.Recipes, id)
		plan.EstimatedLOCChange = projectedLOC
		plan.RiskScores[id] = decl.RiskScore
		changes = append(changes, mp.Changes...)
		for _, ch := range mp.Changes {
			if !touchedFiles[ch.Path] {
				touchedFiles[ch.Path] = true
				plan.Files = append(plan.Files, ch.Path)
			}
		}
	}
	sort.Strings(plan.Files)
	return plan, chosen, changes, nil
}

func estimateLOC(changes []recipe.FileChange) int {
	total := 0
	for _, ch := range changes {
		total += len(bytesSplitLines(ch.NewContent))
	}
	return total
}

func bytesSplitLines(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}

// act snapshots the pre-change content of every touched file and writes
// the already-computed changes to disk, returning the touched files so
// VERIFY can re-scan them.
func (o *Orchestrator) act(ctx context.Context, allChanges []recipe.FileChange, plan model.Plan) (*model.Snapshot, []string, error) {
	rootPath := o.Executor.WorkspaceRoot()
	preContent := map[string][]byte{}
	postContent := map[string][]byte{}
	touchedSet := map[string]bool{}

	for _, ch := range allChanges {
		abs := ch.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(rootPath, ch.Path)
		}
		if pre, err := os.ReadFile(abs); err == nil {
			preContent[abs] = pre
		} else {
			preContent[abs] = nil
		}
		postContent[abs] = ch.NewContent
		touchedSet[abs] = true
	}

	snap, err := o.Snapshots.Capture(planStringFromPlan(plan), preContent, postContent)
	if err != nil {
		return nil, nil, err
	}

	for abs, content := range postContent {
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return snap, nil, err
		}
		if err := os.WriteFile(abs, content, 0644); err != nil {
			return snap, nil, err
		}
	}

	touched := make([]string, 0, len(touchedSet))
	for p := range touchedSet {
		touched = append(touched, p)
	}
	sort.Strings(touched)
	return snap, touched, nil
}

func planStringFromPlan(p model.Plan) string {
	return fmt.Sprintf("%v", p.Recipes)
}

// rollback restores the pre-action snapshot, records a recovery
// attestation, applies the rollback outcome to trust, and proceeds to LEARN.
func (o *Orchestrator) rollback(ctx context.Context, snap *model.Snapshot, recipeIDs []string, observed Metrics, cause error) (RunReport, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if snap != nil {
		if _, err := o.Snapshots.Restore(snap.ID); err != nil {
			logger.Error("odavl.rollback.restore_failed", "err", err)
		}
	}

	recoveryRec, err := o.Attestation.Append(model.RunTypeRecovery, map[string]any{
		"snapshotId": snapshotID(snap),
		"cause":      cause.Error(),
		"recipes":    recipeIDs,
	})
	if err != nil {
		logger.Error("odavl.rollback.attest_failed", "err", err)
	}

	for _, id := range recipeIDs {
		o.Trust.Apply(id, trust.OutcomeRollback)
	}

	rec, learnErr := o.recordRun(model.OutcomeRolledBack, recipeIDs, observed, observed)
	metrics.RunsTotal.WithLabelValues(string(model.OutcomeRolledBack)).Inc()
	metrics.RollbacksTotal.Inc()
	logger.Warn("odavl.rollback", "cause", cause, "recipes", recipeIDs)

	report := RunReport{
		Outcome:        model.OutcomeRolledBack,
		RecipesApplied: recipeIDs,
		Snapshot:       snap,
		Observed:       observed,
		Verified:       observed,
		AttestationID:  attestationID(rec),
	}
	if recoveryRec != nil {
		report.AttestationID = recoveryRec.RunID
	}
	if learnErr != nil {
		return report, learnErr
	}
	return report, err
}

// cancelReport handles an external cancel observed between states that
// never reached ACT: finish the current state, append a cancelled record,
// skip everything destructive.
func (o *Orchestrator) cancelReport(ctx context.Context, atPhase string, recipeIDs []string) (RunReport, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("odavl.cancelled", "phase", atPhase)
	rec, err := o.recordRun(model.OutcomeAborted, recipeIDs, Metrics{}, Metrics{})
	metrics.RunsTotal.WithLabelValues(string(model.OutcomeAborted)).Inc()
	return RunReport{Outcome: model.OutcomeAborted, Cancelled: true, AttestationID: attestationID(rec)}, err
}

// recordRun appends a run-history entry, appends a core attestation, and
// lets the policy ledger evaluate adaptive adjustments, per LEARN's
// semantics. It is idempotent: calling it twice for the same logical run is
// safe since each call appends independent, self-describing records.
func (o *Orchestrator) recordRun(outcome model.RunOutcome, recipeIDs []string, observed, verified Metrics) (*model.Attestation, error) {
	trustBefore, trustAfter := 0.0, 0.0
	for _, id := range recipeIDs {
		t := o.Trust.Get(id)
		trustAfter = t.Confidence
	}
	if err := o.Trust.Save(); err != nil {
		return nil, err
	}

	rec, err := o.Attestation.Append(model.RunTypeCore, map[string]any{
		"outcome":        outcome,
		"recipesApplied": recipeIDs,
		"observed":       observed,
		"verified":       verified,
	})
	if err != nil {
		return nil, err
	}

	entry := model.RunHistoryEntry{
		Timestamp:      time.Now(),
		Outcome:        outcome,
		TrustBefore:    trustBefore,
		TrustAfter:     trustAfter,
		RecipesApplied: recipeIDs,
		AttestationID:  rec.RunID,
	}
	if err := o.Policy.AppendRun(entry); err != nil {
		return rec, err
	}

	adj := policy.Evaluate(o.Policy.History(), o.Gate)
	if adj.Changed {
		o.Gate = adj.Budget
		if err := o.Policy.AppendPolicy(adj.Entry); err != nil {
			return rec, err
		}
		if _, err := o.Attestation.Append(model.RunTypeGovernance, adj.Entry); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

func intersect(all, only []string) []string {
	allowed := map[string]bool{}
	for _, id := range only {
		allowed[id] = true
	}
	var out []string
	for _, id := range all {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) recipeIDs() []string {
	ids := make([]string, 0, len(o.Recipes))
	for id := range o.Recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func summarize(issues []model.Issue) Metrics {
	counts := map[model.Severity]int{}
	typeErrors, warnings := 0, 0
	for _, iss := range issues {
		counts[iss.Severity]++
		if iss.RuleID == "govet/diagnostic" || iss.RuleID == "gofmt/parse-error" {
			typeErrors++
		}
		if iss.Severity == model.SeverityMedium || iss.Severity == model.SeverityLow {
			warnings++
		}
	}
	return Metrics{IssueCounts: counts, TypeErrors: typeErrors, Warnings: warnings}
}

func attestationID(rec *model.Attestation) string {
	if rec == nil {
		return ""
	}
	return rec.RunID
}

func snapshotID(s *model.Snapshot) string {
	if s == nil {
		return ""
	}
	return s.ID
}
