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

// Package metrics exposes the ODAVL loop's Prometheus counters and gauges,
// served the same way the teacher serves its own /metrics endpoint: an
// optional background HTTP server started only when an address is given.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odavl_runs_total",
		Help: "ODAVL control loop runs, partitioned by terminal outcome.",
	}, []string{"outcome"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odavl_phase_duration_seconds",
		Help:    "Wall-clock duration of each ODAVL phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	GateViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "odavl_gate_violations_total",
		Help: "Risk-budget gate rejections, partitioned by stage (pre/post).",
	}, []string{"stage"})

	CacheHitRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "odavl_cache_hit_ratio",
		Help: "Fraction of detector lookups served from the incremental cache in the most recent run.",
	})

	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "odavl_rollbacks_total",
		Help: "Runs that reached ROLLBACK after a post-action gate violation.",
	})

	RecipeTrust = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odavl_recipe_trust",
		Help: "Current confidence score per recipe.",
	}, []string{"recipe_id"})
)

// Serve starts the /metrics endpoint in the background, mirroring the
// teacher's own metrics-server goroutine: it logs a start/error event and
// never blocks the caller or treats listener failure as fatal.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics.http.error", "err", err)
		}
	}()
}
