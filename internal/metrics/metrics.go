/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes Prometheus metrics for vmrun invocations and
// benchmark runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/internal/results"
	"github.com/alexandremahdhaoui/swanbench/pkg/vmrun"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "swanbench"

	DefaultPath = "/metrics"

	statusError = "error"
	resultOK    = "ok"
	resultWarn  = "warning"
)

var _ benchmark.Observer = (*Metrics)(nil)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	vmrunCalls        *prometheus.CounterVec
	vmrunDuration     *prometheus.HistogramVec
	benchmarkRuns     *prometheus.CounterVec
	benchmarkDuration *prometheus.HistogramVec
	averageMs         *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		vmrunCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vmrun",
			Name:      "invocations_total",
			Help:      "vmrun invocations by subcommand and exit status.",
		}, []string{"subcommand", "status"}),
		vmrunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vmrun",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of vmrun invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"subcommand"}),
		benchmarkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "benchmark_runs_total",
			Help:      "Benchmark script invocations by combination and result.",
		}, []string{"certificate", "kem", "mode", "result"}),
		benchmarkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "benchmark_duration_seconds",
			Help:      "Wall-clock duration of benchmark script invocations.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"mode"}),
		averageMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tunnel_establishment_mean_milliseconds",
			Help:      "Mean tunnel establishment time of the last aggregation.",
		}, []string{"certificate", "kem", "mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.vmrunCalls,
		m.vmrunDuration,
		m.benchmarkRuns,
		m.benchmarkDuration,
		m.averageMs,
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun implements benchmark.Observer.
func (m *Metrics) ObserveRun(rec benchmark.RunRecord) {
	result := resultOK
	if !rec.OK() {
		result = resultWarn
	}
	m.benchmarkRuns.WithLabelValues(rec.Certificate, rec.KEM, rec.Mode, result).Inc()
	m.benchmarkDuration.WithLabelValues(rec.Mode).Observe(rec.Duration)
}

// ObserveAggregation publishes the mean of every aggregated combination.
func (m *Metrics) ObserveAggregation(agg *results.Aggregation) {
	for _, s := range agg.Stats {
		m.averageMs.WithLabelValues(s.Certificate, s.KEM, s.Mode).Set(s.MeanMs)
	}
}

// InstrumentRunner wraps next so that every invocation is counted and timed.
func (m *Metrics) InstrumentRunner(next vmrun.Runner) vmrun.Runner {
	return &instrumentedRunner{next: next, m: m}
}

type instrumentedRunner struct {
	next vmrun.Runner
	m    *Metrics
}

func (r *instrumentedRunner) Run(ctx context.Context, cmd vmrun.Command) (vmrun.Result, error) {
	start := time.Now()
	res, err := r.next.Run(ctx, cmd)
	r.m.vmrunDuration.WithLabelValues(cmd.Subcommand).Observe(time.Since(start).Seconds())

	status := statusError
	if err == nil {
		status = strconv.Itoa(res.Status)
	}
	r.m.vmrunCalls.WithLabelValues(cmd.Subcommand, status).Inc()

	return res, err
}

// NewServer returns an HTTP server exposing the registry on path.
func (m *Metrics) NewServer(addr, path string) *http.Server {
	if path == "" {
		path = DefaultPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	return &http.Server{ //nolint:exhaustruct
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Serve runs server until ctx is done, then shuts it down with a one minute
// deadline. It returns once the server has stopped.
func Serve(ctx context.Context, server *http.Server, log logr.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-errCh
}
