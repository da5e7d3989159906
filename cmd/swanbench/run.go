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

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/internal/metrics"
	"github.com/alexandremahdhaoui/swanbench/internal/results"
)

var ErrHostDataPathRequired = errors.New("hostDataPath is required")

func (a *app) cmdRun(ctx context.Context, args []string) error {
	fs, common := a.newFlagSet("run")
	planPath := fs.String("plan", "", "plan file (default: config planPath, then the built-in plan)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	report := fs.String("report", "", "after the run, print a report of the host data directory (text, json, csv)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := a.setup(common)
	if err != nil {
		return err
	}
	if *planPath != "" {
		cfg.PlanPath = *planPath
	}
	if *metricsAddr != "" {
		cfg.MetricsServer.Addr = *metricsAddr
	}

	var format results.ReportFormat
	if *report != "" {
		if format, err = results.ParseFormat(*report); err != nil {
			return err
		}
		if cfg.HostDataPath == "" {
			return fmt.Errorf("--report: %w", ErrHostDataPathRequired)
		}
	}

	plan, err := loadPlan(cfg.PlanPath)
	if err != nil {
		return err
	}

	m := metrics.New()
	runner, closeGuests, err := a.newBenchmarkRunner(cfg, m, benchmark.WithObserver(m))
	defer closeGuests()
	if err != nil {
		return err
	}

	// --------------------------------------------- Metrics Server ------------------------------------------------- //

	if cfg.MetricsServer.Addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		server := m.NewServer(cfg.MetricsServer.Addr, cfg.MetricsServer.Path)

		go func() { done <- metrics.Serve(srvCtx, server, a.log.WithName("metrics")) }()
		defer func() {
			cancel()
			if err := <-done; err != nil {
				a.log.Error(err, "metrics server")
			}
		}()
	}

	// --------------------------------------------- Benchmark ------------------------------------------------------ //

	summary, err := runner.Run(ctx, plan)
	if summary != nil {
		_, _ = fmt.Fprintf(a.stdout, "run %s %s: %d runs, %d warnings\n",
			summary.ID, summary.Status, len(summary.Runs), len(summary.Warnings))
	}
	if err != nil {
		return err
	}

	if format == "" {
		return nil
	}

	agg := results.Aggregate(cfg.HostDataPath, plan, a.log.WithName("results"))
	m.ObserveAggregation(agg)
	return results.WriteReport(a.stdout, agg, format)
}

func (a *app) cmdCollect(ctx context.Context, args []string) error {
	fs, common := a.newFlagSet("collect")
	planPath := fs.String("plan", "", "plan file (default: config planPath, then the built-in plan)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := a.setup(common)
	if err != nil {
		return err
	}
	if *planPath != "" {
		cfg.PlanPath = *planPath
	}

	plan, err := loadPlan(cfg.PlanPath)
	if err != nil {
		return err
	}

	runner, closeGuests, err := a.newBenchmarkRunner(cfg, nil)
	defer closeGuests()
	if err != nil {
		return err
	}

	fetched, err := runner.Collect(ctx, plan)
	for _, name := range fetched {
		_, _ = fmt.Fprintln(a.stdout, name)
	}
	return err
}
