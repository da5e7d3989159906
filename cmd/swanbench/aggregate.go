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
	"fmt"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/internal/results"
)

// cmdAggregate reads timing logs only; it never talks to a guest.
func (a *app) cmdAggregate(args []string) error {
	fs, common := a.newFlagSet("aggregate")
	dataDir := fs.String("data-dir", "", "directory holding the timing logs (default: config hostDataPath)")
	format := fs.String("format", string(results.FormatText), "report format: text, json or csv")
	planPath := fs.String("plan", "", "plan file (default: config planPath, then the built-in plan)")
	summaryPath := fs.String("summary", "", "use the plan recorded in this run summary")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := results.ParseFormat(*format)
	if err != nil {
		return err
	}

	cfg, err := a.setup(common)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.HostDataPath = *dataDir
	}
	if cfg.HostDataPath == "" {
		return fmt.Errorf("--data-dir: %w", ErrHostDataPathRequired)
	}
	if *planPath != "" {
		cfg.PlanPath = *planPath
	}

	var plan *benchmark.Plan
	if *summaryPath != "" {
		summary, err := benchmark.LoadSummary(*summaryPath)
		if err != nil {
			return err
		}
		plan = &summary.Plan
	} else if plan, err = loadPlan(cfg.PlanPath); err != nil {
		return err
	}

	agg := results.Aggregate(cfg.HostDataPath, plan, a.log.WithName("results"))
	return results.WriteReport(a.stdout, agg, f)
}
