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

package results

import (
	"path/filepath"
	"slices"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const msPerSecond = 1000

// Stat holds the statistics of one combination. Durations are in milliseconds.
type Stat struct {
	Certificate string  `json:"certificate"`
	KEM         string  `json:"kem"`
	KEMLabel    string  `json:"kemLabel"`
	Mode        string  `json:"mode"`
	ModeLabel   string  `json:"modeLabel"`
	LogName     string  `json:"logName"`
	Iterations  int     `json:"iterations"`
	MeanMs      float64 `json:"meanMs"`
	MedianMs    float64 `json:"medianMs"`
	MinMs       float64 `json:"minMs"`
	MaxMs       float64 `json:"maxMs"`
	StdDevMs    float64 `json:"stdDevMs"`
}

// Aggregation is the result of aggregating a data directory.
type Aggregation struct {
	Stats []Stat `json:"stats"`
	// Missing lists the log names that were absent or unreadable.
	Missing []string `json:"missing,omitempty"`
}

// Aggregate reads "<dataDir>/<log name>.txt" for every combination of plan,
// mode first, then certificate, then KEM. Logs that are missing or cannot be
// parsed are reported through log and listed in Missing; they never fail the
// aggregation.
func Aggregate(dataDir string, plan *benchmark.Plan, log logr.Logger) *Aggregation {
	agg := &Aggregation{Stats: make([]Stat, 0, len(plan.Combinations()))}

	for _, c := range plan.Combinations() {
		name := c.LogName()
		path := filepath.Join(dataDir, name+".txt")

		samples, err := ReadTimings(path)
		if err != nil {
			log.Info("warning: skipping timing log", "path", path, "err", err.Error())
			agg.Missing = append(agg.Missing, name)
			continue
		}

		s := Summarize(samples)
		s.Certificate = c.Certificate
		s.KEM = c.KEM
		s.KEMLabel = plan.KEMLabel(c.KEM)
		s.Mode = c.Mode.Name
		s.ModeLabel = c.Mode.DisplayName()
		s.LogName = name

		log.Info("aggregated timing log",
			"log", name, "meanMs", s.MeanMs, "iterations", s.Iterations)
		agg.Stats = append(agg.Stats, s)
	}

	return agg
}

// Summarize computes the statistics of samples given in seconds. samples must
// not be empty.
func Summarize(samples []float64) Stat {
	ms := make([]float64, len(samples))
	for i, v := range samples {
		ms[i] = v * msPerSecond
	}

	s := Stat{
		Iterations: len(ms),
		MeanMs:     stat.Mean(ms, nil),
		MinMs:      floats.Min(ms),
		MaxMs:      floats.Max(ms),
		MedianMs:   median(ms),
	}
	if len(ms) > 1 {
		s.StdDevMs = stat.StdDev(ms, nil)
	}
	return s
}

// median averages the two middle values of an even-sized sample.
func median(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
