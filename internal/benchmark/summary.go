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

package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Summary statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Summary is the record of one benchmark run.
type Summary struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Duration  float64     `json:"duration"` // seconds
	Plan      Plan        `json:"plan"`
	Runs      []RunRecord `json:"runs"`
	Warnings  []string    `json:"warnings,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// RunRecord describes one invocation of the benchmark script.
type RunRecord struct {
	Certificate string    `json:"certificate"`
	KEM         string    `json:"kem"`
	Mode        string    `json:"mode"`
	Proposal    string    `json:"proposal"`
	LogName     string    `json:"logName"`
	StartTime   time.Time `json:"startTime"`
	Duration    float64   `json:"duration"` // seconds
	Collected   bool      `json:"collected"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// OK reports whether the run produced no warnings.
func (r RunRecord) OK() bool { return len(r.Warnings) == 0 }

// LogNames returns the log names of all runs, in execution order.
func (s *Summary) LogNames() []string {
	out := make([]string, 0, len(s.Runs))
	for _, r := range s.Runs {
		out = append(out, r.LogName)
	}
	return out
}

// Filename is the name Save writes the summary under.
func (s *Summary) Filename() string {
	return fmt.Sprintf("summary-%s.json", s.ID)
}

// Save writes the summary as indented JSON into dir and returns the file path.
func (s *Summary) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}

	path := filepath.Join(dir, s.Filename())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	return path, nil
}

// LoadSummary reads a summary written by Save.
func LoadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary %s: %w", path, err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary %s: %w", path, err)
	}

	return &s, nil
}
