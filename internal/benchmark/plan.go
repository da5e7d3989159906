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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidPlan = errors.New("invalid benchmark plan")

// Mode is a network condition the initiator benchmark script knows how to
// apply, e.g. "0ping1pl".
type Mode struct {
	Name  string `json:"name"            yaml:"name"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DisplayName returns the label, or the name when no label is set.
func (m Mode) DisplayName() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Name
}

// Plan is the benchmark matrix: every certificate is combined with every KEM
// proposal under every mode.
type Plan struct {
	Certificates []string `json:"certificates" yaml:"certificates"`
	BaseProposal string   `json:"baseProposal" yaml:"baseProposal"`
	KEMProposals []string `json:"kemProposals" yaml:"kemProposals"`
	// KEMLabels optionally maps a KEM proposal to a short name used in reports.
	KEMLabels  map[string]string `json:"kemLabels,omitempty" yaml:"kemLabels,omitempty"`
	Modes      []Mode            `json:"modes"               yaml:"modes"`
	Iterations int               `json:"iterations"          yaml:"iterations"`
}

// DefaultPlan returns the matrix used for the published measurements.
func DefaultPlan() *Plan {
	return &Plan{
		Certificates: []string{
			"ed25519",
			"ecdsa",
			"rsa",
			"falcon512",
			"falcon1024",
			"dilithium2",
			"dilithium3",
			"dilithium5",
		},
		BaseProposal: "aes256-sha256",
		KEMProposals: []string{
			"x25519",
			"ke1_kyber1-x25519",
			"ke1_kyber3-x25519",
			"ke1_kyber5-x25519",
			"ke1_kyber3-ke2_bike3-ke3_hqc3-x25519",
		},
		KEMLabels: map[string]string{
			"x25519":                               "x25519",
			"ke1_kyber1-x25519":                    "Kyber1",
			"ke1_kyber3-x25519":                    "Kyber3",
			"ke1_kyber5-x25519":                    "Kyber5",
			"ke1_kyber3-ke2_bike3-ke3_hqc3-x25519": "Kyber3+Bike+Hqc",
		},
		Modes: []Mode{
			{Name: "unlimited", Label: "0% Packet Loss"},
			{Name: "05pl", Label: "1% Packet Loss"},
			{Name: "0ping1pl", Label: "2% Packet Loss"},
			{Name: "0ping25pl", Label: "5% Packet Loss"},
		},
		Iterations: 500,
	}
}

// KEMLabel returns the report label of kem.
func (p *Plan) KEMLabel(kem string) string {
	if l, ok := p.KEMLabels[kem]; ok && l != "" {
		return l
	}
	return kem
}

// Combination is one cell of the matrix.
type Combination struct {
	Certificate string `json:"certificate"`
	KEM         string `json:"kem"`
	Mode        Mode   `json:"mode"`
}

// LogName is the basename, without extension, of the timing log the guest
// writes for c: "<certificate>_<kem>_<mode>".
func (c Combination) LogName() string {
	return LogName(c.Certificate, c.KEM, c.Mode.Name)
}

func LogName(certificate, kem, mode string) string {
	return fmt.Sprintf("%s_%s_%s", certificate, kem, mode)
}

// Combinations lists the matrix mode first, then certificate, then KEM.
func (p *Plan) Combinations() []Combination {
	out := make([]Combination, 0, len(p.Modes)*len(p.Certificates)*len(p.KEMProposals))
	for _, m := range p.Modes {
		for _, cert := range p.Certificates {
			for _, kem := range p.KEMProposals {
				out = append(out, Combination{Certificate: cert, KEM: kem, Mode: m})
			}
		}
	}
	return out
}

// Validate reports every problem of the plan at once.
func (p *Plan) Validate() error {
	var errs []error

	errs = append(errs, validateNames("certificates", p.Certificates)...)
	errs = append(errs, validateNames("kemProposals", p.KEMProposals)...)

	modeNames := make([]string, 0, len(p.Modes))
	for _, m := range p.Modes {
		modeNames = append(modeNames, m.Name)
	}
	errs = append(errs, validateNames("modes", modeNames)...)

	if p.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations: must be greater than 0, got %d", p.Iterations))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPlan, errors.Join(errs...))
	}
	return nil
}

func validateNames(field string, names []string) []error {
	if len(names) == 0 {
		return []error{fmt.Errorf("%s: at least one entry is required", field)}
	}

	var errs []error
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		switch {
		case n == "":
			errs = append(errs, fmt.Errorf("%s[%d]: must not be empty", field, i))
		case strings.ContainsAny(n, `/\`):
			errs = append(errs, fmt.Errorf("%s[%d]: %q must not contain a path separator", field, i, n))
		case seen[n]:
			errs = append(errs, fmt.Errorf("%s[%d]: duplicate entry %q", field, i, n))
		}
		seen[n] = true
	}
	return errs
}

// Loader loads benchmark plans from YAML files.
type Loader struct {
	// basePath is the base directory for resolving relative paths
	basePath string
}

// NewLoader returns a Loader resolving relative paths against basePath, or
// the working directory when basePath is empty.
func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "."
	}
	return &Loader{basePath: basePath}
}

// Load reads, parses and validates the plan at path. Fields absent from the
// file keep their zero value; no defaults are merged in.
func (l *Loader) Load(path string) (*Plan, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.basePath, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan validation failed for %s: %w", path, err)
	}

	return &plan, nil
}
