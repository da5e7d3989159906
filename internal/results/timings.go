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

// Package results turns the timing logs written by the benchmark script into
// per-combination statistics and reports.
package results

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNoTimings    = errors.New("timing log holds no samples")
	ErrParseTimings = errors.New("failed to parse timing log")
)

// ReadTimings reads a timing log: one duration in seconds per line. Blank
// lines are ignored.
func ReadTimings(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, err := ParseTimings(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// ParseTimings is ReadTimings over a reader.
func ParseTimings(r io.Reader) ([]float64, error) {
	var samples []float64

	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrParseTimings, n, line)
		}
		samples = append(samples, v)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseTimings, err)
	}

	if len(samples) == 0 {
		return nil, ErrNoTimings
	}

	return samples, nil
}
