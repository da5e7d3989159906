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
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ReportFormat specifies the output format for reports
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ParseFormat maps a flag value to a ReportFormat.
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

var columns = []string{
	"Mode", "Certificate", "KEM", "Iterations",
	"Mean (ms)", "Median (ms)", "Min (ms)", "Max (ms)", "StdDev (ms)",
}

// WriteReport renders agg to w in format.
func WriteReport(w io.Writer, agg *Aggregation, format ReportFormat) error {
	switch format {
	case FormatText:
		return writeText(w, agg)
	case FormatJSON:
		return writeJSON(w, agg)
	case FormatCSV:
		return writeCSV(w, agg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func writeText(w io.Writer, agg *Aggregation) error {
	var sb strings.Builder

	for _, s := range agg.Stats {
		sb.WriteString(fmt.Sprintf("%s.txt took %sms on average with %d iterations\n",
			s.LogName, ms(s.MeanMs), s.Iterations))
	}
	if len(agg.Stats) > 0 {
		sb.WriteString("\n")
	}

	table := tablewriter.NewWriter(&sb)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(columns)
	for _, s := range agg.Stats {
		table.Append([]string{
			s.ModeLabel,
			s.Certificate,
			s.KEMLabel,
			strconv.Itoa(s.Iterations),
			ms(s.MeanMs),
			ms(s.MedianMs),
			ms(s.MinMs),
			ms(s.MaxMs),
			ms(s.StdDevMs),
		})
	}
	table.Render()

	if len(agg.Missing) > 0 {
		sb.WriteString(fmt.Sprintf("\nMissing (%d):\n", len(agg.Missing)))
		for _, name := range agg.Missing {
			sb.WriteString(fmt.Sprintf("  - %s\n", name))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeJSON(w io.Writer, agg *Aggregation) error {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeCSV(w io.Writer, agg *Aggregation) error {
	cw := csv.NewWriter(w)

	header := []string{"mode", "certificate", "kem", "iterations", "mean_ms", "median_ms", "min_ms", "max_ms", "stddev_ms"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range agg.Stats {
		err := cw.Write([]string{
			s.Mode,
			s.Certificate,
			s.KEM,
			strconv.Itoa(s.Iterations),
			strconv.FormatFloat(s.MeanMs, 'f', -1, 64),
			strconv.FormatFloat(s.MedianMs, 'f', -1, 64),
			strconv.FormatFloat(s.MinMs, 'f', -1, 64),
			strconv.FormatFloat(s.MaxMs, 'f', -1, 64),
			strconv.FormatFloat(s.StdDevMs, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
