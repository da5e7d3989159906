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

package vmrun

import (
	"context"
	"strconv"
	"strings"
)

const (
	processFieldSep = ", "
	processFields   = 3
)

// ParseProcessList parses the output of listProcessesInGuest:
//
//	Process list: 2
//	pid=1, owner=root, cmd=/sbin/init
//	pid=812, owner=carol, cmd=/usr/sbin/charon-systemd
//
// The first line is a header. Every other line must hold exactly three
// key=value fields in the order pid, owner, cmd. Lines that do not are
// skipped; the number of skipped lines is returned.
func ParseProcessList(output string) (Processes, int) {
	processes := make(Processes)
	skipped := 0

	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return processes, 0
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}

		p, ok := parseProcessLine(line)
		if !ok {
			skipped++
			continue
		}
		processes[p.PID] = p
	}

	return processes, skipped
}

func parseProcessLine(line string) (Process, bool) {
	items := strings.Split(line, processFieldSep)
	if len(items) != processFields {
		return Process{}, false
	}

	values := make([]string, processFields)
	for i, item := range items {
		_, v, found := strings.Cut(item, "=")
		if !found {
			return Process{}, false
		}
		values[i] = v
	}

	return Process{PID: values[0], Owner: values[1], Cmd: values[2]}, true
}

// RunProgramInGuest runs a program inside the guest. Guest credentials must be set.
func (c *Client) RunProgramInGuest(ctx context.Context, p Program, opts ...CallOption) (Result, error) {
	options := append(p.tokens(), p.Path)
	options = append(options, p.Args...)
	return c.vm(ctx, "runProgramInGuest", opts, options...)
}

// RunScriptInGuest runs script text through interpreter inside the guest.
func (c *Client) RunScriptInGuest(ctx context.Context, s Script, opts ...CallOption) (Result, error) {
	options := append(s.tokens(), s.Interpreter, s.Text)
	return c.vm(ctx, "runScriptInGuest", opts, options...)
}

// ListProcessesInGuest lists guest processes. The parsed map is nil when vmrun
// reports a non-zero status; the raw Result is always returned.
func (c *Client) ListProcessesInGuest(ctx context.Context, opts ...CallOption) (Processes, Result, error) {
	res, err := c.vm(ctx, "listProcessesInGuest", opts)
	if err != nil || !res.OK() {
		return nil, res, err
	}

	processes, skipped := ParseProcessList(res.Output)
	if skipped > 0 {
		c.log.V(1).Info("skipped malformed process lines", "count", skipped)
	}

	return processes, res, nil
}

// GetProcessByID returns the guest process with the given PID, or nil when it
// is not listed or the listing failed.
func (c *Client) GetProcessByID(ctx context.Context, pid int, opts ...CallOption) (*Process, Result, error) {
	processes, res, err := c.ListProcessesInGuest(ctx, opts...)
	if err != nil {
		return nil, res, err
	}

	p, ok := processes[strconv.Itoa(pid)]
	if !ok {
		return nil, res, nil
	}

	return &p, res, nil
}

func (c *Client) KillProcessInGuest(ctx context.Context, pid int, opts ...CallOption) (Result, error) {
	return c.vm(ctx, "killProcessInGuest", opts, strconv.Itoa(pid))
}
