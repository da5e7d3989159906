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
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/alexandremahdhaoui/swanbench/pkg/vmrun"
)

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrProcessNotFound = errors.New("process not found")
	ErrVMRunStatus     = errors.New("vmrun reported a failure")
)

func (a *app) cmdPS(ctx context.Context, args []string) error {
	fs, common := a.newFlagSet("ps")
	node := fs.String("node", "", "node to inspect (default: the initiator)")
	pid := fs.Int("pid", 0, "show only this process")
	kill := fs.Int("kill", 0, "kill this process instead of listing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := a.setup(common)
	if err != nil {
		return err
	}

	n := cfg.Initiator
	switch *node {
	case "", cfg.Initiator.Name:
	case cfg.Responder.Name:
		n = cfg.Responder
	default:
		return fmt.Errorf("%w %q: want %q or %q", ErrUnknownNode, *node, cfg.Initiator.Name, cfg.Responder.Name)
	}
	if n.VMPath == "" {
		return fmt.Errorf("node %q: %w", n.Name, ErrVMPathRequired)
	}
	if err := cfg.resolveVMRun(a.lookPath); err != nil {
		return err
	}

	client := a.vmrunClient(cfg, n, nil)

	if *kill != 0 {
		res, err := client.KillProcessInGuest(ctx, *kill)
		if err != nil {
			return err
		}
		return checkResult(res)
	}

	var procs []vmrun.Process
	if *pid != 0 {
		p, res, err := client.GetProcessByID(ctx, *pid)
		if err != nil {
			return err
		}
		if err := checkResult(res); err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: pid %d on %s", ErrProcessNotFound, *pid, n.Name)
		}
		procs = append(procs, *p)
	} else {
		list, res, err := client.ListProcessesInGuest(ctx)
		if err != nil {
			return err
		}
		if err := checkResult(res); err != nil {
			return err
		}
		procs = slices.Collect(maps.Values(list))
	}

	slices.SortFunc(procs, comparePID)

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PID\tOWNER\tCMD")
	for _, p := range procs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.PID, p.Owner, p.Cmd)
	}
	return w.Flush()
}

func checkResult(res vmrun.Result) error {
	if res.OK() {
		return nil
	}
	return fmt.Errorf("%w: status %d: %s", ErrVMRunStatus, res.Status, res.Output)
}

// comparePID orders numerically, falling back to string order for PIDs that
// are not numbers.
func comparePID(a, b vmrun.Process) int {
	x, errX := strconv.Atoi(a.PID)
	y, errY := strconv.Atoi(b.PID)
	if errX != nil || errY != nil {
		return cmp.Compare(a.PID, b.PID)
	}
	return cmp.Compare(x, y)
}
