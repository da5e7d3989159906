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

package guest

import (
	"context"
	"fmt"

	"github.com/alexandremahdhaoui/swanbench/pkg/vmrun"
)

var (
	_ Guest           = (*VMRun)(nil)
	_ PowerController = (*VMRun)(nil)
)

// VMRun reaches a guest through VMware Tools using the vmrun CLI.
type VMRun struct {
	name   string
	client *vmrun.Client
}

// NewVMRun returns a Guest backed by client. The client must be bound to the
// VM and carry guest credentials.
func NewVMRun(name string, client *vmrun.Client) *VMRun {
	return &VMRun{name: name, client: client}
}

// Name implements Guest.
func (g *VMRun) Name() string { return g.name }

// Client returns the underlying vmrun client.
func (g *VMRun) Client() *vmrun.Client { return g.client }

// Push implements Guest.
func (g *VMRun) Push(ctx context.Context, hostPath, guestPath string) error {
	res, err := g.client.CopyFileFromHostToGuest(ctx, hostPath, guestPath)
	return g.check(OpPush, res, err)
}

// Fetch implements Guest.
func (g *VMRun) Fetch(ctx context.Context, guestPath, hostPath string) error {
	res, err := g.client.CopyFileFromGuestToHost(ctx, guestPath, hostPath)
	return g.check(OpFetch, res, err)
}

// Run implements Guest. vmrun does not relay the program's output, so the
// returned string holds whatever vmrun itself printed.
func (g *VMRun) Run(ctx context.Context, program string, args ...string) (string, error) {
	res, err := g.client.RunProgramInGuest(ctx, vmrun.Program{Path: program, Args: args})
	return res.Output, g.check(OpRun, res, err)
}

// Start implements PowerController.
func (g *VMRun) Start(ctx context.Context, noGUI bool) error {
	res, err := g.client.Start(ctx, noGUI)
	return g.check(OpStart, res, err)
}

// Stop implements PowerController.
func (g *VMRun) Stop(ctx context.Context, hard bool) error {
	res, err := g.client.Stop(ctx, hard)
	return g.check(OpStop, res, err)
}

func (g *VMRun) check(op string, res vmrun.Result, err error) error {
	if err != nil {
		return transportError(g.name, op, err)
	}

	if res.Status == vmrun.StatusExecutableNotFound && res.Output == vmrun.OutputExecutableNotFound {
		return transportError(g.name, op, fmt.Errorf("%s: %s", g.client.Executable(), res.Output))
	}

	if !res.OK() {
		return &CommandError{Guest: g.name, Op: op, Status: res.Status, Output: res.Output}
	}

	return nil
}
