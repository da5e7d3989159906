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

// Package guest moves files into and out of a benchmark VM and runs programs
// inside it, either through vmrun or over SSH.
package guest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCommandFailed is matched by errors reporting that the guest rejected an
	// operation while the transport itself kept working.
	ErrCommandFailed = errors.New("guest command failed")
	// ErrTransport is matched by errors reporting that the guest could not be reached.
	ErrTransport = errors.New("guest transport failed")
)

// Transport names accepted in configuration.
const (
	TransportVMRun = "vmrun"
	TransportSSH   = "ssh"
)

// Guest is a VM the benchmark drives.
type Guest interface {
	// Name identifies the guest in logs and file names, e.g. "carol".
	Name() string
	// Push copies hostPath on the host to guestPath in the guest.
	Push(ctx context.Context, hostPath, guestPath string) error
	// Fetch copies guestPath in the guest to hostPath on the host.
	Fetch(ctx context.Context, guestPath, hostPath string) error
	// Run executes program with args inside the guest and returns its output.
	Run(ctx context.Context, program string, args ...string) (string, error)
}

// PowerController is implemented by guests whose power state can be managed.
type PowerController interface {
	Start(ctx context.Context, noGUI bool) error
	Stop(ctx context.Context, hard bool) error
}

// Powered pairs a Guest with a separate PowerController, such as an SSH guest
// whose VM is started and stopped through vmrun.
type Powered struct {
	Guest
	PowerController
}

// Operation names carried by CommandError.
const (
	OpPush  = "push"
	OpFetch = "fetch"
	OpRun   = "run"
	OpStart = "start"
	OpStop  = "stop"
)

// CommandError describes a guest operation that completed with a failure status.
type CommandError struct {
	Guest  string
	Op     string
	Status int
	Output string
	// Err is the underlying cause, if any.
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s on %s: status %d", ErrCommandFailed, e.Op, e.Guest, e.Status)
	if e.Output != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCommandFailed}
	}
	return []error{ErrCommandFailed, e.Err}
}

func transportError(guest, op string, err error) error {
	return fmt.Errorf("%w: %s on %s: %w", ErrTransport, op, guest, err)
}
