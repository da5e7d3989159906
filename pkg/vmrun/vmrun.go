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

// Package vmrun wraps the VMware vmrun command-line utility.
//
// Each method maps to exactly one vmrun subcommand and spawns exactly one
// process. A non-zero exit status is not an error: it is returned as a Result
// for the caller to interpret. A missing vmrun executable is reported as
// Result{Status: 2, Output: "File not found!"}. Only faults that prevent the
// process from running at all, such as permission errors or context
// cancellation, are returned as errors.
package vmrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/alexandremahdhaoui/swanbench/pkg/execcontext"
	"github.com/go-logr/logr"
)

// ErrRun is wrapped by every error returned from a Client call.
var ErrRun = errors.New("failed to run vmrun")

// Runner executes an assembled vmrun command.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Client drives vmrun for one bound target.
//
// Setters are not safe to call concurrently with in-flight calls.
type Client struct {
	executable string
	target     Target
	runner     Runner
	execCtx    execcontext.Context
	log        logr.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTarget binds the client to t.
func WithTarget(t Target) Option {
	return func(c *Client) {
		c.target = t
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(c *Client) {
		c.runner = r
	}
}

// WithExecContext sets the environment and prepend command used to launch vmrun.
// The executable is looked up on the host PATH before the prepend command runs,
// so a missing vmrun still yields the "File not found!" result.
func WithExecContext(execCtx execcontext.Context) Option {
	return func(c *Client) {
		c.execCtx = execCtx
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New returns a Client invoking the vmrun binary at executable.
func New(executable string, opts ...Option) *Client {
	c := &Client{
		executable: executable,
		execCtx:    execcontext.Empty(),
		log:        logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.runner == nil {
		c.runner = NewExecRunner(c.execCtx)
	}

	return c
}

// Executable returns the path to the vmrun binary.
func (c *Client) Executable() string { return c.executable }

// Target returns a copy of the bound target.
func (c *Client) Target() Target { return c.target }

func (c *Client) SetExecutable(executable string) { c.executable = executable }

func (c *Client) SetVMPath(vmPath string) { c.target.VMPath = vmPath }

func (c *Client) SetHostType(hostType string) { c.target.HostType = hostType }

func (c *Client) SetVMPassword(password string) { c.target.VMPassword = password }

func (c *Client) SetGuestUser(user string) { c.target.GuestUser = user }

func (c *Client) SetGuestPassword(password string) { c.target.GuestPassword = password }

// Command assembles the invocation of subcommand against target with the
// given positional options. Global flags are taken from creds.
func (c *Client) Command(creds Target, subcommand, target string, options ...string) Command {
	var globals []string
	if creds.HostType != "" {
		globals = append(globals, "-T", creds.HostType)
	}
	if creds.VMPassword != "" {
		globals = append(globals, "-vp", creds.VMPassword)
	}
	if creds.GuestUser != "" {
		globals = append(globals, "-gu", creds.GuestUser)
	}
	if creds.GuestPassword != "" {
		globals = append(globals, "-gp", creds.GuestPassword)
	}

	return Command{
		Executable: c.executable,
		Globals:    globals,
		Subcommand: subcommand,
		Target:     target,
		Options:    options,
	}
}

func (c *Client) resolve(opts []CallOption) Target {
	t := c.target
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// vm runs a VM-scoped subcommand against the resolved target.
func (c *Client) vm(ctx context.Context, subcommand string, opts []CallOption, options ...string) (Result, error) {
	t := c.resolve(opts)
	return c.run(ctx, c.Command(t, subcommand, t.VMPath, options...), t)
}

// host runs a host-scoped subcommand; target takes the place of the VM path.
func (c *Client) host(ctx context.Context, subcommand, target string, options ...string) (Result, error) {
	return c.run(ctx, c.Command(c.target, subcommand, target, options...), c.target)
}

func (c *Client) run(ctx context.Context, cmd Command, creds Target) (Result, error) {
	printable := execcontext.FormatCmd(c.execCtx, cmd.Redacted(creds.VMPassword, creds.GuestPassword)...)
	c.log.V(1).Info("running vmrun", "subcommand", cmd.Subcommand, "cmd", printable)

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrRun, cmd.Subcommand, err)
	}

	if !res.OK() {
		c.log.V(1).Info("vmrun returned non-zero status",
			"subcommand", cmd.Subcommand, "status", res.Status, "output", res.Output)
	}

	return res, nil
}

// ExecRunner runs vmrun as a local subprocess.
type ExecRunner struct {
	execCtx execcontext.Context
}

// NewExecRunner returns a Runner spawning processes with execCtx applied.
func NewExecRunner(execCtx execcontext.Context) *ExecRunner {
	if execCtx == nil {
		execCtx = execcontext.Empty()
	}
	return &ExecRunner{execCtx: execCtx}
}

// Run implements Runner. It blocks until the process exits or ctx is done.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	argv := cmd.Argv()

	// A prepend command such as sudo would report its own status for a
	// missing vmrun, so look the executable up first.
	if len(r.execCtx.PrependCmd()) > 0 {
		if _, err := exec.LookPath(argv[0]); isNotFound(err) {
			return Result{Status: StatusExecutableNotFound, Output: OutputExecutableNotFound}, nil
		}
	}

	proc := exec.CommandContext(ctx, argv[0], argv[1:]...)
	execcontext.ApplyToCmd(r.execCtx, proc)

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	if err == nil {
		return Result{Status: 0, Output: strings.TrimSpace(stdout.String())}, nil
	}

	if isNotFound(err) {
		return Result{Status: StatusExecutableNotFound, Output: OutputExecutableNotFound}, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Status: exitErr.ExitCode(), Output: strings.TrimSpace(stdout.String())}, nil
	}

	return Result{}, err
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
