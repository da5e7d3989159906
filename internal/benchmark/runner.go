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

// Package benchmark drives the tunnel-establishment benchmark across an
// initiator and a responder VM.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alexandremahdhaoui/swanbench/internal/guest"
	"github.com/alexandremahdhaoui/swanbench/pkg/strongswan"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

var (
	ErrNodeNameRequired        = errors.New("node name is required")
	ErrNodeGuestRequired       = errors.New("node guest is required")
	ErrConfPathRequired        = errors.New("node swanctl.conf path is required")
	ErrBenchmarkScriptRequired = errors.New("initiator benchmark script is required")
	ErrCertificatesDirRequired = errors.New("certificates directory is required")
	ErrCollectDirsRequired     = errors.New("guest measurements and host data directories are required")

	ErrUpdateProposals = errors.New("failed to update proposals")
	ErrAborted         = errors.New("benchmark aborted")
)

// Locations of the swanctl files inside the guests.
const (
	GuestCertDir  = "/etc/swanctl/x509"
	GuestKeyDir   = "/etc/swanctl/pkcs8"
	GuestCADir    = "/etc/swanctl/x509ca"
	GuestConfPath = "/etc/swanctl/swanctl.conf"

	caCertFile = "caCert.pem"
	logExt     = ".txt"
)

// Node is one end of the tunnel.
type Node struct {
	// Name is the node's identity; certificate files are named after it, e.g.
	// carolCert.pem.
	Name  string
	Guest guest.Guest
	// ConfPath is the host-side swanctl.conf pushed to the guest.
	ConfPath string
	// ReloadScript is run in the guest after each configuration change, with
	// Password as its only argument. Skipped when empty.
	ReloadScript string
	// Password is handed to guest scripts for sudo.
	Password string
	// BenchmarkScript is run on the initiator as
	// "<script> <cert> <kem> <mode> <iterations> <password>".
	BenchmarkScript string
}

func (n Node) validate(initiator bool) error {
	var errs []error
	if n.Name == "" {
		errs = append(errs, ErrNodeNameRequired)
	}
	if n.Guest == nil {
		errs = append(errs, ErrNodeGuestRequired)
	}
	if n.ConfPath == "" {
		errs = append(errs, ErrConfPathRequired)
	}
	if initiator && n.BenchmarkScript == "" {
		errs = append(errs, ErrBenchmarkScriptRequired)
	}
	if len(errs) > 0 {
		return fmt.Errorf("node %q: %w", n.Name, errors.Join(errs...))
	}
	return nil
}

// Observer is notified after every benchmark script invocation.
type Observer interface {
	ObserveRun(rec RunRecord)
}

// Runner executes a Plan.
type Runner struct {
	initiator Node
	responder Node
	editor    *strongswan.Editor

	certificatesDir      string
	guestMeasurementsDir string
	hostDataDir          string
	collect              bool
	summaryDir           string

	startVMs  bool
	noGUI     bool
	stopAfter bool

	observers []Observer
	log       logr.Logger
	now       func() time.Time
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

// WithCollection fetches each timing log from guestMeasurementsDir on the
// initiator into hostDataDir right after it is produced.
func WithCollection(guestMeasurementsDir, hostDataDir string) Option {
	return func(r *Runner) {
		r.guestMeasurementsDir = guestMeasurementsDir
		r.hostDataDir = hostDataDir
		r.collect = true
	}
}

// WithSummaryDir persists the run summary into dir.
func WithSummaryDir(dir string) Option {
	return func(r *Runner) {
		r.summaryDir = dir
	}
}

// WithPower starts both VMs before the matrix, headless when noGUI is set,
// and soft-stops them afterwards when stopAfter is set. Nodes whose guest is
// not a guest.PowerController are left alone.
func WithPower(noGUI, stopAfter bool) Option {
	return func(r *Runner) {
		r.startVMs = true
		r.noGUI = noGUI
		r.stopAfter = stopAfter
	}
}

func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, o)
	}
}

func WithLogger(log logr.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner returns a Runner benchmarking initiator against responder.
// Certificates are read from certificatesDir/<certificate>/.
func NewRunner(initiator, responder Node, certificatesDir string, opts ...Option) (*Runner, error) {
	r := &Runner{
		initiator:       initiator,
		responder:       responder,
		editor:          strongswan.NewEditor(initiator.ConfPath, responder.ConfPath),
		certificatesDir: certificatesDir,
		log:             logr.Discard(),
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	var errs []error
	if err := initiator.validate(true); err != nil {
		errs = append(errs, err)
	}
	if err := responder.validate(false); err != nil {
		errs = append(errs, err)
	}
	if certificatesDir == "" {
		errs = append(errs, ErrCertificatesDirRequired)
	}
	if r.collect && (r.guestMeasurementsDir == "" || r.hostDataDir == "") {
		errs = append(errs, ErrCollectDirsRequired)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return r, nil
}

func (r *Runner) nodes() []Node {
	return []Node{r.initiator, r.responder}
}

// Run executes the plan: certificates in the outer loop, KEM proposals in the
// middle and modes innermost. Guest operations that fail with
// guest.ErrCommandFailed are recorded as warnings and the run continues.
// Transport faults, proposal file errors and context cancellation abort the
// run. The summary is returned, and saved when configured, in every case.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Summary, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	s := &Summary{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		StartTime: r.now(),
		Plan:      *plan,
		Runs:      make([]RunRecord, 0, len(plan.Combinations())),
	}
	log := r.log.WithValues("runID", s.ID)

	err := r.run(ctx, log, plan, s)
	if r.stopAfter {
		// The stop must go through even when ctx was cancelled.
		err = errors.Join(err, r.power(context.WithoutCancel(ctx), log, s, guest.OpStop))
	}

	s.EndTime = r.now()
	s.Duration = s.EndTime.Sub(s.StartTime).Seconds()
	s.Status = StatusCompleted
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
	}

	if r.summaryDir != "" {
		p, saveErr := s.Save(r.summaryDir)
		if saveErr != nil {
			err = errors.Join(err, saveErr)
		} else {
			log.Info("saved summary", "path", p)
		}
	}

	log.Info("benchmark finished", "status", s.Status, "runs", len(s.Runs), "warnings", len(s.Warnings))
	return s, err
}

func (r *Runner) run(ctx context.Context, log logr.Logger, plan *Plan, s *Summary) error {
	if r.startVMs {
		if err := r.power(ctx, log, s, guest.OpStart); err != nil {
			return err
		}
	}

	iterations := strconv.Itoa(plan.Iterations)

	for _, cert := range plan.Certificates {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
		if err := r.installCertificates(ctx, log, s, cert); err != nil {
			return err
		}

		for _, kem := range plan.KEMProposals {
			proposal := strongswan.ComposeProposal(plan.BaseProposal, kem)
			if err := r.applyProposal(ctx, log, s, proposal); err != nil {
				return err
			}

			for _, mode := range plan.Modes {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %w", ErrAborted, err)
				}

				rec, err := r.benchmark(ctx, log, cert, kem, mode.Name, proposal, iterations)
				s.Runs = append(s.Runs, rec)
				s.Warnings = append(s.Warnings, rec.Warnings...)
				for _, o := range r.observers {
					o.ObserveRun(rec)
				}
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (r *Runner) power(ctx context.Context, log logr.Logger, s *Summary, op string) error {
	for _, n := range r.nodes() {
		pc, ok := n.Guest.(guest.PowerController)
		if !ok {
			log.V(1).Info("guest has no power control", "node", n.Name, "op", op)
			continue
		}

		var err error
		switch op {
		case guest.OpStart:
			log.Info("starting VM", "node", n.Name, "nogui", r.noGUI)
			err = pc.Start(ctx, r.noGUI)
		case guest.OpStop:
			log.Info("stopping VM", "node", n.Name)
			err = pc.Stop(ctx, false)
		}

		if err := r.tolerate(log, &s.Warnings, err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) installCertificates(ctx context.Context, log logr.Logger, s *Summary, cert string) error {
	log.Info("updating certificates", "certificate", cert)
	dir := filepath.Join(r.certificatesDir, cert)

	for _, n := range r.nodes() {
		files := []struct{ host, guest string }{
			{filepath.Join(dir, n.Name+"Cert.pem"), path.Join(GuestCertDir, n.Name+"Cert.pem")},
			{filepath.Join(dir, n.Name+"Key.pem"), path.Join(GuestKeyDir, n.Name+"Key.pem")},
			{filepath.Join(dir, caCertFile), path.Join(GuestCADir, caCertFile)},
		}

		for _, f := range files {
			err := n.Guest.Push(ctx, f.host, f.guest)
			if err := r.tolerate(log, &s.Warnings, err); err != nil {
				return err
			}
		}
	}

	log.Info("updated certificates", "certificate", cert)
	return nil
}

func (r *Runner) applyProposal(ctx context.Context, log logr.Logger, s *Summary, proposal string) error {
	log.Info("updating proposals", "proposals", proposal)

	if err := r.editor.UpdateProposals(proposal); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateProposals, err)
	}

	for _, n := range r.nodes() {
		err := n.Guest.Push(ctx, n.ConfPath, GuestConfPath)
		if err := r.tolerate(log, &s.Warnings, err); err != nil {
			return err
		}
	}

	for _, n := range r.nodes() {
		if n.ReloadScript == "" {
			continue
		}
		_, err := n.Guest.Run(ctx, n.ReloadScript, n.Password)
		if err := r.tolerate(log, &s.Warnings, err); err != nil {
			return err
		}
	}

	log.Info("updated proposals", "proposals", proposal)
	return nil
}

func (r *Runner) benchmark(
	ctx context.Context,
	log logr.Logger,
	cert, kem, mode, proposal, iterations string,
) (RunRecord, error) {
	rec := RunRecord{
		Certificate: cert,
		KEM:         kem,
		Mode:        mode,
		Proposal:    proposal,
		LogName:     LogName(cert, kem, mode),
		StartTime:   r.now(),
	}

	_, err := r.initiator.Guest.Run(ctx, r.initiator.BenchmarkScript,
		cert, kem, mode, iterations, r.initiator.Password)
	rec.Duration = r.now().Sub(rec.StartTime).Seconds()
	if err := r.tolerate(log, &rec.Warnings, err); err != nil {
		return rec, err
	}

	if r.collect {
		err := r.fetchLog(ctx, rec.LogName)
		if err == nil {
			rec.Collected = true
		}
		if err := r.tolerate(log, &rec.Warnings, err); err != nil {
			return rec, err
		}
	}

	log.Info("completed benchmark",
		"certificate", cert, "kem", kem, "mode", mode,
		"iterations", iterations, "duration", rec.Duration)
	return rec, nil
}

func (r *Runner) fetchLog(ctx context.Context, logName string) error {
	return r.initiator.Guest.Fetch(ctx,
		path.Join(r.guestMeasurementsDir, logName+logExt),
		filepath.Join(r.hostDataDir, logName+logExt))
}

// Collect fetches the timing log of every combination of plan from the
// initiator into the host data directory. Missing logs are skipped with a
// warning. It returns the log names that were fetched.
func (r *Runner) Collect(ctx context.Context, plan *Plan) ([]string, error) {
	if !r.collect {
		return nil, ErrCollectDirsRequired
	}

	var fetched, warnings []string
	for _, c := range plan.Combinations() {
		if err := ctx.Err(); err != nil {
			return fetched, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		err := r.fetchLog(ctx, c.LogName())
		if err == nil {
			fetched = append(fetched, c.LogName())
		}
		if err := r.tolerate(r.log, &warnings, err); err != nil {
			return fetched, err
		}
	}

	r.log.Info("collected timing logs", "fetched", len(fetched), "missing", len(warnings))
	return fetched, nil
}

// tolerate records command failures as warnings and returns any other error.
func (r *Runner) tolerate(log logr.Logger, warnings *[]string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, guest.ErrCommandFailed) {
		log.Info("warning: guest command failed", "err", err.Error())
		*warnings = append(*warnings, err.Error())
		return nil
	}

	return fmt.Errorf("%w: %w", ErrAborted, err)
}
