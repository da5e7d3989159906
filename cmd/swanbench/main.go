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
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/go-logr/logr"
	"golang.org/x/term"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/internal/guest"
	"github.com/alexandremahdhaoui/swanbench/internal/metrics"
	"github.com/alexandremahdhaoui/swanbench/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/swanbench/internal/util/logging"
	"github.com/alexandremahdhaoui/swanbench/pkg/execcontext"
	"github.com/alexandremahdhaoui/swanbench/pkg/vmrun"
)

const (
	Name = "swanbench"
)

var (
	Version        = "dev" //nolint:gochecknoglobals // set by ldflags
	CommitSHA      = "n/a" //nolint:gochecknoglobals // set by ldflags
	BuildTimestamp = "n/a" //nolint:gochecknoglobals // set by ldflags
)

const usage = `Usage: swanbench <command> [options]

Commands:
  run                  Run the benchmark matrix against the initiator and responder
  collect              Fetch every timing log of the plan from the initiator
  aggregate            Aggregate the timing logs of a data directory into a report
  proposals <kem>...   Compose a proposal and write it into both swanctl.conf files
  ps                   List (or kill) processes in a guest through vmrun
  version              Print the version
  help                 Show this help

Common options:
  --config <path>      Config file (default $SWANBENCH_CONFIG_PATH)
  --env-file <path>    Dotenv file loaded first (default ./.env when present)
  --v <level>          Log verbosity; 1 logs every vmrun and ssh command

Environment Variables:
  CAROL_VM_PATH, CAROL_USER, CAROL_PASSWORD, CAROL_CONF_PATH,
  CAROL_RELOAD_SCRIPT, CAROL_BENCHMARK_SCRIPT   Initiator settings
  MOON_VM_PATH, MOON_USER, MOON_PASSWORD, MOON_CONF_PATH,
  MOON_RELOAD_SCRIPT                            Responder settings
  CERTIFICATES_PATH        Host directory holding one sub-directory per certificate
  HOST_DATA_PATH           Host directory receiving the timing logs
  GUEST_MEASUREMENTS_PATH  Guest directory the benchmark script writes to
  VMRUN_PATH               vmrun executable (default: looked up in PATH)

Examples:
  # Run the built-in matrix and print a report of the collected logs
  swanbench run --report text

  # Aggregate logs fetched earlier as CSV
  swanbench aggregate --data-dir ./data --format csv

  # Switch both nodes to a hybrid Kyber proposal
  swanbench proposals ke1_kyber3-x25519

  # List the benchmark processes on the responder
  swanbench ps --node moon
`

// app holds the process-level dependencies of the subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	getenv   func(string) string
	lookPath func(string) (string, error)
	// runner replaces the vmrun process runner when set.
	runner vmrun.Runner

	log logr.Logger
}

// ------------------------------------------------- Main ----------------------------------------------------------- //

func main() {
	a := &app{
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		log:      logr.Discard(),
	}

	gracefulshutdown.New(Name).Run(func(ctx context.Context) int {
		return a.run(ctx, os.Args[1:])
	})
}

// run dispatches args to a subcommand and returns the exit code.
func (a *app) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		_, _ = fmt.Fprint(a.stderr, usage)
		return 1
	}

	command, rest := args[0], args[1:]

	var err error
	switch command {
	case "run":
		err = a.cmdRun(ctx, rest)
	case "collect":
		err = a.cmdCollect(ctx, rest)
	case "aggregate":
		err = a.cmdAggregate(rest)
	case "proposals":
		err = a.cmdProposals(rest)
	case "ps":
		err = a.cmdPS(ctx, rest)
	case "version":
		_, _ = fmt.Fprintf(a.stdout, "%s version %s (%s) %s\n", Name, Version, CommitSHA, BuildTimestamp)
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(a.stdout, usage)
	default:
		_, _ = fmt.Fprintf(a.stderr, "Error: unknown command '%s'\n", command)
		_, _ = fmt.Fprint(a.stderr, usage)
		return 1
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// ------------------------------------------------- Setup ---------------------------------------------------------- //

type commonFlags struct {
	configPath string
	envFile    string
	verbosity  int
}

func (a *app) newFlagSet(command string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(Name+" "+command, flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	c := &commonFlags{}
	fs.StringVar(&c.configPath, "config", "", "config file (default $"+ConfigPathEnvKey+")")
	fs.StringVar(&c.envFile, "env-file", "", "dotenv file loaded first (default ./"+DefaultEnvFile+" when present)")
	fs.IntVar(&c.verbosity, "v", 0, "log verbosity; 1 logs every vmrun and ssh command")

	return fs, c
}

// setup loads the env file, configures logging and loads the config.
func (a *app) setup(c *commonFlags) (*Config, error) {
	if err := loadEnvFile(c.envFile); err != nil {
		return nil, err
	}

	a.log = logging.Setup(logging.Options{
		Development: term.IsTerminal(int(os.Stderr.Fd())),
		Verbosity:   c.verbosity,
		Output:      a.stderr,
	})

	return loadConfig(c.configPath, a.getenv)
}

func loadPlan(path string) (*benchmark.Plan, error) {
	if path == "" {
		return benchmark.DefaultPlan(), nil
	}
	return benchmark.NewLoader("").Load(path)
}

// vmrunClient returns a client bound to the node's VM. Invocations are
// counted on m when it is not nil.
func (a *app) vmrunClient(cfg *Config, n NodeConfig, m *metrics.Metrics) *vmrun.Client {
	execCtx := execcontext.Empty()
	if cfg.Sudo {
		execCtx = execcontext.New(nil, []string{"sudo"})
	}

	runner := a.runner
	if runner == nil {
		runner = vmrun.NewExecRunner(execCtx)
	}
	if m != nil {
		runner = m.InstrumentRunner(runner)
	}

	return vmrun.New(cfg.VMRunPath,
		vmrun.WithTarget(n.target(cfg.HostType)),
		vmrun.WithRunner(runner),
		vmrun.WithExecContext(execCtx),
		vmrun.WithLogger(a.log.WithName("vmrun").WithValues("node", n.Name)),
	)
}

// newGuest returns the guest of n and a func releasing its connection.
func (a *app) newGuest(cfg *Config, n NodeConfig, m *metrics.Metrics) (guest.Guest, func() error, error) {
	noop := func() error { return nil }

	if n.Transport != guest.TransportSSH {
		return guest.NewVMRun(n.Name, a.vmrunClient(cfg, n, m)), noop, nil
	}

	g, err := guest.NewSSH(n.Name, *n.SSH, guest.WithSSHLogger(a.log.WithName("ssh").WithValues("node", n.Name)))
	if err != nil {
		return nil, noop, err
	}
	if n.VMPath == "" {
		return g, g.Close, nil
	}

	return guest.Powered{
		Guest:           g,
		PowerController: guest.NewVMRun(n.Name, a.vmrunClient(cfg, n, m)),
	}, g.Close, nil
}

// newBenchmarkRunner validates cfg and builds a benchmark runner. The returned
// func closes guest connections and must always be called.
func (a *app) newBenchmarkRunner(
	cfg *Config,
	m *metrics.Metrics,
	opts ...benchmark.Option,
) (*benchmark.Runner, func(), error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.log.Error(err, "closing guest connection")
			}
		}
	}

	if cfg.usesVMRun() {
		if err := cfg.resolveVMRun(a.lookPath); err != nil {
			return nil, closeAll, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, closeAll, err
	}

	nodes := make([]benchmark.Node, 0, 2)
	for _, n := range []NodeConfig{cfg.Initiator, cfg.Responder} {
		g, closer, err := a.newGuest(cfg, n, m)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, closer)

		nodes = append(nodes, benchmark.Node{
			Name:            n.Name,
			Guest:           g,
			ConfPath:        n.ConfPath,
			ReloadScript:    n.ReloadScript,
			Password:        n.Password,
			BenchmarkScript: n.BenchmarkScript,
		})
	}

	opts = append(opts,
		benchmark.WithLogger(a.log.WithName("benchmark")),
		benchmark.WithSummaryDir(cfg.SummaryDir),
	)
	if cfg.GuestMeasurementsPath != "" || cfg.HostDataPath != "" {
		opts = append(opts, benchmark.WithCollection(cfg.GuestMeasurementsPath, cfg.HostDataPath))
	}
	if cfg.Power.Start {
		opts = append(opts, benchmark.WithPower(cfg.Power.NoGUI, cfg.Power.StopAfter))
	}

	runner, err := benchmark.NewRunner(nodes[0], nodes[1], cfg.CertificatesPath, opts...)
	if err != nil {
		return nil, closeAll, err
	}
	return runner, closeAll, nil
}
