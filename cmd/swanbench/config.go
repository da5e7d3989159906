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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"github.com/alexandremahdhaoui/swanbench/internal/guest"
	"github.com/alexandremahdhaoui/swanbench/pkg/vmrun"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path.
	ConfigPathEnvKey = "SWANBENCH_CONFIG_PATH"

	// DefaultEnvFile is loaded when present and no --env-file is given.
	DefaultEnvFile = ".env"

	vmrunExecutable = "vmrun"

	carolPrefix = "CAROL_"
	moonPrefix  = "MOON_"
)

var (
	ErrReadConfig  = errors.New("reading config file")
	ErrParseConfig = errors.New("parsing config")
	ErrEnvFile     = errors.New("loading env file")

	ErrVMRunNotFound        = errors.New("vmrun executable not found")
	ErrUnknownTransport     = errors.New("unknown transport")
	ErrVMPathRequired       = errors.New("vmPath is required for the vmrun transport")
	ErrSSHRequired          = errors.New("ssh section is required for the ssh transport")
	ErrCertificatesRequired = errors.New("certificatesPath is required")
	ErrNodeNameRequired     = errors.New("name is required")
)

// Config is used to configure swanbench.
//
// Every field may be overridden through the environment, see applyEnv.
type Config struct {
	// VMRunPath is the vmrun executable. It is looked up in PATH when empty.
	VMRunPath string `json:"vmrunPath,omitempty"`
	// HostType is passed to vmrun as -T (ws, fusion, player).
	HostType string `json:"hostType,omitempty"`
	// Sudo prepends "sudo" to every local vmrun invocation.
	Sudo bool `json:"sudo,omitempty"`

	// CertificatesPath holds <cert>/{<node>Cert.pem,<node>Key.pem,caCert.pem}.
	CertificatesPath string `json:"certificatesPath"`
	// HostDataPath receives the fetched timing logs.
	HostDataPath string `json:"hostDataPath,omitempty"`
	// GuestMeasurementsPath is where the benchmark script writes its logs.
	GuestMeasurementsPath string `json:"guestMeasurementsPath,omitempty"`
	// SummaryDir receives summary-<id>.json. Defaults to HostDataPath.
	SummaryDir string `json:"summaryDir,omitempty"`
	// PlanPath points to a plan file; the built-in plan is used when empty.
	// Relative paths are resolved against the config file's directory.
	PlanPath string `json:"planPath,omitempty"`

	Initiator NodeConfig `json:"initiator"`
	Responder NodeConfig `json:"responder"`

	Power struct {
		// Start powers both VMs on before the benchmark.
		Start bool `json:"start"`
		// NoGUI starts the VMs headless.
		NoGUI bool `json:"noGUI"`
		// StopAfter soft-stops both VMs once the benchmark is done. It only
		// applies when Start is set.
		StopAfter bool `json:"stopAfter"`
	} `json:"power"`

	MetricsServer struct {
		// Addr enables the metrics server during run, e.g. ":9090".
		Addr string `json:"addr,omitempty"`
		Path string `json:"path,omitempty"`
	} `json:"metricsServer"`

	// dir is the directory of the loaded config file.
	dir string
}

// NodeConfig describes one end of the tunnel.
type NodeConfig struct {
	Name string `json:"name"`
	// Transport is one of "vmrun" (default) or "ssh".
	Transport string `json:"transport,omitempty"`

	// VMPath is the .vmx descriptor, required by the vmrun transport and by
	// power management.
	VMPath     string `json:"vmPath,omitempty"`
	VMPassword string `json:"vmPassword,omitempty"`
	// User and Password are the guest credentials. Password is also handed to
	// guest scripts for sudo.
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	// SSH is used by the ssh transport. Its User and Password default to the
	// node's.
	SSH *guest.SSHConfig `json:"ssh,omitempty"`

	ConfPath        string `json:"confPath"`
	ReloadScript    string `json:"reloadScript,omitempty"`
	BenchmarkScript string `json:"benchmarkScript,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Initiator: NodeConfig{Name: "carol", Transport: guest.TransportVMRun},
		Responder: NodeConfig{Name: "moon", Transport: guest.TransportVMRun},
	}
}

// loadConfig reads the config file at path, or at $SWANBENCH_CONFIG_PATH when
// path is empty, then applies environment overrides and defaults. A missing
// path is not an error: the defaults plus the environment are used.
func loadConfig(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = getenv(ConfigPathEnvKey)
	}

	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}

		// Parse YAML (uses json tags)
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParseConfig, path, err)
		}
		config.dir = filepath.Dir(path)
	}

	config.applyEnv(getenv)
	config.setDefaults()

	return config, nil
}

// loadEnvFile populates the process environment from a dotenv file. Variables
// already set win. The default file is optional; an explicit one is not.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEnvFile, path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setFromEnv(&c.VMRunPath, getenv("VMRUN_PATH"))
	setFromEnv(&c.CertificatesPath, getenv("CERTIFICATES_PATH"))
	setFromEnv(&c.HostDataPath, getenv("HOST_DATA_PATH"))
	setFromEnv(&c.GuestMeasurementsPath, getenv("GUEST_MEASUREMENTS_PATH"))

	c.Initiator.applyEnv(carolPrefix, getenv)
	c.Responder.applyEnv(moonPrefix, getenv)
}

func (n *NodeConfig) applyEnv(prefix string, getenv func(string) string) {
	setFromEnv(&n.VMPath, getenv(prefix+"VM_PATH"))
	setFromEnv(&n.User, getenv(prefix+"USER"))
	setFromEnv(&n.Password, getenv(prefix+"PASSWORD"))
	setFromEnv(&n.ConfPath, getenv(prefix+"CONF_PATH"))
	setFromEnv(&n.ReloadScript, getenv(prefix+"RELOAD_SCRIPT"))
	setFromEnv(&n.BenchmarkScript, getenv(prefix+"BENCHMARK_SCRIPT"))
}

func setFromEnv(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) setDefaults() {
	if c.SummaryDir == "" {
		c.SummaryDir = c.HostDataPath
	}
	if c.PlanPath != "" && c.dir != "" && !filepath.IsAbs(c.PlanPath) {
		c.PlanPath = filepath.Join(c.dir, c.PlanPath)
	}

	for _, n := range []*NodeConfig{&c.Initiator, &c.Responder} {
		if n.Transport == "" {
			n.Transport = guest.TransportVMRun
		}
		if n.SSH == nil {
			continue
		}
		if n.SSH.User == "" {
			n.SSH.User = n.User
		}
		if n.SSH.Password == "" && n.SSH.PrivateKeyPath == "" {
			n.SSH.Password = n.Password
		}
	}
}

// resolveVMRun fills VMRunPath from PATH when it is empty.
func (c *Config) resolveVMRun(lookPath func(string) (string, error)) error {
	if c.VMRunPath != "" {
		return nil
	}

	path, err := lookPath(vmrunExecutable)
	if err != nil {
		return fmt.Errorf("%w: set vmrunPath or VMRUN_PATH: %w", ErrVMRunNotFound, err)
	}
	c.VMRunPath = path
	return nil
}

// usesVMRun reports whether any vmrun invocation is needed.
func (c *Config) usesVMRun() bool {
	return c.Power.Start ||
		c.Initiator.Transport == guest.TransportVMRun ||
		c.Responder.Transport == guest.TransportVMRun
}

// Validate checks the fields every benchmark subcommand needs. Node-level
// requirements such as conf paths are validated by the benchmark runner.
func (c *Config) Validate() error {
	var errs []error
	if c.CertificatesPath == "" {
		errs = append(errs, ErrCertificatesRequired)
	}

	needVM := c.Power.Start
	for _, n := range []NodeConfig{c.Initiator, c.Responder} {
		if err := n.validate(needVM); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (n NodeConfig) validate(needVM bool) error {
	var errs []error
	if n.Name == "" {
		errs = append(errs, ErrNodeNameRequired)
	}

	switch n.Transport {
	case guest.TransportVMRun:
		if n.VMPath == "" {
			errs = append(errs, ErrVMPathRequired)
		}
	case guest.TransportSSH:
		if n.SSH == nil {
			errs = append(errs, ErrSSHRequired)
		}
		if needVM && n.VMPath == "" {
			errs = append(errs, ErrVMPathRequired)
		}
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownTransport, n.Transport))
	}

	if len(errs) > 0 {
		return fmt.Errorf("node %q: %w", n.Name, errors.Join(errs...))
	}
	return nil
}

// target returns the vmrun target of the node.
func (n NodeConfig) target(hostType string) vmrun.Target {
	return vmrun.Target{
		VMPath:        n.VMPath,
		HostType:      hostType,
		VMPassword:    n.VMPassword,
		GuestUser:     n.User,
		GuestPassword: n.Password,
	}
}
