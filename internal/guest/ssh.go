// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package guest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alexandremahdhaoui/swanbench/pkg/execcontext"
	"github.com/go-logr/logr"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrHostRequired = errors.New("ssh host is required")
	ErrUserRequired = errors.New("ssh user is required")
	ErrNoAuthMethod = errors.New("ssh password or private key is required")
)

const (
	DefaultSSHPort    = "22"
	defaultSSHTimeout = 10 * time.Second

	// statusUnknown is reported when an operation failed without an exit status.
	statusUnknown = -1
)

// SSHConfig describes how to reach a guest over SSH.
type SSHConfig struct {
	Host string `json:"host"`
	Port string `json:"port,omitempty"`
	User string `json:"user"`
	// Password is used for password authentication when set.
	Password string `json:"password,omitempty"`
	// PrivateKeyPath is used for public key authentication when set.
	PrivateKeyPath string `json:"privateKeyPath,omitempty"`
	// KnownHostsPath enables host key verification. Host keys are not verified
	// when it is empty.
	KnownHostsPath string        `json:"knownHostsPath,omitempty"`
	Timeout        time.Duration `json:"timeout,omitempty"`
}

func (c SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	var errs []error
	if c.Host == "" {
		errs = append(errs, ErrHostRequired)
	}
	if c.User == "" {
		errs = append(errs, ErrUserRequired)
	}
	if c.Password == "" && c.PrivateKeyPath == "" {
		errs = append(errs, ErrNoAuthMethod)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var auth []ssh.AuthMethod
	if c.PrivateKeyPath != "" {
		key, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec
	if c.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultSSHTimeout
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

var _ Guest = (*SSH)(nil)

// SSH reaches a guest over SSH. Programs run in an exec session and files
// move over SFTP. The connection is dialed lazily and reused.
type SSH struct {
	name     string
	addr     string
	password string
	config   *ssh.ClientConfig
	execCtx  execcontext.Context
	log      logr.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// SSHOption is a functional option for configuring an SSH guest.
type SSHOption func(*SSH)

// WithSSHExecContext sets the environment and prepend command (e.g. sudo) of
// every program run in the guest.
func WithSSHExecContext(execCtx execcontext.Context) SSHOption {
	return func(g *SSH) {
		g.execCtx = execCtx
	}
}

// WithSSHLogger sets the logger.
func WithSSHLogger(log logr.Logger) SSHOption {
	return func(g *SSH) {
		g.log = log
	}
}

// NewSSH returns a Guest reached with cfg. No connection is made until the
// first operation.
func NewSSH(name string, cfg SSHConfig, opts ...SSHOption) (*SSH, error) {
	config, err := cfg.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid ssh configuration for %s: %w", name, err)
	}

	port := cfg.Port
	if port == "" {
		port = DefaultSSHPort
	}

	g := &SSH{
		name:     name,
		addr:     net.JoinHostPort(cfg.Host, port),
		password: cfg.Password,
		config:   config,
		execCtx:  execcontext.Empty(),
		log:      logr.Discard(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Name implements Guest.
func (g *SSH) Name() string { return g.name }

// Close closes the underlying connection, if any.
func (g *SSH) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}

	err := g.client.Close()
	g.client = nil
	return err
}

func (g *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	dialer := net.Dialer{Timeout: g.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", g.addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, g.addr, g.config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to establish ssh connection to %s: %w", g.addr, err)
	}

	g.client = ssh.NewClient(c, chans, reqs)
	g.log.V(1).Info("connected to guest", "guest", g.name, "addr", g.addr)

	return g.client, nil
}

// reset drops a connection that failed so the next operation redials.
func (g *SSH) reset() {
	if err := g.Close(); err != nil {
		g.log.V(1).Info("error closing ssh connection", "guest", g.name, "err", err.Error())
	}
}

// Run implements Guest. The returned output is the program's stdout.
func (g *SSH) Run(ctx context.Context, program string, args ...string) (string, error) {
	client, err := g.connect(ctx)
	if err != nil {
		return "", transportError(g.name, OpRun, err)
	}

	session, err := client.NewSession()
	if err != nil {
		g.reset()
		return "", transportError(g.name, OpRun, fmt.Errorf("unable to create SSH session: %w", err))
	}
	defer runFuncAndLogErr(g.log, session.Close)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	argv := append([]string{program}, args...)
	cmd := execcontext.ShellCmd(g.execCtx, argv...)
	g.log.V(1).Info("running program in guest", "guest", g.name, "cmd", g.redactArgs(argv))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGKILL)
			_ = session.Close()
		case <-done:
		}
	}()

	err = session.Run(cmd)
	output := strings.TrimSpace(stdout.String())
	if err == nil {
		return output, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, transportError(g.name, OpRun, ctxErr)
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return output, &CommandError{
			Guest:  g.name,
			Op:     OpRun,
			Status: exitErr.ExitStatus(),
			Output: strings.TrimSpace(stderr.String()),
		}
	}

	var missingErr *ssh.ExitMissingError
	if errors.As(err, &missingErr) {
		return output, &CommandError{Guest: g.name, Op: OpRun, Status: statusUnknown, Err: err}
	}

	g.reset()
	return output, transportError(g.name, OpRun, fmt.Errorf("remote command failed: %w", err))
}

// Push implements Guest.
func (g *SSH) Push(ctx context.Context, hostPath, guestPath string) error {
	src, err := os.Open(hostPath)
	if err != nil {
		return g.localError(OpPush, err)
	}
	defer runFuncAndLogErr(g.log, src.Close)

	sc, err := g.sftp(ctx, OpPush)
	if err != nil {
		return err
	}
	defer runFuncAndLogErr(g.log, sc.Close)

	dst, err := sc.Create(guestPath)
	if err != nil {
		return g.sftpError(OpPush, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return g.sftpError(OpPush, err)
	}

	if err := dst.Close(); err != nil {
		return g.sftpError(OpPush, err)
	}

	return nil
}

// Fetch implements Guest. Missing parent directories of hostPath are created.
func (g *SSH) Fetch(ctx context.Context, guestPath, hostPath string) error {
	sc, err := g.sftp(ctx, OpFetch)
	if err != nil {
		return err
	}
	defer runFuncAndLogErr(g.log, sc.Close)

	src, err := sc.Open(guestPath)
	if err != nil {
		return g.sftpError(OpFetch, err)
	}
	defer runFuncAndLogErr(g.log, src.Close)

	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return g.localError(OpFetch, err)
	}

	dst, err := os.Create(hostPath)
	if err != nil {
		return g.localError(OpFetch, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return g.sftpError(OpFetch, err)
	}

	if err := dst.Close(); err != nil {
		return g.localError(OpFetch, err)
	}

	return nil
}

func (g *SSH) sftp(ctx context.Context, op string) (*sftp.Client, error) {
	client, err := g.connect(ctx)
	if err != nil {
		return nil, transportError(g.name, op, err)
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		g.reset()
		return nil, transportError(g.name, op, fmt.Errorf("failed to create SFTP client: %w", err))
	}

	return sc, nil
}

func (g *SSH) localError(op string, err error) error {
	return &CommandError{Guest: g.name, Op: op, Status: statusUnknown, Err: err}
}

// sftpError reports server-side rejections as command failures and anything
// else as a transport fault.
func (g *SSH) sftpError(op string, err error) error {
	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		return &CommandError{Guest: g.name, Op: op, Status: int(statusErr.Code), Err: err}
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return &CommandError{Guest: g.name, Op: op, Status: statusUnknown, Err: err}
	}

	g.reset()
	return transportError(g.name, op, err)
}

// redactArgs renders argv for logs with the SSH password masked.
func (g *SSH) redactArgs(argv []string) string {
	out := make([]string, len(argv))
	for i, a := range argv {
		if g.password != "" {
			a = strings.ReplaceAll(a, g.password, "******")
		}
		out[i] = a
	}
	return execcontext.FormatCmd(g.execCtx, out...)
}

func runFuncAndLogErr(log logr.Logger, f func() error) {
	if err := f(); err != nil && !errors.Is(err, io.EOF) {
		log.V(1).Info("error closing ssh resource", "err", err.Error())
	}
}
