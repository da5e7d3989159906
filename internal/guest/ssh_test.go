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

package guest_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alexandremahdhaoui/swanbench/internal/guest"
	"github.com/alexandremahdhaoui/swanbench/pkg/execcontext"
	"github.com/kballard/go-shellquote"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "carol"
	testPassword = "tunnel"
)

// sshServer is an in-process SSH server. Exec requests echo the command and
// exit with status 3 when the command contains "fail". Commands starting with
// printf are handed to the local sh so quoting can be checked end to end.
// The sftp subsystem is served from the local filesystem.
type sshServer struct {
	host string
	port string

	mu       sync.Mutex
	commands []string
}

func (s *sshServer) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func startSSHServer(t *testing.T, authorized ssh.PublicKey) *sshServer {
	t.Helper()

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pw) == testPassword {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if authorized != nil && bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	s := &sshServer{host: host, port: port}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, cfg)
		}
	}()

	return s
}

func (s *sshServer) handleConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, creqs)
	}
}

func (s *sshServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			_ = req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			status := uint32(0)
			if strings.HasPrefix(payload.Command, "printf ") {
				out, err := exec.Command("sh", "-c", payload.Command).Output()
				if err != nil {
					status = 1
				}
				_, _ = ch.Write(out)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				_ = ch.Close()
				return
			}
			if strings.Contains(payload.Command, "fail") {
				status = 3
				_, _ = fmt.Fprint(ch.Stderr(), "reload failed")
			}
			_, _ = fmt.Fprintf(ch, "ran %s\n", payload.Command)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			_ = ch.Close()
			return
		case "subsystem":
			var payload struct{ Name string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			if payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			srv, err := sftp.NewServer(ch)
			if err != nil {
				_ = ch.Close()
				return
			}
			go func() {
				_ = srv.Serve()
				_ = ch.Close()
			}()
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func newSSHGuest(t *testing.T, s *sshServer, cfg guest.SSHConfig, opts ...guest.SSHOption) *guest.SSH {
	t.Helper()

	cfg.Host = s.host
	cfg.Port = s.port
	if cfg.User == "" {
		cfg.User = testUser
	}

	g, err := guest.NewSSH("carol", cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	return g
}

func TestSSH_Run(t *testing.T) {
	ctx := context.Background()
	s := startSSHServer(t, nil)
	g := newSSHGuest(t, s, guest.SSHConfig{Password: testPassword})

	out, err := g.Run(ctx, "/home/carol/reload.sh", testPassword)
	require.NoError(t, err)
	assert.Equal(t, "ran "+shellquote.Join("/home/carol/reload.sh", testPassword), out)

	_, err = g.Run(ctx, "/home/carol/fail.sh")
	require.ErrorIs(t, err, guest.ErrCommandFailed)

	var cmdErr *guest.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.Status)
	assert.Equal(t, "reload failed", cmdErr.Output)

	// The connection survives a failing program.
	_, err = g.Run(ctx, "/bin/true")
	require.NoError(t, err)

	assert.Equal(t, []string{
		shellquote.Join("/home/carol/reload.sh", testPassword),
		shellquote.Join("/home/carol/fail.sh"),
		shellquote.Join("/bin/true"),
	}, s.executed())
}

func TestSSH_RunWithExecContext(t *testing.T) {
	s := startSSHServer(t, nil)
	g := newSSHGuest(t, s, guest.SSHConfig{Password: testPassword},
		guest.WithSSHExecContext(execcontext.New(nil, []string{"sudo", "-n"})))

	_, err := g.Run(context.Background(), "swanctl", "--load-all")
	require.NoError(t, err)

	assert.Equal(t, []string{shellquote.Join("sudo", "-n", "swanctl", "--load-all")}, s.executed())
}

func TestSSH_RunArgumentsAreNotExpanded(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no POSIX shell available")
	}

	s := startSSHServer(t, nil)
	g := newSSHGuest(t, s, guest.SSHConfig{Password: testPassword})

	for _, arg := range []string{
		"pa$$w`x`",
		"pa$HOME",
		"$(echo injected)",
		"it's",
	} {
		out, err := g.Run(context.Background(), "printf", "%s", arg)
		require.NoError(t, err)
		assert.Equal(t, arg, out)
	}
}

func TestSSH_PushAndFetch(t *testing.T) {
	ctx := context.Background()
	s := startSSHServer(t, nil)
	g := newSSHGuest(t, s, guest.SSHConfig{Password: testPassword})

	hostDir := t.TempDir()
	guestDir := t.TempDir()

	src := filepath.Join(hostDir, "carolCert.pem")
	require.NoError(t, os.WriteFile(src, []byte("-----BEGIN CERTIFICATE-----\n"), 0o600))

	pushed := filepath.Join(guestDir, "carolCert.pem")
	require.NoError(t, g.Push(ctx, src, pushed))

	got, err := os.ReadFile(pushed)
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----\n", string(got))

	fetched := filepath.Join(hostDir, "data", "rsa_x25519_0ping.txt")
	require.NoError(t, os.WriteFile(filepath.Join(guestDir, "m.txt"), []byte("0.031\n0.029\n"), 0o600))
	require.NoError(t, g.Fetch(ctx, filepath.Join(guestDir, "m.txt"), fetched))

	got, err = os.ReadFile(fetched)
	require.NoError(t, err)
	assert.Equal(t, "0.031\n0.029\n", string(got))
}

func TestSSH_TransferFailures(t *testing.T) {
	ctx := context.Background()
	s := startSSHServer(t, nil)
	g := newSSHGuest(t, s, guest.SSHConfig{Password: testPassword})

	t.Run("missing host file", func(t *testing.T) {
		err := g.Push(ctx, filepath.Join(t.TempDir(), "missing.pem"), filepath.Join(t.TempDir(), "x.pem"))
		require.ErrorIs(t, err, guest.ErrCommandFailed)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing guest file", func(t *testing.T) {
		err := g.Fetch(ctx, filepath.Join(t.TempDir(), "missing.txt"), filepath.Join(t.TempDir(), "out.txt"))
		require.ErrorIs(t, err, guest.ErrCommandFailed)
		assert.NotErrorIs(t, err, guest.ErrTransport)
	})
}

func TestSSH_PrivateKeyAuth(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "carol@swanbench")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	s := startSSHServer(t, sshPub)
	g := newSSHGuest(t, s, guest.SSHConfig{PrivateKeyPath: keyPath})

	out, err := g.Run(context.Background(), "uname")
	require.NoError(t, err)
	assert.Equal(t, "ran uname", out)
}

func TestSSH_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	g, err := guest.NewSSH("carol", guest.SSHConfig{Host: host, Port: port, User: testUser, Password: testPassword})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), "uname")
	require.ErrorIs(t, err, guest.ErrTransport)
	assert.NotErrorIs(t, err, guest.ErrCommandFailed)
}

func TestNewSSH_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     guest.SSHConfig
		wantErr []error
	}{
		{
			name:    "empty",
			cfg:     guest.SSHConfig{},
			wantErr: []error{guest.ErrHostRequired, guest.ErrUserRequired, guest.ErrNoAuthMethod},
		},
		{
			name:    "no auth",
			cfg:     guest.SSHConfig{Host: "192.168.0.100", User: "carol"},
			wantErr: []error{guest.ErrNoAuthMethod},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := guest.NewSSH("carol", tt.cfg)
			assert.Nil(t, g)
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}

	t.Run("unreadable private key", func(t *testing.T) {
		_, err := guest.NewSSH("carol", guest.SSHConfig{
			Host:           "192.168.0.100",
			User:           "carol",
			PrivateKeyPath: "/nonexistent/path/id_rsa",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to read private key")
	})
}
