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

package benchmark_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/internal/guest"
	"github.com/alexandremahdhaoui/swanbench/internal/util/fakes/guestfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	certsDir     = "/certs"
	carolPass    = "carol-pw"
	moonPass     = "moon-pw"
	carolReload  = "/home/carol/reload.sh"
	moonReload   = "/home/moon/reload.sh"
	carolBench   = "/home/carol/benchmark.sh"
	guestMeasDir = "/home/carol/measurements"
	swanctlConf  = "connections {\n   home {\n   proposals = aes256-sha256-x25519\n   }\n}\n"
)

type env struct {
	carol, moon          *guestfake.Fake
	carolConf, moonConf  string
	initiator, responder benchmark.Node
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := t.TempDir()
	e := &env{
		carol:     guestfake.New("carol"),
		moon:      guestfake.New("moon"),
		carolConf: filepath.Join(dir, "carol.conf"),
		moonConf:  filepath.Join(dir, "moon.conf"),
	}
	require.NoError(t, os.WriteFile(e.carolConf, []byte(swanctlConf), 0o644))
	require.NoError(t, os.WriteFile(e.moonConf, []byte(swanctlConf), 0o644))

	e.initiator = benchmark.Node{
		Name:            "carol",
		Guest:           e.carol,
		ConfPath:        e.carolConf,
		ReloadScript:    carolReload,
		Password:        carolPass,
		BenchmarkScript: carolBench,
	}
	e.responder = benchmark.Node{
		Name:         "moon",
		Guest:        e.moon,
		ConfPath:     e.moonConf,
		ReloadScript: moonReload,
		Password:     moonPass,
	}
	return e
}

func smallPlan() *benchmark.Plan {
	return &benchmark.Plan{
		Certificates: []string{"rsa", "dilithium2"},
		BaseProposal: "aes256-sha256",
		KEMProposals: []string{"x25519", "ke1_kyber1-x25519"},
		Modes:        []benchmark.Mode{{Name: "0ping"}},
		Iterations:   3,
	}
}

// stepClock advances by one second on every call.
func stepClock() func() time.Time {
	t := time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type recordingObserver struct {
	records []benchmark.RunRecord
}

func (o *recordingObserver) ObserveRun(rec benchmark.RunRecord) {
	o.records = append(o.records, rec)
}

func callStrings(calls []guestfake.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.String())
	}
	return out
}

func TestRunner_Run(t *testing.T) {
	e := newEnv(t)
	summaryDir := t.TempDir()
	obs := &recordingObserver{}

	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir,
		benchmark.WithSummaryDir(summaryDir),
		benchmark.WithObserver(obs),
		benchmark.WithClock(stepClock()))
	require.NoError(t, err)

	s, err := r.Run(context.Background(), smallPlan())
	require.NoError(t, err)

	assert.Equal(t, benchmark.StatusCompleted, s.Status)
	assert.NotEmpty(t, s.ID)
	assert.Empty(t, s.Warnings)
	assert.Equal(t, []string{
		"rsa_x25519_0ping",
		"rsa_ke1_kyber1-x25519_0ping",
		"dilithium2_x25519_0ping",
		"dilithium2_ke1_kyber1-x25519_0ping",
	}, s.LogNames())
	assert.Equal(t, "aes256-sha256-ke1_kyber1-x25519", s.Runs[1].Proposal)
	assert.Len(t, obs.records, 4)

	// Certificates, then per KEM the configuration, reload and benchmark.
	wantCarol := []string{
		"push /certs/rsa/carolCert.pem /etc/swanctl/x509/carolCert.pem",
		"push /certs/rsa/carolKey.pem /etc/swanctl/pkcs8/carolKey.pem",
		"push /certs/rsa/caCert.pem /etc/swanctl/x509ca/caCert.pem",
		"push " + e.carolConf + " /etc/swanctl/swanctl.conf",
		"run " + carolReload + " " + carolPass,
		"run " + carolBench + " rsa x25519 0ping 3 " + carolPass,
		"push " + e.carolConf + " /etc/swanctl/swanctl.conf",
		"run " + carolReload + " " + carolPass,
		"run " + carolBench + " rsa ke1_kyber1-x25519 0ping 3 " + carolPass,
	}
	assert.Equal(t, wantCarol, callStrings(e.carol.Calls())[:len(wantCarol)])
	assert.Len(t, e.carol.Calls(), 2*len(wantCarol))

	wantMoon := []string{
		"push /certs/rsa/moonCert.pem /etc/swanctl/x509/moonCert.pem",
		"push /certs/rsa/moonKey.pem /etc/swanctl/pkcs8/moonKey.pem",
		"push /certs/rsa/caCert.pem /etc/swanctl/x509ca/caCert.pem",
		"push " + e.moonConf + " /etc/swanctl/swanctl.conf",
		"run " + moonReload + " " + moonPass,
		"push " + e.moonConf + " /etc/swanctl/swanctl.conf",
		"run " + moonReload + " " + moonPass,
	}
	assert.Equal(t, wantMoon, callStrings(e.moon.Calls())[:len(wantMoon)])

	for _, path := range []string{e.carolConf, e.moonConf} {
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(got), "      proposals = aes256-sha256-ke1_kyber1-x25519\n")
	}

	loaded, err := benchmark.LoadSummary(filepath.Join(summaryDir, s.Filename()))
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.LogNames(), loaded.LogNames())
	assert.Equal(t, 3, loaded.Plan.Iterations)
}

func TestRunner_Power(t *testing.T) {
	e := newEnv(t)
	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir, benchmark.WithPower(true, true))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), smallPlan())
	require.NoError(t, err)

	for _, g := range []*guestfake.Fake{e.carol, e.moon} {
		calls := g.Calls()
		assert.Equal(t, "start true", calls[0].String())
		assert.Equal(t, "stop false", calls[len(calls)-1].String())
	}
}

func TestRunner_CommandFailuresAreWarnings(t *testing.T) {
	e := newEnv(t)
	e.carol.FailOn("push /certs/rsa/carolKey.pem", &guest.CommandError{Guest: "carol", Op: guest.OpPush, Status: 255})
	e.carol.FailOn("run "+carolBench+" dilithium2 x25519", &guest.CommandError{Guest: "carol", Op: guest.OpRun, Status: 1})

	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir)
	require.NoError(t, err)

	s, err := r.Run(context.Background(), smallPlan())
	require.NoError(t, err)

	assert.Equal(t, benchmark.StatusCompleted, s.Status)
	assert.Len(t, s.Runs, 4)
	assert.Len(t, s.Warnings, 2)
	assert.True(t, s.Runs[0].OK())
	assert.False(t, s.Runs[2].OK())
}

func TestRunner_TransportFaultAborts(t *testing.T) {
	e := newEnv(t)
	e.moon.FailOn("run "+moonReload, errors.Join(guest.ErrTransport, errors.New("connection reset")))
	summaryDir := t.TempDir()

	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir, benchmark.WithSummaryDir(summaryDir))
	require.NoError(t, err)

	s, err := r.Run(context.Background(), smallPlan())
	require.ErrorIs(t, err, benchmark.ErrAborted)
	assert.ErrorIs(t, err, guest.ErrTransport)

	require.NotNil(t, s)
	assert.Equal(t, benchmark.StatusFailed, s.Status)
	assert.Empty(t, s.Runs)
	assert.Len(t, e.carol.CallsOf(guest.OpRun), 1)
	assert.FileExists(t, filepath.Join(summaryDir, s.Filename()))
}

func TestRunner_ProposalFileErrorAborts(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.Remove(e.moonConf))

	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), smallPlan())
	require.ErrorIs(t, err, benchmark.ErrUpdateProposals)
	assert.Empty(t, e.carol.CallsOf(guest.OpRun))
}

func TestRunner_CancelledContext(t *testing.T) {
	e := newEnv(t)
	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := r.Run(ctx, smallPlan())
	require.ErrorIs(t, err, benchmark.ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Runs)
}

func TestRunner_InvalidPlan(t *testing.T) {
	e := newEnv(t)
	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir)
	require.NoError(t, err)

	s, err := r.Run(context.Background(), &benchmark.Plan{})
	assert.ErrorIs(t, err, benchmark.ErrInvalidPlan)
	assert.Nil(t, s)
	assert.Empty(t, e.carol.Calls())
}

func TestRunner_Collection(t *testing.T) {
	e := newEnv(t)
	hostData := t.TempDir()
	e.carol.SetFile(guestMeasDir+"/rsa_x25519_0ping.txt", []byte("0.031\n0.029\n"))

	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir,
		benchmark.WithCollection(guestMeasDir, hostData))
	require.NoError(t, err)

	plan := smallPlan()
	plan.Certificates = []string{"rsa"}

	s, err := r.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, s.Runs, 2)
	assert.True(t, s.Runs[0].Collected)
	assert.False(t, s.Runs[1].Collected)
	assert.Len(t, s.Warnings, 1)

	got, err := os.ReadFile(filepath.Join(hostData, "rsa_x25519_0ping.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0.031\n0.029\n", string(got))

	t.Run("collect only", func(t *testing.T) {
		fetched, err := r.Collect(context.Background(), plan)
		require.NoError(t, err)
		assert.Equal(t, []string{"rsa_x25519_0ping"}, fetched)
	})
}

func TestRunner_CollectWithoutDirs(t *testing.T) {
	e := newEnv(t)
	r, err := benchmark.NewRunner(e.initiator, e.responder, certsDir)
	require.NoError(t, err)

	_, err = r.Collect(context.Background(), smallPlan())
	assert.ErrorIs(t, err, benchmark.ErrCollectDirsRequired)
}

func TestNewRunner_Validation(t *testing.T) {
	e := newEnv(t)

	initiator := e.initiator
	initiator.BenchmarkScript = ""
	responder := e.responder
	responder.Guest = nil

	_, err := benchmark.NewRunner(initiator, responder, "", benchmark.WithCollection("", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, benchmark.ErrBenchmarkScriptRequired)
	assert.ErrorIs(t, err, benchmark.ErrNodeGuestRequired)
	assert.ErrorIs(t, err, benchmark.ErrCertificatesDirRequired)
	assert.ErrorIs(t, err, benchmark.ErrCollectDirsRequired)
}
