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

// Package guestfake provides an in-memory guest.Guest that records every call.
package guestfake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexandremahdhaoui/swanbench/internal/guest"
)

var (
	_ guest.Guest           = (*Fake)(nil)
	_ guest.PowerController = (*Fake)(nil)
)

// Call is one recorded operation. Args holds the paths for push and fetch,
// the program followed by its arguments for run, and the flag for start and stop.
type Call struct {
	Op   string
	Args []string
}

func (c Call) String() string {
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Fake is a guest.Guest. Fetch writes the content registered with SetFile to
// the host path. FailOn makes matching calls fail.
type Fake struct {
	name string

	mu     sync.Mutex
	calls  []Call
	files  map[string][]byte
	failOn map[string]error
}

func New(name string) *Fake {
	return &Fake{
		name:   name,
		files:  make(map[string][]byte),
		failOn: make(map[string]error),
	}
}

// SetFile registers content served by Fetch for guestPath.
func (f *Fake) SetFile(guestPath string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[guestPath] = content
}

// FailOn makes every call whose String() starts with prefix return err.
func (f *Fake) FailOn(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[prefix] = err
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Name implements guest.Guest.
func (f *Fake) Name() string { return f.name }

// Push implements guest.Guest.
func (f *Fake) Push(_ context.Context, hostPath, guestPath string) error {
	return f.record(guest.OpPush, hostPath, guestPath)
}

// Fetch implements guest.Guest.
func (f *Fake) Fetch(_ context.Context, guestPath, hostPath string) error {
	if err := f.record(guest.OpFetch, guestPath, hostPath); err != nil {
		return err
	}

	f.mu.Lock()
	content, ok := f.files[guestPath]
	f.mu.Unlock()
	if !ok {
		return &guest.CommandError{Guest: f.name, Op: guest.OpFetch, Status: 255, Output: "file not found"}
	}

	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(hostPath, content, 0o644)
}

// Run implements guest.Guest.
func (f *Fake) Run(_ context.Context, program string, args ...string) (string, error) {
	return "", f.record(guest.OpRun, append([]string{program}, args...)...)
}

// Start implements guest.PowerController.
func (f *Fake) Start(_ context.Context, noGUI bool) error {
	return f.record(guest.OpStart, fmt.Sprint(noGUI))
}

// Stop implements guest.PowerController.
func (f *Fake) Stop(_ context.Context, hard bool) error {
	return f.record(guest.OpStop, fmt.Sprint(hard))
}

func (f *Fake) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := Call{Op: op, Args: args}
	f.calls = append(f.calls, c)

	for prefix, err := range f.failOn {
		if strings.HasPrefix(c.String(), prefix) {
			return err
		}
	}
	return nil
}
