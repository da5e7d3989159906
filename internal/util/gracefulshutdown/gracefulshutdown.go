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


// Package gracefulshutdown runs a command under a context that is cancelled by
// SIGINT or SIGTERM, then exits with the command's code.
package gracefulshutdown

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// GracefulShutdown holds the signal-aware context of one command invocation.
type GracefulShutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string

	once sync.Once

	// exitFunc allows injecting exit behavior for testing
	exitFunc func(int)
}

// NewWithExit creates a GracefulShutdown with a custom exit function.
// This is primarily useful for testing where os.Exit() would terminate the test process.
func NewWithExit(name string, exitFunc func(int)) *GracefulShutdown {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	return &GracefulShutdown{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		exitFunc: exitFunc,
	}
}

// New creates a GracefulShutdown whose context is cancelled by SIGTERM or SIGINT.
func New(name string) *GracefulShutdown {
	return NewWithExit(name, os.Exit)
}

// Run calls f with the context and exits with the code it returns. A signal
// only cancels the context: f is expected to clean up and return, so that
// in-flight work such as stopping VMs or saving a summary still completes.
func (s *GracefulShutdown) Run(f func(ctx context.Context) int) {
	code := f(s.ctx)
	s.Shutdown(code)
}

// Shutdown cancels the context and exits with exitCode. Only the first call
// has any effect.
func (s *GracefulShutdown) Shutdown(exitCode int) {
	s.once.Do(func() {
		if s.ctx.Err() != nil {
			slog.Info("⌛ interrupted", "binary", s.name, "exitCode", exitCode)
		}

		s.cancel()
		s.exitFunc(exitCode)
	})
}

// Context returns the context of the graceful shutdown.
func (s *GracefulShutdown) Context() context.Context {
	return s.ctx
}

// CancelFunc returns the cancel function of the graceful shutdown.
func (s *GracefulShutdown) CancelFunc() context.CancelFunc {
	return s.cancel
}
