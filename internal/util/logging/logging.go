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

// Package logging configures the swanbench loggers. Records go to stderr so
// that reports written to stdout stay machine-readable.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Options configures the logger behavior.
type Options struct {
	// Development switches to human-readable console output.
	Development bool

	// Verbosity enables logr V-levels up to the given value. V(1) carries
	// per-invocation vmrun and ssh commands.
	Verbosity int

	// Output defaults to os.Stderr.
	Output io.Writer
}

func (o Options) output() io.Writer {
	if o.Output == nil {
		return os.Stderr
	}
	return o.Output
}

// Setup configures slog and the process-wide logr logger and returns the
// latter. Call it once, early in main.
func Setup(opts Options) logr.Logger {
	level := slog.LevelInfo
	if opts.Verbosity > 0 {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.Development {
		handler = slog.NewTextHandler(opts.output(), &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(opts.output(), &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	zapOpts := zap.Options{
		Development: opts.Development,
		DestWriter:  opts.output(),
		Level:       zapLevel(opts.Verbosity),
	}
	logger := zap.New(zap.UseFlagOptions(&zapOpts))
	ctrl.SetLogger(logger)

	return logger
}

// zapLevel maps a logr verbosity onto zap, where V(n) is level -n.
func zapLevel(verbosity int) zapcore.Level {
	if verbosity < 0 {
		verbosity = 0
	}
	return zapcore.Level(-verbosity)
}
