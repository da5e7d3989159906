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

// Package execcontext describes how an external command is launched: extra
// environment variables and an optional prepend command such as "sudo".
package execcontext

import (
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
)

type Context interface {
	Envs() map[string]string
	PrependCmd() []string
}

func New(envs map[string]string, prependCmd []string) Context {
	return &context{
		prependCmd: prependCmd,
		envs:       envs,
	}
}

// Empty returns a Context that launches commands unchanged.
func Empty() Context {
	return New(nil, nil)
}

type context struct {
	envs       map[string]string
	prependCmd []string
}

// Envs implements Context.
func (c *context) Envs() map[string]string {
	out := make(map[string]string, len(c.envs))
	maps.Copy(out, c.envs)
	return out
}

// PrependCmd implements Context.
func (c *context) PrependCmd() []string {
	out := make([]string, len(c.prependCmd))
	copy(out, c.prependCmd)
	return out
}

// ApplyToCmd injects the context into cmd. Extra environment variables are
// layered on top of the current process environment.
func ApplyToCmd(ctx Context, cmd *exec.Cmd) {
	envs := ctx.Envs()
	if len(envs) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		for _, k := range slices.Sorted(maps.Keys(envs)) {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, envs[k]))
		}
	}

	prependCmd := ctx.PrependCmd()
	if len(prependCmd) < 1 {
		return
	}

	tmpCmd := exec.Command(prependCmd[0], prependCmd[1:]...)
	cmd.Path = tmpCmd.Path
	cmd.Err = tmpCmd.Err
	cmd.Args = append(tmpCmd.Args, cmd.Args...)
}

// FormatCmd renders the command as a single line for logs, environment
// assignments first. Arguments are Go-quoted and are not safe to hand to a
// shell; use ShellCmd for that.
func FormatCmd(ctx Context, cmd ...string) string {
	out := ""

	envs := ctx.Envs()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		out = fmt.Sprintf("%s%s=%q ", out, k, envs[k])
	}

	for _, s := range ctx.PrependCmd() {
		out = safelyAppendToCmd(out, s)
	}

	for _, s := range cmd {
		out = safelyAppendToCmd(out, s)
	}

	return strings.TrimSpace(out)
}

var unquottable = map[string]struct{}{
	"&&": {},
	"||": {},
	";":  {},
	":":  {},
	"&":  {},
}

func safelyAppendToCmd(cmd string, s string) string {
	if _, ok := unquottable[s]; ok {
		return fmt.Sprintf("%s%s ", cmd, s)
	}
	return fmt.Sprintf("%s%q ", cmd, s)
}

// ShellCmd renders the command as a single POSIX shell line, environment
// assignments first. Arguments are escaped so the shell passes them through
// byte for byte. Shell operators such as "&&" stay unescaped.
func ShellCmd(ctx Context, cmd ...string) string {
	parts := make([]string, 0, len(cmd)+len(ctx.PrependCmd()))

	envs := ctx.Envs()
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		parts = append(parts, k+"="+shellquote.Join(envs[k]))
	}

	for _, s := range append(ctx.PrependCmd(), cmd...) {
		if _, ok := unquottable[s]; ok {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, shellquote.Join(s))
	}

	return strings.Join(parts, " ")
}
