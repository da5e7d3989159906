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

package execcontext_test

import (
	"os/exec"
	"testing"

	"github.com/alexandremahdhaoui/swanbench/pkg/execcontext"
	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCmd(t *testing.T) {
	tests := []struct {
		name string
		ctx  execcontext.Context
		cmd  []string
		want string
	}{
		{
			name: "plain command",
			ctx:  execcontext.Empty(),
			cmd:  []string{"vmrun", "start", "/vms/carol.vmx", "nogui"},
			want: `"vmrun" "start" "/vms/carol.vmx" "nogui"`,
		},
		{
			name: "env and prepend",
			ctx:  execcontext.New(map[string]string{"B": "2", "A": "1"}, []string{"sudo", "-E"}),
			cmd:  []string{"vmrun", "list"},
			want: `A="1" B="2" "sudo" "-E" "vmrun" "list"`,
		},
		{
			name: "shell operators stay unquoted",
			ctx:  execcontext.Empty(),
			cmd:  []string{"true", "&&", "echo", "ok"},
			want: `"true" && "echo" "ok"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, execcontext.FormatCmd(tt.ctx, tt.cmd...))
		})
	}
}

func TestApplyToCmd_PrependAndEnv(t *testing.T) {
	cmd := exec.Command("vmrun", "list")
	ctx := execcontext.New(map[string]string{"SWANBENCH_TEST": "yes"}, []string{"sudo", "-n"})

	execcontext.ApplyToCmd(ctx, cmd)

	require.GreaterOrEqual(t, len(cmd.Args), 4)
	assert.Equal(t, []string{"sudo", "-n", "vmrun", "list"}, cmd.Args)
	assert.Contains(t, cmd.Env, "SWANBENCH_TEST=yes")
}

func TestApplyToCmd_EmptyLeavesCmdUntouched(t *testing.T) {
	cmd := exec.Command("vmrun", "list")

	execcontext.ApplyToCmd(execcontext.Empty(), cmd)

	assert.Equal(t, []string{"vmrun", "list"}, cmd.Args)
	assert.Nil(t, cmd.Env)
}

func TestContext_ReturnsCopies(t *testing.T) {
	prepend := []string{"sudo"}
	ctx := execcontext.New(map[string]string{"A": "1"}, prepend)

	envs := ctx.Envs()
	envs["A"] = "changed"
	p := ctx.PrependCmd()
	p[0] = "doas"

	assert.Equal(t, "1", ctx.Envs()["A"])
	assert.Equal(t, []string{"sudo"}, ctx.PrependCmd())
}

func TestShellCmd(t *testing.T) {
	tests := []struct {
		name string
		ctx  execcontext.Context
		cmd  []string
		want []string
	}{
		{
			name: "plain command",
			ctx:  execcontext.Empty(),
			cmd:  []string{"/home/carol/reload.sh", "tunnel"},
			want: []string{"/home/carol/reload.sh", "tunnel"},
		},
		{
			name: "env and prepend",
			ctx:  execcontext.New(map[string]string{"B": "2", "A": "it's"}, []string{"sudo", "-n"}),
			cmd:  []string{"swanctl", "--load-all"},
			want: []string{"A=it's", "B=2", "sudo", "-n", "swanctl", "--load-all"},
		},
		{
			name: "shell operators stay unescaped",
			ctx:  execcontext.Empty(),
			cmd:  []string{"true", "&&", "echo", "$HOME"},
			want: []string{"true", "&&", "echo", "$HOME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := execcontext.ShellCmd(tt.ctx, tt.cmd...)

			got, err := shellquote.Split(line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.NotContains(t, execcontext.ShellCmd(execcontext.Empty(), "true", "&&", "false"), `'&&'`)
}

func TestShellCmd_ArgumentsReachTheProgramUnchanged(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no POSIX shell available")
	}

	for _, arg := range []string{
		"pa$$w`x`",
		"pa$HOME",
		"p`echo x`w",
		"$(id -u)",
		"it's \"quoted\"",
		"back\\slash; echo injected",
		"~carol",
		"",
	} {
		t.Run(arg, func(t *testing.T) {
			line := execcontext.ShellCmd(execcontext.Empty(), "printf", "%s", arg)

			out, err := exec.Command(sh, "-c", line).Output()
			require.NoError(t, err)
			assert.Equal(t, arg, string(out))
		})
	}
}
