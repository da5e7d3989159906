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

package vmrun

import (
	"strconv"
)

const (
	// DefaultExecutable is the name looked up in PATH when no explicit vmrun path is configured.
	DefaultExecutable = "vmrun"

	// StatusExecutableNotFound is the status reported when vmrun cannot be launched.
	StatusExecutableNotFound = 2
	// OutputExecutableNotFound is the output reported when vmrun cannot be launched.
	OutputExecutableNotFound = "File not found!"

	redacted = "******"
)

// Host types accepted by the -T global flag.
const (
	HostWorkstation = "ws"
	HostFusion      = "fusion"
	HostPlayer      = "player"
)

// Target identifies one virtual machine and the credentials used to reach it.
type Target struct {
	// VMPath is the path to the .vmx descriptor.
	VMPath string `json:"vmPath"`
	// HostType is passed as -T (ws, fusion, player).
	HostType string `json:"hostType,omitempty"`
	// VMPassword is passed as -vp for encrypted VMs.
	VMPassword string `json:"vmPassword,omitempty"`
	// GuestUser is passed as -gu.
	GuestUser string `json:"guestUser,omitempty"`
	// GuestPassword is passed as -gp.
	GuestPassword string `json:"guestPassword,omitempty"`
}

// Result is the outcome of one vmrun invocation.
type Result struct {
	Status int    `json:"status"`
	Output string `json:"output"`
}

// OK reports whether vmrun exited with status 0.
func (r Result) OK() bool {
	return r.Status == 0
}

// Process is one entry of the guest process list.
type Process struct {
	PID   string `json:"pid"`
	Owner string `json:"owner"`
	Cmd   string `json:"cmd"`
}

// Processes maps a PID to its process entry.
type Processes map[string]Process

// Command is a fully assembled vmrun invocation.
type Command struct {
	Executable string
	Globals    []string
	Subcommand string
	// Target is the VM path, or the host network name or destination path for
	// host-level subcommands. Empty means omitted.
	Target  string
	Options []string
}

// Argv returns the flat argument vector, executable first.
func (c Command) Argv() []string {
	argv := make([]string, 0, 3+len(c.Globals)+len(c.Options))
	argv = append(argv, c.Executable)
	argv = append(argv, c.Globals...)
	argv = append(argv, c.Subcommand)
	if c.Target != "" {
		argv = append(argv, c.Target)
	}
	return append(argv, c.Options...)
}

// Redacted returns Argv with every token equal to one of secrets masked.
func (c Command) Redacted(secrets ...string) []string {
	argv := c.Argv()
	for i, tok := range argv {
		for _, s := range secrets {
			if s != "" && tok == s {
				argv[i] = redacted
			}
		}
	}
	return argv
}

// CallOption overrides the client's bound target for a single call.
type CallOption func(*Target)

// OnVM runs the call against vmPath instead of the bound VM.
func OnVM(vmPath string) CallOption {
	return func(t *Target) {
		t.VMPath = vmPath
	}
}

// UsingTarget runs the call against t, credentials included.
func UsingTarget(t Target) CallOption {
	return func(out *Target) {
		*out = t
	}
}

// GuestRunFlags are the optional flags of runProgramInGuest and runScriptInGuest.
type GuestRunFlags struct {
	NoWait       bool
	ActiveWindow bool
	Interactive  bool
}

func (f GuestRunFlags) tokens() []string {
	var out []string
	if f.NoWait {
		out = append(out, "-noWait")
	}
	if f.ActiveWindow {
		out = append(out, "-activeWindow")
	}
	if f.Interactive {
		out = append(out, "-interactive")
	}
	return out
}

// Program describes a runProgramInGuest call.
type Program struct {
	GuestRunFlags
	Path string
	Args []string
}

// Script describes a runScriptInGuest call.
type Script struct {
	GuestRunFlags
	Interpreter string
	Text        string
}

// SharedFolderMode is the access mode of a shared folder.
type SharedFolderMode string

const (
	SharedFolderWritable SharedFolderMode = "writable"
	SharedFolderReadOnly SharedFolderMode = "readonly"
)

// VariableType selects the namespace of readVariable and writeVariable.
type VariableType string

const (
	RuntimeConfig VariableType = "runtimeConfig"
	GuestEnv      VariableType = "guestEnv"
	GuestVar      VariableType = "guestVar"
)

// CloneType is the kind of clone created by the clone subcommand.
type CloneType string

const (
	FullClone   CloneType = "full"
	LinkedClone CloneType = "linked"
)

// CloneOptions configures the clone subcommand.
type CloneOptions struct {
	DestinationPath string
	Type            CloneType
	// Snapshot is optional.
	Snapshot string
	// Name is optional.
	Name string
}

func (o CloneOptions) tokens() []string {
	out := []string{o.DestinationPath, string(o.Type)}
	if o.Snapshot != "" {
		out = append(out, "-snapshot", o.Snapshot)
	}
	if o.Name != "" {
		out = append(out, "-cloneName", o.Name)
	}
	return out
}

// PortForwarding configures the setPortForwarding subcommand.
type PortForwarding struct {
	HostNetwork string
	Protocol    string
	HostPort    int
	GuestIP     string
	GuestPort   int
	// Description is optional.
	Description string
}

func (p PortForwarding) tokens() []string {
	out := []string{p.Protocol, strconv.Itoa(p.HostPort), p.GuestIP, strconv.Itoa(p.GuestPort)}
	if p.Description != "" {
		out = append(out, p.Description)
	}
	return out
}
