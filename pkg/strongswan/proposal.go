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

// Package strongswan edits the proposals setting of swanctl.conf files.
package strongswan

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Error variables for proposal edits
var (
	ErrConfPathRequired = errors.New("swanctl.conf path is required")
	ErrReadConf         = errors.New("failed to read swanctl.conf")
	ErrWriteConf        = errors.New("failed to write swanctl.conf")
)

const (
	proposalsKey = "proposals ="
	// proposalsIndent matches the nesting of proposals inside connections.<conn>.children.<child>.
	proposalsIndent = "      "
	proposalSep     = "-"
)

// RewriteProposal replaces the first proposals line of content with
// "      proposals = <proposals>". A line matches when it starts with
// "proposals =" once surrounding whitespace is trimmed. All other bytes,
// including line endings and trailing content, are left untouched. changed is
// false when no line matched, in which case out equals content.
func RewriteProposal(content, proposals string) (out string, changed bool) {
	lines := strings.SplitAfter(content, "\n")

	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), proposalsKey) {
			continue
		}

		lines[i] = proposalsIndent + proposalsKey + " " + proposals + "\n"
		return strings.Join(lines, ""), true
	}

	return content, false
}

// UpdateProposal rewrites the proposals line of the file at path in place. A
// file without a proposals line is written back unchanged.
func UpdateProposal(path, proposals string) error {
	if path == "" {
		return ErrConfPathRequired
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadConf, path, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadConf, path, err)
	}

	out, _ := RewriteProposal(string(content), proposals)

	if err := os.WriteFile(path, []byte(out), info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteConf, path, err)
	}

	return nil
}

// Editor keeps the initiator and responder configurations in sync.
type Editor struct {
	InitiatorConfPath string
	ResponderConfPath string
}

func NewEditor(initiatorConfPath, responderConfPath string) *Editor {
	return &Editor{
		InitiatorConfPath: initiatorConfPath,
		ResponderConfPath: responderConfPath,
	}
}

// UpdateProposals sets proposals in both files, initiator first. The edit is
// not transactional: a failure on the responder leaves the initiator updated.
func (e *Editor) UpdateProposals(proposals string) error {
	if err := UpdateProposal(e.InitiatorConfPath, proposals); err != nil {
		return err
	}
	return UpdateProposal(e.ResponderConfPath, proposals)
}

// ComposeProposal joins a base proposal and key-exchange parts with "-", e.g.
// ComposeProposal("aes256-sha256", "ke1_kyber1-x25519") returns
// "aes256-sha256-ke1_kyber1-x25519". Empty parts are dropped.
func ComposeProposal(base string, kem ...string) string {
	parts := make([]string, 0, 1+len(kem))
	for _, p := range append([]string{base}, kem...) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, proposalSep)
}
