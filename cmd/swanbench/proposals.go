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

package main

import (
	"errors"
	"fmt"

	"github.com/alexandremahdhaoui/swanbench/internal/benchmark"
	"github.com/alexandremahdhaoui/swanbench/pkg/strongswan"
)

var ErrKEMRequired = errors.New("at least one KEM proposal is required")

// cmdProposals rewrites the host-side swanctl.conf of both nodes. Nothing is
// pushed to the guests.
func (a *app) cmdProposals(args []string) error {
	fs, common := a.newFlagSet("proposals")
	base := fs.String("base", benchmark.DefaultPlan().BaseProposal, "base proposal the KEMs are appended to")
	dryRun := fs.Bool("dry-run", false, "print the composed proposal without writing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return ErrKEMRequired
	}

	proposal := strongswan.ComposeProposal(*base, fs.Args()...)
	_, _ = fmt.Fprintln(a.stdout, proposal)
	if *dryRun {
		return nil
	}

	cfg, err := a.setup(common)
	if err != nil {
		return err
	}

	editor := strongswan.NewEditor(cfg.Initiator.ConfPath, cfg.Responder.ConfPath)
	if err := editor.UpdateProposals(proposal); err != nil {
		return err
	}

	a.log.Info("updated proposals",
		"proposal", proposal,
		cfg.Initiator.Name, cfg.Initiator.ConfPath,
		cfg.Responder.Name, cfg.Responder.ConfPath)
	return nil
}
