// Copyright 2026 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/scramblesuit"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/Jigsaw-Code/outline-ticket/ticket/keystore"
)

func runInit(args []string) error {
	fs, common := newFlagSet("init", "")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if cfg.KeyFile == "" {
		return errors.New("a key file is required, use -keys or key_file")
	}
	if _, err := os.Stat(cfg.KeyFile); err == nil {
		return fmt.Errorf("%v already exists", cfg.KeyFile)
	}
	keys, err := keystore.LoadOrCreate(keystore.NewFileStore(cfg.KeyFile), time.Now(), keyOptions(cfg, nil))
	if err != nil {
		return err
	}
	fmt.Printf("Created ticket keys %v in %v\n", keys.Fingerprint(), cfg.KeyFile)
	return nil
}

func runShow(args []string) error {
	fs, common := newFlagSet("show", "")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	keys, err := restoreKeys(cfg, nil)
	if err != nil {
		return err
	}
	snapshot := keys.Snapshot()
	fmt.Printf("key_id:        %v\n", keys.Fingerprint())
	fmt.Printf("created_at:    %v\n", snapshot.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Printf("rotates_after: %v\n", snapshot.CreatedAt.Add(cfg.KeyRotationInterval).UTC().Format(time.RFC3339))
	fmt.Printf("previous_keys: %v\n", snapshot.HasPrevious())
	return nil
}

func runRotate(args []string) error {
	fs, common := newFlagSet("rotate", "")
	forceFlag := fs.Bool("force", false, "Rotate even if the keys are not due")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	now := time.Now()
	keys, err := restoreKeys(cfg, func(s *ticket.KeySnapshot) {
		if *forceFlag {
			// Backdate the keys so they are due now.
			s.CreatedAt = now.Add(-cfg.KeyRotationInterval - time.Second)
		}
	})
	if err != nil {
		return err
	}
	before := keys.Fingerprint()
	rotated, err := keys.CheckAndRotate(now)
	if err != nil {
		return err
	}
	if !rotated {
		fmt.Printf("Keys %v are not due for rotation until %v\n", before, keys.CreatedAt().Add(cfg.KeyRotationInterval).UTC().Format(time.RFC3339))
		return nil
	}
	fmt.Printf("Rotated keys %v to %v\n", before, keys.Fingerprint())
	return nil
}

func runIssue(args []string) error {
	fs, common := newFlagSet("issue", "")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	keys, err := restoreKeys(cfg, nil)
	if err != nil {
		return err
	}
	server, err := newServer(cfg, keys, nil)
	if err != nil {
		return err
	}
	payload, err := server.IssueTicketAndKey()
	if err != nil {
		return err
	}
	stored, err := scramblesuit.ParseNewTicket(payload, time.Now())
	if err != nil {
		return err
	}
	client := scramblesuit.NewClient(scramblesuit.ClientOptions{Lifetime: cfg.TicketLifetime, MaxPadding: cfg.MaxPadding})
	request, err := client.BuildResumptionRequest(stored)
	if err != nil {
		return err
	}
	fmt.Printf("new_ticket: %x\n", payload)
	fmt.Printf("request:    %x\n", request)
	return nil
}

func runResume(args []string) error {
	fs, common := newFlagSet("resume", "HEX")
	fs.Parse(args)
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	request, err := hex.DecodeString(strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		return fmt.Errorf("request is not valid hex: %w", err)
	}
	keys, err := restoreKeys(cfg, nil)
	if err != nil {
		return err
	}
	server, err := newServer(cfg, keys, nil)
	if err != nil {
		return err
	}
	res, err := server.TryResume(request)
	if err != nil {
		fmt.Printf("rejected:  %v\n", ticket.Reason(err))
		return err
	}
	fmt.Printf("accepted:  %d of %d bytes\n", res.Length, len(request))
	fmt.Printf("issued_at: %v\n", res.State.IssuedAt().UTC().Format(time.RFC3339))
	fmt.Printf("expires:   %v\n", res.State.IssuedAt().Add(cfg.TicketLifetime).UTC().Format(time.RFC3339))
	return nil
}
