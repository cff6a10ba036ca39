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

// Command ticketctl manages session ticket keys and exercises ticket resumption.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/config"
	"github.com/Jigsaw-Code/outline-ticket/scramblesuit"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/Jigsaw-Code/outline-ticket/ticket/keystore"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

type command struct {
	run   func(args []string) error
	usage string
}

var commands = map[string]command{
	"init":   {runInit, "Create and save new ticket keys"},
	"show":   {runShow, "Print information about the ticket keys"},
	"rotate": {runRotate, "Rotate the ticket keys if they are due, or now with -force"},
	"issue":  {runIssue, "Issue a ticket and print it with a resumption request for it"},
	"resume": {runResume, "Verify a hex-encoded resumption request"},
	"serve":  {runServe, "Run a test server that answers resumption requests"},
	"dial":   {runDial, "Connect to a test server, resuming with a stored ticket if there is one"},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s <command> [flags...]\n\nCommands:\n", path.Base(os.Args[0]))
	for _, name := range []string{"init", "show", "rotate", "issue", "resume", "serve", "dial"} {
		fmt.Fprintf(out, "  %-8s %s\n", name, commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := cmd.run(os.Args[2:]); err != nil {
		slog.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// commonFlags are accepted by every command.
type commonFlags struct {
	config  *string
	keys    *string
	verbose *bool
}

func newFlagSet(name string, args string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s %s [flags...] %s\n", path.Base(os.Args[0]), name, args)
		fs.PrintDefaults()
	}
	return fs, &commonFlags{
		config:  fs.String("config", "", "YAML configuration file"),
		keys:    fs.String("keys", "", "Ticket key file. Overrides key_file in the configuration"),
		verbose: fs.Bool("v", false, "Enable debug output"),
	}
}

// load sets up logging and returns the configuration the flags select.
func (f *commonFlags) load() (*config.ServerConfig, error) {
	logLevel := slog.LevelInfo
	if *f.verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: logLevel, TimeFormat: time.TimeOnly},
	)))

	cfg := config.Default()
	if *f.config != "" {
		var err error
		if cfg, err = config.Load(*f.config); err != nil {
			return nil, err
		}
	}
	if *f.keys != "" {
		cfg.KeyFile = *f.keys
	}
	return cfg, nil
}

func keyOptions(cfg *config.ServerConfig, metrics *scramblesuit.Metrics) ticket.KeyMaterialOptions {
	return ticket.KeyMaterialOptions{
		RotationInterval: cfg.KeyRotationInterval,
		Logger:           slog.Default(),
		Hooks:            metrics.KeyHooks(),
	}
}

func newStore(cfg *config.ServerConfig) keystore.Store {
	if cfg.KeyFile == "" {
		slog.Warn("No key file configured, tickets will not survive a restart")
		return &keystore.MemoryStore{}
	}
	return keystore.NewFileStore(cfg.KeyFile)
}

// restoreKeys loads existing keys. Adjust may change the snapshot before it is restored.
func restoreKeys(cfg *config.ServerConfig, adjust func(*ticket.KeySnapshot)) (*ticket.KeyMaterial, error) {
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("a key file is required, use -keys or key_file")
	}
	store := keystore.NewFileStore(cfg.KeyFile)
	snapshot, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load keys (did you run init?): %w", err)
	}
	if adjust != nil {
		adjust(snapshot)
	}
	opts := keyOptions(cfg, nil)
	opts.Persister = store
	return ticket.RestoreKeyMaterial(snapshot, opts)
}

func newServer(cfg *config.ServerConfig, keys *ticket.KeyMaterial, metrics *scramblesuit.Metrics) (*scramblesuit.Server, error) {
	return scramblesuit.NewServer(scramblesuit.ServerOptions{
		Keys:       keys,
		Lifetime:   cfg.TicketLifetime,
		MaxPadding: cfg.MaxPadding,
		Logger:     slog.Default(),
		Metrics:    metrics,
	})
}
