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

// Package config loads the YAML configuration of a ticket server.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures session tickets for a server, and the ticket jar of a client.
//
//	key_file: /var/lib/outline/ticket-keys.yaml
//	key_rotation_interval: 168h
//	ticket_lifetime: 168h
//	max_padding: 1500
//	ticket_jar: ~/.cache/outline/tickets.yaml
//	listen: 0.0.0.0:9443
//	metrics_listen: 127.0.0.1:9090
type ServerConfig struct {
	// KeyFile is where the ticket keys are persisted. Empty means keys only live in memory.
	KeyFile             string        `yaml:"key_file"`
	KeyRotationInterval time.Duration `yaml:"key_rotation_interval"`
	TicketLifetime      time.Duration `yaml:"ticket_lifetime"`
	MaxPadding          int           `yaml:"max_padding"`
	// TicketJar is the file where a client keeps the tickets it received.
	TicketJar     string `yaml:"ticket_jar"`
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
}

// Default returns the configuration used when no file is given.
func Default() *ServerConfig {
	return &ServerConfig{
		KeyRotationInterval: ticket.DefaultRotationInterval,
		TicketLifetime:      ticket.DefaultLifetime,
		MaxPadding:          ticket.MaxPaddingLength,
	}
}

// Parse parses a YAML configuration. Missing fields take their default values and unknown
// fields are an error.
func Parse(configText string) (*ServerConfig, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(strings.NewReader(configText))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the durations are positive and that the padding leaves room for a ticket.
func (c *ServerConfig) Validate() error {
	if c.KeyRotationInterval <= 0 {
		return fmt.Errorf("key_rotation_interval must be positive, got %v", c.KeyRotationInterval)
	}
	if c.TicketLifetime <= 0 {
		return fmt.Errorf("ticket_lifetime must be positive, got %v", c.TicketLifetime)
	}
	if c.MaxPadding <= ticket.Length {
		return fmt.Errorf("max_padding must exceed %d, got %d", ticket.Length, c.MaxPadding)
	}
	return nil
}
