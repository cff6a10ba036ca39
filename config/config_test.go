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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Full(t *testing.T) {
	cfg, err := Parse(`
  key_file: /var/lib/tickets/keys.yaml
  key_rotation_interval: 24h
  ticket_lifetime: 36h30m
  max_padding: 800
  ticket_jar: /tmp/jar.yaml
  listen: 127.0.0.1:9443
  metrics_listen: 127.0.0.1:9090`)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tickets/keys.yaml", cfg.KeyFile)
	assert.Equal(t, 24*time.Hour, cfg.KeyRotationInterval)
	assert.Equal(t, 36*time.Hour+30*time.Minute, cfg.TicketLifetime)
	assert.Equal(t, 800, cfg.MaxPadding)
	assert.Equal(t, "/tmp/jar.yaml", cfg.TicketJar)
	assert.Equal(t, "127.0.0.1:9443", cfg.Listen)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsListen)
}

func TestParse_Defaults(t *testing.T) {
	for _, text := range []string{"", "key_file: keys.yaml"} {
		cfg, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, ticket.DefaultRotationInterval, cfg.KeyRotationInterval)
		assert.Equal(t, ticket.DefaultLifetime, cfg.TicketLifetime)
		assert.Equal(t, ticket.MaxPaddingLength, cfg.MaxPadding)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, text := range []string{
		"unknown_field: 1",
		"key_rotation_interval: soon",
		"key_rotation_interval: -1h",
		"ticket_lifetime: 0s",
		"max_padding: 112",
		"max_padding: [1]",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text)
			require.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_padding: 600\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.MaxPadding)

	require.NoError(t, os.WriteFile(path, []byte("max_padding: 6\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
