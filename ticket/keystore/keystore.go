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

// Package keystore persists session ticket key material.
package keystore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/goccy/go-yaml"
	"github.com/google/renameio"
)

// Store loads and saves key material.
type Store interface {
	// Load returns the persisted material. It returns an error wrapping [os.ErrNotExist] if
	// nothing was persisted yet.
	Load() (*ticket.KeySnapshot, error)
	ticket.Persister
}

const fileFormatVersion = 1

// keyFile is the on-disk layout. Keys are hex encoded.
type keyFile struct {
	Version         int    `yaml:"version"`
	CreatedAt       int64  `yaml:"created_at"`
	AESKey          string `yaml:"aes_key"`
	HMACKey         string `yaml:"hmac_key"`
	PreviousAESKey  string `yaml:"previous_aes_key,omitempty"`
	PreviousHMACKey string `yaml:"previous_hmac_key,omitempty"`
}

// FileStore keeps the key material in a YAML file readable only by its owner.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (*ticket.KeySnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var f keyFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("failed to parse key file %v: %w", s.path, err)
	}
	if f.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported key file version %v", f.Version)
	}
	snapshot := &ticket.KeySnapshot{CreatedAt: time.Unix(f.CreatedAt, 0)}
	for _, field := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"aes_key", f.AESKey, &snapshot.AESKey},
		{"hmac_key", f.HMACKey, &snapshot.HMACKey},
		{"previous_aes_key", f.PreviousAESKey, &snapshot.PreviousAESKey},
		{"previous_hmac_key", f.PreviousHMACKey, &snapshot.PreviousHMACKey},
	} {
		if field.in == "" {
			continue
		}
		if *field.out, err = hex.DecodeString(field.in); err != nil {
			return nil, fmt.Errorf("invalid %v in key file: %w", field.name, err)
		}
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid key file %v: %w", s.path, err)
	}
	return snapshot, nil
}

func (s *FileStore) Save(snapshot *ticket.KeySnapshot) error {
	f := keyFile{
		Version:         fileFormatVersion,
		CreatedAt:       snapshot.CreatedAt.Unix(),
		AESKey:          hex.EncodeToString(snapshot.AESKey),
		HMACKey:         hex.EncodeToString(snapshot.HMACKey),
		PreviousAESKey:  hex.EncodeToString(snapshot.PreviousAESKey),
		PreviousHMACKey: hex.EncodeToString(snapshot.PreviousHMACKey),
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode key file: %w", err)
	}
	return renameio.WriteFile(s.path, data, 0o600)
}

// MemoryStore keeps the key material in memory. It is meant for tests and for servers that
// accept losing their tickets on restart.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *ticket.KeySnapshot
	saveErr  error
	saves    int
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Load() (*ticket.KeySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return nil, fmt.Errorf("no key material saved: %w", os.ErrNotExist)
	}
	return cloneSnapshot(s.snapshot), nil
}

func (s *MemoryStore) Save(snapshot *ticket.KeySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = cloneSnapshot(snapshot)
	return nil
}

// SetSaveError makes subsequent saves fail with err, or succeed again if err is nil.
func (s *MemoryStore) SetSaveError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneSnapshot(s *ticket.KeySnapshot) *ticket.KeySnapshot {
	return &ticket.KeySnapshot{
		AESKey:          bytes.Clone(s.AESKey),
		HMACKey:         bytes.Clone(s.HMACKey),
		PreviousAESKey:  bytes.Clone(s.PreviousAESKey),
		PreviousHMACKey: bytes.Clone(s.PreviousHMACKey),
		CreatedAt:       s.CreatedAt,
	}
}

// LoadOrCreate restores the key material persisted in store, or creates and persists new
// material if there is none. The returned material persists its rotations to store.
func LoadOrCreate(store Store, now time.Time, opts ticket.KeyMaterialOptions) (*ticket.KeyMaterial, error) {
	opts.Persister = store
	snapshot, err := store.Load()
	if err == nil {
		return ticket.RestoreKeyMaterial(snapshot, opts)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	km, err := ticket.NewKeyMaterial(now, opts)
	if err != nil {
		return nil, err
	}
	if err := km.Persist(); err != nil {
		return nil, err
	}
	return km, nil
}
