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

package scramblesuit

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/renameio"
)

// TicketJar stores at most one ticket per server address.
type TicketJar interface {
	// Put stores t for addr, replacing any previous ticket.
	Put(addr string, t *StoredTicket) error
	// Take removes and returns the ticket for addr, or nil if there is none.
	Take(addr string) (*StoredTicket, error)
}

// MemoryTicketJar is a TicketJar that lives in memory.
type MemoryTicketJar struct {
	mu      sync.Mutex
	tickets map[string]*StoredTicket
}

var _ TicketJar = (*MemoryTicketJar)(nil)

// NewMemoryTicketJar returns an empty MemoryTicketJar.
func NewMemoryTicketJar() *MemoryTicketJar {
	return &MemoryTicketJar{tickets: make(map[string]*StoredTicket)}
}

func (j *MemoryTicketJar) Put(addr string, t *StoredTicket) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tickets[addr] = cloneStoredTicket(t)
	return nil
}

func (j *MemoryTicketJar) Take(addr string) (*StoredTicket, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	t, ok := j.tickets[addr]
	if !ok {
		return nil, nil
	}
	delete(j.tickets, addr)
	return t, nil
}

func cloneStoredTicket(t *StoredTicket) *StoredTicket {
	return &StoredTicket{
		MasterKey:  bytes.Clone(t.MasterKey),
		Ticket:     bytes.Clone(t.Ticket),
		ReceivedAt: t.ReceivedAt,
	}
}

type jarEntry struct {
	Address    string `yaml:"address"`
	ReceivedAt int64  `yaml:"received_at"`
	MasterKey  string `yaml:"master_key"`
	Ticket     string `yaml:"ticket"`
}

type jarFile struct {
	Tickets []jarEntry `yaml:"tickets"`
}

// take removes the entry for addr from f.
func (f *jarFile) take(addr string) (jarEntry, bool) {
	for i, e := range f.Tickets {
		if e.Address == addr {
			f.Tickets = append(f.Tickets[:i], f.Tickets[i+1:]...)
			return e, true
		}
	}
	return jarEntry{}, false
}

// FileTicketJar is a TicketJar kept in a YAML file, so tickets survive client restarts.
type FileTicketJar struct {
	mu   sync.Mutex
	path string
}

var _ TicketJar = (*FileTicketJar)(nil)

// NewFileTicketJar returns a FileTicketJar backed by the file at path. The file is created
// on the first Put.
func NewFileTicketJar(path string) *FileTicketJar {
	return &FileTicketJar{path: path}
}

func (j *FileTicketJar) read() (*jarFile, error) {
	f := &jarFile{}
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse ticket jar %v: %w", j.path, err)
	}
	return f, nil
}

func (j *FileTicketJar) write(f *jarFile) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return renameio.WriteFile(j.path, data, 0o600)
}

func (j *FileTicketJar) Put(addr string, t *StoredTicket) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := j.read()
	if err != nil {
		return err
	}
	f.take(addr)
	f.Tickets = append(f.Tickets, jarEntry{
		Address:    addr,
		ReceivedAt: t.ReceivedAt.Unix(),
		MasterKey:  hex.EncodeToString(t.MasterKey),
		Ticket:     hex.EncodeToString(t.Ticket),
	})
	return j.write(f)
}

func (j *FileTicketJar) Take(addr string) (*StoredTicket, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := j.read()
	if err != nil {
		return nil, err
	}
	entry, ok := f.take(addr)
	if !ok {
		return nil, nil
	}
	if err := j.write(f); err != nil {
		return nil, err
	}
	masterKey, err := hex.DecodeString(entry.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid master key for %v: %w", addr, err)
	}
	t, err := hex.DecodeString(entry.Ticket)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket for %v: %w", addr, err)
	}
	return &StoredTicket{MasterKey: masterKey, Ticket: t, ReceivedAt: time.Unix(entry.ReceivedAt, 0)}, nil
}
