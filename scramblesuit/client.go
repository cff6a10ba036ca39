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
	"fmt"
	"log/slog"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
)

// StoredTicket is a ticket held by a client, with the master key it seals.
// The client never looks inside the ticket.
type StoredTicket struct {
	MasterKey  []byte
	Ticket     []byte
	ReceivedAt time.Time
}

// ParseNewTicket splits a NEW_TICKET payload received at now.
func ParseNewTicket(payload []byte, now time.Time) (*StoredTicket, error) {
	if len(payload) != NewTicketLength {
		return nil, fmt.Errorf("%w: new ticket payload is %d bytes, want %d", ticket.ErrFormat, len(payload), NewTicketLength)
	}
	return &StoredTicket{
		MasterKey:  bytes.Clone(payload[:ticket.MasterKeyLength]),
		Ticket:     bytes.Clone(payload[ticket.MasterKeyLength:]),
		ReceivedAt: now,
	}, nil
}

// ClientOptions configure a [Client].
type ClientOptions struct {
	// Jar defaults to a new MemoryTicketJar.
	Jar TicketJar
	// Lifetime is how long a received ticket is worth trying. Defaults to ticket.DefaultLifetime.
	Lifetime time.Duration
	// MaxPadding defaults to ticket.MaxPaddingLength.
	MaxPadding int
	// Primitives defaults to cryptoutil.Std.
	Primitives cryptoutil.Primitives
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Client stores the tickets it receives and redeems them on later connections.
type Client struct {
	jar      TicketJar
	framer   ticket.Framer
	lifetime time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		jar:      opts.Jar,
		framer:   ticket.Framer{MaxPadding: opts.MaxPadding, Primitives: opts.Primitives},
		lifetime: opts.Lifetime,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if c.jar == nil {
		c.jar = NewMemoryTicketJar()
	}
	if c.lifetime <= 0 {
		c.lifetime = ticket.DefaultLifetime
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// StoreNewTicket stores the NEW_TICKET payload received from the server at addr,
// replacing any ticket stored for it.
func (c *Client) StoreNewTicket(addr string, payload []byte) error {
	stored, err := ParseNewTicket(payload, c.now())
	if err != nil {
		return err
	}
	if err := c.jar.Put(addr, stored); err != nil {
		return fmt.Errorf("failed to store ticket: %w", err)
	}
	c.logger.Debug("Stored session ticket", "address", addr)
	return nil
}

// RedeemTicket removes and returns the ticket stored for addr. Tickets are single use.
// It returns nil if there is no ticket, or if it is older than the lifetime.
func (c *Client) RedeemTicket(addr string) (*StoredTicket, error) {
	stored, err := c.jar.Take(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	if stored == nil {
		return nil, nil
	}
	if age := c.now().Sub(stored.ReceivedAt); age > c.lifetime {
		c.logger.Debug("Discarding expired session ticket", "address", addr, "expired_for", age-c.lifetime)
		return nil, nil
	}
	return stored, nil
}

// BuildResumptionRequest frames a stored ticket for sending to the server, authenticated
// with the key derived from its master key.
func (c *Client) BuildResumptionRequest(stored *StoredTicket) ([]byte, error) {
	key, err := ticketMessageKey(stored.MasterKey)
	if err != nil {
		return nil, err
	}
	return c.framer.Frame(stored.Ticket, key, ticket.Epoch(c.now()))
}
