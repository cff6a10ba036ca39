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
	"context"
	"errors"
	"fmt"

	"github.com/Jigsaw-Code/outline-sdk/transport"
)

// ResumptionConn is a connection on which the dialer may have redeemed a stored ticket.
type ResumptionConn struct {
	transport.StreamConn
	// Ticket is the ticket sent on the connection, or nil if the connection needs a full
	// handshake. Its master key seeds the session keys of the connection.
	Ticket *StoredTicket
}

type resumptionStreamDialer struct {
	dialer transport.StreamDialer
	client *Client
}

var _ transport.StreamDialer = (*resumptionStreamDialer)(nil)

// NewResumptionStreamDialer creates a [transport.StreamDialer] that connects with dialer and,
// when client holds a ticket for the address, sends the resumption request before any other
// data. The returned connections are [*ResumptionConn].
func NewResumptionStreamDialer(dialer transport.StreamDialer, client *Client) (transport.StreamDialer, error) {
	if dialer == nil {
		return nil, errors.New("argument dialer must not be nil")
	}
	if client == nil {
		return nil, errors.New("argument client must not be nil")
	}
	return &resumptionStreamDialer{dialer: dialer, client: client}, nil
}

// DialStream implements [transport.StreamDialer].
//
// The ticket is only taken from the jar once the connection is established, so a failed dial
// does not waste it. A jar that cannot be read, or a stored ticket that cannot be framed, results
// in a connection without a ticket.
func (d *resumptionStreamDialer) DialStream(ctx context.Context, raddr string) (transport.StreamConn, error) {
	conn, err := d.dialer.DialStream(ctx, raddr)
	if err != nil {
		return nil, err
	}
	stored, err := d.client.RedeemTicket(raddr)
	if err != nil {
		d.client.logger.Warn("Could not load session ticket, falling back to full handshake", "address", raddr, "error", err)
	}
	if stored == nil {
		return &ResumptionConn{StreamConn: conn}, nil
	}
	request, err := d.client.BuildResumptionRequest(stored)
	if err != nil {
		d.client.logger.Warn("Discarding unusable session ticket, falling back to full handshake", "address", raddr, "error", err)
		return &ResumptionConn{StreamConn: conn}, nil
	}
	if _, err := conn.Write(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send resumption request: %w", err)
	}
	return &ResumptionConn{StreamConn: conn, Ticket: stored}, nil
}
