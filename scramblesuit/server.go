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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
)

// NewTicketLength is the length of a NEW_TICKET payload: a master key followed by its ticket.
const NewTicketLength = ticket.MasterKeyLength + ticket.Length

// ServerOptions configure a [Server].
type ServerOptions struct {
	// Keys is the ticket key material. Required.
	Keys *ticket.KeyMaterial
	// Lifetime defaults to ticket.DefaultLifetime.
	Lifetime time.Duration
	// MaxPadding defaults to ticket.MaxPaddingLength.
	MaxPadding int
	// Primitives defaults to cryptoutil.Std.
	Primitives cryptoutil.Primitives
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server issues and redeems session tickets. It is safe for concurrent use.
type Server struct {
	codec    *ticket.Codec
	framer   ticket.Framer
	prims    cryptoutil.Primitives
	lifetime time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// Resumption is a redeemed ticket.
type Resumption struct {
	State *ticket.ProtocolState
	// Keys are the session keys from the point of view of the server.
	Keys *SessionKeys
	// Length is the number of input bytes taken by the resumption request.
	Length int
}

// NewServer creates a Server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Keys == nil {
		return nil, errors.New("argument Keys must not be nil")
	}
	if opts.MaxPadding != 0 && opts.MaxPadding <= ticket.Length {
		return nil, fmt.Errorf("max padding must exceed %d bytes, got %d", ticket.Length, opts.MaxPadding)
	}
	s := &Server{
		framer:   ticket.Framer{MaxPadding: opts.MaxPadding, Primitives: opts.Primitives},
		prims:    opts.Primitives,
		lifetime: opts.Lifetime,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.prims == nil {
		s.prims = cryptoutil.Std
	}
	if s.lifetime <= 0 {
		s.lifetime = ticket.DefaultLifetime
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.codec = ticket.NewCodec(opts.Keys, s.prims)
	return s, nil
}

// IssueTicketAndKey draws a new master key and returns the NEW_TICKET payload carrying it:
// the master key followed by a ticket sealing it. The payload must only be sent over the
// encrypted channel of an established session.
func (s *Server) IssueTicketAndKey() ([]byte, error) {
	masterKey, err := cryptoutil.RandomBytes(s.prims, ticket.MasterKeyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	t, err := s.issue(masterKey, s.now())
	if err != nil {
		return nil, err
	}
	return append(masterKey, t...), nil
}

// IssueResumptionTicket returns a framed resumption request for a new ticket sealing
// masterKey, identical in form to what a client holding the pair would send.
func (s *Server) IssueResumptionTicket(masterKey []byte) ([]byte, error) {
	now := s.now()
	key, err := ticketMessageKey(masterKey)
	if err != nil {
		return nil, err
	}
	t, err := s.issue(masterKey, now)
	if err != nil {
		return nil, err
	}
	return s.framer.Frame(t, key, ticket.Epoch(now))
}

func (s *Server) issue(masterKey []byte, now time.Time) ([]byte, error) {
	t, err := s.codec.Issue(masterKey, now)
	if err != nil {
		return nil, err
	}
	s.metrics.ticketIssued()
	s.logger.Debug("Issued session ticket", "key_id", s.codec.Keys().Fingerprint())
	return t, nil
}

// zeroMasterKey stands in for the master key of tickets that fail to open, so that the
// rejection path does the same work as the expiry path.
var zeroMasterKey [ticket.MasterKeyLength]byte

// TryResume redeems the resumption request at the start of raw. On failure the caller must
// proceed as if no ticket was presented; the error only serves diagnostics.
func (s *Server) TryResume(raw []byte) (*Resumption, error) {
	res, err := s.tryResume(raw, s.now())
	s.report(res, err)
	return res, err
}

func (s *Server) tryResume(raw []byte, now time.Time) (*Resumption, error) {
	if len(raw) < ticket.MinMessageLength {
		return nil, fmt.Errorf("%w: message is %d bytes, want at least %d", ticket.ErrFormat, len(raw), ticket.MinMessageLength)
	}
	state, openErr := s.codec.Open(raw[:ticket.Length], now)
	masterKey := zeroMasterKey[:]
	if openErr == nil {
		masterKey = state.MasterKey[:]
	}
	keys, err := DeriveSessionKeys(masterKey)
	if err != nil {
		return nil, err
	}
	_, n, frameErr := s.framer.Unframe(raw, keys.SendMAC, ticket.ExpectedEpochs(now))
	switch {
	case openErr != nil:
		return nil, openErr
	case frameErr != nil:
		return nil, frameErr
	case !state.IsValidFor(now, s.lifetime):
		return nil, fmt.Errorf("%w: issued %v ago", ticket.ErrExpired, state.Age(now))
	}
	return &Resumption{State: state, Keys: keys.Reverse(), Length: n}, nil
}

func (s *Server) report(res *Resumption, err error) {
	s.metrics.resumptionAttempted(err)
	switch {
	case err == nil:
		s.logger.Debug("Resumed session from ticket", "issued_at", res.State.IssuedAt())
	case errors.Is(err, ticket.ErrExpired):
		s.logger.Debug("Ticket is authentic but expired", "error", err)
	case errors.Is(err, ticket.ErrFormat) && !errors.Is(err, ticket.ErrAuthenticationFailed):
		s.logger.Debug("Rejected malformed resumption request", "error", err)
	default:
		s.logger.Debug("Rejected resumption request", "reason", ticket.Reason(err))
	}
}

// MaxRequestLength returns the longest resumption request the server accepts.
func (s *Server) MaxRequestLength() int {
	maxPadding := s.framer.MaxPadding
	if maxPadding <= 0 {
		maxPadding = ticket.MaxPaddingLength
	}
	return maxPadding + ticket.MarkLength + ticket.TrailerLength
}

// ReadResumption reads from r until a resumption request verifies, r fails, or
// [Server.MaxRequestLength] bytes were read. It returns the redeemed ticket and any bytes read
// past the request. Timeouts are the responsibility of the caller, for example with
// deadlines on the connection.
func (s *Server) ReadResumption(r io.Reader) (*Resumption, []byte, error) {
	buf := make([]byte, 0, s.MaxRequestLength())
	var verifyErr error
	for {
		n, readErr := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if n > 0 && len(buf) >= ticket.MinMessageLength {
			res, err := s.tryResume(buf, s.now())
			if err == nil {
				s.report(res, nil)
				return res, buf[res.Length:], nil
			}
			verifyErr = err
		}
		if readErr == nil && len(buf) < cap(buf) {
			continue
		}
		// Without a mark the request may simply be incomplete, so a closed stream is reported as
		// a format error. A full buffer or a rejected ticket keeps the verification error.
		err := verifyErr
		if readErr != nil && (err == nil || errors.Is(err, ticket.ErrNoValidMark)) {
			err = fmt.Errorf("%w: stream ended after %d bytes: %w", ticket.ErrFormat, len(buf), readErr)
		}
		s.report(nil, err)
		return nil, buf, err
	}
}
