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

package ticket

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
)

// Epoch returns the epoch marker for t: the decimal number of whole hours since the Unix epoch.
func Epoch(t time.Time) []byte {
	return strconv.AppendInt(nil, t.Unix()/3600, 10)
}

// ExpectedEpochs returns the markers a receiver accepts at t: the previous, current and next
// epoch, which absorbs clock skew around the hour boundary.
func ExpectedEpochs(t time.Time) [][]byte {
	return [][]byte{Epoch(t.Add(-time.Hour)), Epoch(t), Epoch(t.Add(time.Hour))}
}

// Framer wraps tickets into handshake messages and extracts them again.
// The zero value uses [MaxPaddingLength] and cryptoutil.Std.
type Framer struct {
	// MaxPadding bounds how far into the message the mark may start. It must exceed [Length].
	MaxPadding int
	Primitives cryptoutil.Primitives
}

func (f Framer) maxPadding() int {
	if f.MaxPadding <= 0 {
		return MaxPaddingLength
	}
	return f.MaxPadding
}

func (f Framer) prims() cryptoutil.Primitives {
	if f.Primitives == nil {
		return cryptoutil.Std
	}
	return f.Primitives
}

// Frame returns ticket ∥ padding ∥ mark ∥ trailer, where the padding is random and of random
// length in [0, MaxPadding-Length), the mark is the short HMAC of the ticket under hmacKey,
// and the trailer is the HMAC under hmacKey of everything before it followed by epoch.
func (f Framer) Frame(ticket, hmacKey, epoch []byte) ([]byte, error) {
	if len(ticket) != Length {
		return nil, fmt.Errorf("%w: ticket is %d bytes, want %d", ErrFormat, len(ticket), Length)
	}
	prims := f.prims()
	padLength, err := cryptoutil.RandomInt(prims, f.maxPadding()-Length)
	if err != nil {
		return nil, fmt.Errorf("ticket: failed to draw padding length: %w", err)
	}
	msg := make([]byte, Length+padLength, Length+padLength+MarkLength+TrailerLength)
	copy(msg, ticket)
	if err := prims.GetRandom(msg[Length:]); err != nil {
		return nil, fmt.Errorf("ticket: failed to generate padding: %w", err)
	}
	msg = append(msg, prims.ShortMAC(hmacKey, ticket)...)
	msg = append(msg, prims.MAC(hmacKey, msg, epoch)...)
	return msg, nil
}

// Unframe locates the mark of the ticket at the start of msg and verifies the trailer that
// follows it against each of epochs. It returns a copy of the ticket and the number of bytes
// of msg the handshake message occupies; anything after that belongs to the caller.
//
// Every candidate mark position is compared with the constant-time primitive, and the scan
// does not stop at the first match.
func (f Framer) Unframe(msg, hmacKey []byte, epochs [][]byte) (ticket []byte, n int, err error) {
	if len(msg) < MinMessageLength {
		return nil, 0, fmt.Errorf("%w: message is %d bytes, want at least %d", ErrFormat, len(msg), MinMessageLength)
	}
	prims := f.prims()
	candidate := msg[:Length]
	mark := prims.ShortMAC(hmacKey, candidate)

	last := min(f.maxPadding(), len(msg)-MarkLength-TrailerLength)
	markAt := -1
	for i := Length; i <= last; i++ {
		if prims.Equal(mark, msg[i:i+MarkLength]) && markAt < 0 {
			markAt = i
		}
	}
	found := markAt >= 0
	if !found {
		// The trailer is still checked at the last position so a missing mark costs the same
		// MACs as a failed trailer.
		markAt = last
	}

	end := markAt + MarkLength
	trailer := msg[end : end+TrailerLength]
	valid := false
	for _, epoch := range epochs {
		if prims.Equal(prims.MAC(hmacKey, msg[:end], epoch), trailer) {
			valid = true
		}
	}
	if !found || !valid {
		return nil, 0, ErrNoValidMark
	}
	return bytes.Clone(candidate), end + TrailerLength, nil
}
