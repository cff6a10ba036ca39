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
	"encoding/binary"
	"fmt"
	"time"
)

// ProtocolState is the session state sealed inside a ticket.
// The identifier and padding of the serialized form are constants and are not stored.
type ProtocolState struct {
	// IssueDate is the issuance time in seconds since the Unix epoch.
	IssueDate uint32
	// MasterKey is the secret the transport derives its session keys from.
	MasterKey [MasterKeyLength]byte
}

// NewProtocolState returns a state carrying masterKey, issued at now.
func NewProtocolState(masterKey []byte, now time.Time) (*ProtocolState, error) {
	if len(masterKey) != MasterKeyLength {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", ErrFormat, len(masterKey), MasterKeyLength)
	}
	s := &ProtocolState{IssueDate: uint32(now.Unix())}
	copy(s.MasterKey[:], masterKey)
	return s, nil
}

// ParseProtocolState parses the 64-byte serialized state. It fails with [ErrFormat] unless
// the identifier matches.
func ParseProtocolState(b []byte) (*ProtocolState, error) {
	if len(b) != StateLength {
		return nil, fmt.Errorf("%w: state is %d bytes, want %d", ErrFormat, len(b), StateLength)
	}
	if !bytes.Equal(b[identifierOffset:masterKeyOffset], []byte(Identifier)) {
		return nil, fmt.Errorf("%w: invalid state identifier", ErrFormat)
	}
	s := &ProtocolState{IssueDate: binary.LittleEndian.Uint32(b[issueDateOffset:identifierOffset])}
	copy(s.MasterKey[:], b[masterKeyOffset:padOffset])
	return s, nil
}

// Marshal stamps the issue date with now and returns the 64-byte serialized state.
func (s *ProtocolState) Marshal(now time.Time) [StateLength]byte {
	s.IssueDate = uint32(now.Unix())
	var b [StateLength]byte
	binary.LittleEndian.PutUint32(b[issueDateOffset:], s.IssueDate)
	copy(b[identifierOffset:], Identifier)
	copy(b[masterKeyOffset:], s.MasterKey[:])
	return b
}

// IssuedAt returns the issue date as a time.
func (s *ProtocolState) IssuedAt() time.Time {
	return time.Unix(int64(s.IssueDate), 0)
}

// Age returns how long ago the state was issued, with second precision.
func (s *ProtocolState) Age(now time.Time) time.Duration {
	return time.Duration(now.Unix()-int64(s.IssueDate)) * time.Second
}

// IsValid reports whether the state is within [DefaultLifetime] at now.
func (s *ProtocolState) IsValid(now time.Time) bool {
	return s.IsValidFor(now, DefaultLifetime)
}

// IsValidFor reports whether the state is at most lifetime old at now.
func (s *ProtocolState) IsValidFor(now time.Time, lifetime time.Duration) bool {
	return s.Age(now) <= lifetime
}
