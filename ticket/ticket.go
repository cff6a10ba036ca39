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
	"fmt"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
)

// Codec seals protocol states into tickets and opens them again.
type Codec struct {
	keys  *KeyMaterial
	prims cryptoutil.Primitives
}

// NewCodec returns a Codec using keys. A nil prims uses cryptoutil.Std.
func NewCodec(keys *KeyMaterial, prims cryptoutil.Primitives) *Codec {
	if prims == nil {
		prims = cryptoutil.Std
	}
	return &Codec{keys: keys, prims: prims}
}

// Keys returns the key material of the Codec.
func (c *Codec) Keys() *KeyMaterial {
	return c.keys
}

// rotate runs the lazy rotation check. KeyMaterial logs and reports its own failures.
func (c *Codec) rotate(now time.Time) {
	_, _ = c.keys.CheckAndRotate(now)
}

// Issue returns a 112-byte ticket carrying masterKey, issued at now and sealed with the current
// key generation.
func (c *Codec) Issue(masterKey []byte, now time.Time) ([]byte, error) {
	state, err := NewProtocolState(masterKey, now)
	if err != nil {
		return nil, err
	}
	c.rotate(now)
	current, _ := c.keys.load()

	ticket := make([]byte, IVLength, Length)
	iv := ticket[:IVLength]
	if err := c.prims.GetRandom(iv); err != nil {
		return nil, fmt.Errorf("ticket: failed to generate IV: %w", err)
	}
	plaintext := state.Marshal(now)
	ciphertext, err := c.prims.EncryptCBC(current.aesKey, iv, plaintext[:])
	if err != nil {
		return nil, fmt.Errorf("ticket: failed to encrypt state: %w", err)
	}
	ticket = append(ticket, ciphertext...)
	ticket = append(ticket, c.prims.MAC(current.hmacKey, ticket)...)
	return ticket, nil
}

// Open authenticates and decrypts ticket. The ticket must verify under the current or the
// previous key generation, and is only decrypted once it does. Open does not check expiry; see
// [ProtocolState.IsValid].
func (c *Codec) Open(ticket []byte, now time.Time) (*ProtocolState, error) {
	if len(ticket) != Length {
		return nil, fmt.Errorf("%w: ticket is %d bytes, want %d", ErrFormat, len(ticket), Length)
	}
	c.rotate(now)
	current, previous := c.keys.load()

	iv := ticket[:IVLength]
	ciphertext := ticket[IVLength : IVLength+StateLength]
	authenticated := ticket[:IVLength+StateLength]
	tag := ticket[IVLength+StateLength:]

	// Both generations are always checked so timing does not reveal which one matched.
	currentOK := c.prims.Equal(c.prims.MAC(current.hmacKey, authenticated), tag)
	previousOK := false
	if previous != nil {
		previousOK = c.prims.Equal(c.prims.MAC(previous.hmacKey, authenticated), tag)
	}
	var aesKey []byte
	switch {
	case currentOK:
		aesKey = current.aesKey
	case previousOK:
		aesKey = previous.aesKey
	default:
		return nil, ErrAuthenticationFailed
	}

	plaintext, err := c.prims.DecryptCBC(aesKey, iv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ticket: failed to decrypt state: %w", err)
	}
	return ParseProtocolState(plaintext)
}
