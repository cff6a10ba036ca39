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
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionKeyLength   = 32
	sessionNonceLength = 8
	sessionMACLength   = 32
	sessionKeyMaterial = 2 * (sessionKeyLength + sessionNonceLength + sessionMACLength)
)

// SessionKeys are the traffic secrets derived from a master key, from the point of view of
// the client. Use [SessionKeys.Reverse] for the server.
type SessionKeys struct {
	SendKey   []byte
	SendNonce []byte
	RecvKey   []byte
	RecvNonce []byte
	SendMAC   []byte
	RecvMAC   []byte
}

// DeriveSessionKeys expands masterKey with HKDF-SHA256 into 144 bytes laid out as
// send key, send nonce, receive key, receive nonce, send MAC key and receive MAC key.
func DeriveSessionKeys(masterKey []byte) (*SessionKeys, error) {
	if len(masterKey) != ticket.MasterKeyLength {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", ticket.ErrFormat, len(masterKey), ticket.MasterKeyLength)
	}
	okm := make([]byte, sessionKeyMaterial)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, nil), okm); err != nil {
		return nil, fmt.Errorf("failed to derive session keys: %w", err)
	}
	next := func(n int) []byte {
		b := okm[:n:n]
		okm = okm[n:]
		return b
	}
	return &SessionKeys{
		SendKey:   next(sessionKeyLength),
		SendNonce: next(sessionNonceLength),
		RecvKey:   next(sessionKeyLength),
		RecvNonce: next(sessionNonceLength),
		SendMAC:   next(sessionMACLength),
		RecvMAC:   next(sessionMACLength),
	}, nil
}

// Reverse returns the keys as seen by the peer.
func (k *SessionKeys) Reverse() *SessionKeys {
	return &SessionKeys{
		SendKey:   k.RecvKey,
		SendNonce: k.RecvNonce,
		RecvKey:   k.SendKey,
		RecvNonce: k.SendNonce,
		SendMAC:   k.RecvMAC,
		RecvMAC:   k.SendMAC,
	}
}

// ticketMessageKey returns the key that authenticates the resumption request sent by the
// client holding masterKey.
func ticketMessageKey(masterKey []byte) ([]byte, error) {
	keys, err := DeriveSessionKeys(masterKey)
	if err != nil {
		return nil, err
	}
	return keys.SendMAC, nil
}
