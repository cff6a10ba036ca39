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

import "time"

const (
	// IVLength is the length of the AES-CBC IV at the start of a ticket.
	IVLength = 16
	// StateLength is the length of a serialized [ProtocolState].
	StateLength = 64
	// MACLength is the length of the HMAC-SHA256 that ends a ticket.
	MACLength = 32
	// Length is the length of a ticket.
	Length = IVLength + StateLength + MACLength

	// AESKeyLength is the length of the ticket encryption key.
	AESKeyLength = 16
	// HMACKeyLength is the length of the ticket authentication key.
	HMACKeyLength = 32
	// MasterKeyLength is the length of the session master key carried in a ticket.
	MasterKeyLength = 32

	// Identifier marks a decrypted state as a ticket.
	Identifier = "ScrambleSuitTicket"
	// IdentifierLength is the length of [Identifier].
	IdentifierLength = len(Identifier)

	// MarkLength is the length of the mark that follows the padding of a handshake message.
	MarkLength = 16
	// TrailerLength is the length of the HMAC that ends a handshake message.
	TrailerLength = 32
	// MinMessageLength is the length of a handshake message without padding.
	MinMessageLength = Length + MarkLength + TrailerLength
	// MaxPaddingLength bounds the random padding so that, on average, ticket handshakes are as
	// long as UniformDH handshakes.
	MaxPaddingLength = 1500

	// DefaultRotationInterval is how long ticket keys are used before being rotated.
	DefaultRotationInterval = 7 * 24 * time.Hour
	// DefaultLifetime is how long an issued ticket can be redeemed.
	DefaultLifetime = 7 * 24 * time.Hour
)

const (
	issueDateOffset  = 0
	identifierOffset = issueDateOffset + 4
	masterKeyOffset  = identifierOffset + IdentifierLength
	padOffset        = masterKeyOffset + MasterKeyLength
)
