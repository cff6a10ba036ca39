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

/*
Package ticket implements ScrambleSuit session tickets, a subset of the TLS session tickets
of RFC 5077 used to resume obfuscated sessions without a full handshake.

The server keeps no per-client state. It encrypts the session master key into a ticket and hands
it to the client, which later replays it. The format of a 112-byte ticket is:

	+------------+------------------+--------------+
	| 16-byte IV | 64-byte E(state) | 32-byte HMAC |
	+------------+------------------+--------------+

The 64-byte state is encrypted with AES-128-CBC and contains:

	+-------------------+--------------------+--------------------+-------------+
	| 4-byte issue date | 18-byte identifier | 32-byte master key | 10-byte pad |
	+-------------------+--------------------+--------------------+-------------+

Tickets are replayed inside a handshake message that hides their length and position:

	+--------+-------------------+--------------+-----------------+
	| ticket | 0..1387-byte pad  | 16-byte mark | 32-byte trailer |
	+--------+-------------------+--------------+-----------------+

The mark is a truncated HMAC of the ticket and lets the receiver find the end of the random
padding. The trailer is an HMAC over everything before it plus the current epoch.

[KeyMaterial] holds the ticket keys and rotates them lazily, keeping the previous generation
so tickets issued just before a rotation stay redeemable for one more interval.
*/
package ticket
