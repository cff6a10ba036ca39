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
Package scramblesuit exposes ScrambleSuit session resumption to the transport handshake.

A server that completed a full handshake hands the client a NEW_TICKET payload from
[Server.IssueTicketAndKey]: a fresh master key followed by a ticket sealing it. The client keeps
the pair in a [TicketJar]. On its next connection it sends [Client.BuildResumptionRequest]
instead of a key exchange, and the server recovers the master key with [Server.TryResume].
Both sides then derive their traffic keys from the master key with [DeriveSessionKeys].

Any error from TryResume means the same thing: continue as if no ticket was presented.

On the client side, [NewResumptionStreamDialer] wraps a transport.StreamDialer so that every
connection to an address with a stored ticket starts with the resumption request.
*/
package scramblesuit
