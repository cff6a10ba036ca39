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
	"testing"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
	"github.com/Jigsaw-Code/outline-ticket/ticket"
	"github.com/stretchr/testify/require"
)

func TestDeriveSessionKeys(t *testing.T) {
	masterKey := cryptoutil.MakeTestKey(ticket.MasterKeyLength, 1)
	keys, err := DeriveSessionKeys(masterKey)
	require.NoError(t, err)
	require.Len(t, keys.SendKey, sessionKeyLength)
	require.Len(t, keys.SendNonce, sessionNonceLength)
	require.Len(t, keys.RecvKey, sessionKeyLength)
	require.Len(t, keys.RecvNonce, sessionNonceLength)
	require.Len(t, keys.SendMAC, sessionMACLength)
	require.Len(t, keys.RecvMAC, sessionMACLength)
	require.NotEqual(t, keys.SendKey, keys.RecvKey)
	require.NotEqual(t, keys.SendMAC, keys.RecvMAC)

	again, err := DeriveSessionKeys(masterKey)
	require.NoError(t, err)
	require.Equal(t, keys, again)

	other, err := DeriveSessionKeys(cryptoutil.MakeTestKey(ticket.MasterKeyLength, 2))
	require.NoError(t, err)
	require.NotEqual(t, keys.SendMAC, other.SendMAC)
}

func TestDeriveSessionKeys_BadLength(t *testing.T) {
	_, err := DeriveSessionKeys(make([]byte, 16))
	require.ErrorIs(t, err, ticket.ErrFormat)
}

func TestSessionKeys_Reverse(t *testing.T) {
	keys, err := DeriveSessionKeys(make([]byte, ticket.MasterKeyLength))
	require.NoError(t, err)
	rev := keys.Reverse()
	require.Equal(t, keys.SendKey, rev.RecvKey)
	require.Equal(t, keys.SendNonce, rev.RecvNonce)
	require.Equal(t, keys.RecvMAC, rev.SendMAC)
	require.Equal(t, keys, rev.Reverse())
}
