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
	"encoding/binary"
	"testing"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_760_000_000, 0)

func TestProtocolState_Layout(t *testing.T) {
	masterKey := cryptoutil.MakeTestKey(MasterKeyLength, 0x40)
	state, err := NewProtocolState(masterKey, testNow)
	require.NoError(t, err)

	b := state.Marshal(testNow)
	require.Len(t, b, StateLength)
	require.Equal(t, uint32(testNow.Unix()), binary.LittleEndian.Uint32(b[0:4]))
	require.Equal(t, []byte(Identifier), b[4:22])
	require.Equal(t, masterKey, b[22:54])
	require.Equal(t, make([]byte, 10), b[54:64])
}

func TestProtocolState_RoundTrip(t *testing.T) {
	state, err := NewProtocolState(cryptoutil.MakeTestKey(MasterKeyLength, 9), testNow)
	require.NoError(t, err)
	b := state.Marshal(testNow)

	parsed, err := ParseProtocolState(b[:])
	require.NoError(t, err)
	require.Equal(t, state, parsed)
	require.Equal(t, testNow, parsed.IssuedAt())
}

func TestProtocolState_MarshalStampsIssueDate(t *testing.T) {
	state, err := NewProtocolState(cryptoutil.MakeTestKey(MasterKeyLength, 9), testNow)
	require.NoError(t, err)
	later := testNow.Add(90 * time.Minute)

	b := state.Marshal(later)
	require.Equal(t, uint32(later.Unix()), binary.LittleEndian.Uint32(b[0:4]))
	require.Equal(t, later, state.IssuedAt())
}

func TestNewProtocolState_BadMasterKey(t *testing.T) {
	_, err := NewProtocolState(make([]byte, 31), testNow)
	require.ErrorIs(t, err, ErrFormat)
}

func TestParseProtocolState_Errors(t *testing.T) {
	_, err := ParseProtocolState(make([]byte, StateLength-1))
	require.ErrorIs(t, err, ErrFormat)

	state := &ProtocolState{}
	b := state.Marshal(testNow)
	b[identifierOffset+3] ^= 0x01
	_, err = ParseProtocolState(b[:])
	require.ErrorIs(t, err, ErrFormat)
}

func TestProtocolState_IsValid(t *testing.T) {
	lifetime := int64(DefaultLifetime / time.Second)

	expired := &ProtocolState{IssueDate: uint32(testNow.Unix() - lifetime - 1)}
	require.False(t, expired.IsValid(testNow))

	fresh := &ProtocolState{IssueDate: uint32(testNow.Unix() - lifetime + 1)}
	require.True(t, fresh.IsValid(testNow))

	boundary := &ProtocolState{IssueDate: uint32(testNow.Unix() - lifetime)}
	require.True(t, boundary.IsValid(testNow))

	require.False(t, fresh.IsValidFor(testNow, time.Minute))
	require.Equal(t, DefaultLifetime-time.Second, fresh.Age(testNow))
}
