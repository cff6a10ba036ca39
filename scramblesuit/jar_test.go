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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testStoredTicket(seed byte) *StoredTicket {
	t := &StoredTicket{
		MasterKey:  make([]byte, 32),
		Ticket:     make([]byte, 112),
		ReceivedAt: testNow,
	}
	t.MasterKey[0] = seed
	t.Ticket[0] = seed
	return t
}

func testTicketJar(t *testing.T, jar TicketJar) {
	got, err := jar.Take("a.example:443")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, jar.Put("a.example:443", testStoredTicket(1)))
	require.NoError(t, jar.Put("b.example:443", testStoredTicket(2)))
	require.NoError(t, jar.Put("a.example:443", testStoredTicket(3)))

	got, err = jar.Take("a.example:443")
	require.NoError(t, err)
	require.Equal(t, testStoredTicket(3), got)

	got, err = jar.Take("a.example:443")
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = jar.Take("b.example:443")
	require.NoError(t, err)
	require.Equal(t, testStoredTicket(2), got)
}

func TestMemoryTicketJar(t *testing.T) {
	testTicketJar(t, NewMemoryTicketJar())
}

func TestMemoryTicketJar_CopiesInput(t *testing.T) {
	jar := NewMemoryTicketJar()
	stored := testStoredTicket(1)
	require.NoError(t, jar.Put("a.example:443", stored))
	stored.MasterKey[0] = 9
	got, err := jar.Take("a.example:443")
	require.NoError(t, err)
	require.Equal(t, byte(1), got.MasterKey[0])
}

func TestFileTicketJar(t *testing.T) {
	testTicketJar(t, NewFileTicketJar(filepath.Join(t.TempDir(), "tickets.yaml")))
}

func TestFileTicketJar_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	require.NoError(t, NewFileTicketJar(path).Put("[2001:db8::1]:443", testStoredTicket(5)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := NewFileTicketJar(path).Take("[2001:db8::1]:443")
	require.NoError(t, err)
	require.Equal(t, testStoredTicket(5).MasterKey, got.MasterKey)
	require.True(t, got.ReceivedAt.Equal(testNow.Truncate(time.Second)))

	got, err = NewFileTicketJar(path).Take("[2001:db8::1]:443")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestFileTicketJar_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tickets: [1, 2"), 0o600))
	_, err := NewFileTicketJar(path).Take("a.example:443")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tickets:\n- address: a.example:443\n  master_key: zz\n  ticket: \"00\"\n"), 0o600))
	_, err = NewFileTicketJar(path).Take("a.example:443")
	require.ErrorContains(t, err, "invalid master key")
}
