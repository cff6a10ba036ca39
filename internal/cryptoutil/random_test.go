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

package cryptoutil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoRandom(t *testing.T) {
	require.NoError(t, CryptoRandom.GetRandom(nil))
	buf := make([]byte, 16)
	require.NoError(t, CryptoRandom.GetRandom(buf))
	require.False(t, bytes.Equal(buf, make([]byte, 16)), "random bytes are all zeros")
}

func TestRandomBytes(t *testing.T) {
	b, err := RandomBytes(CryptoRandom, 32)
	require.NoError(t, err)
	require.Len(t, b, 32)

	b, err = RandomBytes(ZeroRandom, 8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), b)
}

type failingSource struct{}

func (failingSource) GetRandom([]byte) error { return errors.New("entropy exhausted") }

func TestRandomBytes_Error(t *testing.T) {
	_, err := RandomBytes(failingSource{}, 4)
	require.Error(t, err)
	_, err = RandomInt(failingSource{}, 4)
	require.Error(t, err)
}

func TestRandomInt(t *testing.T) {
	_, err := RandomInt(CryptoRandom, 0)
	require.Error(t, err)

	n, err := RandomInt(ZeroRandom, 10)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		n, err := RandomInt(CryptoRandom, 8)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 8)
		seen[n] = true
	}
	// With 1000 draws over 8 values, missing any value has negligible probability.
	require.Len(t, seen, 8)
}

// sequenceSource replays fixed 4-byte words.
type sequenceSource struct {
	words [][]byte
}

func (s *sequenceSource) GetRandom(b []byte) error {
	copy(b, s.words[0])
	s.words = s.words[1:]
	return nil
}

func TestRandomInt_RejectsBiasedValues(t *testing.T) {
	// For n = 3, 2^32 % 3 == 1, so 0xffffffff is the only rejected value.
	src := &sequenceSource{words: [][]byte{{0xff, 0xff, 0xff, 0xff}, {0, 0, 0, 5}}}
	n, err := RandomInt(src, 3)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Empty(t, src.words)
}

func BenchmarkCryptoRandom(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		buf := make([]byte, 16)
		for pb.Next() {
			if err := CryptoRandom.GetRandom(buf); err != nil {
				b.Fatal(err)
			}
		}
	})
}
