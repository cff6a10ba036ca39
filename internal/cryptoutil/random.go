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
	"crypto/rand"
	"encoding/binary"
	"errors"
)

// RandomSource produces cryptographically secure random bytes.
type RandomSource interface {
	// GetRandom fills b with random bytes.
	GetRandom(b []byte) error
}

type cryptoRandomSource struct{}

// GetRandom reads len(b) bytes from crypto/rand.
func (cryptoRandomSource) GetRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// CryptoRandom is the RandomSource backed by the operating system CSPRNG.
var CryptoRandom RandomSource = cryptoRandomSource{}

// RandomBytes returns n fresh bytes drawn from src.
func RandomBytes(src RandomSource, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := src.GetRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// RandomInt returns an integer drawn uniformly from [0, n).
func RandomInt(src RandomSource, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("cryptoutil: RandomInt bound must be positive")
	}
	// Values at or above limit would bias the modulo and are redrawn.
	const space = uint64(1) << 32
	bound := uint64(n)
	limit := space - space%bound
	var buf [4]byte
	for {
		if err := src.GetRandom(buf[:]); err != nil {
			return 0, err
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v < limit {
			return int(v % bound), nil
		}
	}
}
