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

// MakeTestKey returns a deterministic key of `size` bytes derived from seed.  Not secure!
func MakeTestKey(size int, seed byte) []byte {
	key := make([]byte, size)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

// MakeTestPayload returns a slice of `size` arbitrary bytes.
func MakeTestPayload(size int) []byte {
	payload := make([]byte, size)
	for i := 0; i < size; i++ {
		payload[i] = byte(i)
	}
	return payload
}

// ZeroRandom is a RandomSource that only produces zeros.  Not secure!
var ZeroRandom RandomSource = zeroRandomSource{}

type zeroRandomSource struct{}

func (zeroRandomSource) GetRandom(b []byte) error {
	clear(b)
	return nil
}
