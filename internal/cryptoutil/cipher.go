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
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	// IVSize is the size of an AES-CBC initialization vector.
	IVSize = aes.BlockSize
	// MACSize is the size of a full HMAC-SHA256 digest.
	MACSize = sha256.Size
	// ShortMACSize is the size of a truncated HMAC-SHA256-128 digest.
	ShortMACSize = 16
)

// ErrBlockSize is returned when CBC input is not a multiple of the AES block size.
var ErrBlockSize = errors.New("cryptoutil: input is not a multiple of the block size")

// Primitives is the set of cryptographic operations consumed by the ticket code.
// Implementations must be safe for concurrent use.
type Primitives interface {
	RandomSource
	// EncryptCBC encrypts block-aligned plaintext with AES-CBC under key and iv.
	EncryptCBC(key, iv, plaintext []byte) ([]byte, error)
	// DecryptCBC decrypts block-aligned ciphertext with AES-CBC under key and iv.
	DecryptCBC(key, iv, ciphertext []byte) ([]byte, error)
	// MAC returns the HMAC-SHA256 of the concatenation of data.
	MAC(key []byte, data ...[]byte) []byte
	// ShortMAC returns the HMAC-SHA256 of the concatenation of data truncated to 128 bits.
	ShortMAC(key []byte, data ...[]byte) []byte
	// Equal compares two MACs in constant time.
	Equal(a, b []byte) bool
}

type stdPrimitives struct {
	RandomSource
}

// NewPrimitives returns the standard Primitives drawing randomness from src.
// A nil src uses [CryptoRandom].
func NewPrimitives(src RandomSource) Primitives {
	if src == nil {
		src = CryptoRandom
	}
	return stdPrimitives{src}
}

// Std is the production Primitives implementation.
var Std = NewPrimitives(nil)

func newCBCBlock(key, iv, input []byte) (cipher.Block, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("cryptoutil: IV is %d bytes, want %d", len(iv), IVSize)
	}
	if len(input)%aes.BlockSize != 0 {
		return nil, ErrBlockSize
	}
	return aes.NewCipher(key)
}

func (stdPrimitives) EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newCBCBlock(key, iv, plaintext)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func (stdPrimitives) DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newCBCBlock(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

func (stdPrimitives) MAC(key []byte, data ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, d := range data {
		mac.Write(d)
	}
	return mac.Sum(nil)
}

func (p stdPrimitives) ShortMAC(key []byte, data ...[]byte) []byte {
	return p.MAC(key, data...)[:ShortMACSize]
}

func (stdPrimitives) Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
