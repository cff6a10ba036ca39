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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jigsaw-Code/outline-ticket/internal/cryptoutil"
)

// KeySnapshot is a copy of the key material, as persisted by a [Persister].
type KeySnapshot struct {
	AESKey          []byte
	HMACKey         []byte
	PreviousAESKey  []byte
	PreviousHMACKey []byte
	CreatedAt       time.Time
}

// HasPrevious reports whether the snapshot carries a grace-period generation.
func (s *KeySnapshot) HasPrevious() bool {
	return s.PreviousAESKey != nil
}

// Validate checks key lengths. The previous keys must be both set or both unset.
func (s *KeySnapshot) Validate() error {
	if len(s.AESKey) != AESKeyLength {
		return fmt.Errorf("AES key is %d bytes, want %d", len(s.AESKey), AESKeyLength)
	}
	if len(s.HMACKey) != HMACKeyLength {
		return fmt.Errorf("HMAC key is %d bytes, want %d", len(s.HMACKey), HMACKeyLength)
	}
	if (s.PreviousAESKey == nil) != (s.PreviousHMACKey == nil) {
		return errors.New("previous AES and HMAC keys must be set together")
	}
	if s.PreviousAESKey != nil {
		if len(s.PreviousAESKey) != AESKeyLength {
			return fmt.Errorf("previous AES key is %d bytes, want %d", len(s.PreviousAESKey), AESKeyLength)
		}
		if len(s.PreviousHMACKey) != HMACKeyLength {
			return fmt.Errorf("previous HMAC key is %d bytes, want %d", len(s.PreviousHMACKey), HMACKeyLength)
		}
	}
	if s.CreatedAt.IsZero() {
		return errors.New("creation time is missing")
	}
	return nil
}

// Persister writes rotated key material to durable storage.
type Persister interface {
	Save(snapshot *KeySnapshot) error
}

// KeyHooks observe key material events. Any hook may be nil.
type KeyHooks struct {
	// Rotated is called after a new generation was swapped in.
	Rotated func(at time.Time)
	// Persisted is called after the material was saved by the [Persister].
	Persisted func()
	// PersistFailed is called when saving failed. The error is a [*PersistError].
	PersistFailed func(err error)
}

// KeyMaterialOptions configure a [KeyMaterial].
type KeyMaterialOptions struct {
	// RotationInterval defaults to DefaultRotationInterval.
	RotationInterval time.Duration
	// Primitives defaults to cryptoutil.Std.
	Primitives cryptoutil.Primitives
	// Persister may be nil, in which case the keys only live in memory.
	Persister Persister
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	Hooks  KeyHooks
}

type keyPair struct {
	aesKey  []byte
	hmacKey []byte
}

// KeyMaterial holds the ticket keys of a server: the current generation and, after the first
// rotation, the previous one. It is safe for concurrent use.
//
// Key slices are replaced on rotation and never modified in place, so readers may keep using
// the slices they loaded after releasing the lock.
type KeyMaterial struct {
	mu        sync.RWMutex
	current   keyPair
	previous  *keyPair
	createdAt time.Time
	// dirty is set while the in-memory material differs from what was last persisted.
	dirty bool

	// rotateMu serializes rotation and persistence.
	rotateMu sync.Mutex

	interval  time.Duration
	prims     cryptoutil.Primitives
	persister Persister
	logger    *slog.Logger
	hooks     KeyHooks
}

func newKeyMaterial(opts KeyMaterialOptions) *KeyMaterial {
	km := &KeyMaterial{
		interval:  opts.RotationInterval,
		prims:     opts.Primitives,
		persister: opts.Persister,
		logger:    opts.Logger,
		hooks:     opts.Hooks,
	}
	if km.interval <= 0 {
		km.interval = DefaultRotationInterval
	}
	if km.prims == nil {
		km.prims = cryptoutil.Std
	}
	if km.logger == nil {
		km.logger = slog.Default()
	}
	return km
}

// NewKeyMaterial creates fresh key material with no previous generation.
// The new material is not persisted; see [KeyMaterial.Persist].
func NewKeyMaterial(now time.Time, opts KeyMaterialOptions) (*KeyMaterial, error) {
	km := newKeyMaterial(opts)
	pair, err := km.generate()
	if err != nil {
		return nil, fmt.Errorf("ticket: failed to generate key material: %w", err)
	}
	km.current = pair
	km.createdAt = now
	km.dirty = km.persister != nil
	return km, nil
}

// RestoreKeyMaterial creates key material from a persisted snapshot.
func RestoreKeyMaterial(snapshot *KeySnapshot, opts KeyMaterialOptions) (*KeyMaterial, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("ticket: invalid key snapshot: %w", err)
	}
	km := newKeyMaterial(opts)
	km.current = keyPair{bytes.Clone(snapshot.AESKey), bytes.Clone(snapshot.HMACKey)}
	if snapshot.HasPrevious() {
		km.previous = &keyPair{bytes.Clone(snapshot.PreviousAESKey), bytes.Clone(snapshot.PreviousHMACKey)}
	}
	km.createdAt = snapshot.CreatedAt
	return km, nil
}

func (km *KeyMaterial) generate() (keyPair, error) {
	aesKey, err := cryptoutil.RandomBytes(km.prims, AESKeyLength)
	if err != nil {
		return keyPair{}, err
	}
	hmacKey, err := cryptoutil.RandomBytes(km.prims, HMACKeyLength)
	if err != nil {
		return keyPair{}, err
	}
	return keyPair{aesKey, hmacKey}, nil
}

// load returns the keys to use for one operation.
func (km *KeyMaterial) load() (current keyPair, previous *keyPair) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.current, km.previous
}

// CurrentHMACKey returns a copy of the current ticket HMAC key.
func (km *KeyMaterial) CurrentHMACKey() []byte {
	current, _ := km.load()
	return bytes.Clone(current.hmacKey)
}

// CreatedAt returns when the current generation was created.
func (km *KeyMaterial) CreatedAt() time.Time {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.createdAt
}

// Degraded reports whether the in-memory material has not been persisted yet.
func (km *KeyMaterial) Degraded() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.dirty
}

// Snapshot returns a deep copy of the key material.
func (km *KeyMaterial) Snapshot() *KeySnapshot {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.snapshotLocked()
}

func (km *KeyMaterial) snapshotLocked() *KeySnapshot {
	s := &KeySnapshot{
		AESKey:    bytes.Clone(km.current.aesKey),
		HMACKey:   bytes.Clone(km.current.hmacKey),
		CreatedAt: km.createdAt,
	}
	if km.previous != nil {
		s.PreviousAESKey = bytes.Clone(km.previous.aesKey)
		s.PreviousHMACKey = bytes.Clone(km.previous.hmacKey)
	}
	return s
}

// Fingerprint returns a short non-secret identifier of the current generation, for logs.
func (km *KeyMaterial) Fingerprint() string {
	current, _ := km.load()
	return fingerprint(current.hmacKey)
}

func fingerprint(hmacKey []byte) string {
	sum := sha256.Sum256(hmacKey)
	return hex.EncodeToString(sum[:4])
}

// CheckAndRotate rotates the keys if the current generation is older than the rotation
// interval at now. Rotation archives the current keys as the previous generation, discarding
// any older one, and generates a new current generation. It is a no-op within the interval.
//
// The rotated material is persisted before it is swapped in. If persisting fails the rotation
// still takes effect, a [*PersistError] is returned, and later calls retry the save.
// Callers that find a rotation in progress return immediately and keep using the old keys.
func (km *KeyMaterial) CheckAndRotate(now time.Time) (rotated bool, err error) {
	km.mu.RLock()
	due := now.Sub(km.createdAt) > km.interval
	dirty := km.dirty
	km.mu.RUnlock()
	if !due && !dirty {
		return false, nil
	}

	if !km.rotateMu.TryLock() {
		return false, nil
	}
	defer km.rotateMu.Unlock()

	// Only this goroutine mutates the material from here on.
	km.mu.RLock()
	snapshot := km.snapshotLocked()
	due = now.Sub(km.createdAt) > km.interval
	dirty = km.dirty
	km.mu.RUnlock()

	if !due {
		if dirty {
			return false, km.persist(snapshot)
		}
		return false, nil
	}

	next, err := km.generate()
	if err != nil {
		km.logger.Error("Failed to generate ticket keys, keeping the current generation", "error", err)
		return false, fmt.Errorf("ticket: failed to generate key material: %w", err)
	}
	rotatedSnapshot := &KeySnapshot{
		AESKey:          next.aesKey,
		HMACKey:         next.hmacKey,
		PreviousAESKey:  snapshot.AESKey,
		PreviousHMACKey: snapshot.HMACKey,
		CreatedAt:       now,
	}
	persistErr := km.save(rotatedSnapshot)

	km.mu.Lock()
	km.previous = &keyPair{rotatedSnapshot.PreviousAESKey, rotatedSnapshot.PreviousHMACKey}
	km.current = next
	km.createdAt = now
	km.dirty = persistErr != nil
	km.mu.Unlock()

	km.logger.Info("Rotated session ticket keys", "key_id", fingerprint(next.hmacKey), "previous_key_id", fingerprint(snapshot.HMACKey))
	if km.hooks.Rotated != nil {
		km.hooks.Rotated(now)
	}
	if persistErr != nil {
		return true, persistErr
	}
	return true, nil
}

// Persist saves the current material if it has a [Persister].
func (km *KeyMaterial) Persist() error {
	km.rotateMu.Lock()
	defer km.rotateMu.Unlock()
	return km.persist(km.Snapshot())
}

// persist saves snapshot and clears the dirty flag. rotateMu must be held.
func (km *KeyMaterial) persist(snapshot *KeySnapshot) error {
	if err := km.save(snapshot); err != nil {
		return err
	}
	km.mu.Lock()
	km.dirty = false
	km.mu.Unlock()
	return nil
}

// save writes snapshot with the Persister, reporting the outcome. rotateMu must be held.
func (km *KeyMaterial) save(snapshot *KeySnapshot) error {
	if km.persister == nil {
		return nil
	}
	if err := km.persister.Save(snapshot); err != nil {
		persistErr := &PersistError{RotatedAt: snapshot.CreatedAt, Err: err}
		km.logger.Error("Failed to persist session ticket keys, will retry", "error", err)
		if km.hooks.PersistFailed != nil {
			km.hooks.PersistFailed(persistErr)
		}
		return persistErr
	}
	if km.hooks.Persisted != nil {
		km.hooks.Persisted()
	}
	return nil
}
