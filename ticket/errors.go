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
	"errors"
	"fmt"
	"time"
)

// Errors returned from this package may be tested against these errors with [errors.Is].
// All of them mean the same thing to a server: proceed as if no ticket was presented.
var (
	// ErrFormat is returned for inputs of the wrong length and for authenticated states whose
	// identifier does not match. It never indicates a cryptographic failure.
	ErrFormat = errors.New("ticket: malformed input")

	// ErrAuthenticationFailed is returned when a ticket does not verify under the current or
	// previous key material.
	ErrAuthenticationFailed = errors.New("ticket: authentication failed")

	// ErrNoValidMark is returned when no mark and trailer pair verifies in a handshake message.
	ErrNoValidMark = fmt.Errorf("ticket: no valid mark: %w", ErrAuthenticationFailed)

	// ErrExpired is returned for authentic tickets older than the session lifetime.
	ErrExpired = errors.New("ticket: expired")
)

// PersistError is reported when rotated key material could not be written to durable storage.
// The rotation itself has taken effect in memory.
type PersistError struct {
	RotatedAt time.Time
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("ticket: failed to persist key material rotated at %v: %v", e.RotatedAt.UTC().Format(time.RFC3339), e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Reason returns a stable label for err, suitable for metrics.
func Reason(err error) string {
	var persistErr *PersistError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoValidMark):
		return "no_mark"
	case errors.Is(err, ErrAuthenticationFailed):
		return "auth"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.As(err, &persistErr):
		return "persist"
	default:
		return "internal"
	}
}
