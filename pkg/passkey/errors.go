// Copyright (c) 2026 PillsMe
//
// This file is part of pillsme-auth.
//
// pillsme-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@pillsme.app for commercial licensing options.

package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for passkey ceremony operations.
var (
	// ErrInvalidRequest is returned when a required field is missing or malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrChallengeNotFound is returned when no pending challenge exists for
	// the ceremony, including when a concurrent finish already consumed it.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired is returned when the pending challenge has passed
	// its expiry. The challenge is deleted as a side effect.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrVerificationFailed is returned when attestation or assertion
	// verification fails cryptographically.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when registering a credential id
	// that is already stored.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrUserNotFound is returned when a user identity cannot be resolved.
	ErrUserNotFound = errors.New("user not found")

	// ErrNotOwner is returned when a credential does not belong to the
	// user attempting to operate on it.
	ErrNotOwner = errors.New("credential does not belong to user")

	// ErrLastCredential is returned when deleting a credential would leave
	// its owner without any registered passkey.
	ErrLastCredential = errors.New("cannot delete the last registered passkey")
)

// Error wraps an error with the ceremony operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with the given operation and error.
func NewError(op string, err error) error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsChallengeNotFound returns true if the error indicates a missing challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsChallengeExpired returns true if the error indicates an expired challenge.
func IsChallengeExpired(err error) bool {
	return errors.Is(err, ErrChallengeExpired)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsCredentialNotFound returns true if the error indicates a credential was not found.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsDuplicateCredential returns true if the error indicates a duplicate credential.
func IsDuplicateCredential(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}
