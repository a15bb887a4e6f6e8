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
	"context"
	"time"
)

// CredentialStore persists public-key credentials.
type CredentialStore interface {
	// FindByCredentialID retrieves a credential by its base64url id.
	// Returns ErrCredentialNotFound if the credential does not exist.
	FindByCredentialID(ctx context.Context, credentialID string) (*Credential, error)

	// FindByUser retrieves all credentials owned by a user.
	// Returns an empty slice if the user has none.
	FindByUser(ctx context.Context, userID string) ([]*Credential, error)

	// Insert stores a new credential. Returns ErrDuplicateCredential if
	// the credential id is already stored, for any user.
	Insert(ctx context.Context, cred *Credential) error

	// UpdateCounter sets the sign counter and last-used timestamp.
	// Called only when the reported counter strictly advances.
	UpdateCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error

	// Delete removes a credential by its id.
	Delete(ctx context.Context, credentialID string) error
}

// ChallengeStore persists pending ceremony challenges keyed by
// (subject, kind). Challenges are short-lived and single use; expiry is
// checked by the ceremony layer at fetch time, not by the store.
type ChallengeStore interface {
	// Create stores a challenge, replacing any pending challenge for the
	// same (subject, kind). Starting a ceremony again cancels the prior one.
	Create(ctx context.Context, rec ChallengeRecord) error

	// Get retrieves a pending challenge.
	// Returns ErrChallengeNotFound if none exists.
	Get(ctx context.Context, subject string, kind CeremonyKind) (*ChallengeRecord, error)

	// Consume deletes a challenge and reports whether a row was actually
	// removed. The conditional delete is what makes single use race-free:
	// of two concurrent finishers, exactly one observes true. Consuming a
	// missing challenge is not an error.
	Consume(ctx context.Context, subject string, kind CeremonyKind) (bool, error)
}

// UserDirectory resolves user identities. The surrounding application
// owns the user model; the ceremonies only read from it.
type UserDirectory interface {
	// FindByID retrieves an identity by user id.
	// Returns ErrUserNotFound if the user does not exist.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// FindByUsername retrieves an identity by username.
	// Returns ErrUserNotFound if the user does not exist.
	FindByUsername(ctx context.Context, username string) (*Identity, error)
}

// PreferenceInitializer seeds default notification preferences for a
// newly registered user. Best-effort: a failure is logged and never
// rolls back the registration.
type PreferenceInitializer interface {
	EnsureDefaults(ctx context.Context, userID string) error
}
