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
	"sync"
	"time"
)

// MemoryCredentialStore is an in-memory CredentialStore for development
// and testing. Not suitable for production use.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential // keyed by credential id
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]*Credential),
	}
}

// FindByCredentialID retrieves a credential by its base64url id.
func (s *MemoryCredentialStore) FindByCredentialID(ctx context.Context, credentialID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[credentialID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	out := *cred
	return &out, nil
}

// FindByUser retrieves all credentials owned by a user.
func (s *MemoryCredentialStore) FindByUser(ctx context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Credential
	for _, cred := range s.creds {
		if cred.UserID == userID {
			cp := *cred
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Insert stores a new credential.
func (s *MemoryCredentialStore) Insert(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creds[cred.CredentialID]; exists {
		return ErrDuplicateCredential
	}
	cp := *cred
	s.creds[cred.CredentialID] = &cp
	return nil
}

// UpdateCounter sets the sign counter and last-used timestamp.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	cred.SignCount = counter
	cred.LastUsedAt = &usedAt
	return nil
}

// Delete removes a credential by its id.
func (s *MemoryCredentialStore) Delete(ctx context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.creds[credentialID]; !ok {
		return ErrCredentialNotFound
	}
	delete(s.creds, credentialID)
	return nil
}

type challengeKey struct {
	subject string
	kind    CeremonyKind
}

// MemoryChallengeStore is an in-memory ChallengeStore for development
// and testing.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[challengeKey]ChallengeRecord
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[challengeKey]ChallengeRecord),
	}
}

// Create stores a challenge, replacing any pending one for the same key.
func (s *MemoryChallengeStore) Create(ctx context.Context, rec ChallengeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challengeKey{rec.Subject, rec.Kind}] = rec
	return nil
}

// Get retrieves a pending challenge.
func (s *MemoryChallengeStore) Get(ctx context.Context, subject string, kind CeremonyKind) (*ChallengeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.challenges[challengeKey{subject, kind}]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	out := rec
	return &out, nil
}

// Consume deletes a challenge, reporting whether one was removed.
// Holding the lock across the lookup and delete makes the check-and-act
// atomic: of two concurrent consumers, exactly one sees true.
func (s *MemoryChallengeStore) Consume(ctx context.Context, subject string, kind CeremonyKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey{subject, kind}
	if _, ok := s.challenges[key]; !ok {
		return false, nil
	}
	delete(s.challenges, key)
	return true, nil
}

// MemoryUserDirectory is an in-memory UserDirectory for development and
// testing.
type MemoryUserDirectory struct {
	mu     sync.RWMutex
	byID   map[string]Identity
	byName map[string]string // username -> id
}

// NewMemoryUserDirectory creates a new in-memory user directory.
func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{
		byID:   make(map[string]Identity),
		byName: make(map[string]string),
	}
}

// Add registers an identity in the directory.
func (s *MemoryUserDirectory) Add(identity Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[identity.ID] = identity
	if identity.Username != "" {
		s.byName[identity.Username] = identity.ID
	}
}

// FindByID retrieves an identity by user id.
func (s *MemoryUserDirectory) FindByID(ctx context.Context, id string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := identity
	return &out, nil
}

// FindByUsername retrieves an identity by username.
func (s *MemoryUserDirectory) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	identity := s.byID[id]
	return &identity, nil
}

// MemoryPreferences is an in-memory PreferenceInitializer that records
// which users have been seeded.
type MemoryPreferences struct {
	mu     sync.Mutex
	seeded map[string]bool
}

// NewMemoryPreferences creates a new in-memory preference initializer.
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{
		seeded: make(map[string]bool),
	}
}

// EnsureDefaults marks the user's preferences as seeded.
func (s *MemoryPreferences) EnsureDefaults(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seeded[userID] = true
	return nil
}

// Seeded reports whether a user's preferences have been initialized.
func (s *MemoryPreferences) Seeded(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.seeded[userID]
}
