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

package datastore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pillsme/pillsme-auth/pkg/passkey"
)

// ChallengeStore is the GORM-backed passkey.ChallengeStore.
type ChallengeStore struct {
	db *gorm.DB
}

// NewChallengeStore creates a challenge store on the given database.
func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// Create stores a challenge, replacing any pending one for the same
// (subject, kind) via an upsert on the composite primary key.
func (s *ChallengeStore) Create(ctx context.Context, rec passkey.ChallengeRecord) error {
	row := Challenge{
		Subject:   rec.Subject,
		Kind:      string(rec.Kind),
		Challenge: rec.Challenge,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"challenge", "expires_at", "created_at"}),
		}).
		Create(&row).Error
}

// Get retrieves a pending challenge.
func (s *ChallengeStore) Get(ctx context.Context, subject string, kind passkey.CeremonyKind) (*passkey.ChallengeRecord, error) {
	var row Challenge
	err := s.db.WithContext(ctx).
		First(&row, "subject = ? AND kind = ?", subject, string(kind)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, err
	}

	return &passkey.ChallengeRecord{
		Subject:   row.Subject,
		Kind:      passkey.CeremonyKind(row.Kind),
		Challenge: row.Challenge,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// Consume deletes a challenge and reports whether a row was removed.
// The affected-row count from the single DELETE is what makes single
// use race-free under concurrent finishes.
func (s *ChallengeStore) Consume(ctx context.Context, subject string, kind passkey.CeremonyKind) (bool, error) {
	result := s.db.WithContext(ctx).
		Delete(&Challenge{}, "subject = ? AND kind = ?", subject, string(kind))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PruneExpired deletes challenges past their expiry. Intended for a
// periodic background sweep; correctness does not depend on it since
// expiry is checked at fetch time.
func (s *ChallengeStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Delete(&Challenge{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}
