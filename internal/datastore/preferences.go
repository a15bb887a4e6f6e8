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
)

// PreferenceStore seeds default notification preferences for newly
// registered users. Implements passkey.PreferenceInitializer.
type PreferenceStore struct {
	db *gorm.DB
}

// NewPreferenceStore creates a preference store on the given database.
func NewPreferenceStore(db *gorm.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// EnsureDefaults inserts the default preference row for a user if none
// exists. Existing rows are left untouched, so re-registration never
// resets a user's choices.
func (s *PreferenceStore) EnsureDefaults(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	row := NotificationPreference{
		UserID:        userID,
		DoseReminders: true,
		RefillAlerts:  true,
		WeeklyDigest:  false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// Get returns a user's preferences, or nil if never seeded.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*NotificationPreference, error) {
	var row NotificationPreference
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
