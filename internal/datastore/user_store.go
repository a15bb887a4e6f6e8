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

	"gorm.io/gorm"

	"github.com/pillsme/pillsme-auth/pkg/passkey"
)

// UserDirectory is the GORM-backed passkey.UserDirectory. It reads the
// application's users table; account creation lives elsewhere.
type UserDirectory struct {
	db *gorm.DB
}

// NewUserDirectory creates a user directory on the given database.
func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

// FindByID retrieves an identity by user id.
func (s *UserDirectory) FindByID(ctx context.Context, id string) (*passkey.Identity, error) {
	var row User
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passkey.ErrUserNotFound
		}
		return nil, err
	}
	return toIdentity(&row), nil
}

// FindByUsername retrieves an identity by username.
func (s *UserDirectory) FindByUsername(ctx context.Context, username string) (*passkey.Identity, error) {
	var row User
	err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passkey.ErrUserNotFound
		}
		return nil, err
	}
	return toIdentity(&row), nil
}

func toIdentity(row *User) *passkey.Identity {
	return &passkey.Identity{
		ID:          row.ID,
		Username:    row.Username,
		DisplayName: row.DisplayName,
	}
}
