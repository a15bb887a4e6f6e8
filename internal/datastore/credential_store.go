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

	"github.com/pillsme/pillsme-auth/pkg/passkey"
)

// CredentialStore is the GORM-backed passkey.CredentialStore.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a credential store on the given database.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// FindByCredentialID retrieves a credential by its base64url id.
func (s *CredentialStore) FindByCredentialID(ctx context.Context, credentialID string) (*passkey.Credential, error) {
	var row Passkey
	err := s.db.WithContext(ctx).First(&row, "credential_id = ?", credentialID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, passkey.ErrCredentialNotFound
		}
		return nil, err
	}
	return toCredential(&row), nil
}

// FindByUser retrieves all credentials owned by a user, oldest first.
func (s *CredentialStore) FindByUser(ctx context.Context, userID string) ([]*passkey.Credential, error) {
	var rows []Passkey
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	creds := make([]*passkey.Credential, len(rows))
	for i := range rows {
		creds[i] = toCredential(&rows[i])
	}
	return creds, nil
}

// Insert stores a new credential. A unique constraint violation on the
// credential id maps to passkey.ErrDuplicateCredential.
func (s *CredentialStore) Insert(ctx context.Context, cred *passkey.Credential) error {
	row := fromCredential(cred)
	err := s.db.WithContext(ctx).Create(row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return passkey.ErrDuplicateCredential
		}
		return err
	}
	return nil
}

// UpdateCounter sets the sign counter and last-used timestamp.
func (s *CredentialStore) UpdateCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&Passkey{}).
		Where("credential_id = ?", credentialID).
		Updates(map[string]interface{}{
			"sign_count":   counter,
			"last_used_at": usedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return passkey.ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential by its id.
func (s *CredentialStore) Delete(ctx context.Context, credentialID string) error {
	result := s.db.WithContext(ctx).Delete(&Passkey{}, "credential_id = ?", credentialID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return passkey.ErrCredentialNotFound
	}
	return nil
}

func toCredential(row *Passkey) *passkey.Credential {
	return &passkey.Credential{
		CredentialID:    row.CredentialID,
		UserID:          row.UserID,
		PublicKey:       row.PublicKey,
		SignCount:       row.SignCount,
		Transports:      row.Transports,
		Attachment:      passkey.Attachment(row.Attachment),
		BackupEligible:  row.BackupEligible,
		BackupState:     row.BackupState,
		UserName:        row.UserName,
		UserDisplayName: row.UserDisplayName,
		DeviceInfo:      row.DeviceInfo,
		CreatedAt:       row.CreatedAt,
		LastUsedAt:      row.LastUsedAt,
	}
}

func fromCredential(cred *passkey.Credential) *Passkey {
	return &Passkey{
		CredentialID:    cred.CredentialID,
		UserID:          cred.UserID,
		PublicKey:       cred.PublicKey,
		SignCount:       cred.SignCount,
		Transports:      cred.Transports,
		Attachment:      string(cred.Attachment),
		BackupEligible:  cred.BackupEligible,
		BackupState:     cred.BackupState,
		UserName:        cred.UserName,
		UserDisplayName: cred.UserDisplayName,
		DeviceInfo:      cred.DeviceInfo,
		CreatedAt:       cred.CreatedAt,
		LastUsedAt:      cred.LastUsedAt,
	}
}
