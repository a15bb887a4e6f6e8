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
	"time"

	"gorm.io/gorm"

	"github.com/pillsme/pillsme-auth/pkg/audit"
)

// AuditStore is the GORM-backed audit.Sink, writing events to the
// append-only audit_logs table.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates an audit sink on the given database.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Write persists a single audit event.
func (s *AuditStore) Write(ctx context.Context, event audit.Event) error {
	row := AuditLog{
		UserID:       event.UserID,
		Action:       string(event.Action),
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
		Details:      event.Details,
		CreatedAt:    event.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// RecentByUser returns a user's most recent events, newest first.
func (s *AuditStore) RecentByUser(ctx context.Context, userID string, limit int) ([]AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []AuditLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
