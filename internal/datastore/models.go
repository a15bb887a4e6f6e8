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
	"time"
)

// User is an application account. The wider application owns this table;
// the auth service only reads identities and seeds preferences.
type User struct {
	ID          string `gorm:"primaryKey;size:64"`
	Username    string `gorm:"uniqueIndex;size:255;not null"`
	DisplayName string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// Passkey is a stored WebAuthn credential. The credential id is unique
// across all users.
type Passkey struct {
	CredentialID    string            `gorm:"primaryKey;size:512"`
	UserID          string            `gorm:"index;not null;size:64"`
	PublicKey       string            `gorm:"type:text;not null"`
	SignCount       uint32            `gorm:"default:0"`
	Transports      []string          `gorm:"serializer:json;type:text"`
	Attachment      string            `gorm:"size:20"`
	BackupEligible  bool              `gorm:"default:false"` // WebAuthn BE flag
	BackupState     bool              `gorm:"default:false"` // WebAuthn BS flag
	UserName        string            `gorm:"size:255"`
	UserDisplayName string            `gorm:"size:255"`
	DeviceInfo      map[string]string `gorm:"serializer:json;type:text"`
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// TableName specifies the table name for GORM.
func (Passkey) TableName() string {
	return "passkeys"
}

// Challenge is a pending ceremony challenge. The (subject, kind)
// composite primary key gives each subject at most one pending
// challenge per ceremony kind.
type Challenge struct {
	Subject   string    `gorm:"primaryKey;size:128"`
	Kind      string    `gorm:"primaryKey;size:16"`
	Challenge string    `gorm:"size:512;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// TableName specifies the table name for GORM.
func (Challenge) TableName() string {
	return "auth_challenges"
}

// AuditLog is an append-only security event record.
type AuditLog struct {
	ID           uint              `gorm:"primaryKey"`
	UserID       string            `gorm:"index;size:64"`
	Action       string            `gorm:"index;size:64;not null"`
	ResourceType string            `gorm:"size:32"`
	ResourceID   string            `gorm:"size:512"`
	IPAddress    string            `gorm:"size:64"`
	UserAgent    string            `gorm:"size:512"`
	Details      map[string]string `gorm:"serializer:json;type:text"`
	CreatedAt    time.Time         `gorm:"index"`
}

// TableName specifies the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NotificationPreference holds a user's reminder settings, seeded with
// defaults when their first passkey is registered.
type NotificationPreference struct {
	UserID        string `gorm:"primaryKey;size:64"`
	DoseReminders bool   `gorm:"default:true"`
	RefillAlerts  bool   `gorm:"default:true"`
	WeeklyDigest  bool   `gorm:"default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName specifies the table name for GORM.
func (NotificationPreference) TableName() string {
	return "notification_preferences"
}
