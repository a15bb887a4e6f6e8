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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pillsme/pillsme-auth/pkg/audit"
	"github.com/pillsme/pillsme-auth/pkg/passkey"
	"github.com/pillsme/pillsme-auth/pkg/session"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestCredentialStore(t *testing.T) {
	db := testDB(t)
	store := NewCredentialStore(db)
	ctx := context.Background()

	cred := &passkey.Credential{
		CredentialID:    "cred-1",
		UserID:          "user-1",
		PublicKey:       "a2V5LWJ5dGVz",
		SignCount:       0,
		Transports:      []string{"internal", "hybrid"},
		Attachment:      passkey.AttachmentPlatform,
		BackupEligible:  true,
		BackupState:     true,
		UserName:        "alice@pillsme.test",
		UserDisplayName: "Alice",
		DeviceInfo:      map[string]string{"nickname": "iPhone", "os": "iOS"},
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Insert(ctx, cred))

	// The unique constraint maps to the domain error.
	err := store.Insert(ctx, &passkey.Credential{CredentialID: "cred-1", UserID: "user-2"})
	assert.ErrorIs(t, err, passkey.ErrDuplicateCredential)

	got, err := store.FindByCredentialID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, []string{"internal", "hybrid"}, got.Transports)
	assert.Equal(t, passkey.AttachmentPlatform, got.Attachment)
	assert.Equal(t, "iPhone", got.DeviceInfo["nickname"])
	assert.Nil(t, got.LastUsedAt)

	_, err = store.FindByCredentialID(ctx, "missing")
	assert.ErrorIs(t, err, passkey.ErrCredentialNotFound)

	usedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdateCounter(ctx, "cred-1", 7, usedAt))
	got, err = store.FindByCredentialID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), got.SignCount)
	require.NotNil(t, got.LastUsedAt)

	assert.ErrorIs(t, store.UpdateCounter(ctx, "missing", 1, usedAt), passkey.ErrCredentialNotFound)

	require.NoError(t, store.Insert(ctx, &passkey.Credential{
		CredentialID: "cred-2",
		UserID:       "user-1",
		CreatedAt:    time.Now().UTC().Add(time.Second),
	}))

	creds, err := store.FindByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, "cred-1", creds[0].CredentialID, "oldest first")

	creds, err = store.FindByUser(ctx, "user-9")
	require.NoError(t, err)
	assert.Empty(t, creds)

	require.NoError(t, store.Delete(ctx, "cred-2"))
	assert.ErrorIs(t, store.Delete(ctx, "cred-2"), passkey.ErrCredentialNotFound)
}

func TestChallengeStore(t *testing.T) {
	db := testDB(t)
	store := NewChallengeStore(db)
	ctx := context.Background()

	rec := passkey.ChallengeRecord{
		Subject:   "user-1",
		Kind:      passkey.KindRegistration,
		Challenge: "chal-1",
		ExpiresAt: time.Now().UTC().Add(time.Minute).Truncate(time.Second),
	}
	require.NoError(t, store.Create(ctx, rec))

	// Upsert replaces the pending challenge for the same key.
	rec.Challenge = "chal-2"
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "user-1", passkey.KindRegistration)
	require.NoError(t, err)
	assert.Equal(t, "chal-2", got.Challenge)

	// Same subject, different kind coexists.
	other := passkey.ChallengeRecord{
		Subject:   "user-1",
		Kind:      passkey.KindAuthentication,
		Challenge: "chal-3",
		ExpiresAt: rec.ExpiresAt,
	}
	require.NoError(t, store.Create(ctx, other))

	got, err = store.Get(ctx, "user-1", passkey.KindAuthentication)
	require.NoError(t, err)
	assert.Equal(t, "chal-3", got.Challenge)

	ok, err := store.Consume(ctx, "user-1", passkey.KindRegistration)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "user-1", passkey.KindRegistration)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "user-1", passkey.KindRegistration)
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)

	// The other kind survives.
	_, err = store.Get(ctx, "user-1", passkey.KindAuthentication)
	require.NoError(t, err)
}

func TestChallengeStorePruneExpired(t *testing.T) {
	db := testDB(t)
	store := NewChallengeStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Create(ctx, passkey.ChallengeRecord{
		Subject: "expired", Kind: passkey.KindAuthentication,
		Challenge: "c1", ExpiresAt: now.Add(-time.Minute),
	}))
	require.NoError(t, store.Create(ctx, passkey.ChallengeRecord{
		Subject: "live", Kind: passkey.KindAuthentication,
		Challenge: "c2", ExpiresAt: now.Add(time.Minute),
	}))

	pruned, err := store.PruneExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = store.Get(ctx, "expired", passkey.KindAuthentication)
	assert.ErrorIs(t, err, passkey.ErrChallengeNotFound)
	_, err = store.Get(ctx, "live", passkey.KindAuthentication)
	require.NoError(t, err)
}

func TestUserDirectory(t *testing.T) {
	db := testDB(t)
	dir := NewUserDirectory(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&User{
		ID:          "user-1",
		Username:    "alice@pillsme.test",
		DisplayName: "Alice",
	}).Error)

	got, err := dir.FindByID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@pillsme.test", got.Username)

	got, err = dir.FindByUsername(ctx, "alice@pillsme.test")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)

	_, err = dir.FindByID(ctx, "user-2")
	assert.ErrorIs(t, err, passkey.ErrUserNotFound)

	_, err = dir.FindByUsername(ctx, "bob@pillsme.test")
	assert.ErrorIs(t, err, passkey.ErrUserNotFound)
}

func TestAuditStore(t *testing.T) {
	db := testDB(t)
	store := NewAuditStore(db)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, audit.Event{
		UserID:       "user-1",
		Action:       audit.ActionRegister,
		ResourceType: audit.ResourcePasskey,
		ResourceID:   "cred-1",
		IPAddress:    "203.0.113.9",
		UserAgent:    "test-agent",
		Details:      map[string]string{"attachment": "platform"},
		CreatedAt:    time.Now().UTC().Add(-time.Minute),
	}))
	require.NoError(t, store.Write(ctx, audit.Event{
		UserID: "user-1",
		Action: audit.ActionAuthenticate,
	}))
	require.NoError(t, store.Write(ctx, audit.Event{
		UserID: "user-2",
		Action: audit.ActionAuthenticateFailed,
	}))

	rows, err := store.RecentByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, string(audit.ActionAuthenticate), rows[0].Action, "newest first")
	assert.Equal(t, "platform", rows[1].Details["attachment"])
	assert.False(t, rows[0].CreatedAt.IsZero())
}

func TestAuditStoreAsEmitterSink(t *testing.T) {
	db := testDB(t)
	store := NewAuditStore(db)

	emitter := audit.NewEmitter(store, nil)
	emitter.Log(context.Background(), audit.Event{
		UserID: "user-1",
		Action: audit.ActionDelete,
	})
	emitter.Flush()

	rows, err := store.RecentByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, audit.ResourcePasskey, rows[0].ResourceType)
}

func TestPreferenceStore(t *testing.T) {
	db := testDB(t)
	store := NewPreferenceStore(db)
	ctx := context.Background()

	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.EnsureDefaults(ctx, "user-1"))

	got, err = store.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DoseReminders)
	assert.True(t, got.RefillAlerts)
	assert.False(t, got.WeeklyDigest)

	// A user's explicit choices survive re-registration.
	got.WeeklyDigest = true
	got.DoseReminders = false
	require.NoError(t, db.Save(got).Error)

	require.NoError(t, store.EnsureDefaults(ctx, "user-1"))
	got, err = store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.WeeklyDigest)
	assert.False(t, got.DoseReminders)
}

func TestServiceWithDatastore(t *testing.T) {
	// Wires the GORM stores into the ceremony service end to end.
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&User{
		ID:          "user-1",
		Username:    "alice@pillsme.test",
		DisplayName: "Alice",
	}).Error)

	codec, err := session.NewCodec("test-secret")
	require.NoError(t, err)

	svc, err := passkey.NewService(passkey.ServiceParams{
		Config: &passkey.Config{
			RPID:          "pillsme.test",
			RPDisplayName: "PillsMe Test",
			RPOrigins:     []string{"https://pillsme.test"},
		},
		CredentialStore: NewCredentialStore(db),
		ChallengeStore:  NewChallengeStore(db),
		UserDirectory:   NewUserDirectory(db),
		TokenCodec:      codec,
		Preferences:     NewPreferenceStore(db),
	})
	require.NoError(t, err)

	options, err := svc.BeginRegistration(ctx, "user-1", "", "")
	require.NoError(t, err)
	require.NotNil(t, options)

	// The pending challenge landed in the challenges table.
	rec, err := NewChallengeStore(db).Get(ctx, "user-1", passkey.KindRegistration)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Challenge)
}
