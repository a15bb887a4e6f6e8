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
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAttachment(t *testing.T) {
	tests := []struct {
		name           string
		transports     []string
		backupEligible bool
		want           Attachment
	}{
		{
			name:           "internal transport",
			transports:     []string{"internal"},
			backupEligible: true,
			want:           AttachmentPlatform,
		},
		{
			name:           "internal among others",
			transports:     []string{"hybrid", "internal"},
			backupEligible: true,
			want:           AttachmentPlatform,
		},
		{
			name:           "single device security key",
			transports:     []string{"usb"},
			backupEligible: false,
			want:           AttachmentPlatform,
		},
		{
			name:           "backup eligible roaming key",
			transports:     []string{"usb", "nfc"},
			backupEligible: true,
			want:           AttachmentCrossPlatform,
		},
		{
			name:           "no transports, not backup eligible",
			transports:     nil,
			backupEligible: false,
			want:           AttachmentPlatform,
		},
		{
			name:           "no transports, backup eligible",
			transports:     nil,
			backupEligible: true,
			want:           AttachmentCrossPlatform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveAttachment(tt.transports, tt.backupEligible))
		})
	}
}

func TestCredentialToWebAuthn(t *testing.T) {
	id := []byte{0x01, 0x02, 0x03}
	key := []byte{0xa5, 0x01, 0x02}

	cred := &Credential{
		CredentialID:   base64.RawURLEncoding.EncodeToString(id),
		UserID:         testUserID,
		PublicKey:      base64.StdEncoding.EncodeToString(key),
		SignCount:      7,
		Transports:     []string{"internal", "hybrid"},
		BackupEligible: true,
		BackupState:    false,
	}

	wc, err := cred.toWebAuthn()
	require.NoError(t, err)
	assert.Equal(t, id, wc.ID)
	assert.Equal(t, key, wc.PublicKey)
	assert.Equal(t, uint32(7), wc.Authenticator.SignCount)
	assert.True(t, wc.Flags.BackupEligible)
	assert.False(t, wc.Flags.BackupState)
	require.Len(t, wc.Transport, 2)
	assert.Equal(t, "internal", string(wc.Transport[0]))
}

func TestCredentialToWebAuthnBadEncoding(t *testing.T) {
	cred := &Credential{CredentialID: "!!!not-base64!!!", PublicKey: "AAA="}
	_, err := cred.toWebAuthn()
	assert.Error(t, err)

	cred = &Credential{CredentialID: "AAEC", PublicKey: "!!!not-base64!!!"}
	_, err = cred.toWebAuthn()
	assert.Error(t, err)
}

func TestCeremonyUserFallbacks(t *testing.T) {
	u := &ceremonyUser{id: "u1"}
	assert.Equal(t, []byte("u1"), u.WebAuthnID())
	assert.Equal(t, "u1", u.WebAuthnName())
	assert.Equal(t, "u1", u.WebAuthnDisplayName())

	u = &ceremonyUser{id: "u1", name: "alice"}
	assert.Equal(t, "alice", u.WebAuthnName())
	assert.Equal(t, "alice", u.WebAuthnDisplayName())

	u = &ceremonyUser{id: "u1", name: "alice", displayName: "Alice"}
	assert.Equal(t, "Alice", u.WebAuthnDisplayName())
}
