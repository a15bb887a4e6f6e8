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

package rest

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/pillsme/pillsme-auth/pkg/passkey"
)

// RegisterStartRequest begins a passkey registration ceremony.
type RegisterStartRequest struct {
	UserID          string `json:"userId"`
	UserName        string `json:"userName,omitempty"`
	UserDisplayName string `json:"userDisplayName,omitempty"`
}

// RegisterFinishRequest completes a passkey registration ceremony. The
// credential field carries the authenticator's attestation response as
// produced by navigator.credentials.create.
type RegisterFinishRequest struct {
	UserID          string            `json:"userId"`
	UserName        string            `json:"userName,omitempty"`
	UserDisplayName string            `json:"userDisplayName,omitempty"`
	DeviceInfo      map[string]string `json:"deviceInfo,omitempty"`
	Credential      json.RawMessage   `json:"credential"`
}

// RegisterFinishResponse confirms a verified registration.
type RegisterFinishResponse struct {
	Verified     bool   `json:"verified"`
	CredentialID string `json:"credentialId"`
}

// AuthenticateStartResponse carries assertion options plus an opaque
// token identifying the pending challenge. The client echoes the token
// back on finish.
type AuthenticateStartResponse struct {
	Options        *protocol.CredentialAssertion `json:"options"`
	ChallengeToken string                        `json:"challengeToken"`
}

// AuthenticateFinishRequest completes an authentication ceremony.
type AuthenticateFinishRequest struct {
	ChallengeToken string                     `json:"challengeToken"`
	Credential     *passkey.AssertionResponse `json:"credential"`
}

// AuthenticateFinishResponse confirms a verified login.
type AuthenticateFinishResponse struct {
	Verified bool     `json:"verified"`
	User     UserInfo `json:"user"`
}

// UserInfo is the identity payload returned after login and by /auth/me.
type UserInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// ListPasskeysRequest lists a user's registered passkeys.
type ListPasskeysRequest struct {
	UserID string `json:"userId"`
}

// PasskeyInfo is the metadata view of a stored credential. The public
// key and sign counter are deliberately not exposed.
type PasskeyInfo struct {
	CredentialID   string            `json:"credentialId"`
	Attachment     string            `json:"attachment"`
	BackupEligible bool              `json:"backupEligible"`
	BackupState    bool              `json:"backupState"`
	Transports     []string          `json:"transports,omitempty"`
	DeviceInfo     map[string]string `json:"deviceInfo,omitempty"`
	CreatedAt      string            `json:"createdAt"`
	LastUsedAt     string            `json:"lastUsedAt,omitempty"`
}

// ListPasskeysResponse wraps the passkey metadata list.
type ListPasskeysResponse struct {
	Passkeys []PasskeyInfo `json:"passkeys"`
}

// DeletePasskeyRequest removes one of a user's passkeys.
type DeletePasskeyRequest struct {
	UserID       string `json:"userId"`
	CredentialID string `json:"credentialId"`
}

// DeletePasskeyResponse confirms a deletion.
type DeletePasskeyResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteAccountResponse confirms removal of all of a user's passkeys.
type DeleteAccountResponse struct {
	Success bool `json:"success"`
	Deleted int  `json:"deleted"`
}

// LookupUserRequest resolves a username before starting registration.
type LookupUserRequest struct {
	Username string `json:"username"`
}

// LookupUserResponse reports the user id and whether any passkeys exist
// for it, so clients can choose between register and login flows.
type LookupUserResponse struct {
	UserID      string `json:"userId"`
	HasPasskeys bool   `json:"hasPasskeys"`
}

// ErrorResponse is the flat error body returned on failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

const timeFormat = "2006-01-02T15:04:05Z"

func passkeyInfo(cred *passkey.Credential) PasskeyInfo {
	info := PasskeyInfo{
		CredentialID:   cred.CredentialID,
		Attachment:     string(cred.Attachment),
		BackupEligible: cred.BackupEligible,
		BackupState:    cred.BackupState,
		Transports:     cred.Transports,
		DeviceInfo:     cred.DeviceInfo,
		CreatedAt:      cred.CreatedAt.UTC().Format(timeFormat),
	}
	if cred.LastUsedAt != nil {
		info.LastUsedAt = cred.LastUsedAt.UTC().Format(timeFormat)
	}
	return info
}

func userInfo(identity *passkey.Identity) UserInfo {
	return UserInfo{
		ID:          identity.ID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
	}
}
