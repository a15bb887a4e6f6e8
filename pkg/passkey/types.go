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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyKind distinguishes the two WebAuthn ceremony flows.
type CeremonyKind string

const (
	// KindRegistration is the attestation (credential creation) ceremony.
	KindRegistration CeremonyKind = "registration"

	// KindAuthentication is the assertion (login) ceremony.
	KindAuthentication CeremonyKind = "authentication"
)

// Attachment classifies how an authenticator is bound to a device.
type Attachment string

const (
	// AttachmentPlatform marks device-resident authenticators (Touch ID,
	// Windows Hello, Android screen lock).
	AttachmentPlatform Attachment = "platform"

	// AttachmentCrossPlatform marks roaming authenticators (security keys).
	AttachmentCrossPlatform Attachment = "cross-platform"
)

// TransportInternal is the transport hint reported by platform authenticators.
const TransportInternal = "internal"

// DeriveAttachment classifies a new credential from its transport hints
// and backup eligibility. Single-device credentials (not backup eligible)
// and credentials reachable over the internal transport are platform
// bound; everything else is a roaming authenticator.
func DeriveAttachment(transports []string, backupEligible bool) Attachment {
	for _, t := range transports {
		if t == TransportInternal {
			return AttachmentPlatform
		}
	}
	if !backupEligible {
		return AttachmentPlatform
	}
	return AttachmentCrossPlatform
}

// Credential is a stored public-key credential. One user may own many
// credentials; CredentialID is unique across all users.
type Credential struct {
	// CredentialID is the base64url-encoded credential id assigned by the
	// authenticator. Immutable, primary lookup key.
	CredentialID string

	// UserID is the owning user's id.
	UserID string

	// PublicKey is the COSE public key, stored as standard base64.
	// Immutable after creation.
	PublicKey string

	// SignCount is the authenticator's signature counter, used for clone
	// detection. Monotonically non-decreasing.
	SignCount uint32

	// Transports lists the transport hints reported at registration.
	// Advisory only.
	Transports []string

	// Attachment is the platform/cross-platform classification derived
	// once at registration.
	Attachment Attachment

	// BackupEligible and BackupState reflect multi-device credential
	// backup capability and current state.
	BackupEligible bool
	BackupState    bool

	// UserName and UserDisplayName are labels copied from the owning
	// identity at registration time; they may diverge from the live
	// identity record.
	UserName        string
	UserDisplayName string

	// DeviceInfo is free-form client-supplied metadata (nickname,
	// browser, OS). Opaque to the ceremony layer.
	DeviceInfo map[string]string

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time

	// LastUsedAt is updated only when the sign counter advances.
	LastUsedAt *time.Time
}

// toWebAuthn converts a stored credential into the verifier's form.
func (c *Credential) toWebAuthn() (webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(c.CredentialID)
	if err != nil {
		return webauthn.Credential{}, WrapError("decode credential id", err)
	}
	publicKey, err := base64.StdEncoding.DecodeString(c.PublicKey)
	if err != nil {
		return webauthn.Credential{}, WrapError("decode public key", err)
	}

	transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
	for i, t := range c.Transports {
		transports[i] = protocol.AuthenticatorTransport(t)
	}

	return webauthn.Credential{
		ID:        id,
		PublicKey: publicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}, nil
}

// ChallengeRecord is a pending ceremony challenge. The (Subject, Kind)
// pair is the key: the subject is the user id for registration and a
// server-issued opaque token for authentication.
type ChallengeRecord struct {
	Subject   string
	Kind      CeremonyKind
	Challenge string // base64url challenge as issued to the client
	ExpiresAt time.Time
}

// Identity is the minimal view of a user the ceremonies need.
type Identity struct {
	ID          string
	Username    string
	DisplayName string
}

// ceremonyUser adapts an identity and its stored credentials to the
// webauthn.User interface for a single ceremony.
type ceremonyUser struct {
	id          string
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *ceremonyUser) WebAuthnName() string {
	if u.name == "" {
		return u.id
	}
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.WebAuthnName()
	}
	return u.displayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
