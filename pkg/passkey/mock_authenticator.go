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
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a platform authenticator for testing. It
// produces wire-format attestation and assertion responses that pass
// real verification, so ceremony tests exercise the same parsing and
// cryptographic checks as production traffic.
type MockAuthenticator struct {
	// AAGUID is the authenticator model identifier (16 bytes).
	AAGUID []byte

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the signature counter. Assertions report it as-is;
	// tests control advancement explicitly to exercise clone detection.
	SignCount uint32

	// UserVerified controls the UV flag.
	UserVerified bool

	// BackupEligible and BackupState control the BE and BS flags.
	BackupEligible bool
	BackupState    bool

	// Transports are the transport hints reported at registration.
	Transports []string

	privateKey *ecdsa.PrivateKey
	rpIDHash   []byte
}

// MockAuthenticatorOption configures a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// WithTransports sets the reported transport hints.
func WithTransports(transports ...string) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.Transports = transports
	}
}

// WithBackupFlags sets the BE and BS flags.
func WithBackupFlags(eligible, state bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.BackupEligible = eligible
		m.BackupState = state
	}
}

// NewMockAuthenticator creates a mock authenticator bound to the given
// relying party id. Defaults model a platform passkey: user verified,
// internal transport, backup eligible and backed up.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:         aaguid,
		CredentialID:   credID,
		SignCount:      0,
		UserVerified:   true,
		BackupEligible: true,
		BackupState:    true,
		Transports:     []string{TransportInternal},
		privateKey:     privateKey,
		rpIDHash:       rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// CredentialIDBase64 returns the credential id in canonical base64url.
func (m *MockAuthenticator) CredentialIDBase64() string {
	return base64.RawURLEncoding.EncodeToString(m.CredentialID)
}

// PublicKeyBytes returns the public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),           // x coordinate
		-3: pubKey.Y.Bytes(),           // y coordinate
	}

	return webauthncbor.Marshal(coseKey)
}

// Attest produces a parsed registration response for the given challenge,
// built by serializing a wire-format response and running it through the
// real parser. The challenge is the base64url string issued in the
// creation options.
func (m *MockAuthenticator) Attest(challenge, origin string) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	attObj, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	wire := map[string]interface{}{
		"id":    m.CredentialIDBase64(),
		"rawId": m.CredentialIDBase64(),
		"type":  "public-key",
		"response": map[string]interface{}{
			"clientDataJSON":    base64.RawURLEncoding.EncodeToString(clientDataJSON),
			"attestationObject": base64.RawURLEncoding.EncodeToString(attObj),
			"transports":        m.Transports,
		},
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}

	return protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
}

// Assert produces a wire-format assertion response for the given
// challenge. The sign count is reported as-is; callers advance it with
// IncrementSignCount to model a healthy authenticator or leave it to
// model a cloned one. An empty userHandle omits the field, matching
// clients that withhold it.
func (m *MockAuthenticator) Assert(challenge, origin, userHandle string) (*AssertionResponse, error) {
	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	signedData := append(authData, clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	resp := &AssertionResponse{
		ID:    m.CredentialIDBase64(),
		RawID: m.CredentialIDBase64(),
		Type:  "public-key",
		Response: AssertionResponseInner{
			AuthenticatorData: base64.RawURLEncoding.EncodeToString(authData),
			ClientDataJSON:    base64.RawURLEncoding.EncodeToString(clientDataJSON),
			Signature:         base64.RawURLEncoding.EncodeToString(signature),
		},
	}
	if userHandle != "" {
		resp.Response.UserHandle = base64.RawURLEncoding.EncodeToString([]byte(userHandle))
	}
	return resp, nil
}

// IncrementSignCount increments and returns the new sign count.
func (m *MockAuthenticator) IncrementSignCount() uint32 {
	m.SignCount++
	return m.SignCount
}

// buildFlags builds the authenticator flags byte. UP is always set.
func (m *MockAuthenticator) buildFlags(includeCredential bool) byte {
	var flags byte = 0x01 // UP
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if m.BackupEligible {
		flags |= 0x08 // BE
	}
	if m.BackupState {
		flags |= 0x10 // BS
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return flags
}

// buildAuthenticatorData builds the authenticator data structure,
// including attested credential data when registering.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(m.buildFlags(includeCredential))

	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

// buildClientDataJSON builds the collected client data. The challenge is
// echoed exactly as issued.
func (m *MockAuthenticator) buildClientDataJSON(challenge, origin, credType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      credType,
		Challenge: challenge,
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign creates an ASN.1 DER encoded ECDSA signature over the data.
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return asn1MarshalSignature(r, s)
}

// asn1MarshalSignature encodes r and s as an ASN.1 DER signature.
func asn1MarshalSignature(r, s *big.Int) ([]byte, error) {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	rLen := len(rBytes)
	sLen := len(sBytes)
	seqLen := 2 + rLen + 2 + sLen

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30)
	sig = append(sig, byte(seqLen))
	sig = append(sig, 0x02)
	sig = append(sig, byte(rLen))
	sig = append(sig, rBytes...)
	sig = append(sig, 0x02)
	sig = append(sig, byte(sLen))
	sig = append(sig, sBytes...)

	return sig, nil
}
