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

// Package session implements the signed application session token used
// after a successful passkey ceremony.
//
// Token format: base64url(JSON{uid,iat,exp}) + "." + base64url(HMAC-SHA256(payloadSegment, secret)).
// The payload is integrity-protected but not encrypted; the user id it
// carries is not a secret. There is no server-side revocation list, so
// expiry and cookie deletion are the only termination mechanisms.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is the default session lifetime (7 days).
const DefaultTTL = 7 * 24 * time.Hour

// Payload is the claims set embedded in a session token.
type Payload struct {
	// UserID is the authenticated user's id.
	UserID string `json:"uid"`

	// IssuedAt is the unix timestamp the token was minted.
	IssuedAt int64 `json:"iat"`

	// ExpiresAt is the unix timestamp after which the token is invalid.
	ExpiresAt int64 `json:"exp"`
}

// Codec signs and verifies session tokens with a process-wide secret.
// The secret is injected at construction; Verify never reads ambient
// state, which keeps the codec testable with arbitrary secrets.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec creates a token codec with the given signing secret.
// An empty secret is a configuration error; callers should treat it
// as fatal at startup rather than deferring to request time.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("session: signing secret is required")
	}
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// Issue mints a signed token for the given user id.
// A non-positive ttl falls back to DefaultTTL.
func (c *Codec) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("session: user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := c.now().Unix()
	payload := Payload{
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now + int64(ttl/time.Second),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	segment := base64.RawURLEncoding.EncodeToString(body)
	return segment + "." + c.sign(segment), nil
}

// Verify checks a token's structure, signature, and expiry.
// Any malformed, tampered, or expired token yields (nil, false);
// callers treat that as unauthenticated, never as an error.
func (c *Codec) Verify(token string) (*Payload, bool) {
	segment, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return nil, false
	}

	if !hmac.Equal([]byte(signature), []byte(c.sign(segment))) {
		return nil, false
	}

	body, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, false
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	if payload.UserID == "" {
		return nil, false
	}
	if payload.ExpiresAt <= c.now().Unix() {
		return nil, false
	}

	return &payload, true
}

// sign computes the base64url-encoded HMAC-SHA256 of the payload segment.
func (c *Codec) sign(segment string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(segment))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
