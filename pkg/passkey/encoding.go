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
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/go-webauthn/webauthn/protocol"
)

// NormalizeBase64URL coerces a client-supplied binary field into canonical
// unpadded base64url. Browsers and older client libraries disagree on the
// encoding of credential identifiers and assertion fields, so each value is
// tried as canonical base64url first, then the padded and standard base64
// dialects, and finally treated as a raw UTF-8 string.
func NormalizeBase64URL(value string) string {
	if value == "" {
		return ""
	}

	if decoded, err := base64.RawURLEncoding.DecodeString(value); err == nil {
		if base64.RawURLEncoding.EncodeToString(decoded) == value {
			return value
		}
	}

	if decoded, err := base64.URLEncoding.DecodeString(value); err == nil {
		return base64.RawURLEncoding.EncodeToString(decoded)
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return base64.RawURLEncoding.EncodeToString(decoded)
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return base64.RawURLEncoding.EncodeToString(decoded)
	}

	if utf8.ValidString(value) {
		return base64.RawURLEncoding.EncodeToString([]byte(value))
	}

	return value
}

// AssertionResponse is the wire form of a WebAuthn assertion as produced by
// navigator.credentials.get on the client. Binary fields arrive as base64
// strings in whatever dialect the client library chose.
type AssertionResponse struct {
	ID       string                 `json:"id"`
	RawID    string                 `json:"rawId"`
	Type     string                 `json:"type"`
	Response AssertionResponseInner `json:"response"`
}

// AssertionResponseInner holds the authenticator output of an assertion.
type AssertionResponseInner struct {
	AuthenticatorData string `json:"authenticatorData"`
	ClientDataJSON    string `json:"clientDataJSON"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"userHandle,omitempty"`
}

// normalized returns a copy with every binary field rewritten to canonical
// unpadded base64url.
func (a *AssertionResponse) normalized() *AssertionResponse {
	out := *a
	out.ID = NormalizeBase64URL(a.ID)
	out.RawID = NormalizeBase64URL(a.RawID)
	out.Response.AuthenticatorData = NormalizeBase64URL(a.Response.AuthenticatorData)
	out.Response.ClientDataJSON = NormalizeBase64URL(a.Response.ClientDataJSON)
	out.Response.Signature = NormalizeBase64URL(a.Response.Signature)
	out.Response.UserHandle = NormalizeBase64URL(a.Response.UserHandle)
	return &out
}

// parse converts the normalized wire form into the verifier's parsed
// representation.
func (a *AssertionResponse) parse() (*protocol.ParsedCredentialAssertionData, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return protocol.ParseCredentialRequestResponseBody(bytes.NewReader(raw))
}
