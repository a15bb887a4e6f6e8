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
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRelyingParty mirrors the service configuration for the virtual
// authenticator.
func testRelyingParty() virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   "PillsMe Test",
		ID:     testRPID,
		Origin: testOrigin,
	}
}

// registerVirtual runs a full registration ceremony through the service
// with a virtual authenticator and returns the resulting credential.
func registerVirtual(t *testing.T, env *testEnv, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *RegistrationResult {
	t.Helper()
	ctx := context.Background()

	options, err := env.svc.BeginRegistration(ctx, testUserID, "", "")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestationResponse := virtualwebauthn.CreateAttestationResponse(testRelyingParty(), auth, cred, *parsedOptions)

	// Parse the wire response the way the HTTP layer does.
	parsed, err := protocol.ParseCredentialCreationResponseBody(strings.NewReader(attestationResponse))
	require.NoError(t, err)

	result, err := env.svc.FinishRegistration(ctx, FinishRegistrationRequest{
		UserID:   testUserID,
		Response: parsed,
	})
	require.NoError(t, err)
	return result
}

func TestIntegrationRegistrationFlow(t *testing.T) {
	env := newTestEnv(t)

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	result := registerVirtual(t, env, auth, cred)
	require.NotNil(t, result.Credential)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, testUserID, result.Credential.UserID)

	creds, err := env.svc.ListCredentials(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Len(t, creds, 1)
}

func TestIntegrationLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerVirtual(t, env, auth, cred)
	auth.AddCredential(cred)

	options, challengeToken, err := env.svc.BeginAuthentication(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, challengeToken)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertionJSON := virtualwebauthn.CreateAssertionResponse(testRelyingParty(), auth, cred, *parsedOptions)

	var assertion AssertionResponse
	require.NoError(t, json.Unmarshal([]byte(assertionJSON), &assertion))

	result, err := env.svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		ChallengeToken: challengeToken,
		Assertion:      &assertion,
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, result.Identity.ID)
	assert.NotEmpty(t, result.Token)
}

func TestIntegrationDiscoverableLoginWithUserHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Register with a plain authenticator, then assert with one that
	// reports a user handle, as platform passkeys do.
	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerVirtual(t, env, auth, cred)

	discoverable := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(testUserID),
	})
	discoverable.AddCredential(cred)

	options, challengeToken, err := env.svc.BeginAuthentication(ctx)
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertionJSON := virtualwebauthn.CreateAssertionResponse(testRelyingParty(), discoverable, cred, *parsedOptions)

	var assertion AssertionResponse
	require.NoError(t, json.Unmarshal([]byte(assertionJSON), &assertion))
	assert.NotEmpty(t, assertion.Response.UserHandle)

	result, err := env.svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
		ChallengeToken: challengeToken,
		Assertion:      &assertion,
	})
	require.NoError(t, err)
	assert.Equal(t, testUserID, result.Identity.ID)
}

func TestIntegrationTwoCredentialsPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	auth1 := virtualwebauthn.NewAuthenticator()
	cred1 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerVirtual(t, env, auth1, cred1)
	auth1.AddCredential(cred1)

	auth2 := virtualwebauthn.NewAuthenticator()
	cred2 := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerVirtual(t, env, auth2, cred2)
	auth2.AddCredential(cred2)

	creds, err := env.svc.ListCredentials(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, creds, 2)

	// Either credential can log in.
	for _, pair := range []struct {
		auth virtualwebauthn.Authenticator
		cred virtualwebauthn.Credential
	}{
		{auth1, cred1},
		{auth2, cred2},
	} {
		options, challengeToken, err := env.svc.BeginAuthentication(ctx)
		require.NoError(t, err)

		optionsJSON, err := json.Marshal(options.Response)
		require.NoError(t, err)
		parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
		require.NoError(t, err)

		assertionJSON := virtualwebauthn.CreateAssertionResponse(testRelyingParty(), pair.auth, pair.cred, *parsedOptions)

		var assertion AssertionResponse
		require.NoError(t, json.Unmarshal([]byte(assertionJSON), &assertion))

		result, err := env.svc.FinishAuthentication(ctx, FinishAuthenticationRequest{
			ChallengeToken: challengeToken,
			Assertion:      &assertion,
		})
		require.NoError(t, err)
		assert.Equal(t, testUserID, result.Identity.ID)
	}
}
