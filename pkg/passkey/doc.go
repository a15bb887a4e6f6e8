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

// Package passkey implements WebAuthn passkey registration and
// authentication for the PillsMe application.
//
// The Service runs both ceremonies against pluggable stores:
//
//   - CredentialStore persists public-key credentials
//   - ChallengeStore holds short-lived, single-use ceremony challenges
//   - UserDirectory resolves identities owned by the application
//
// Registration is performed by an already-identified user and keys its
// challenge by user id. Authentication is usernameless: the server
// issues an opaque challenge token with the assertion options, and the
// credential owner is resolved from the assertion's credential id.
//
// Challenges are consumed with a conditional delete before any
// cryptographic verification, so a replayed or concurrently raced
// finish fails on the challenge rather than reaching the verifier.
// A non-advancing sign counter is accepted but logged and flagged,
// since passkeys synced across devices legitimately share counters.
//
// Basic usage:
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config: &passkey.Config{
//	        RPID:          "pillsme.app",
//	        RPDisplayName: "PillsMe",
//	        RPOrigins:     []string{"https://pillsme.app"},
//	    },
//	    CredentialStore: credStore,
//	    ChallengeStore:  challengeStore,
//	    UserDirectory:   users,
//	    TokenCodec:      codec,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	options, err := svc.BeginRegistration(ctx, userID, "", "")
//	// send options to the client, then:
//	result, err := svc.FinishRegistration(ctx, passkey.FinishRegistrationRequest{
//	    UserID:   userID,
//	    Response: parsedResponse,
//	})
package passkey
