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
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/pillsme/pillsme-auth/pkg/metrics"
	"github.com/pillsme/pillsme-auth/pkg/passkey"
	"github.com/pillsme/pillsme-auth/pkg/ratelimit"
	"github.com/pillsme/pillsme-auth/pkg/session"
)

// HandlerContext holds the dependencies shared by all HTTP handlers.
type HandlerContext struct {
	service      *passkey.Service
	sessions     *session.Codec
	secureCookie bool
	logger       *slog.Logger
}

// NewHandlerContext creates a new HandlerContext instance.
func NewHandlerContext(service *passkey.Service, sessions *session.Codec, secureCookie bool, logger *slog.Logger) *HandlerContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerContext{
		service:      service,
		sessions:     sessions,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

func (h *HandlerContext) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, session.Cookie(token, h.service.Config().SessionTTL, h.secureCookie))
}

// ceremonyOutcome maps a ceremony error to a metrics outcome label.
func ceremonyOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case passkey.IsVerificationFailed(err):
		return metrics.OutcomeVerificationFailed
	case passkey.IsChallengeNotFound(err):
		return metrics.OutcomeChallengeNotFound
	case passkey.IsChallengeExpired(err):
		return metrics.OutcomeChallengeExpired
	default:
		return metrics.OutcomeError
	}
}

// RegisterStartHandler begins a passkey registration ceremony and
// returns the credential creation options for the browser.
func (h *HandlerContext) RegisterStartHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterStartRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.UserID == "" {
		handleError(w, ErrMissingUserID)
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), req.UserID, req.UserName, req.UserDisplayName)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, options, http.StatusOK)
}

// RegisterFinishHandler verifies the authenticator's attestation
// response, stores the new credential and issues a session cookie.
func (h *HandlerContext) RegisterFinishHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RegisterFinishRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.UserID == "" {
		handleError(w, ErrMissingUserID)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.OutcomeVerificationFailed, time.Since(start).Seconds())
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	result, err := h.service.FinishRegistration(r.Context(), passkey.FinishRegistrationRequest{
		UserID:          req.UserID,
		Response:        parsed,
		UserName:        req.UserName,
		UserDisplayName: req.UserDisplayName,
		DeviceInfo:      req.DeviceInfo,
		ClientIP:        ratelimit.ClientIP(r),
		UserAgent:       r.UserAgent(),
	})
	metrics.RecordCeremony(metrics.CeremonyRegistration, ceremonyOutcome(err), time.Since(start).Seconds())
	if err != nil {
		handleError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, RegisterFinishResponse{
		Verified:     true,
		CredentialID: result.Credential.CredentialID,
	}, http.StatusOK)
}

// AuthenticateStartHandler begins a discoverable login ceremony. No
// username is required; the authenticator picks the credential.
func (h *HandlerContext) AuthenticateStartHandler(w http.ResponseWriter, r *http.Request) {
	options, challengeToken, err := h.service.BeginAuthentication(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, AuthenticateStartResponse{
		Options:        options,
		ChallengeToken: challengeToken,
	}, http.StatusOK)
}

// AuthenticateFinishHandler verifies the assertion, updates the sign
// counter and issues a session cookie.
func (h *HandlerContext) AuthenticateFinishHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AuthenticateFinishRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.ChallengeToken == "" || req.Credential == nil {
		handleError(w, ErrInvalidRequest)
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), passkey.FinishAuthenticationRequest{
		ChallengeToken: req.ChallengeToken,
		Assertion:      req.Credential,
		ClientIP:       ratelimit.ClientIP(r),
		UserAgent:      r.UserAgent(),
	})
	metrics.RecordCeremony(metrics.CeremonyAuthentication, ceremonyOutcome(err), time.Since(start).Seconds())
	if err != nil {
		handleError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, AuthenticateFinishResponse{
		Verified: true,
		User:     userInfo(result.Identity),
	}, http.StatusOK)
}

// ListPasskeysHandler returns the metadata view of a user's passkeys.
func (h *HandlerContext) ListPasskeysHandler(w http.ResponseWriter, r *http.Request) {
	var req ListPasskeysRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.UserID == "" {
		handleError(w, ErrMissingUserID)
		return
	}

	creds, err := h.service.ListCredentials(r.Context(), req.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := ListPasskeysResponse{Passkeys: make([]PasskeyInfo, len(creds))}
	for i, cred := range creds {
		resp.Passkeys[i] = passkeyInfo(cred)
	}
	writeJSON(w, resp, http.StatusOK)
}

// DeletePasskeyHandler removes one of a user's passkeys. Deleting the
// last remaining passkey is refused so the account stays reachable.
func (h *HandlerContext) DeletePasskeyHandler(w http.ResponseWriter, r *http.Request) {
	var req DeletePasskeyRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.UserID == "" {
		handleError(w, ErrMissingUserID)
		return
	}
	if req.CredentialID == "" {
		handleError(w, ErrInvalidRequest)
		return
	}

	err := h.service.DeleteCredential(r.Context(), req.UserID, req.CredentialID, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		handleError(w, err)
		return
	}

	if metrics.IsEnabled() {
		metrics.CredentialsDeleted.Inc()
	}
	writeJSON(w, DeletePasskeyResponse{Deleted: true}, http.StatusOK)
}

// DeleteAccountHandler removes every passkey bound to the session's
// user, detaching the account from passkey login, and clears the
// session cookie.
func (h *HandlerContext) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.sessionPayload(r)
	if !ok {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	deleted, err := h.service.DeleteAllCredentials(r.Context(), payload.UserID, ratelimit.ClientIP(r), r.UserAgent())
	if err != nil {
		handleError(w, err)
		return
	}
	if metrics.IsEnabled() {
		metrics.CredentialsDeleted.Add(float64(deleted))
	}

	http.SetCookie(w, session.ExpiredCookie(h.secureCookie))
	writeJSON(w, DeleteAccountResponse{Success: true, Deleted: deleted}, http.StatusOK)
}

func (h *HandlerContext) sessionPayload(r *http.Request) (*session.Payload, bool) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	return h.sessions.Verify(cookie.Value)
}

// MeHandler returns the identity bound to the session cookie.
func (h *HandlerContext) MeHandler(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.sessionPayload(r)
	if !ok {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	identity, err := h.service.GetIdentity(r.Context(), payload.UserID)
	if err != nil {
		if passkey.IsUserNotFound(err) {
			writeError(w, ErrUnauthorized, http.StatusUnauthorized)
			return
		}
		handleError(w, err)
		return
	}

	writeJSON(w, userInfo(identity), http.StatusOK)
}

// LogoutHandler clears the session cookie.
func (h *HandlerContext) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, session.ExpiredCookie(h.secureCookie))
	writeJSON(w, map[string]bool{"loggedOut": true}, http.StatusOK)
}

// LookupUserHandler resolves a username to a user id and reports
// whether the user already has passkeys registered.
func (h *HandlerContext) LookupUserHandler(w http.ResponseWriter, r *http.Request) {
	var req LookupUserRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, err)
		return
	}
	if req.Username == "" {
		handleError(w, ErrMissingUsername)
		return
	}

	identity, hasPasskeys, err := h.service.LookupUser(r.Context(), req.Username)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, LookupUserResponse{
		UserID:      identity.ID,
		HasPasskeys: hasPasskeys,
	}, http.StatusOK)
}

// HealthHandler reports liveness.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}
