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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/pillsme/pillsme-auth/pkg/audit"
	"github.com/pillsme/pillsme-auth/pkg/session"
)

// Service runs the WebAuthn registration and authentication ceremonies.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	creds      CredentialStore
	challenges ChallengeStore
	users      UserDirectory
	prefs      PreferenceInitializer // optional
	tokens     *session.Codec
	audit      *audit.Emitter // optional
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceParams contains dependencies for creating a passkey service.
type ServiceParams struct {
	// Config is the relying party configuration (required).
	Config *Config

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeStore is the pending challenge persistence layer (required).
	ChallengeStore ChallengeStore

	// UserDirectory resolves user identities (required).
	UserDirectory UserDirectory

	// TokenCodec mints session tokens after a successful ceremony (required).
	TokenCodec *session.Codec

	// Preferences seeds notification defaults after registration.
	// Optional; if nil the bootstrap step is skipped.
	Preferences PreferenceInitializer

	// Audit records security events. Optional; if nil no events are emitted.
	Audit *audit.Emitter

	// Logger receives operational logs. Optional; defaults to slog.Default.
	Logger *slog.Logger
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.UserDirectory == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if params.TokenCodec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if params.Logger == nil {
		params.Logger = slog.Default()
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		creds:      params.CredentialStore,
		challenges: params.ChallengeStore,
		users:      params.UserDirectory,
		prefs:      params.Preferences,
		tokens:     params.TokenCodec,
		audit:      params.Audit,
		logger:     params.Logger,
		now:        time.Now,
	}, nil
}

// FinishRegistrationRequest carries the client's attestation response and
// request metadata into FinishRegistration.
type FinishRegistrationRequest struct {
	UserID          string
	Response        *protocol.ParsedCredentialCreationData
	UserName        string
	UserDisplayName string
	DeviceInfo      map[string]string
	ClientIP        string
	UserAgent       string
}

// RegistrationResult is the outcome of a completed registration ceremony.
type RegistrationResult struct {
	Credential *Credential
	Token      string
}

// FinishAuthenticationRequest carries the client's assertion and request
// metadata into FinishAuthentication.
type FinishAuthenticationRequest struct {
	ChallengeToken string
	Assertion      *AssertionResponse
	ClientIP       string
	UserAgent      string
}

// AuthenticationResult is the outcome of a completed authentication ceremony.
type AuthenticationResult struct {
	Identity   *Identity
	Credential *Credential
	Token      string

	// CloneWarning is set when the authenticator's sign counter failed to
	// advance. The login is still accepted; callers may surface the flag.
	CloneWarning bool
}

// BeginRegistration starts the registration ceremony for a known user.
// It issues creation options excluding the user's existing credentials
// and stores a pending challenge keyed by the user id. Starting again
// replaces any prior pending registration challenge.
func (s *Service) BeginRegistration(ctx context.Context, userID, userName, displayName string) (*protocol.CredentialCreation, error) {
	if userID == "" {
		return nil, NewError("begin registration", ErrInvalidRequest)
	}

	identity, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, WrapError("find user", err)
	}
	if userName == "" {
		userName = identity.Username
	}
	if displayName == "" {
		displayName = identity.DisplayName
	}

	existing, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return nil, WrapError("find credentials", err)
	}

	excludeList := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, cred := range existing {
		wc, convErr := cred.toWebAuthn()
		if convErr != nil {
			return nil, convErr
		}
		excludeList = append(excludeList, wc.Descriptor())
	}

	user := &ceremonyUser{
		id:          userID,
		name:        userName,
		displayName: displayName,
	}

	options, sessionData, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
		webauthn.WithCredentialParameters(defaultCredentialParameters()),
	)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	rec := ChallengeRecord{
		Subject:   userID,
		Kind:      KindRegistration,
		Challenge: sessionData.Challenge,
		ExpiresAt: s.now().Add(s.config.ChallengeTTL),
	}
	if err := s.challenges.Create(ctx, rec); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return options, nil
}

// FinishRegistration completes the registration ceremony. The pending
// challenge is consumed before attestation verification so that a raced
// or replayed finish fails on the challenge, not after verification.
func (s *Service) FinishRegistration(ctx context.Context, req FinishRegistrationRequest) (*RegistrationResult, error) {
	if req.UserID == "" || req.Response == nil {
		return nil, NewError("finish registration", ErrInvalidRequest)
	}

	rec, err := s.challenges.Get(ctx, req.UserID, KindRegistration)
	if err != nil {
		return nil, WrapError("get challenge", err)
	}
	if s.now().After(rec.ExpiresAt) {
		_, _ = s.challenges.Consume(ctx, req.UserID, KindRegistration)
		return nil, NewError("finish registration", ErrChallengeExpired)
	}

	ok, err := s.challenges.Consume(ctx, req.UserID, KindRegistration)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if !ok {
		return nil, NewError("finish registration", ErrChallengeNotFound)
	}

	identity, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, WrapError("find user", err)
	}

	userName := req.UserName
	if userName == "" {
		userName = identity.Username
	}
	displayName := req.UserDisplayName
	if displayName == "" {
		displayName = identity.DisplayName
	}
	user := &ceremonyUser{
		id:          req.UserID,
		name:        userName,
		displayName: displayName,
	}

	sessionData := webauthn.SessionData{
		Challenge:        rec.Challenge,
		UserID:           user.WebAuthnID(),
		Expires:          rec.ExpiresAt,
		UserVerification: protocol.VerificationRequired,
	}

	credential, err := s.webauthn.CreateCredential(user, sessionData, req.Response)
	if err != nil {
		s.auditEvent(ctx, audit.Event{
			UserID:    req.UserID,
			Action:    audit.ActionRegisterFailed,
			IPAddress: req.ClientIP,
			UserAgent: req.UserAgent,
			Details:   map[string]string{"error": err.Error()},
		})
		s.logger.Warn("attestation verification failed", "user_id", req.UserID, "error", err)
		return nil, NewError("verify attestation", ErrVerificationFailed)
	}

	stored := fromWebAuthnCredential(req.UserID, credential, s.now())
	stored.UserName = userName
	stored.UserDisplayName = displayName
	stored.DeviceInfo = req.DeviceInfo

	if existing, findErr := s.creds.FindByCredentialID(ctx, stored.CredentialID); findErr == nil && existing != nil {
		return nil, NewError("store credential", ErrDuplicateCredential)
	}
	if err := s.creds.Insert(ctx, stored); err != nil {
		return nil, WrapError("store credential", err)
	}

	if s.prefs != nil {
		if err := s.prefs.EnsureDefaults(ctx, req.UserID); err != nil {
			s.logger.Warn("failed to seed notification preferences",
				"user_id", req.UserID, "error", err)
		}
	}

	details := map[string]string{
		"user_name":         userName,
		"user_display_name": displayName,
		"attachment":        string(stored.Attachment),
		"backup_eligible":   strconv.FormatBool(stored.BackupEligible),
		"backup_state":      strconv.FormatBool(stored.BackupState),
	}
	if len(req.DeviceInfo) > 0 {
		if encoded, encErr := json.Marshal(req.DeviceInfo); encErr == nil {
			details["device_info"] = string(encoded)
		}
	}
	s.auditEvent(ctx, audit.Event{
		UserID:     req.UserID,
		Action:     audit.ActionRegister,
		ResourceID: stored.CredentialID,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
		Details:    details,
	})

	token, err := s.tokens.Issue(req.UserID, s.config.SessionTTL)
	if err != nil {
		return nil, WrapError("issue session token", err)
	}

	return &RegistrationResult{Credential: stored, Token: token}, nil
}

// BeginAuthentication starts a usernameless (discoverable credential)
// authentication ceremony. Because no user is known yet, the pending
// challenge is keyed by an opaque server-issued token that the client
// must echo back when finishing.
func (s *Service) BeginAuthentication(ctx context.Context) (*protocol.CredentialAssertion, string, error) {
	options, sessionData, err := s.webauthn.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, "", WrapError("begin authentication", err)
	}

	challengeToken := uuid.NewString()
	rec := ChallengeRecord{
		Subject:   challengeToken,
		Kind:      KindAuthentication,
		Challenge: sessionData.Challenge,
		ExpiresAt: s.now().Add(s.config.ChallengeTTL),
	}
	if err := s.challenges.Create(ctx, rec); err != nil {
		return nil, "", WrapError("store challenge", err)
	}

	return options, challengeToken, nil
}

// FinishAuthentication completes a usernameless authentication ceremony.
// The credential owner is resolved from the assertion's credential id,
// the challenge is consumed before signature verification, and a
// non-advancing sign counter is accepted but flagged.
func (s *Service) FinishAuthentication(ctx context.Context, req FinishAuthenticationRequest) (*AuthenticationResult, error) {
	if req.ChallengeToken == "" || req.Assertion == nil {
		return nil, NewError("finish authentication", ErrInvalidRequest)
	}

	rec, err := s.challenges.Get(ctx, req.ChallengeToken, KindAuthentication)
	if err != nil {
		return nil, WrapError("get challenge", err)
	}
	if s.now().After(rec.ExpiresAt) {
		_, _ = s.challenges.Consume(ctx, req.ChallengeToken, KindAuthentication)
		return nil, NewError("finish authentication", ErrChallengeExpired)
	}

	assertion := req.Assertion.normalized()
	credentialID := assertion.RawID
	if credentialID == "" {
		credentialID = assertion.ID
	}
	if credentialID == "" {
		return nil, NewError("finish authentication", ErrInvalidRequest)
	}

	stored, err := s.creds.FindByCredentialID(ctx, credentialID)
	if err != nil {
		_, _ = s.challenges.Consume(ctx, req.ChallengeToken, KindAuthentication)
		if IsCredentialNotFound(err) {
			s.logger.Warn("assertion referenced unknown credential", "credential_id", credentialID)
		}
		return nil, WrapError("find credential", err)
	}

	ok, err := s.challenges.Consume(ctx, req.ChallengeToken, KindAuthentication)
	if err != nil {
		return nil, WrapError("consume challenge", err)
	}
	if !ok {
		return nil, NewError("finish authentication", ErrChallengeNotFound)
	}

	parsed, err := assertion.parse()
	if err != nil {
		s.auditFailure(ctx, stored.UserID, req, "malformed assertion")
		return nil, NewError("parse assertion", ErrVerificationFailed)
	}

	wc, err := stored.toWebAuthn()
	if err != nil {
		return nil, err
	}
	user := &ceremonyUser{
		id:          stored.UserID,
		name:        stored.UserName,
		displayName: stored.UserDisplayName,
		credentials: []webauthn.Credential{wc},
	}

	sessionData := webauthn.SessionData{
		Challenge:        rec.Challenge,
		UserID:           user.WebAuthnID(),
		Expires:          rec.ExpiresAt,
		UserVerification: protocol.VerificationPreferred,
	}

	validated, err := s.webauthn.ValidateLogin(user, sessionData, parsed)
	if err != nil {
		s.auditFailure(ctx, stored.UserID, req, "assertion verification failed")
		s.logger.Warn("assertion verification failed",
			"user_id", stored.UserID, "credential_id", credentialID, "error", err)
		return nil, NewError("verify assertion", ErrVerificationFailed)
	}

	// On a clone warning go-webauthn keeps the stored counter, so the
	// authenticator-reported value is read from the assertion itself.
	reportedCount := parsed.Response.AuthenticatorData.Counter
	cloneWarning := validated.Authenticator.CloneWarning
	if cloneWarning {
		s.logger.Warn("sign counter did not advance, possible cloned authenticator",
			"user_id", stored.UserID,
			"credential_id", credentialID,
			"stored_count", stored.SignCount,
			"reported_count", reportedCount)
	}

	if reportedCount > stored.SignCount {
		usedAt := s.now().UTC()
		if err := s.creds.UpdateCounter(ctx, credentialID, reportedCount, usedAt); err != nil {
			return nil, WrapError("update sign counter", err)
		}
		stored.SignCount = reportedCount
		stored.LastUsedAt = &usedAt
	}

	identity, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, WrapError("find user", err)
	}

	details := map[string]string{"credential_id": credentialID}
	if cloneWarning {
		details["clone_warning"] = "true"
	}
	s.auditEvent(ctx, audit.Event{
		UserID:     stored.UserID,
		Action:     audit.ActionAuthenticate,
		ResourceID: credentialID,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
		Details:    details,
	})

	token, err := s.tokens.Issue(stored.UserID, s.config.SessionTTL)
	if err != nil {
		return nil, WrapError("issue session token", err)
	}

	return &AuthenticationResult{
		Identity:     identity,
		Credential:   stored,
		Token:        token,
		CloneWarning: cloneWarning,
	}, nil
}

// ListCredentials returns all credentials registered by a user.
func (s *Service) ListCredentials(ctx context.Context, userID string) ([]*Credential, error) {
	if userID == "" {
		return nil, NewError("list credentials", ErrInvalidRequest)
	}
	creds, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return nil, WrapError("find credentials", err)
	}
	return creds, nil
}

// DeleteCredential removes one of the user's credentials. Deleting a
// credential the user does not own fails, as does deleting the user's
// last remaining passkey, which would lock them out.
func (s *Service) DeleteCredential(ctx context.Context, userID, credentialID, clientIP, userAgent string) error {
	if userID == "" || credentialID == "" {
		return NewError("delete credential", ErrInvalidRequest)
	}
	credentialID = NormalizeBase64URL(credentialID)

	cred, err := s.creds.FindByCredentialID(ctx, credentialID)
	if err != nil {
		return WrapError("find credential", err)
	}
	if cred.UserID != userID {
		return NewError("delete credential", ErrNotOwner)
	}

	owned, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return WrapError("find credentials", err)
	}
	if len(owned) <= 1 {
		return NewError("delete credential", ErrLastCredential)
	}

	if err := s.creds.Delete(ctx, credentialID); err != nil {
		return WrapError("delete credential", err)
	}

	s.auditEvent(ctx, audit.Event{
		UserID:     userID,
		Action:     audit.ActionDelete,
		ResourceID: credentialID,
		IPAddress:  clientIP,
		UserAgent:  userAgent,
	})

	return nil
}

// DeleteAllCredentials removes every passkey the user has registered,
// as part of account removal. Unlike DeleteCredential the
// last-credential guard does not apply; the caller is dismantling the
// account, not managing devices. Returns how many credentials were
// removed.
func (s *Service) DeleteAllCredentials(ctx context.Context, userID, clientIP, userAgent string) (int, error) {
	if userID == "" {
		return 0, NewError("delete all credentials", ErrInvalidRequest)
	}

	owned, err := s.creds.FindByUser(ctx, userID)
	if err != nil {
		return 0, WrapError("find credentials", err)
	}

	deleted := 0
	for _, cred := range owned {
		if err := s.creds.Delete(ctx, cred.CredentialID); err != nil {
			if IsCredentialNotFound(err) {
				continue
			}
			return deleted, WrapError("delete credential", err)
		}
		deleted++
	}

	s.auditEvent(ctx, audit.Event{
		UserID:    userID,
		Action:    audit.ActionDelete,
		IPAddress: clientIP,
		UserAgent: userAgent,
		Details: map[string]string{
			"scope":   "account",
			"deleted": strconv.Itoa(deleted),
		},
	})

	return deleted, nil
}

// LookupUser resolves a username to an identity, reporting whether the
// user has any registered passkeys.
func (s *Service) LookupUser(ctx context.Context, username string) (*Identity, bool, error) {
	if username == "" {
		return nil, false, NewError("lookup user", ErrInvalidRequest)
	}
	identity, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, false, WrapError("find user", err)
	}
	creds, err := s.creds.FindByUser(ctx, identity.ID)
	if err != nil {
		return nil, false, WrapError("find credentials", err)
	}
	return identity, len(creds) > 0, nil
}

// GetIdentity resolves a user id to an identity.
func (s *Service) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	return s.users.FindByID(ctx, userID)
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// fromWebAuthnCredential converts a freshly verified credential into its
// stored form, deriving the attachment classification once.
func fromWebAuthnCredential(userID string, cred *webauthn.Credential, createdAt time.Time) *Credential {
	transports := make([]string, len(cred.Transport))
	for i, t := range cred.Transport {
		transports[i] = string(t)
	}

	return &Credential{
		CredentialID:   base64.RawURLEncoding.EncodeToString(cred.ID),
		UserID:         userID,
		PublicKey:      base64.StdEncoding.EncodeToString(cred.PublicKey),
		SignCount:      cred.Authenticator.SignCount,
		Transports:     transports,
		Attachment:     DeriveAttachment(transports, cred.Flags.BackupEligible),
		BackupEligible: cred.Flags.BackupEligible,
		BackupState:    cred.Flags.BackupState,
		CreatedAt:      createdAt.UTC(),
	}
}

func (s *Service) auditEvent(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	s.audit.Log(ctx, event)
}

func (s *Service) auditFailure(ctx context.Context, userID string, req FinishAuthenticationRequest, reason string) {
	s.auditEvent(ctx, audit.Event{
		UserID:    userID,
		Action:    audit.ActionAuthenticateFailed,
		IPAddress: req.ClientIP,
		UserAgent: req.UserAgent,
		Details:   map[string]string{"reason": reason},
	})
}
