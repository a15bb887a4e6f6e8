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
	"errors"
	"log/slog"
	"net/http"

	"github.com/pillsme/pillsme-auth/pkg/passkey"
)

// Common errors
var (
	ErrInvalidRequest  = errors.New("invalid request body")
	ErrMissingUserID   = errors.New("userId is required")
	ErrMissingUsername = errors.New("username is required")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInternalError   = errors.New("internal server error")
)

// writeError writes a flat error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{Error: err.Error()}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		slog.Error("failed to encode error response", "error", encErr)
	}
}

// mapErrorToStatusCode maps domain errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, passkey.ErrUserNotFound),
		errors.Is(err, passkey.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, passkey.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, passkey.ErrDuplicateCredential),
		errors.Is(err, passkey.ErrLastCredential):
		return http.StatusConflict
	case errors.Is(err, passkey.ErrVerificationFailed):
		return http.StatusUnauthorized
	case errors.Is(err, passkey.ErrChallengeNotFound),
		errors.Is(err, passkey.ErrChallengeExpired),
		errors.Is(err, passkey.ErrInvalidRequest),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingUserID),
		errors.Is(err, ErrMissingUsername):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// handleError maps the error to a status code and writes the response.
// Internal errors are logged but not leaked to the client.
func handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	if statusCode == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		err = ErrInternalError
	}
	writeError(w, err, statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
