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

package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the session cookie name.
const CookieName = "pm_session"

// Cookie builds the session cookie carrying a signed token.
// Secure is added by the caller when the deployment is production or
// any configured origin is served over HTTPS (see SecureForOrigins).
func Cookie(token string, maxAge time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge / time.Second),
		Secure:   secure,
	}
}

// ExpiredCookie builds a cookie that clears the session on the client.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   secure,
	}
}

// SecureForOrigins reports whether session cookies should carry the
// Secure attribute for the given deployment environment and configured
// origins. Secure is set in production and whenever any origin is HTTPS.
func SecureForOrigins(environment string, origins []string) bool {
	if environment == "production" {
		return true
	}
	for _, origin := range origins {
		if strings.HasPrefix(strings.TrimSpace(origin), "https://") {
			return true
		}
	}
	return false
}
