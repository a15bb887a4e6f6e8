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

// Package rest serves the passkey authentication HTTP API.
//
// Routes are mounted under /api: registration and authentication
// ceremony endpoints, passkey management (list, delete), and session
// endpoints (me, logout, lookup-user). Registration endpoints are rate
// limited per client IP. Health lives at /healthz and Prometheus
// metrics at /metrics when enabled.
//
// Failures are returned as a flat JSON body {"error": message} with a
// status code mapped from the domain error.
package rest
