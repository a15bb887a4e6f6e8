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

// Package audit provides best-effort structured security event logging.
// Emitting an event never fails the operation that produced it; sink
// errors are logged locally and swallowed.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Action identifies the security-relevant operation an event records.
type Action string

// Audit actions emitted by the passkey subsystem.
const (
	ActionRegister           Action = "passkey_register"
	ActionRegisterFailed     Action = "passkey_register_failed"
	ActionAuthenticate       Action = "passkey_authenticate"
	ActionAuthenticateFailed Action = "passkey_authenticate_failed"
	ActionDelete             Action = "passkey_delete"
)

// ResourcePasskey is the resource type for passkey events.
const ResourcePasskey = "passkey"

// Event is a single append-only audit record.
type Event struct {
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Details      map[string]string
	CreatedAt    time.Time
}

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Emitter writes audit events to a Sink asynchronously. Writes run on a
// detached context so a cancelled request cannot abort the audit trail,
// and failures never propagate to the caller.
type Emitter struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewEmitter creates an audit emitter backed by the given sink.
// A nil logger falls back to slog.Default.
func NewEmitter(sink Sink, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		sink:    sink,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Log records an event, filling ResourceType and CreatedAt defaults.
// It returns immediately; the write happens in the background.
func (e *Emitter) Log(ctx context.Context, event Event) {
	if e == nil || e.sink == nil {
		return
	}
	if event.ResourceType == "" {
		event.ResourceType = ResourcePasskey
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		if err := e.sink.Write(writeCtx, event); err != nil {
			e.logger.Error("failed to write audit event",
				"action", string(event.Action),
				"user_id", event.UserID,
				"error", err)
		}
	}()
}

// Flush blocks until all in-flight writes have completed. Intended for
// graceful shutdown and tests.
func (e *Emitter) Flush() {
	if e == nil {
		return
	}
	e.wg.Wait()
}
