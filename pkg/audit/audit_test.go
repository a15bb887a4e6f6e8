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

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *captureSink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestEmitterLog(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(sink, nil)

	emitter.Log(context.Background(), Event{
		UserID:     "user-1",
		Action:     ActionRegister,
		ResourceID: "cred-1",
		IPAddress:  "203.0.113.9",
	})
	emitter.Flush()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, ActionRegister, events[0].Action)
	assert.Equal(t, "user-1", events[0].UserID)

	// Defaults are filled in.
	assert.Equal(t, ResourcePasskey, events[0].ResourceType)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestEmitterSinkErrorIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("db down")}
	emitter := NewEmitter(sink, nil)

	// Must not panic or block.
	emitter.Log(context.Background(), Event{UserID: "user-1", Action: ActionAuthenticateFailed})
	emitter.Flush()

	assert.Empty(t, sink.all())
}

func TestEmitterSurvivesCancelledContext(t *testing.T) {
	sink := &captureSink{}
	emitter := NewEmitter(sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emitter.Log(ctx, Event{UserID: "user-1", Action: ActionDelete})
	emitter.Flush()

	require.Len(t, sink.all(), 1)
}

func TestNilEmitterAndSink(t *testing.T) {
	var emitter *Emitter
	emitter.Log(context.Background(), Event{Action: ActionRegister})
	emitter.Flush()

	emitter = NewEmitter(nil, nil)
	emitter.Log(context.Background(), Event{Action: ActionRegister})
	emitter.Flush()
}
