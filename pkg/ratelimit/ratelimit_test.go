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

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 5,
		Window:   15 * time.Minute,
	}

	limiter := New(config)
	if limiter == nil {
		t.Fatal("Expected limiter to be created")
	}
	defer limiter.Stop()

	if !limiter.IsEnabled() {
		t.Error("Expected limiter to be enabled")
	}

	stats := limiter.Stats()
	if stats["enabled"] != true {
		t.Error("Expected enabled to be true in stats")
	}
}

func TestNewNilConfig(t *testing.T) {
	limiter := New(nil)
	defer limiter.Stop()

	if limiter.IsEnabled() {
		t.Error("Expected nil config to disable limiting")
	}
	if !limiter.Allow("client") {
		t.Error("Expected disabled limiter to allow everything")
	}
}

func TestCheckBurst(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 5,
		Window:   15 * time.Minute,
	}

	limiter := New(config)
	defer limiter.Stop()

	clientID := "test-client"

	// The full burst is available up front.
	for i := 0; i < 5; i++ {
		decision := limiter.Check(clientID)
		if !decision.Allowed {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// The sixth request is denied with a retry hint.
	decision := limiter.Check(clientID)
	if decision.Allowed {
		t.Error("Expected request over budget to be denied")
	}
	if decision.RetryAfter <= 0 {
		t.Error("Expected a positive RetryAfter on denial")
	}
	if decision.Remaining != 0 {
		t.Errorf("Expected zero remaining, got %d", decision.Remaining)
	}
}

func TestCheckRemainingDecreases(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 3,
		Window:   15 * time.Minute,
	}

	limiter := New(config)
	defer limiter.Stop()

	prev := 3
	for i := 0; i < 3; i++ {
		decision := limiter.Check("client")
		if !decision.Allowed {
			t.Fatalf("Expected request %d to be allowed", i+1)
		}
		if decision.Remaining >= prev {
			t.Errorf("Expected remaining to decrease, had %d then %d", prev, decision.Remaining)
		}
		prev = decision.Remaining
	}
}

func TestCheckPerClientIsolation(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 1,
		Window:   15 * time.Minute,
	}

	limiter := New(config)
	defer limiter.Stop()

	if !limiter.Allow("client-a") {
		t.Error("Expected first request from client-a to be allowed")
	}
	if limiter.Allow("client-a") {
		t.Error("Expected second request from client-a to be denied")
	}
	if !limiter.Allow("client-b") {
		t.Error("Expected client-b to have its own bucket")
	}
}

func TestCleanup(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 5,
		Window:   time.Minute,
		MaxIdle:  10 * time.Millisecond,
	}

	limiter := New(config)
	defer limiter.Stop()

	limiter.Allow("idle-client")
	time.Sleep(20 * time.Millisecond)
	limiter.cleanup()

	stats := limiter.Stats()
	if stats["active_clients"] != 0 {
		t.Errorf("Expected idle client to be cleaned up, got %v active", stats["active_clients"])
	}
}

func TestMiddleware(t *testing.T) {
	config := &Config{
		Enabled:  true,
		Requests: 2,
		Window:   15 * time.Minute,
	}

	limiter := New(config)
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/passkey/authenticate/start", nil)
		req.RemoteAddr = "203.0.113.9:4567"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200 on request %d, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Remaining") == "" {
			t.Error("Expected X-RateLimit-Remaining header on allowed request")
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/passkey/authenticate/start", nil)
	req.RemoteAddr = "203.0.113.9:4567"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on denial")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Error("Expected X-RateLimit-Remaining: 0 on denial")
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	limiter := New(&Config{Enabled: false})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.9:4567"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected all requests allowed when disabled, got %d", rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "x-forwarded-for single",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1"},
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.1",
		},
		{
			name:       "x-forwarded-for chain takes first",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.2"},
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.1",
		},
		{
			name:       "x-real-ip",
			headers:    map[string]string{"X-Real-Ip": "198.51.100.2"},
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.2",
		},
		{
			name:       "cf-connecting-ip",
			headers:    map[string]string{"Cf-Connecting-Ip": "198.51.100.3"},
			remoteAddr: "10.0.0.1:1234",
			want:       "198.51.100.3",
		},
		{
			name:       "remote addr fallback",
			remoteAddr: "203.0.113.9:4567",
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
