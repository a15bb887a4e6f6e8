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

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCeremony(t *testing.T) {
	before := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyRegistration, OutcomeSuccess))

	RecordCeremony(CeremonyRegistration, OutcomeSuccess, 0.05)

	after := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyRegistration, OutcomeSuccess))
	if after != before+1 {
		t.Errorf("Expected counter to increment, before=%v after=%v", before, after)
	}
}

func TestRecordCeremonyDisabled(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	before := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyAuthentication, OutcomeError))
	RecordCeremony(CeremonyAuthentication, OutcomeError, 0.05)
	after := testutil.ToFloat64(CeremoniesTotal.WithLabelValues(CeremonyAuthentication, OutcomeError))

	if after != before {
		t.Errorf("Expected no increment while disabled, before=%v after=%v", before, after)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPost, "201"))

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/passkey/register/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(http.MethodPost, "201"))
	if after != before+1 {
		t.Errorf("Expected request counter to increment, before=%v after=%v", before, after)
	}
}

func TestHTTPMiddlewareCountsRateLimited(t *testing.T) {
	before := testutil.ToFloat64(RateLimited)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/passkey/authenticate/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	after := testutil.ToFloat64(RateLimited)
	if after != before+1 {
		t.Errorf("Expected rate limited counter to increment, before=%v after=%v", before, after)
	}
}

func TestResourceCollector(t *testing.T) {
	collector := NewResourceCollector(context.Background(), 10*time.Millisecond)
	go collector.Start()
	defer collector.Stop()

	time.Sleep(30 * time.Millisecond)

	if testutil.ToFloat64(Goroutines) <= 0 {
		t.Error("Expected goroutine gauge to be set")
	}
	if testutil.ToFloat64(MemoryAllocBytes) <= 0 {
		t.Error("Expected memory gauge to be set")
	}
}
