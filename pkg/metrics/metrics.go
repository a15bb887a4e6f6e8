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

// Package metrics provides Prometheus instrumentation for the passkey
// authentication service: ceremony outcomes, HTTP traffic, and process
// resource gauges.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all service metrics.
	Namespace = "pillsme"

	// Label names
	LabelCeremony   = "ceremony"
	LabelOutcome    = "outcome"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Ceremony values
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Outcome values
	OutcomeSuccess            = "success"
	OutcomeVerificationFailed = "verification_failed"
	OutcomeChallengeNotFound  = "challenge_not_found"
	OutcomeChallengeExpired   = "challenge_expired"
	OutcomeError              = "error"
)

var (
	// CeremoniesTotal tracks completed WebAuthn ceremonies by kind and outcome.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of WebAuthn ceremonies by kind and outcome",
		},
		[]string{LabelCeremony, LabelOutcome},
	)

	// CeremonyDuration tracks how long finishing a ceremony takes,
	// including challenge lookup, verification, and persistence.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of WebAuthn ceremony completion in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony},
	)

	// CredentialsDeleted tracks passkey deletions.
	CredentialsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credentials_deleted_total",
			Help:      "Total number of passkeys deleted by their owners",
		},
	)

	// RateLimited tracks requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ActiveRequests tracks in-flight HTTP requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordCeremony records a completed ceremony with its outcome and duration.
func RecordCeremony(ceremony, outcome string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, outcome).Inc()
	CeremonyDuration.WithLabelValues(ceremony).Observe(duration)
}

// RecordHTTPRequest records an HTTP request with its status and duration.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetEnabled enables or disables metrics collection at runtime.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// IsEnabled returns whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}
