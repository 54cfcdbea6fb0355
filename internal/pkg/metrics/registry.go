package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API Client Metrics
var (
	// APICalls tracks outbound Quizlane API calls
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlane_api_calls_total",
			Help: "Total Quizlane API calls by method, route, and status code",
		},
		[]string{"method", "route", "status"},
	)

	// APIDuration tracks Quizlane API latency
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "quizlane_api_call_duration_ms",
			Help:                            "Quizlane API call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "route"},
	)

	// APIErrors tracks Quizlane API errors by type
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlane_api_errors_total",
			Help: "Total Quizlane API errors by route and error type",
		},
		[]string{"route", "error_type"},
	)

	// APIRetries tracks requests reissued after a successful token refresh
	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlane_api_retries_total",
			Help: "Total requests retried once after an authorization failure",
		},
		[]string{"route"},
	)
)

// Token Lifecycle Metrics
var (
	// TokenRefreshes tracks refresh attempts by result
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizlane_token_refreshes_total",
			Help: "Total token refresh attempts by result",
		},
		[]string{"result"},
	)

	// TokenRefreshShares tracks callers that joined an in-flight refresh
	// instead of starting their own
	TokenRefreshShares = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlane_token_refresh_shares_total",
			Help: "Total refresh callers deduplicated onto an in-flight attempt",
		},
	)

	// TokenRotations tracks credential pairs adopted from rotation headers
	TokenRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlane_token_rotations_total",
			Help: "Total credential pairs adopted from server-pushed rotation headers",
		},
	)

	// SessionTeardowns tracks full session clears on logout or expiration
	SessionTeardowns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quizlane_session_teardowns_total",
			Help: "Total session teardowns (credentials and flags cleared)",
		},
	)
)
