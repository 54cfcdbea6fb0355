package apiclient

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quizlane/quizlane/internal/pkg/metrics"
)

// metricsTransport wraps an http.RoundTripper to collect metrics on every
// Quizlane API call, including refresh calls and retries.
type metricsTransport struct {
	base http.RoundTripper
}

// NewMetricsTransport creates a transport wrapper that records call counts,
// latency, and error classes for all requests passing through it.
func NewMetricsTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &metricsTransport{base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	route := normalizeRoute(req.URL.Path)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	metrics.APICalls.WithLabelValues(req.Method, route, strconv.Itoa(statusCode)).Inc()
	metrics.APIDuration.WithLabelValues(req.Method, route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		metrics.APIErrors.WithLabelValues(route, classifyError(statusCode, err)).Inc()
	}

	return resp, err
}

// routePatterns replace resource IDs with placeholders so metrics stay at a
// sane cardinality.
var routePatterns = []struct {
	regex   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`/courses/[0-9a-fA-F-]{8,}`), "/courses/:id"},
	{regexp.MustCompile(`/quizzes/[0-9a-fA-F-]{8,}`), "/quizzes/:id"},
	{regexp.MustCompile(`/users/[0-9a-fA-F-]{8,}`), "/users/:id"},
	{regexp.MustCompile(`/blogs/[0-9a-fA-F-]{8,}`), "/blogs/:id"},
	{regexp.MustCompile(`/categories/[0-9a-fA-F-]{8,}`), "/categories/:id"},
	{regexp.MustCompile(`/\d+(/|$)`), "/:id$1"},
}

// normalizeRoute normalizes API routes by replacing IDs with placeholders.
func normalizeRoute(path string) string {
	normalized := path
	for _, p := range routePatterns {
		normalized = p.regex.ReplaceAllString(normalized, p.replace)
	}
	return normalized
}

// classifyError categorizes API errors for metrics.
func classifyError(statusCode int, err error) string {
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "timeout"):
			return "timeout"
		case strings.Contains(errStr, "connection"):
			return "connection"
		case strings.Contains(errStr, "TLS"):
			return "tls"
		default:
			return "network"
		}
	}

	switch {
	case statusCode == 400:
		return "bad_request"
	case statusCode == 401:
		return "unauthorized"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "not_found"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
