package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quizlane/quizlane/internal/pkg/metrics"
	"github.com/quizlane/quizlane/internal/tokens"
)

// Rotation headers: when the server renews the credential pair as a side
// effect of an ordinary request, it pushes both of these on the response.
const (
	HeaderNewAccessToken  = "x-new-access-token"
	HeaderNewRefreshToken = "x-new-refresh-token"
)

// Envelope is the response wrapper every Quizlane API endpoint uses.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client issues authenticated requests against the Quizlane API.
//
// Every request passes a request stage (attach the current or freshly
// refreshed access credential) and a response stage (adopt server-pushed
// rotated credentials; on an authorization failure, refresh and retry the
// request exactly once, else tear the session down).
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokens.Manager
	log        *slog.Logger
}

// retriedKey marks a request's context once it has been reissued after a
// refresh, so retry accounting stays scoped to the logical request.
type retriedKey struct{}

func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func wasRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}

// New creates a client for the API at baseURL. A nil httpClient gets a
// default with the instrumented transport installed; a nil logger falls
// back to slog.Default.
func New(baseURL string, manager *tokens.Manager, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: NewMetricsTransport(nil),
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		tokens:     manager,
		log:        log.With(slog.String("component", "apiclient")),
	}
}

// Tokens returns the token manager backing this client.
func (c *Client) Tokens() *tokens.Manager {
	return c.tokens
}

// Get issues an authenticated GET against path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.call(ctx, http.MethodGet, path, nil)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.call(ctx, http.MethodPost, path, body)
}

// Put issues an authenticated PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.call(ctx, http.MethodPut, path, body)
}

// Patch issues an authenticated PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.call(ctx, http.MethodPatch, path, body)
}

// Delete issues an authenticated DELETE against path.
func (c *Client) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.call(ctx, http.MethodDelete, path, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// NewRequest builds a request for path with an optional JSON body. Bodies
// are buffered so the request can be replayed once after a token refresh.
func (c *Client) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do runs the full request/response pipeline for req.
//
// The original transport or HTTP outcome is never swallowed: recovery may
// delay it by one retry cycle, but an unrecovered authorization failure is
// returned to the caller exactly as the server produced it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// Request stage: refresh proactively when the access credential is
	// inside the expiry threshold. Concurrent requests discovering this at
	// the same time share a single refresh attempt.
	if access := c.tokens.AccessToken(ctx); access != "" && c.tokens.IsExpiringSoon(access) {
		c.log.Debug("access token expiring soon, refreshing before request",
			slog.String("path", req.URL.Path))
		if err := c.tokens.Refresh(ctx); err != nil {
			c.log.Warn("proactive refresh failed", slog.String("error", err.Error()))
		}
	}

	// Re-read after the possible rotation above, then attach. With no
	// credential at all the request goes out unauthenticated and the
	// server is the final arbiter.
	if access := c.tokens.AccessToken(ctx); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	c.adoptRotatedTokens(ctx, resp)

	if resp.StatusCode != http.StatusUnauthorized || wasRetried(ctx) {
		return resp, nil
	}

	return c.recover(req, resp)
}

// recover runs the refresh-and-retry cycle for a request that got an
// authorization failure. The original response is returned whenever
// recovery fails, so the caller always sees the server's verdict.
func (c *Client) recover(req *http.Request, original *http.Response) (*http.Response, error) {
	ctx := req.Context()
	c.log.Info("authorization failure, attempting refresh",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path))

	// No usable refresh credential means the session is gone; don't waste
	// a network call finding that out.
	if refresh := c.tokens.RefreshToken(ctx); refresh == "" || c.tokens.IsExpired(refresh) {
		c.tokens.HandleExpiration(ctx)
		return original, nil
	}

	if err := c.tokens.Refresh(ctx); err != nil {
		// Refresh already tore the session down.
		c.log.Warn("refresh failed, propagating original failure",
			slog.String("error", err.Error()))
		return original, nil
	}

	retry, err := c.retryRequest(req)
	if err != nil {
		c.log.Warn("could not rebuild request for retry", slog.String("error", err.Error()))
		return original, nil
	}

	drain(original)
	metrics.APIRetries.WithLabelValues(normalizeRoute(req.URL.Path)).Inc()
	c.log.Debug("retrying request with refreshed token", slog.String("path", req.URL.Path))

	// The retried request carries the marker, so a second authorization
	// failure passes straight through to the caller.
	return c.Do(retry)
}

// retryRequest clones req with a replayed body and the retried marker set.
func (c *Client) retryRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(markRetried(req.Context()))
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return retry, nil
}

// adoptRotatedTokens picks up server-pushed rotation headers. When both are
// present they are adopted unconditionally, whatever the response status.
func (c *Client) adoptRotatedTokens(ctx context.Context, resp *http.Response) {
	access := resp.Header.Get(HeaderNewAccessToken)
	refresh := resp.Header.Get(HeaderNewRefreshToken)
	if access == "" || refresh == "" {
		return
	}

	if err := c.tokens.SetTokens(ctx, access, refresh); err != nil {
		c.log.Warn("failed to adopt rotated tokens", slog.String("error", err.Error()))
		return
	}
	metrics.TokenRotations.Inc()
	c.log.Debug("adopted rotated tokens from response headers")
}

// DecodeEnvelope reads and closes a response body into the standard API
// envelope, unmarshalling data into out when out is non-nil.
func DecodeEnvelope(resp *http.Response, out interface{}) (*Envelope, error) {
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return &env, nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
