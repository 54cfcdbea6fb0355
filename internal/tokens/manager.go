package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quizlane/quizlane/internal/pkg/metrics"
)

const (
	// RefreshPath is the token-refresh endpoint on the Quizlane API.
	RefreshPath = "/api/users/refresh-token"

	// DefaultRefreshThreshold is the proactive-refresh horizon: an access
	// credential this close to expiry is refreshed before it is used.
	DefaultRefreshThreshold = 5 * time.Minute

	// DefaultLoginPath is where an expired session is sent.
	DefaultLoginPath = "/login"
)

// DefaultPublicPaths are the navigation destinations that never trigger a
// redirect on session expiration, matched by prefix against the current path.
var DefaultPublicPaths = []string{
	"/login",
	"/blog/",
	"/about",
	"/contact",
	"/courses",
	"/pricing",
}

// ErrSessionExpired is returned by Refresh when the session cannot be
// recovered and has been torn down.
var ErrSessionExpired = errors.New("session expired")

// Navigator abstracts the navigation mechanism used to force a redirect to
// the login destination on unrecoverable failure. A nil Navigator means the
// caller has no navigation context (the CLI): state is cleared, nothing more.
type Navigator interface {
	// CurrentPath returns the path the user is currently on, "" if unknown.
	CurrentPath(ctx context.Context) string

	// RedirectToLogin forces navigation to the login destination.
	RedirectToLogin(ctx context.Context)
}

// ManagerConfig configures a Manager. Zero values fall back to defaults.
type ManagerConfig struct {
	// BaseURL is the Quizlane API base, e.g. "https://api.quizlane.io".
	BaseURL string

	// HTTPClient issues the refresh call. The refresh endpoint is always
	// called with a plain client, never through the authenticated wrapper.
	HTTPClient *http.Client

	// Navigator handles forced redirects; nil disables them.
	Navigator Navigator

	// RefreshThreshold overrides DefaultRefreshThreshold.
	RefreshThreshold time.Duration

	// LoginPath overrides DefaultLoginPath.
	LoginPath string

	// PublicPaths overrides DefaultPublicPaths.
	PublicPaths []string

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Manager is the single authority for reading, validating, persisting, and
// refreshing the credential pair. Construct one at startup and inject it;
// it holds no global state.
type Manager struct {
	store      Store
	navigator  Navigator
	httpClient *http.Client
	refreshURL string
	threshold  time.Duration
	loginPath  string
	public     []string
	now        func() time.Time
	log        *slog.Logger

	// inflight holds the refresh coordination handles, keyed by the refresh
	// credential being exchanged. One Manager serves every session in the
	// process, so the key scopes the dedup to a single session: callers
	// holding the same credential join the running attempt, callers from a
	// different session start their own.
	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, cfg ManagerConfig) *Manager {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	threshold := cfg.RefreshThreshold
	if threshold == 0 {
		threshold = DefaultRefreshThreshold
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	public := cfg.PublicPaths
	if public == nil {
		public = DefaultPublicPaths
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		inflight:   make(map[string]*refreshCall),
		store:      store,
		navigator:  cfg.Navigator,
		httpClient: httpClient,
		refreshURL: strings.TrimSuffix(cfg.BaseURL, "/") + RefreshPath,
		threshold:  threshold,
		loginPath:  loginPath,
		public:     public,
		now:        now,
		log:        log.With(slog.String("component", "tokens")),
	}
}

// AccessToken returns the current access credential, "" if absent or the
// store cannot be read in this context.
func (m *Manager) AccessToken(ctx context.Context) string {
	token, err := m.store.AccessToken(ctx)
	if err != nil {
		return ""
	}
	return token
}

// RefreshToken returns the current refresh credential, "" if absent.
func (m *Manager) RefreshToken(ctx context.Context) string {
	token, err := m.store.RefreshToken(ctx)
	if err != nil {
		return ""
	}
	return token
}

// SetTokens overwrites both credentials in the store's sinks.
func (m *Manager) SetTokens(ctx context.Context, access, refresh string) error {
	if err := m.store.SetTokens(ctx, access, refresh); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	m.log.Debug("tokens persisted")
	return nil
}

// SetFlags overwrites the auxiliary session flags.
func (m *Manager) SetFlags(ctx context.Context, flags Flags) error {
	return m.store.SetFlags(ctx, flags)
}

// Info returns the validity snapshot for a credential, nil if the credential
// is malformed. Callers must treat nil as expired.
func (m *Manager) Info(token string) *Info {
	return info(token, m.now())
}

// IsExpired reports whether a credential is past its expiry. A credential
// that cannot be decoded is never trusted and counts as expired.
func (m *Manager) IsExpired(token string) bool {
	ti := m.Info(token)
	return ti == nil || ti.Expired
}

// IsExpiringSoon reports whether a credential is within the configured
// proactive-refresh threshold of its expiry.
func (m *Manager) IsExpiringSoon(token string) bool {
	return m.ExpiringWithin(token, m.threshold)
}

// ExpiringWithin reports whether a credential expires within d.
func (m *Manager) ExpiringWithin(token string, d time.Duration) bool {
	ti := m.Info(token)
	return ti == nil || ti.TTL <= d
}

// Refresh exchanges the stored refresh credential for a new pair.
//
// If a refresh for the same credential is already in flight every caller
// joins it and receives the same outcome; at most one network call to the
// refresh endpoint is ever made per session at a time, and a new attempt
// can only start after the previous one has fully resolved. Sessions
// holding different credentials refresh independently and never observe
// each other's outcome. On any unrecoverable failure the session is torn
// down via HandleExpiration and ErrSessionExpired (or the transport error)
// is returned.
func (m *Manager) Refresh(ctx context.Context) error {
	key := m.RefreshToken(ctx)

	m.mu.Lock()
	if call := m.inflight[key]; call != nil {
		m.mu.Unlock()
		metrics.TokenRefreshShares.Inc()
		m.log.Debug("joining in-flight refresh")
		<-call.done
		return call.err
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight[key] = call
	m.mu.Unlock()

	call.err = m.doRefresh(ctx)

	// Clear the handle before signalling completion so a failed attempt can
	// never leave the manager believing a refresh is still in flight.
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
	close(call.done)

	return call.err
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	} `json:"data"`
}

func (m *Manager) doRefresh(ctx context.Context) error {
	refresh := m.RefreshToken(ctx)
	if !m.refreshUsable(refresh) {
		m.log.Info("refresh credential absent or expired, tearing down session")
		metrics.TokenRefreshes.WithLabelValues("unusable").Inc()
		m.HandleExpiration(ctx)
		return ErrSessionExpired
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refresh})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.log.Error("refresh request failed", slog.String("error", err.Error()))
		metrics.TokenRefreshes.WithLabelValues("network_error").Inc()
		m.HandleExpiration(ctx)
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed refreshResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&parsed) != nil ||
		!parsed.Success || parsed.Data.Token == "" || parsed.Data.RefreshToken == "" {
		m.log.Warn("refresh rejected by server", slog.Int("status", resp.StatusCode))
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		m.HandleExpiration(ctx)
		return ErrSessionExpired
	}

	if err := m.SetTokens(ctx, parsed.Data.Token, parsed.Data.RefreshToken); err != nil {
		metrics.TokenRefreshes.WithLabelValues("store_error").Inc()
		return err
	}

	m.log.Info("tokens refreshed")
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return nil
}

// refreshUsable reports whether a stored refresh credential can be presented
// to the refresh endpoint: present, decodable, carrying the refresh type tag
// when one is embedded, and not yet expired.
func (m *Manager) refreshUsable(token string) bool {
	if token == "" {
		return false
	}
	claims, err := Decode(token)
	if err != nil {
		return false
	}
	if claims.Type != "" && claims.Type != TypeRefresh {
		return false
	}
	ti := info(token, m.now())
	return ti != nil && !ti.Expired
}

// HandleExpiration clears both credentials and all auxiliary flags, then
// redirects to the login destination unless the current path is public.
// Calling it on an already-clear session is a harmless no-op.
func (m *Manager) HandleExpiration(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn("failed to clear session state", slog.String("error", err.Error()))
	}
	metrics.SessionTeardowns.Inc()

	if m.navigator == nil {
		return
	}

	path := m.navigator.CurrentPath(ctx)
	if m.isPublicPath(path) {
		m.log.Debug("expiration on public path, skipping redirect", slog.String("path", path))
		return
	}

	m.log.Info("session expired, redirecting to login", slog.String("path", path))
	m.navigator.RedirectToLogin(ctx)
}

// LoginPath returns the configured login destination.
func (m *Manager) LoginPath() string {
	return m.loginPath
}

func (m *Manager) isPublicPath(path string) bool {
	for _, p := range m.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
