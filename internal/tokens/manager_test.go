package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeNavigator struct {
	path      string
	redirects int32
}

func (n *fakeNavigator) CurrentPath(ctx context.Context) string {
	return n.path
}

func (n *fakeNavigator) RedirectToLogin(ctx context.Context) {
	atomic.AddInt32(&n.redirects, 1)
}

func accessToken(ttl time.Duration) string {
	return makeToken(jwt.MapClaims{
		"type": TypeAccess,
		"exp":  float64(time.Now().Add(ttl).Unix()),
	})
}

func refreshToken(ttl time.Duration) string {
	return makeToken(jwt.MapClaims{
		"type": TypeRefresh,
		"exp":  float64(time.Now().Add(ttl).Unix()),
	})
}

// refreshServer is an httptest server speaking the refresh endpoint
// contract, counting how many refresh calls actually hit the network.
func refreshServer(t *testing.T, hits *int32, delay time.Duration, ok bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RefreshPath {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		atomic.AddInt32(hits, 1)
		time.Sleep(delay)

		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false}`)
			return
		}

		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
			t.Errorf("malformed refresh request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":{"token":%q,"refreshToken":%q}}`,
			accessToken(time.Hour), refreshToken(7*24*time.Hour))
	}))
}

func TestIsExpired_MalformedToken(t *testing.T) {
	m := NewManager(NewMemoryStore(), ManagerConfig{})

	for _, tokenString := range []string{"", "garbage", "a.b.c"} {
		if !m.IsExpired(tokenString) {
			t.Errorf("IsExpired(%q): expected true for undecodable token", tokenString)
		}
	}
}

func TestIsExpiringSoon_Threshold(t *testing.T) {
	now := time.Now()
	m := NewManager(NewMemoryStore(), ManagerConfig{Now: func() time.Time { return now }})

	tests := []struct {
		name string
		ttl  time.Duration
		want bool
	}{
		{"well inside threshold", 250 * time.Second, true},
		{"outside threshold", 400 * time.Second, false},
		{"exactly at threshold", 300 * time.Second, true},
		{"already expired", -1 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString := makeToken(jwt.MapClaims{"exp": float64(now.Add(tt.ttl).Unix())})
			if got := m.IsExpiringSoon(tokenString); got != tt.want {
				t.Errorf("IsExpiringSoon with %v left = %v, want %v", tt.ttl, got, tt.want)
			}
		})
	}
}

func TestRefresh_Success(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 0, true)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	oldAccess := accessToken(time.Minute)
	oldRefresh := refreshToken(time.Hour)
	store.SetTokens(ctx, oldAccess, oldRefresh)

	m := NewManager(store, ManagerConfig{BaseURL: server.URL})
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}

	if hits != 1 {
		t.Errorf("expected 1 refresh call, got %d", hits)
	}
	if got := m.AccessToken(ctx); got == oldAccess || got == "" {
		t.Error("expected access token to be rotated")
	}
	if got := m.RefreshToken(ctx); got == oldRefresh || got == "" {
		t.Error("expected refresh token to be rotated")
	}
}

func TestRefresh_NoThunderingHerd(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 100*time.Millisecond, true)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.SetTokens(ctx, accessToken(time.Minute), refreshToken(time.Hour))

	m := NewManager(store, ManagerConfig{BaseURL: server.URL})

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Refresh(ctx)
		}(i)
	}
	wg.Wait()

	if hits != 1 {
		t.Errorf("expected exactly 1 refresh call for %d concurrent callers, got %d", callers, hits)
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: expected shared success, got %v", i, err)
		}
	}
}

func TestRefresh_FailureSharedOutcome(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 100*time.Millisecond, false)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.SetTokens(ctx, accessToken(time.Minute), refreshToken(time.Hour))

	m := NewManager(store, ManagerConfig{BaseURL: server.URL})

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Refresh(ctx)
		}(i)
	}
	wg.Wait()

	if hits != 1 {
		t.Errorf("expected exactly 1 refresh call, got %d", hits)
	}
	for i, err := range errs {
		if err != ErrSessionExpired {
			t.Errorf("caller %d: expected ErrSessionExpired, got %v", i, err)
		}
	}
	if got := m.RefreshToken(ctx); got != "" {
		t.Error("expected session state to be cleared after rejected refresh")
	}
}

// sessionStoreKey carries a per-session MemoryStore in the context, the way
// the web gateway resolves each request's cookies.
type sessionStoreKey struct{}

type ctxKeyedStore struct{}

func sessionStore(ctx context.Context) *MemoryStore {
	return ctx.Value(sessionStoreKey{}).(*MemoryStore)
}

func (ctxKeyedStore) AccessToken(ctx context.Context) (string, error) {
	return sessionStore(ctx).AccessToken(ctx)
}

func (ctxKeyedStore) RefreshToken(ctx context.Context) (string, error) {
	return sessionStore(ctx).RefreshToken(ctx)
}

func (ctxKeyedStore) SetTokens(ctx context.Context, access, refresh string) error {
	return sessionStore(ctx).SetTokens(ctx, access, refresh)
}

func (ctxKeyedStore) SetFlags(ctx context.Context, flags Flags) error {
	return sessionStore(ctx).SetFlags(ctx, flags)
}

func (ctxKeyedStore) Clear(ctx context.Context) error {
	return sessionStore(ctx).Clear(ctx)
}

func TestRefresh_ConcurrentSessionsRefreshIndependently(t *testing.T) {
	presented := make(chan string, 2)
	release := make(chan struct{})
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("malformed refresh request: %v", err)
		}
		presented <- req.RefreshToken
		<-release

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":{"token":%q,"refreshToken":%q}}`,
			accessToken(time.Hour), refreshToken(7*24*time.Hour))
	}))
	defer server.Close()

	storeA, storeB := NewMemoryStore(), NewMemoryStore()
	ctxA := context.WithValue(context.Background(), sessionStoreKey{}, storeA)
	ctxB := context.WithValue(context.Background(), sessionStoreKey{}, storeB)
	refreshA := refreshToken(time.Hour)
	refreshB := refreshToken(2 * time.Hour)
	storeA.SetTokens(ctxA, accessToken(time.Minute), refreshA)
	storeB.SetTokens(ctxB, accessToken(time.Minute), refreshB)

	m := NewManager(ctxKeyedStore{}, ManagerConfig{BaseURL: server.URL})

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(1)
	go func() {
		defer wg.Done()
		errA = m.Refresh(ctxA)
	}()
	first := <-presented // session A's attempt is on the wire

	wg.Add(1)
	go func() {
		defer wg.Done()
		errB = m.Refresh(ctxB)
	}()
	// Session B must present its own credential while A's attempt is still
	// blocked, not join A and inherit A's outcome.
	var second string
	select {
	case second = <-presented:
	case <-time.After(2 * time.Second):
		t.Fatal("second session never issued its own refresh call")
	}
	close(release)
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("expected both sessions to refresh, got errA=%v errB=%v", errA, errB)
	}
	if hits != 2 {
		t.Errorf("expected one refresh call per session, got %d", hits)
	}
	if first != refreshA || second != refreshB {
		t.Error("expected each session's own refresh credential at the endpoint")
	}
	if got := m.RefreshToken(ctxA); got == refreshA || got == "" {
		t.Error("expected session A's refresh token to be rotated")
	}
	if got := m.RefreshToken(ctxB); got == refreshB || got == "" {
		t.Error("expected session B's refresh token to be rotated")
	}
}

func TestRefresh_SequentialAttemptsAfterSettle(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 0, true)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.SetTokens(ctx, accessToken(time.Minute), refreshToken(time.Hour))

	m := NewManager(store, ManagerConfig{BaseURL: server.URL})
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	// The memo settles between calls, so a second call starts a new attempt.
	if hits != 2 {
		t.Errorf("expected 2 refresh calls across sequential attempts, got %d", hits)
	}
}

func TestRefresh_ExpiredRefreshTokenShortCircuits(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 0, true)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	store.SetTokens(ctx, accessToken(-time.Minute), refreshToken(-time.Minute))
	store.SetFlags(ctx, Flags{IsLoggedIn: true, IsAdmin: true})

	nav := &fakeNavigator{path: "/dashboard"}
	m := NewManager(store, ManagerConfig{BaseURL: server.URL, Navigator: nav})

	if err := m.Refresh(ctx); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	if hits != 0 {
		t.Errorf("expected zero network calls for an expired refresh token, got %d", hits)
	}
	if got := m.AccessToken(ctx); got != "" {
		t.Error("expected access token to be cleared")
	}
	if flags, _ := store.Flags(ctx); flags.IsLoggedIn || flags.IsAdmin {
		t.Error("expected auxiliary flags to be cleared")
	}
	if nav.redirects != 1 {
		t.Errorf("expected 1 redirect to login, got %d", nav.redirects)
	}
}

func TestRefresh_WrongTypeTagShortCircuits(t *testing.T) {
	var hits int32
	server := refreshServer(t, &hits, 0, true)
	defer server.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	// An access-typed credential sitting in the refresh slot is never
	// presented to the refresh endpoint.
	store.SetTokens(ctx, accessToken(time.Hour), accessToken(time.Hour))

	m := NewManager(store, ManagerConfig{BaseURL: server.URL})
	if err := m.Refresh(ctx); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if hits != 0 {
		t.Errorf("expected zero network calls, got %d", hits)
	}
}

func TestHandleExpiration_PublicPathSkipsRedirect(t *testing.T) {
	tests := []struct {
		path         string
		wantRedirect bool
	}{
		{"/login", false},
		{"/blog/how-to-study", false},
		{"/about", false},
		{"/contact", false},
		{"/courses", false},
		{"/pricing", false},
		{"/dashboard", true},
		{"/admin/quizzes", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			store := NewMemoryStore()
			ctx := context.Background()
			store.SetTokens(ctx, accessToken(time.Hour), refreshToken(time.Hour))

			nav := &fakeNavigator{path: tt.path}
			m := NewManager(store, ManagerConfig{Navigator: nav})
			m.HandleExpiration(ctx)

			if got := m.AccessToken(ctx); got != "" {
				t.Error("expected tokens cleared regardless of path")
			}
			gotRedirect := nav.redirects > 0
			if gotRedirect != tt.wantRedirect {
				t.Errorf("path %q: redirect = %v, want %v", tt.path, gotRedirect, tt.wantRedirect)
			}
		})
	}
}

func TestHandleExpiration_TwiceIsHarmless(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.SetTokens(ctx, accessToken(time.Hour), refreshToken(time.Hour))

	m := NewManager(store, ManagerConfig{})
	m.HandleExpiration(ctx)
	m.HandleExpiration(ctx)

	if got := m.AccessToken(ctx); got != "" {
		t.Error("expected tokens to stay cleared")
	}
}
