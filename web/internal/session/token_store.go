package session

import (
	"context"
	"net/http"

	"github.com/quizlane/quizlane/internal/tokens"
)

type contextKey int

const (
	requestKey contextKey = iota
	writerKey
)

// WithHTTPContext attaches the request and response writer to ctx so the
// token store can reach the session from anywhere in the request's call
// tree. Handlers must install this before touching the API client.
func WithHTTPContext(ctx context.Context, r *http.Request, w http.ResponseWriter) context.Context {
	ctx = context.WithValue(ctx, requestKey, r)
	return context.WithValue(ctx, writerKey, w)
}

func httpFromContext(ctx context.Context) (*http.Request, http.ResponseWriter, bool) {
	r, _ := ctx.Value(requestKey).(*http.Request)
	w, _ := ctx.Value(writerKey).(http.ResponseWriter)
	if r == nil || w == nil {
		return nil, nil, false
	}
	return r, w, true
}

// Store adapts the session manager to tokens.Store. It is stateless: every
// method recovers the request and response writer from the context, so one
// Store (and one token manager over it) serves all requests. Outside a
// request context reads return empty values and writes are dropped.
type Store struct {
	manager *Manager
}

// NewStore creates a token store over the session manager.
func NewStore(m *Manager) *Store {
	return &Store{manager: m}
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	r, _, ok := httpFromContext(ctx)
	if !ok {
		return "", nil
	}
	return s.manager.AccessToken(r), nil
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	r, _, ok := httpFromContext(ctx)
	if !ok {
		return "", nil
	}
	return s.manager.RefreshToken(r), nil
}

// SetTokens writes the pair to both sinks: the encrypted session and the
// bare mirror cookies.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	r, w, ok := httpFromContext(ctx)
	if !ok {
		return nil
	}

	sess := s.manager.session(r)
	sess.Values[accessTokenKey] = access
	sess.Values[refreshTokenKey] = refresh
	if err := sess.Save(r, w); err != nil {
		return err
	}

	s.manager.setMirrorCookies(w, r, access, refresh)
	return nil
}

func (s *Store) SetFlags(ctx context.Context, flags tokens.Flags) error {
	r, w, ok := httpFromContext(ctx)
	if !ok {
		return nil
	}

	sess := s.manager.session(r)
	sess.Values[userKey] = string(flags.User)
	sess.Values[isLoggedInKey] = flags.IsLoggedIn
	sess.Values[isAdminKey] = flags.IsAdmin
	sess.Values[isSuperAdminKey] = flags.IsSuperAdmin
	sess.Values[isModeratorKey] = flags.IsModerator
	sess.Values[isInstructorKey] = flags.IsInstructor
	return sess.Save(r, w)
}

// Clear tears the session down in every sink
func (s *Store) Clear(ctx context.Context) error {
	r, w, ok := httpFromContext(ctx)
	if !ok {
		return nil
	}

	sess := s.manager.session(r)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return err
	}

	s.manager.clearMirrorCookies(w, r)
	return nil
}

// Navigator implements tokens.Navigator over the request in the context.
type Navigator struct {
	LoginPath string
}

func (n *Navigator) CurrentPath(ctx context.Context) string {
	r, _, ok := httpFromContext(ctx)
	if !ok {
		return ""
	}
	return r.URL.Path
}

func (n *Navigator) RedirectToLogin(ctx context.Context) {
	r, w, ok := httpFromContext(ctx)
	if !ok {
		return
	}
	http.Redirect(w, r, n.LoginPath, http.StatusSeeOther)
}
