package session

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/quizlane/quizlane/internal/tokens"
)

const (
	// SessionName is the name of the encrypted session cookie
	SessionName = "quizlane_session"

	// Session value keys
	accessTokenKey  = "accessToken"
	refreshTokenKey = "refreshToken"
	userKey         = "user"
	isLoggedInKey   = "isLoggedIn"
	isAdminKey      = "isAdmin"
	isSuperAdminKey = "isSuperAdmin"
	isModeratorKey  = "isModerator"
	isInstructorKey = "isInstructor"
)

// Mirror cookie names. These carry the bare credentials next to the
// encrypted session so browser scripts can read them, mirroring every
// write to the session.
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Manager wraps gorilla/sessions for our use case
type Manager struct {
	store         *sessions.CookieStore
	accessMaxAge  int
	refreshMaxAge int
}

// NewManager creates a new session manager.
// secretKey should be 32 bytes for AES-256. The max ages bound the mirror
// cookies; the session cookie itself lives as long as the refresh mirror.
func NewManager(secretKey []byte, accessMaxAge, refreshMaxAge int) *Manager {
	store := sessions.NewCookieStore(secretKey)

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   refreshMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store:         store,
		accessMaxAge:  accessMaxAge,
		refreshMaxAge: refreshMaxAge,
	}
}

// GetSession returns the session object for a request
func (m *Manager) GetSession(r *http.Request) (*sessions.Session, error) {
	return m.store.Get(r, SessionName)
}

// session always returns a usable session, creating one on decode failure
func (m *Manager) session(r *http.Request) *sessions.Session {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		sess, _ = m.store.New(r, SessionName)
	}
	return sess
}

func (m *Manager) value(r *http.Request, key string) string {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		return ""
	}
	v, _ := sess.Values[key].(string)
	return v
}

// AccessToken reads the access credential for a request, preferring the
// session and falling back to the mirror cookie.
func (m *Manager) AccessToken(r *http.Request) string {
	if v := m.value(r, accessTokenKey); v != "" {
		return v
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// RefreshToken reads the refresh credential for a request.
func (m *Manager) RefreshToken(r *http.Request) string {
	if v := m.value(r, refreshTokenKey); v != "" {
		return v
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Flags reads the auxiliary session flags for a request.
func (m *Manager) Flags(r *http.Request) tokens.Flags {
	sess, err := m.store.Get(r, SessionName)
	if err != nil {
		return tokens.Flags{}
	}
	flags := tokens.Flags{}
	if v, ok := sess.Values[userKey].(string); ok && v != "" {
		flags.User = json.RawMessage(v)
	}
	flags.IsLoggedIn, _ = sess.Values[isLoggedInKey].(bool)
	flags.IsAdmin, _ = sess.Values[isAdminKey].(bool)
	flags.IsSuperAdmin, _ = sess.Values[isSuperAdminKey].(bool)
	flags.IsModerator, _ = sess.Values[isModeratorKey].(bool)
	flags.IsInstructor, _ = sess.Values[isInstructorKey].(bool)
	return flags
}

// setMirrorCookies writes the bare credential cookies next to the session.
// Secure is derived from the request: set exactly when it arrived over TLS.
func (m *Manager) setMirrorCookies(w http.ResponseWriter, r *http.Request, access, refresh string) {
	secure := r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    access,
		Path:     "/",
		MaxAge:   m.accessMaxAge,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refresh,
		Path:     "/",
		MaxAge:   m.refreshMaxAge,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearMirrorCookies expires both credential cookies
func (m *Manager) clearMirrorCookies(w http.ResponseWriter, r *http.Request) {
	secure := r.TLS != nil
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
