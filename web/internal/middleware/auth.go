package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/quizlane/quizlane/web/internal/session"
)

// AuthMiddleware handles authentication checks for requests.
// Token refresh is handled by the API client; this only gates entry.
type AuthMiddleware struct {
	sessions  *session.Manager
	loginPath string
	log       *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(sessions *session.Manager, loginPath string, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:  sessions,
		loginPath: loginPath,
		log:       logger.With(slog.String("component", "auth_middleware")),
	}
}

// RequireAuth ensures the request carries a credential pair. An expired
// access credential still passes: the API client refreshes it on use.
// Browser navigation is redirected to login; API calls get a 401 envelope.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.sessions.AccessToken(r) == "" && m.sessions.RefreshToken(r) == "" {
			m.log.Debug("no credentials in session, rejecting",
				slog.String("path", r.URL.Path))

			if isAPIRequest(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"message":"authentication required"}`))
				return
			}
			http.Redirect(w, r, m.loginPath, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func isAPIRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
