package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quizlane/quizlane/internal/apiclient"
	"github.com/quizlane/quizlane/internal/tokens"
)

const (
	loginPath  = "/api/users/login"
	logoutPath = "/api/users/logout"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	Token        string          `json:"token"`
	RefreshToken string          `json:"refreshToken"`
	User         json.RawMessage `json:"user"`
}

// Login exchanges credentials for a token pair at the upstream API and
// installs the pair plus the user's flags into the session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := h.requestContext(w, r)
	resp, err := h.client.Post(ctx, loginPath, req)
	if err != nil {
		h.log.Error("login request failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	var data loginData
	env, err := apiclient.DecodeEnvelope(resp, &data)
	if err != nil {
		h.log.Error("login response undecodable", slog.String("error", err.Error()))
		h.writeError(w, http.StatusBadGateway, "upstream returned an invalid response")
		return
	}

	if resp.StatusCode != http.StatusOK || !env.Success || data.Token == "" {
		message := env.Message
		if message == "" {
			message = "login failed"
		}
		h.log.Info("login rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("email", req.Email))
		h.writeError(w, resp.StatusCode, message)
		return
	}

	manager := h.client.Tokens()
	if err := manager.SetTokens(ctx, data.Token, data.RefreshToken); err != nil {
		h.log.Error("failed to persist session", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "failed to establish session")
		return
	}
	if err := manager.SetFlags(ctx, flagsForLogin(data)); err != nil {
		h.log.Error("failed to persist session flags", slog.String("error", err.Error()))
	}

	h.log.Info("user logged in", slog.String("email", req.Email))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"user": data.User,
		},
	})
}

// flagsForLogin derives the auxiliary flags from the login payload's role.
func flagsForLogin(data loginData) tokens.Flags {
	var user struct {
		Role string `json:"role"`
	}
	_ = json.Unmarshal(data.User, &user)

	return tokens.Flags{
		User:         data.User,
		IsLoggedIn:   true,
		IsAdmin:      user.Role == "admin" || user.Role == "superadmin",
		IsSuperAdmin: user.Role == "superadmin",
		IsModerator:  user.Role == "moderator",
		IsInstructor: user.Role == "instructor",
	}
}

// Logout invalidates the upstream session best-effort, then tears the local
// session down unconditionally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := h.requestContext(w, r)

	if resp, err := h.client.Post(ctx, logoutPath, nil); err == nil {
		resp.Body.Close()
	} else {
		h.log.Debug("upstream logout failed", slog.String("error", err.Error()))
	}

	if err := h.store.Clear(ctx); err != nil {
		h.log.Error("failed to clear session", slog.String("error", err.Error()))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Me returns the session's user profile and flags without an upstream call.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	flags := h.sessions.Flags(r)
	if !flags.IsLoggedIn {
		h.writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"user":         flags.User,
			"isLoggedIn":   flags.IsLoggedIn,
			"isAdmin":      flags.IsAdmin,
			"isSuperAdmin": flags.IsSuperAdmin,
			"isModerator":  flags.IsModerator,
			"isInstructor": flags.IsInstructor,
		},
	})
}
