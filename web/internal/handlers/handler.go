package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quizlane/quizlane/internal/apiclient"
	"github.com/quizlane/quizlane/web/internal/session"
)

// Handler holds dependencies for all web handlers
type Handler struct {
	client   *apiclient.Client
	store    *session.Store
	sessions *session.Manager
	log      *slog.Logger
}

// New creates a new handler with dependencies
func New(client *apiclient.Client, store *session.Store, sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		client:   client,
		store:    store,
		sessions: sessions,
		log:      logger.With(slog.String("component", "web_handler")),
	}
}

// requestContext attaches the request pair so the token store can reach the
// session from inside the API client.
func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) context.Context {
	return session.WithHTTPContext(r.Context(), r, w)
}

// writeJSON writes a standard envelope response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError writes a failure envelope
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// Health is the liveness probe
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
