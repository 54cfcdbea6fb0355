package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/quizlane/quizlane/web/internal/session"
)

// maxProxyBody bounds buffered request bodies. Bodies are buffered so the
// API client can replay them after a token refresh.
const maxProxyBody = 10 << 20 // 10 MiB

// trackedWriter records whether anything reached the wire, so the proxy can
// tell when the token layer already answered (a forced login redirect).
type trackedWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackedWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackedWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

// Proxy forwards an API request upstream through the authenticated client.
// The client attaches the session's access credential, refreshes it when
// needed, retries once after an authorization failure, and adopts rotated
// credentials into the session cookies on the way back.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	tw := &trackedWriter{ResponseWriter: w}
	ctx := session.WithHTTPContext(r.Context(), r, tw)

	var body interface{}
	if r.Body != nil && r.ContentLength != 0 {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBody))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(data) > 0 {
			var raw json.RawMessage
			if err := json.Unmarshal(data, &raw); err != nil {
				h.writeError(w, http.StatusBadRequest, "request body must be JSON")
				return
			}
			body = raw
		}
	}

	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	req, err := h.client.NewRequest(ctx, r.Method, path, body)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to build upstream request")
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Error("upstream request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		if !tw.wroteHeader {
			h.writeError(w, http.StatusBadGateway, "upstream unavailable")
		}
		return
	}
	defer resp.Body.Close()

	// The token layer may have answered with a login redirect while tearing
	// the session down; the upstream verdict is moot then.
	if tw.wroteHeader {
		io.Copy(io.Discard, resp.Body)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		tw.Header().Set("Content-Type", ct)
	}
	tw.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(tw, resp.Body); err != nil {
		h.log.Debug("response copy interrupted", slog.String("error", err.Error()))
	}
}
