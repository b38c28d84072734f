package api

import (
	"net/http"
	"time"

	"github.com/org/gitgateway/pkg/models"
)

type sessionCreateRequest struct {
	Mode string `json:"mode"`
}

type sessionCreateResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	Mode      string    `json:"mode"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionCreateHandler handles POST /v1/session/create. Launcher only.
// The returned token is shown exactly once; the gateway keeps only its
// hash.
func (s *Server) SessionCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, plaintext, err := s.sessions.Create(models.SessionMode(req.Mode))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	activeSessionsTotal.Set(float64(s.sessions.Count()))

	s.auditor.Record(&models.AuditEvent{
		CorrelationID: requestIDFromCtx(r.Context()),
		SessionID:     sess.ID,
		SessionMode:   sess.Mode,
		Operation:     "session create",
		Allowed:       true,
		Success:       true,
	})

	writeJSON(w, http.StatusOK, sessionCreateResponse{
		SessionID: sess.ID,
		Token:     plaintext,
		Mode:      string(sess.Mode),
		ExpiresAt: sess.ExpiresAt,
	})
}

type sessionRevokeRequest struct {
	Token string `json:"token"`
}

// SessionRevokeHandler handles POST /v1/session/revoke. Launcher only.
// Revoking an unknown or already-revoked token succeeds; the launcher calls
// this on sandbox teardown and teardown must be idempotent.
func (s *Server) SessionRevokeHandler(w http.ResponseWriter, r *http.Request) {
	var req sessionRevokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	s.sessions.Revoke(req.Token)
	activeSessionsTotal.Set(float64(s.sessions.Count()))

	s.auditor.Record(&models.AuditEvent{
		CorrelationID: requestIDFromCtx(r.Context()),
		Operation:     "session revoke",
		Allowed:       true,
		Success:       true,
	})

	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// HealthHandler handles GET /v1/health. Reports liveness plus per-identity
// token validity; token values never appear here.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                   "ok",
		"active_sessions":          s.sessions.Count(),
		"identities":               s.tokens.Status(),
		"visibility_cache_entries": s.resolver.CacheSize(),
	})
}
