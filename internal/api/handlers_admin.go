package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/gitgateway/internal/policy"
	"github.com/org/gitgateway/internal/storage"
	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

type reloadRequest struct {
	// Components selects what to reload; empty means everything.
	// Recognized: "policy", "visibility", "tokens".
	Components []string `json:"components,omitempty"`
}

// ReloadHandler handles POST /v1/admin/reload. Launcher only. Reloads the
// rule file, flushes the visibility cache, and drops cached access tokens
// without restarting the process.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	components := req.Components
	if len(components) == 0 {
		components = []string{"policy", "visibility", "tokens"}
	}

	var reloaded, failed []string
	for _, c := range components {
		switch c {
		case "policy":
			if s.cfg.RulesFile == "" {
				reloaded = append(reloaded, c) // built-in rules, nothing to re-read
				continue
			}
			rules, err := policy.LoadRules(s.cfg.RulesFile)
			if err != nil {
				log.Error().Err(err).Str("file", s.cfg.RulesFile).Msg("rules reload failed, keeping active rules")
				failed = append(failed, c)
				continue
			}
			s.engine.Reload(rules)
			reloaded = append(reloaded, c)
		case "visibility":
			s.resolver.Flush()
			reloaded = append(reloaded, c)
		case "tokens":
			s.tokens.Invalidate()
			reloaded = append(reloaded, c)
		default:
			writeError(w, http.StatusBadRequest, "unknown component "+strconv.Quote(c))
			return
		}
	}

	s.auditor.Record(&models.AuditEvent{
		CorrelationID: requestIDFromCtx(r.Context()),
		Operation:     "admin reload",
		Allowed:       true,
		Success:       len(failed) == 0,
		Details:       map[string]any{"reloaded": reloaded, "failed": failed},
	})

	code := http.StatusOK
	if len(failed) > 0 {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, map[string]any{"reloaded": reloaded, "failed": failed})
}

// AuditLogHandler handles GET /v1/audit-log. Launcher only.
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AuditFilter{
		Repo:       q.Get("repo"),
		Operation:  q.Get("operation"),
		DeniedOnly: q.Get("denied") == "true",
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	events, err := s.auditor.Query(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
