package models

import "time"

// AuditEvent records a single gateway decision or outcome. Events are
// append-only and write-once. Details must never contain secret values,
// only metadata about the request and the decision.
type AuditEvent struct {
	ID            int64          `json:"id,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionID     string         `json:"session_id,omitempty"`
	SessionMode   SessionMode    `json:"session_mode,omitempty"`
	Operation     string         `json:"operation"`
	Repo          string         `json:"repo,omitempty"`
	Allowed       bool           `json:"allowed"`
	MatchedRule   string         `json:"matched_rule,omitempty"`
	Success       bool           `json:"success"`
	DurationMs    int64          `json:"duration_ms,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}
