package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/org/gitgateway/pkg/models"
)

// commandResponse is the shape every command endpoint returns. A policy
// denial takes the same form as a failed tool run: success=false, nonzero
// exit code, the reason on stderr. The thin wrapper inside the sandbox
// relays it verbatim, so a denied command reads like any other failed
// command.
type commandResponse struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`

	Denied      bool   `json:"denied,omitempty"`
	MatchedRule string `json:"matched_rule,omitempty"`
}

// execute is the shared flow behind every command endpoint: evaluate the
// policy, record the decision, and only on an allow fetch a token and spawn
// the subprocess. The agent's session credential is never forwarded to the
// subprocess and the access token never appears in the response.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, tool string, args []string, hint models.RepoRef) {
	ctx := r.Context()
	sess := sessionFromCtx(ctx)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, models.ErrInvalidSession.Error())
		return
	}

	intent, decision := s.engine.EvaluateRaw(ctx, sess, tool, args, hint)
	policyDecisionsTotal.WithLabelValues(decision.MatchedRule, strconv.FormatBool(decision.Allowed)).Inc()

	event := &models.AuditEvent{
		CorrelationID: requestIDFromCtx(ctx),
		SessionID:     sess.ID,
		SessionMode:   sess.Mode,
		Operation:     operationLabel(tool, intent),
		Repo:          repoLabel(intent.Repo),
		Allowed:       decision.Allowed,
		MatchedRule:   decision.MatchedRule,
	}

	if !decision.Allowed {
		s.auditor.Record(event)
		writeJSON(w, http.StatusOK, commandResponse{
			ExitCode:    1,
			Stderr:      decision.Reason,
			Denied:      true,
			MatchedRule: decision.MatchedRule,
		})
		return
	}

	token, err := s.tokens.GetToken(ctx, sess.Mode.CredentialIdentity())
	if err != nil {
		event.Details = map[string]any{"error": "access token unavailable"}
		s.auditor.Record(event)
		writeError(w, http.StatusServiceUnavailable, models.ErrTokenUnavailable.Error())
		return
	}

	mutating := s.engine.IsWriteOperation(intent.Operation)
	res, err := s.runner.Run(ctx, intent, s.cfg.WorkDir, token, mutating)
	if err != nil {
		commandExecutionsTotal.WithLabelValues(intent.Tool, "spawn_error").Inc()
		event.Details = map[string]any{"error": err.Error()}
		s.auditor.Record(event)
		writeError(w, http.StatusBadGateway, models.ErrUpstreamUnavailable.Error())
		return
	}

	outcome := "success"
	switch {
	case res.TimedOut:
		outcome = "timeout"
	case res.ExitCode != 0:
		outcome = "failure"
	}
	commandExecutionsTotal.WithLabelValues(intent.Tool, outcome).Inc()

	event.Success = res.ExitCode == 0
	event.DurationMs = res.Duration.Milliseconds()
	s.auditor.Record(event)

	writeJSON(w, http.StatusOK, commandResponse{
		Success:  event.Success,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		TimedOut: res.TimedOut,
	})
}

func operationLabel(tool string, intent models.CommandIntent) string {
	if intent.Operation == "" {
		return tool
	}
	return tool + " " + intent.Operation
}

func repoLabel(ref models.RepoRef) string {
	if ref.IsZero() {
		return ""
	}
	return ref.String()
}

// splitRepo parses an "owner/name" request field.
func splitRepo(s string) models.RepoRef {
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return models.RepoRef{}
	}
	return models.RepoRef{Owner: owner, Name: strings.TrimSuffix(name, ".git")}
}
