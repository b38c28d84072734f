package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/org/gitgateway/internal/audit"
	"github.com/org/gitgateway/internal/execer"
	"github.com/org/gitgateway/internal/ghtoken"
	"github.com/org/gitgateway/internal/policy"
	"github.com/org/gitgateway/internal/session"
	"github.com/org/gitgateway/internal/storage"
	"github.com/org/gitgateway/internal/visibility"
	"github.com/org/gitgateway/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const testLauncherSecret = "launcher-secret"

type testGateway struct {
	ts       *httptest.Server
	sessions *session.Manager
	store    *storage.MemoryStore
}

// newTestGateway wires a full server over in-memory components. No
// credential identities are registered, so any allowed command stops at
// the token step; denial paths run end to end.
func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testLauncherSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	sessions := session.NewManager(string(hash), 0)
	resolver := visibility.NewResolver(nil, 0)
	engine := policy.NewEngine(nil, resolver, nil)
	tokens := ghtoken.NewRefresher(0, 0)
	runner := execer.NewRunner("git", "gh", time.Second)
	store := storage.NewMemoryStore(0)
	auditor := audit.NewLogger(store)

	srv := NewServer(sessions, engine, resolver, tokens, runner, auditor, Config{})
	ts := httptest.NewServer(srv.BuildRouter())
	t.Cleanup(func() {
		ts.Close()
		auditor.Close()
	})
	return &testGateway{ts: ts, sessions: sessions, store: store}
}

func (g *testGateway) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, g.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("X-Gateway-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result) //nolint:errcheck
	return resp, result
}

func (g *testGateway) agentToken(t *testing.T, mode models.SessionMode) string {
	t.Helper()
	_, token, err := g.sessions.Create(mode)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func TestAuthRequired(t *testing.T) {
	g := newTestGateway(t)
	resp, _ := g.request(t, "POST", "/v1/git/push", "", map[string]any{"repo": "acme/widgets"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthUnauthenticated(t *testing.T) {
	g := newTestGateway(t)
	resp, body := g.request(t, "GET", "/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestSessionCreateRequiresLauncher(t *testing.T) {
	g := newTestGateway(t)

	agent := g.agentToken(t, models.ModeBot)
	resp, _ := g.request(t, "POST", "/v1/session/create", agent, map[string]any{"mode": "bot"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("agent session: status = %d, want 403", resp.StatusCode)
	}

	resp, body := g.request(t, "POST", "/v1/session/create", testLauncherSecret, map[string]any{"mode": "private"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("launcher: status = %d body = %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("no token in create response")
	}
	if body["mode"] != "private" {
		t.Errorf("mode = %v, want private", body["mode"])
	}
}

func TestSessionCreateRejectsBadMode(t *testing.T) {
	g := newTestGateway(t)
	resp, _ := g.request(t, "POST", "/v1/session/create", testLauncherSecret, map[string]any{"mode": "root"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionRevoke(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	resp, _ := g.request(t, "POST", "/v1/session/revoke", testLauncherSecret, map[string]any{"token": agent})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke: status = %d", resp.StatusCode)
	}

	resp, _ = g.request(t, "POST", "/v1/git/push", agent, map[string]any{"repo": "acme/widgets", "refspec": "x:agent/x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: status = %d", resp.StatusCode)
	}
}

func TestPushDenialLooksLikeToolFailure(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	resp, body := g.request(t, "POST", "/v1/git/push", agent, map[string]any{
		"repo":    "acme/widgets",
		"refspec": "x:main",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (denial is a command failure, not an HTTP error)", resp.StatusCode)
	}
	if body["success"] != false || body["exit_code"] != float64(1) {
		t.Errorf("denial body = %v, want success=false exit_code=1", body)
	}
	if body["denied"] != true || body["matched_rule"] != models.RuleProtectedBranch {
		t.Errorf("policy metadata = denied:%v rule:%v", body["denied"], body["matched_rule"])
	}
	if stderr, _ := body["stderr"].(string); stderr == "" {
		t.Error("denial carries no stderr reason")
	}
}

func TestForceFlagDenied(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	_, body := g.request(t, "POST", "/v1/git/push", agent, map[string]any{
		"repo":    "acme/widgets",
		"refspec": "x:agent/x",
		"flags":   []string{"--force"},
	})
	if body["denied"] != true || body["matched_rule"] != models.RuleFlagNotAllowed {
		t.Fatalf("force flag: body = %v", body)
	}
}

func TestGhDeniedFlag(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	_, body := g.request(t, "POST", "/v1/gh/execute", agent, map[string]any{
		"args": []string{"api", "repos/acme/widgets", "--header", "X: y"},
	})
	if body["denied"] != true || body["matched_rule"] != models.RuleFlagNotAllowed {
		t.Fatalf("gh --header: body = %v", body)
	}
}

func TestPrivateModeFailsClosedWithoutResolver(t *testing.T) {
	// The test gateway has no visibility credentials; a restricted mode
	// must deny rather than act on unconfirmed visibility.
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModePrivate)

	_, body := g.request(t, "POST", "/v1/gh/execute", agent, map[string]any{
		"args": []string{"pr", "view", "1", "-R", "acme/widgets"},
	})
	if body["denied"] != true || body["matched_rule"] != models.RuleVisibilityUnknown {
		t.Fatalf("unknown visibility: body = %v", body)
	}
}

func TestAllowedCommandWithoutTokenIs503(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	resp, _ := g.request(t, "POST", "/v1/git/push", agent, map[string]any{
		"repo":    "acme/widgets",
		"refspec": "x:agent/x",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when no credential identity is registered", resp.StatusCode)
	}
}

func TestBadRepoField(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	resp, _ := g.request(t, "POST", "/v1/git/push", agent, map[string]any{"repo": "no-slash"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGitFlagsMustBeFlags(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	// A non-flag entry would reach argv as a positional, taking the remote
	// position and demoting the server-built URL to a refspec.
	resp, _ := g.request(t, "POST", "/v1/git/push", agent, map[string]any{
		"repo":    "acme/widgets",
		"refspec": "x:agent/x",
		"flags":   []string{"evil-remote"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDenialIsAudited(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)

	g.request(t, "POST", "/v1/git/push", agent, map[string]any{
		"repo":    "acme/widgets",
		"refspec": "x:main",
	})

	// The audit queue is drained asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, body := g.request(t, "GET", "/v1/audit-log?denied=true", testLauncherSecret, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("audit-log: status = %d", resp.StatusCode)
		}
		if count, _ := body["count"].(float64); count >= 1 {
			events := body["events"].([]any)
			ev := events[0].(map[string]any)
			if ev["operation"] != "git push" || ev["repo"] != "acme/widgets" || ev["matched_rule"] != models.RuleProtectedBranch {
				t.Fatalf("audit event = %v", ev)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("denied event never reached the audit store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAuditLogRequiresLauncher(t *testing.T) {
	g := newTestGateway(t)
	agent := g.agentToken(t, models.ModeBot)
	resp, _ := g.request(t, "GET", "/v1/audit-log", agent, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAdminReload(t *testing.T) {
	g := newTestGateway(t)
	resp, body := g.request(t, "POST", "/v1/admin/reload", testLauncherSecret, map[string]any{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	reloaded, _ := body["reloaded"].([]any)
	if len(reloaded) != 3 {
		t.Fatalf("reloaded = %v, want policy, visibility, tokens", reloaded)
	}

	resp, _ = g.request(t, "POST", "/v1/admin/reload", testLauncherSecret, map[string]any{"components": []string{"nope"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown component: status = %d", resp.StatusCode)
	}
}
