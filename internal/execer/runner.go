package execer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds one subprocess execution.
const DefaultTimeout = 60 * time.Second

// Result captures one subprocess execution.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"-"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Runner executes the real git/gh binaries. Arguments are passed as a
// validated argv, never through a shell. The access token is injected
// through each tool's native credential mechanism and never written to a
// file the agent can read.
type Runner struct {
	gitPath string
	ghPath  string
	timeout time.Duration
}

// NewRunner creates a Runner. Empty paths default to binary names resolved
// from PATH.
func NewRunner(gitPath, ghPath string, timeout time.Duration) *Runner {
	if gitPath == "" {
		gitPath = "git"
	}
	if ghPath == "" {
		ghPath = "gh"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{gitPath: gitPath, ghPath: ghPath, timeout: timeout}
}

// Run executes the intent's validated argument list. For remote-mutating
// operations the subprocess is detached from the caller's cancellation:
// interrupting a half-finished push is worse than letting it complete.
// Read lookups stay cancelable.
func (r *Runner) Run(ctx context.Context, intent models.CommandIntent, cwd, token string, mutating bool) (*Result, error) {
	if mutating {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tool := r.ghPath
	if intent.Tool == "git" {
		tool = r.gitPath
	}

	cmd := exec.CommandContext(ctx, tool, intent.Args...)
	cmd.Dir = cwd
	cmd.Env = r.buildEnv(intent.Tool, token)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		res.Stderr = fmt.Sprintf("command timed out after %s", r.timeout)
		log.Warn().Str("tool", intent.Tool).Str("operation", intent.Operation).
			Dur("timeout", r.timeout).Msg("subprocess timed out")
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("spawning %s: %w", intent.Tool, err)
	}
	return res, nil
}

// buildEnv composes a minimal environment. The token rides in process env
// only: GH_TOKEN for gh; for git an inline credential helper configured
// through GIT_CONFIG_* env vars, which clears any on-disk helper first.
func (r *Runner) buildEnv(tool, token string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"NO_COLOR=1",
	}
	switch tool {
	case "gh":
		if token != "" {
			env = append(env, "GH_TOKEN="+token)
		}
		env = append(env, "GH_PROMPT_DISABLED=1", "GH_NO_UPDATE_NOTIFIER=1")
	case "git":
		env = append(env, "GIT_TERMINAL_PROMPT=0")
		if token != "" {
			env = append(env,
				"GATEWAY_GIT_TOKEN="+token,
				"GIT_CONFIG_COUNT=2",
				"GIT_CONFIG_KEY_0=credential.helper",
				"GIT_CONFIG_VALUE_0=",
				"GIT_CONFIG_KEY_1=credential.helper",
				`GIT_CONFIG_VALUE_1=!printf 'username=x-access-token\npassword=%s\n' "$GATEWAY_GIT_TOKEN"`,
			)
		}
	}
	return env
}
