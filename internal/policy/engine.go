package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// VisibilityResolver is the minimal interface the Engine needs from the
// visibility subsystem.
type VisibilityResolver interface {
	Resolve(ctx context.Context, owner, repo string, forWrite bool) models.Visibility
}

// PRChecker reports whether a branch has an open pull request authored by a
// trusted agent login.
type PRChecker interface {
	HasOpenAgentPR(ctx context.Context, repo models.RepoRef, branch string, trustedLogins []string) (bool, error)
}

// Engine evaluates parsed command intents against the active rule set.
// Evaluation is a pure function of (session, intent, cached visibility);
// the only side effect anywhere in this package is the audit write made by
// the caller.
type Engine struct {
	mu       sync.RWMutex
	rules    *Rules
	resolver VisibilityResolver
	prs      PRChecker
}

// NewEngine creates an Engine. resolver and prs may be nil in tests that
// exercise rule logic only.
func NewEngine(rules *Rules, resolver VisibilityResolver, prs PRChecker) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, resolver: resolver, prs: prs}
}

// Reload swaps in a new rule set without restarting the process.
func (e *Engine) Reload(rules *Rules) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
	log.Info().Msg("policy rules reloaded")
}

// Rules returns the active rule set (for introspection; callers must not
// mutate it).
func (e *Engine) Rules() *Rules {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// IsWriteOperation reports whether op mutates remote state under the
// active rules.
func (e *Engine) IsWriteOperation(op string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules.isWriteOperation(op)
}

// EvaluateRaw parses the raw arguments and evaluates the result. Parse
// failures become denials so every rejected command is auditable the same
// way.
func (e *Engine) EvaluateRaw(ctx context.Context, session *models.Session, tool string, args []string, hint models.RepoRef) (models.CommandIntent, models.PolicyDecision) {
	intent, err := ParseIntent(tool, args, hint)
	if err != nil {
		return intent, models.Deny(models.RuleUnparsable, err.Error())
	}
	return intent, e.Evaluate(ctx, session, intent)
}

// Evaluate returns the policy decision for one parsed intent. Deny reasons
// state the rule that matched, never information about other branches,
// repositories, or policy internals.
func (e *Engine) Evaluate(ctx context.Context, session *models.Session, intent models.CommandIntent) models.PolicyDecision {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	// Step 1: operation allowlist.
	allowedFlags, deniedFlags, ok := e.operationFlags(rules, intent)
	if !ok {
		return models.Deny(models.RuleOperationNotAllowed,
			fmt.Sprintf("operation %q is not allowed through the gateway", intent.Operation))
	}

	// Step 2: flag allowlist. Denied flags are rejected regardless of
	// operation; everything else must be allowlisted for this operation.
	for _, flag := range intent.Flags {
		name := flagName(flag)
		if containsFlag(deniedFlags, name) {
			return models.Deny(models.RuleFlagNotAllowed,
				fmt.Sprintf("flag %q is never allowed", name))
		}
		if !containsFlag(allowedFlags, name) && !(intent.Tool == "gh" && isRepoFlag(name)) {
			return models.Deny(models.RuleFlagNotAllowed,
				fmt.Sprintf("flag %q is not allowed for operation %q", name, intent.Operation))
		}
	}

	// Step 3: branch and merge policy for pushes.
	if intent.Kind == models.KindPush {
		if d, denied := e.checkPush(ctx, rules, intent); denied {
			return d
		}
	}

	// Step 4: visibility-mode policy.
	required, restricted := session.Mode.RequiredVisibility()
	if restricted {
		if rules.isRestrictedModeBlocked(intent.Operation) {
			return models.Deny(models.RuleModeBlocked,
				fmt.Sprintf("operation %q is blocked in %s mode", intent.Operation, session.Mode))
		}
		if intent.RepoScoped {
			if intent.Repo.IsZero() {
				return models.Deny(models.RuleNoRepo,
					"target repository could not be determined; required by session mode")
			}
			return e.checkVisibility(ctx, rules, session.Mode, required, intent)
		}
	}

	if !intent.RepoScoped {
		return models.Allow(models.RuleNoRepoCheck, "operation has no repository scope")
	}
	return models.Allow(models.RuleAllowed, "operation permitted")
}

// operationFlags resolves the allow/deny flag sets for the intent's
// operation, and whether the operation is allowlisted at all.
func (e *Engine) operationFlags(rules *Rules, intent models.CommandIntent) (allowed, denied []string, ok bool) {
	switch intent.Kind {
	case models.KindPush, models.KindFetch, models.KindGitOther:
		flags, found := rules.gitOpAllowed(intent.Operation)
		return flags, rules.GitDeniedFlags, found
	case models.KindGhCommand:
		flags, found := rules.ghCommandAllowed(intent.Operation)
		return flags, rules.GhDeniedFlags, found
	}
	return nil, nil, false
}

// checkPush enforces branch ownership, protected branches, and the
// unconditional force-push ban.
func (e *Engine) checkPush(ctx context.Context, rules *Rules, intent models.CommandIntent) (models.PolicyDecision, bool) {
	if intent.Force {
		return models.Deny(models.RuleForcePush, "force push is never allowed"), true
	}
	if intent.Branch == "" {
		return models.Deny(models.RuleBranchNotOwned,
			"push target branch could not be determined; use an explicit refspec"), true
	}
	if rules.isProtectedBranch(intent.Branch) {
		return models.Deny(models.RuleProtectedBranch,
			fmt.Sprintf("branch %q is protected", intent.Branch)), true
	}
	if rules.isAgentBranch(intent.Branch) {
		return models.PolicyDecision{}, false
	}

	// Not agent-named: allowed only if the branch already has an open PR
	// authored by a trusted agent login. Lookup failure fails closed.
	if e.prs != nil && !intent.Repo.IsZero() {
		ok, err := e.prs.HasOpenAgentPR(ctx, intent.Repo, intent.Branch, rules.TrustedAgentLogins)
		if err != nil {
			log.Warn().Err(err).Str("repo", intent.Repo.String()).Str("branch", intent.Branch).
				Msg("open-PR lookup failed, denying push")
		} else if ok {
			return models.PolicyDecision{}, false
		}
	}
	return models.Deny(models.RuleBranchNotOwned,
		fmt.Sprintf("branch %q is not an agent branch and has no qualifying open pull request", intent.Branch)), true
}

// checkVisibility resolves the target repository's visibility and compares
// it with the session mode's requirement. Unknown never satisfies a
// requirement: when visibility cannot be confirmed, the gateway fails
// closed.
func (e *Engine) checkVisibility(ctx context.Context, rules *Rules, mode models.SessionMode, required models.Visibility, intent models.CommandIntent) models.PolicyDecision {
	if e.resolver == nil {
		return models.Deny(models.RuleVisibilityUnknown, "no visibility resolver configured")
	}
	forWrite := rules.isWriteOperation(intent.Operation)
	v := e.resolver.Resolve(ctx, intent.Repo.Owner, intent.Repo.Name, forWrite)

	switch {
	case v == models.VisibilityUnknown:
		d := models.Deny(models.RuleVisibilityUnknown,
			"repository visibility could not be confirmed")
		d.Visibility = v
		return d
	case visibilitySatisfies(v, required):
		d := models.Allow(models.RuleAllowed, "operation permitted")
		d.Visibility = v
		return d
	default:
		d := models.Deny(models.RuleVisibilityMismatch,
			fmt.Sprintf("repository is %s but session mode %s requires %s", v, mode, required))
		d.Visibility = v
		return d
	}
}

// visibilitySatisfies reports whether resolved visibility v meets the
// mode's requirement. Internal repositories are organization-private and
// satisfy a private-mode restriction.
func visibilitySatisfies(v, required models.Visibility) bool {
	if v == required {
		return true
	}
	return required == models.VisibilityPrivate && v == models.VisibilityInternal
}

// flagName strips an inline value: "--depth=1" → "--depth".
func flagName(flag string) string {
	name, _, _ := strings.Cut(flag, "=")
	return name
}

func containsFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}

// isRepoFlag allows the explicit repository selector on any gh command; it
// is what the extractor consumed in step 1.
func isRepoFlag(name string) bool {
	return name == "-R" || name == "--repo"
}
