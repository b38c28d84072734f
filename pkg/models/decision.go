package models

// Machine-readable rule tags carried on every policy decision.
const (
	RuleAllowed             = "allowed"
	RuleNoRepoCheck         = "allowed_no_repo_scope"
	RuleUnparsable          = "denied_unparsable_command"
	RuleOperationNotAllowed = "denied_operation_not_allowed"
	RuleFlagNotAllowed      = "denied_flag_not_allowed"
	RuleForcePush           = "denied_force_push"
	RuleProtectedBranch     = "denied_protected_branch"
	RuleBranchNotOwned      = "denied_branch_not_owned"
	RuleModeBlocked         = "denied_blocked_in_mode"
	RuleVisibilityMismatch  = "denied_visibility_mismatch"
	RuleVisibilityUnknown   = "denied_visibility_unknown"
	RuleNoRepo              = "denied_no_target_repository"
)

// PolicyDecision is the single return value of policy evaluation. It is a
// result, not an error: every call site handles both outcomes explicitly.
// Decisions are immutable and never cached; each request re-evaluates.
type PolicyDecision struct {
	Allowed     bool       `json:"allowed"`
	Reason      string     `json:"reason"`
	MatchedRule string     `json:"matched_rule"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// Allow builds an allowing decision.
func Allow(rule, reason string) PolicyDecision {
	return PolicyDecision{Allowed: true, Reason: reason, MatchedRule: rule}
}

// Deny builds a denying decision.
func Deny(rule, reason string) PolicyDecision {
	return PolicyDecision{Allowed: false, Reason: reason, MatchedRule: rule}
}
