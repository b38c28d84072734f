package policy

// Rules is the reloadable rule set the engine evaluates against. It is
// loaded from configuration at boot and replaced wholesale on reload; the
// engine never mutates it.
type Rules struct {
	// GitOperations maps an allowed git operation to its flag allowlist.
	// Operations absent from the map are denied outright. There is no
	// merge operation here: merging is structurally impossible through
	// the gateway, not merely denied.
	GitOperations map[string][]string `yaml:"git_operations"`

	// GhCommands maps an allowed gh subcommand path ("pr create", "api",
	// ...) to its flag allowlist.
	GhCommands map[string][]string `yaml:"gh_commands"`

	// GitDeniedFlags and GhDeniedFlags are rejected regardless of
	// operation: anything capable of command injection, arbitrary config
	// override, hook bypass, or filesystem escape.
	GitDeniedFlags []string `yaml:"git_denied_flags"`
	GhDeniedFlags  []string `yaml:"gh_denied_flags"`

	// ProtectedBranches can never be pushed to, in any mode.
	ProtectedBranches []string `yaml:"protected_branches"`

	// AgentBranchPrefixes mark branches the agent owns by naming
	// convention; pushes to them need no open pull request.
	AgentBranchPrefixes []string `yaml:"agent_branch_prefixes"`

	// TrustedAgentLogins are the GitHub logins whose open pull requests
	// qualify a branch for pushes.
	TrustedAgentLogins []string `yaml:"trusted_agent_logins"`

	// RestrictedModeBlocked lists gh subcommand paths blocked outright in
	// visibility-restricted (private/public) modes, because their result
	// set cannot be filtered by a single repository's visibility.
	RestrictedModeBlocked []string `yaml:"restricted_mode_blocked"`

	// WriteOperations name the operations whose visibility checks must
	// bypass the cache (always refetch).
	WriteOperations []string `yaml:"write_operations"`
}

// DefaultRules returns the built-in rule set. Configuration may replace it
// entirely; it is the reference allowlist described in the threat model.
func DefaultRules() *Rules {
	return &Rules{
		// Only the remote-touching operations go through the gateway; the
		// sandbox runs read-only local git itself. Clone, submodule, and
		// hook manipulation are deliberately absent.
		GitOperations: map[string][]string{
			"push":  {"--set-upstream", "-u", "--dry-run", "--porcelain", "--atomic", "--quiet", "-q", "--verbose", "-v"},
			"fetch": {"--prune", "--tags", "--no-tags", "--depth", "--all", "--quiet", "-q", "--verbose", "-v"},
		},
		GhCommands: map[string][]string{
			"pr create":  {"--title", "-t", "--body", "-b", "--base", "-B", "--head", "-H", "--draft", "-d", "--fill", "-f", "--label", "-l", "--assignee", "-a", "--reviewer", "-r"},
			"pr comment": {"--body", "-b", "--edit-last"},
			"pr close":   {"--comment", "-c", "--delete-branch", "-d"},
			"pr edit":    {"--title", "-t", "--body", "-b", "--add-label", "--remove-label"},
			"pr view":    {"--json", "--comments", "-c"},
			"pr list":    {"--json", "--state", "-s", "--head", "-H", "--base", "-B", "--author", "-A", "--limit", "-L"},
			"pr status":  {"--json"},
			"pr diff":    {"--name-only", "--patch"},
			"pr checks":  {"--json"},
			"issue create":  {"--title", "-t", "--body", "-b", "--label", "-l", "--assignee", "-a"},
			"issue comment": {"--body", "-b"},
			"issue view":    {"--json", "--comments", "-c"},
			"issue list":    {"--json", "--state", "-s", "--label", "-l", "--limit", "-L"},
			"repo view":     {"--json"},
			"api":           {"--method", "-X", "--field", "-f", "--raw-field", "--paginate", "--jq", "-q", "--json"},
			"auth status":   {"--json"},
			"search repos":  {"--json", "--limit", "-L", "--owner"},
			"search code":   {"--json", "--limit", "-L", "--owner"},
			"search issues": {"--json", "--limit", "-L", "--owner"},
			"search prs":    {"--json", "--limit", "-L", "--owner"},
		},
		GitDeniedFlags: []string{
			"-c", "--config-env", "--exec", "--upload-pack", "--receive-pack",
			"--git-dir", "--work-tree", "-C", "--namespace", "--super-prefix",
			"--force", "-f", "--force-with-lease", "--force-if-includes",
			"--no-verify", "-o", "--push-option",
		},
		GhDeniedFlags: []string{
			// --header can override Authorization; --input and -F read
			// local files; --hostname redirects to another API host; --web
			// opens a browser on the gateway host.
			"--header", "--input", "-F", "--hostname", "--web", "-w",
		},
		ProtectedBranches:   []string{"main", "master", "develop", "production", "release"},
		AgentBranchPrefixes: []string{"agent/"},
		TrustedAgentLogins:  []string{},
		RestrictedModeBlocked: []string{
			"search repos", "search code", "search issues", "search prs",
		},
		WriteOperations: []string{"push", "pr create", "pr comment", "pr close", "pr edit", "issue create", "issue comment"},
	}
}

// gitOpAllowed reports whether op is allowlisted and returns its flag set.
func (r *Rules) gitOpAllowed(op string) ([]string, bool) {
	flags, ok := r.GitOperations[op]
	return flags, ok
}

// ghCommandAllowed reports whether the subcommand path is allowlisted.
func (r *Rules) ghCommandAllowed(op string) ([]string, bool) {
	flags, ok := r.GhCommands[op]
	return flags, ok
}

func (r *Rules) isProtectedBranch(branch string) bool {
	for _, b := range r.ProtectedBranches {
		if b == branch {
			return true
		}
	}
	return false
}

func (r *Rules) isAgentBranch(branch string) bool {
	for _, p := range r.AgentBranchPrefixes {
		if len(branch) > len(p) && branch[:len(p)] == p {
			return true
		}
	}
	return false
}

func (r *Rules) isRestrictedModeBlocked(op string) bool {
	for _, b := range r.RestrictedModeBlocked {
		if b == op {
			return true
		}
	}
	return false
}

func (r *Rules) isWriteOperation(op string) bool {
	for _, w := range r.WriteOperations {
		if w == op {
			return true
		}
	}
	return false
}
