package models

// CommandKind is the closed set of command shapes the gateway understands.
// Policy evaluation is an exhaustive match over this set; raw argument
// lists never reach the rule logic directly.
type CommandKind string

const (
	KindPush      CommandKind = "push"
	KindFetch     CommandKind = "fetch"
	KindGhCommand CommandKind = "gh"
	// KindGitOther is any other git operation. None are allowlisted today;
	// the variant exists so they reach the engine and are denied (and
	// audited) as policy decisions rather than parse failures.
	KindGitOther CommandKind = "git-other"
)

// CommandIntent is the parsed form of one requested operation.
type CommandIntent struct {
	Kind CommandKind
	// Tool is the underlying binary: "git" or "gh".
	Tool string
	// Operation is the git operation ("push", "fetch", "log", ...) or the
	// gh subcommand path ("pr create", "repo view", "api", ...).
	Operation string
	// Repo is the extracted target repository; zero when none could be
	// determined.
	Repo RepoRef
	// RepoScoped is false only for operations with no repository-scoped
	// semantics (rate-limit and auth-status style queries), which skip
	// repository checks entirely.
	RepoScoped bool
	// Branch is the target branch of a push, when the refspec names one.
	Branch string
	// Force is set when any force/force-with-lease flag is present.
	Force bool
	// Flags are the option arguments found in the raw command.
	Flags []string
	// Args is the full validated argument list handed to the subprocess
	// (excluding the tool name itself).
	Args []string
}
