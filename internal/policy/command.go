package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/org/gitgateway/pkg/models"
)

// ErrUnparsable is returned when a raw argument list cannot be mapped onto
// the closed command-intent set.
var ErrUnparsable = errors.New("command could not be parsed")

// gh subcommand groups whose second token is part of the operation path.
var ghGroups = map[string]bool{
	"pr": true, "issue": true, "repo": true, "release": true,
	"run": true, "workflow": true, "search": true, "auth": true,
	"label": true, "gist": true, "secret": true, "variable": true,
}

// gh operations that take owner/repo as their first positional argument.
var ghRepoPositional = map[string]bool{
	"repo view": true, "repo clone": true, "repo fork": true,
}

// gh operations with no repository-scoped semantics at all.
var ghNoRepoScope = map[string]bool{
	"auth status": true,
}

// gh api paths with no repository semantics. Exact paths only: user/repos
// and the other user/* listings return cross-repository result sets, so
// they stay repo-scoped and restricted modes deny them for lack of a
// single determinable target.
var apiNoRepoScope = map[string]bool{
	"rate_limit": true, "user": true, "meta": true, "octocat": true,
}

// ParseIntent maps a raw argument list onto the typed command-intent model.
// All policy logic operates on the result, never on raw strings. tool must
// be "git" or "gh"; hint is the repository the caller's working directory is
// bound to, used only when the command itself names no repository.
func ParseIntent(tool string, args []string, hint models.RepoRef) (models.CommandIntent, error) {
	switch tool {
	case "git":
		return parseGitIntent(args, hint)
	case "gh":
		return parseGhIntent(args, hint)
	}
	return models.CommandIntent{}, fmt.Errorf("%w: unknown tool %q", ErrUnparsable, tool)
}

func parseGitIntent(args []string, hint models.RepoRef) (models.CommandIntent, error) {
	if len(args) == 0 {
		return models.CommandIntent{}, fmt.Errorf("%w: empty git command", ErrUnparsable)
	}

	intent := models.CommandIntent{
		Tool:       "git",
		Operation:  args[0],
		Repo:       hint,
		RepoScoped: true,
		Args:       args,
	}
	switch args[0] {
	case "push":
		intent.Kind = models.KindPush
	case "fetch":
		intent.Kind = models.KindFetch
	default:
		intent.Kind = models.KindGitOther
	}

	var positionals []string
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "-") {
			intent.Flags = append(intent.Flags, a)
			if isForceFlag(a) {
				intent.Force = true
			}
			continue
		}
		positionals = append(positionals, a)
	}

	// push/fetch positionals: [remote] [refspec]
	if intent.Kind == models.KindPush || intent.Kind == models.KindFetch {
		if len(positionals) > 0 {
			if ref, ok := parseRemoteRepo(positionals[0]); ok {
				intent.Repo = ref
			}
		}
		// A single refspec keeps argv positions unambiguous; anything a
		// caller smuggles in past that cannot be attributed to a role.
		if intent.Kind == models.KindPush && len(positionals) > 2 {
			return models.CommandIntent{}, fmt.Errorf("%w: push accepts a single refspec", ErrUnparsable)
		}
		if intent.Kind == models.KindPush && len(positionals) > 1 {
			refspec := positionals[len(positionals)-1]
			if strings.HasPrefix(refspec, "+") {
				intent.Force = true
				refspec = refspec[1:]
			}
			intent.Branch = pushTargetBranch(refspec)
		}
	}
	return intent, nil
}

func parseGhIntent(args []string, hint models.RepoRef) (models.CommandIntent, error) {
	if len(args) == 0 {
		return models.CommandIntent{}, fmt.Errorf("%w: empty gh command", ErrUnparsable)
	}

	intent := models.CommandIntent{
		Kind:       models.KindGhCommand,
		Tool:       "gh",
		RepoScoped: true,
		Args:       args,
	}

	var positionals []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positionals = append(positionals, a)
			continue
		}
		intent.Flags = append(intent.Flags, a)
		// Explicit repository flag wins over every other source.
		if a == "-R" || a == "--repo" {
			if i+1 < len(args) {
				if ref, ok := parseOwnerRepo(args[i+1]); ok {
					intent.Repo = ref
				}
				i++
			}
		} else if v, found := strings.CutPrefix(a, "--repo="); found {
			if ref, ok := parseOwnerRepo(v); ok {
				intent.Repo = ref
			}
		}
	}

	if len(positionals) == 0 {
		return models.CommandIntent{}, fmt.Errorf("%w: gh command has no subcommand", ErrUnparsable)
	}

	// Operation path: one token, or two for grouped subcommands.
	intent.Operation = positionals[0]
	rest := positionals[1:]
	if ghGroups[positionals[0]] && len(positionals) > 1 {
		intent.Operation = positionals[0] + " " + positionals[1]
		rest = positionals[2:]
	}

	if ghNoRepoScope[intent.Operation] {
		intent.RepoScoped = false
		return intent, nil
	}

	// api targets are named by the REST path alone. Value-taking flags can
	// shift the path out of first position, so every positional is scanned;
	// neither a repo flag nor the caller hint ever picks the target, since
	// the path already names the real one. An api call with no extractable
	// repo and no recognized repo-free path keeps RepoScoped with a zero
	// Repo, which restricted modes deny.
	if intent.Operation == "api" {
		intent.Repo = models.RepoRef{}
		for _, p := range rest {
			if ref, ok := parseAPIPathRepo(strings.TrimPrefix(p, "/")); ok {
				intent.Repo = ref
				break
			}
		}
		if intent.Repo.IsZero() && len(rest) > 0 && apiNoRepoScope[strings.Trim(rest[0], "/")] {
			intent.RepoScoped = false
		}
		return intent, nil
	}

	if intent.Repo.IsZero() && ghRepoPositional[intent.Operation] && len(rest) > 0 {
		if ref, ok := parseOwnerRepo(rest[0]); ok {
			intent.Repo = ref
		}
	}
	if intent.Repo.IsZero() && intent.RepoScoped {
		intent.Repo = hint
	}
	return intent, nil
}

// parseOwnerRepo parses a bare "owner/repo" argument.
func parseOwnerRepo(s string) (models.RepoRef, bool) {
	s = strings.TrimSuffix(s, ".git")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.RepoRef{}, false
	}
	return models.RepoRef{Owner: parts[0], Name: parts[1]}, true
}

// parseAPIPathRepo extracts owner/repo from a REST-style path argument of
// the form "repos/<owner>/<repo>/...".
func parseAPIPathRepo(path string) (models.RepoRef, bool) {
	parts := strings.Split(path, "/")
	if len(parts) < 3 || parts[0] != "repos" || parts[1] == "" || parts[2] == "" {
		return models.RepoRef{}, false
	}
	return models.RepoRef{Owner: parts[1], Name: parts[2]}, true
}

// parseRemoteRepo extracts owner/repo from a remote URL. Remote names
// ("origin") are opaque here; the caller-supplied hint covers them.
func parseRemoteRepo(remote string) (models.RepoRef, bool) {
	if after, found := strings.CutPrefix(remote, "git@github.com:"); found {
		return parseOwnerRepo(after)
	}
	for _, scheme := range []string{"https://github.com/", "http://github.com/", "ssh://git@github.com/"} {
		if after, found := strings.CutPrefix(remote, scheme); found {
			return parseOwnerRepo(after)
		}
	}
	return models.RepoRef{}, false
}

// pushTargetBranch resolves the destination branch of a push refspec.
func pushTargetBranch(refspec string) string {
	dst := refspec
	if _, after, found := strings.Cut(refspec, ":"); found {
		dst = after
	}
	return strings.TrimPrefix(dst, "refs/heads/")
}

func isForceFlag(flag string) bool {
	name, _, _ := strings.Cut(flag, "=")
	switch name {
	case "-f", "--force", "--force-with-lease", "--force-if-includes":
		return true
	}
	return false
}
