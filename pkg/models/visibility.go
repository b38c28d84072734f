package models

// Visibility is GitHub's classification of a repository.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
	// VisibilityUnknown means no available credential could classify the
	// repository (outage, rate limit, or the repo is invisible to all of
	// them). It is never cached and never satisfies a mode restriction.
	VisibilityUnknown Visibility = "unknown"
)

// ParseVisibility validates a value returned by the repository metadata
// endpoint against the closed set. Anything else is reported as a lookup
// failure so a malformed upstream response cannot poison policy.
func ParseVisibility(s string) (Visibility, bool) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityPrivate, VisibilityInternal:
		return Visibility(s), true
	}
	return VisibilityUnknown, false
}

// RepoRef identifies a repository as owner/name.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// IsZero reports whether the ref is empty.
func (r RepoRef) IsZero() bool { return r.Owner == "" && r.Name == "" }

// String returns "owner/name", or "" for the zero ref.
func (r RepoRef) String() string {
	if r.IsZero() {
		return ""
	}
	return r.Owner + "/" + r.Name
}
