package models

import "time"

// SessionKind distinguishes the two caller classes.
type SessionKind string

const (
	// KindLauncher is the trusted host-side process that creates and
	// destroys sandboxes and administers the gateway.
	KindLauncher SessionKind = "launcher"
	// KindAgent is the untrusted code-generation agent inside a sandbox.
	KindAgent SessionKind = "agent"
)

// SessionMode is the policy profile bound to a session at creation.
// It is immutable for the session's lifetime.
type SessionMode string

const (
	ModeBot     SessionMode = "bot"
	ModeUser    SessionMode = "user"
	ModePrivate SessionMode = "private"
	ModePublic  SessionMode = "public"
)

// Valid reports whether m is a recognized session mode.
func (m SessionMode) Valid() bool {
	switch m {
	case ModeBot, ModeUser, ModePrivate, ModePublic:
		return true
	}
	return false
}

// RequiredVisibility returns the repository visibility this mode restricts
// interaction to, and whether such a restriction exists. Bot and user
// sessions may touch repositories of any visibility.
func (m SessionMode) RequiredVisibility() (Visibility, bool) {
	switch m {
	case ModePrivate:
		return VisibilityPrivate, true
	case ModePublic:
		return VisibilityPublic, true
	}
	return "", false
}

// CredentialIdentity maps the session mode to the credential identity used
// to execute allowed operations. Private-mode sandboxes run on the
// incognito user credential so their activity is not attributed to the bot.
func (m SessionMode) CredentialIdentity() string {
	switch m {
	case ModeUser, ModePrivate:
		return IdentityUser
	default:
		return IdentityBot
	}
}

// Credential identity names.
const (
	IdentityBot  = "bot"
	IdentityUser = "user"
)

// Session represents one authenticated caller.
type Session struct {
	ID        string
	Kind      SessionKind
	Mode      SessionMode
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired returns true if the session has passed its expiry time.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}
