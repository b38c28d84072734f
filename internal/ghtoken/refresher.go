package ghtoken

import (
	"context"
	"sync"
	"time"

	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRefreshMargin is how close to expiry a cached token may get
	// before a refresh is attempted.
	DefaultRefreshMargin = 15 * time.Minute
	// DefaultMaxFailures is the consecutive-failure count at which the
	// cached token is discarded and the identity reports unavailable.
	DefaultMaxFailures = 3
)

// identityState is the per-credential-identity token cache. Its mutex is
// per-identity so one slow exchange never blocks the other identity.
type identityState struct {
	mu        sync.Mutex
	name      string
	exchanger Exchanger
	static    string // static PAT identities never refresh

	token               string
	expiresAt           time.Time
	consecutiveFailures int
}

// Refresher manages short-lived access tokens, one state per identity
// (e.g. "bot", "user"). Token values are never logged.
type Refresher struct {
	mu          sync.RWMutex
	identities  map[string]*identityState
	margin      time.Duration
	maxFailures int
}

// NewRefresher creates an empty Refresher. Zero arguments select defaults.
func NewRefresher(margin time.Duration, maxFailures int) *Refresher {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Refresher{
		identities:  map[string]*identityState{},
		margin:      margin,
		maxFailures: maxFailures,
	}
}

// AddAppIdentity registers a GitHub App backed identity.
func (r *Refresher) AddAppIdentity(name string, appID, installationID int64, privateKeyPEM []byte, baseURL string) error {
	ex, err := newAppExchanger(appID, installationID, privateKeyPEM, baseURL)
	if err != nil {
		return err
	}
	r.addIdentity(&identityState{name: name, exchanger: ex})
	return nil
}

// AddStaticIdentity registers an identity backed by a long-lived token
// (e.g. a personal access token for the incognito user credential).
func (r *Refresher) AddStaticIdentity(name, token string) {
	r.addIdentity(&identityState{name: name, static: token})
}

// AddExchangerIdentity registers an identity with a custom exchanger.
// Used by tests and by alternate token providers.
func (r *Refresher) AddExchangerIdentity(name string, ex Exchanger) {
	r.addIdentity(&identityState{name: name, exchanger: ex})
}

func (r *Refresher) addIdentity(st *identityState) {
	r.mu.Lock()
	r.identities[st.name] = st
	r.mu.Unlock()
}

// Identities returns the registered identity names.
func (r *Refresher) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.identities))
	for n := range r.identities {
		names = append(names, n)
	}
	return names
}

// GetToken returns a currently-valid token for the identity, refreshing if
// the cached one is inside the safety margin. On refresh failure a still
// unexpired cached token is served and the failure counter incremented;
// once the counter reaches the maximum the cached token is discarded and
// the identity reports unavailable until a refresh succeeds.
func (r *Refresher) GetToken(ctx context.Context, identity string) (string, error) {
	r.mu.RLock()
	st, ok := r.identities[identity]
	r.mu.RUnlock()
	if !ok {
		return "", models.ErrTokenUnavailable
	}

	if st.static != "" {
		return st.static, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	if st.token != "" && st.expiresAt.After(now.Add(r.margin)) {
		return st.token, nil // fresh
	}

	token, expiresAt, err := st.exchanger.Exchange(ctx)
	if err == nil {
		st.token = token
		st.expiresAt = expiresAt
		st.consecutiveFailures = 0
		log.Info().Str("identity", st.name).Time("expires_at", expiresAt).Msg("token refreshed")
		return st.token, nil
	}

	st.consecutiveFailures++
	log.Warn().Err(err).Str("identity", st.name).Int("consecutive_failures", st.consecutiveFailures).
		Msg("token refresh failed")

	if st.consecutiveFailures >= r.maxFailures {
		// Fail closed: past the threshold we no longer trust the cached
		// token even if it is technically unexpired.
		st.token = ""
		st.expiresAt = time.Time{}
		log.Error().Str("identity", st.name).Msg("token refresh exhausted, cached token discarded")
		return "", models.ErrTokenUnavailable
	}

	if st.token != "" && st.expiresAt.After(now) {
		return st.token, nil // degraded: serve the still-valid cached token
	}
	return "", models.ErrTokenUnavailable
}

// Invalidate drops all cached tokens and failure counters, forcing a fresh
// exchange on next use. Called from the admin reload path.
func (r *Refresher) Invalidate() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.identities {
		st.mu.Lock()
		st.token = ""
		st.expiresAt = time.Time{}
		st.consecutiveFailures = 0
		st.mu.Unlock()
	}
}

// IdentityStatus is reported on the health endpoint. It never carries the
// token value.
type IdentityStatus struct {
	Identity  string    `json:"identity"`
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
}

// Status reports per-identity token validity.
func (r *Refresher) Status() []IdentityStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IdentityStatus, 0, len(r.identities))
	for _, st := range r.identities {
		st.mu.Lock()
		s := IdentityStatus{Identity: st.name, Failures: st.consecutiveFailures}
		if st.static != "" {
			s.Valid = true
		} else if st.token != "" && st.expiresAt.After(time.Now()) {
			s.Valid = true
			s.ExpiresAt = st.expiresAt
		}
		st.mu.Unlock()
		out = append(out, s)
	}
	return out
}
