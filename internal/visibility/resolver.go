package visibility

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultReadTTL is how long a successful read-path classification stays
// cached. Write-path callers always refetch: writes are rarer and higher
// consequence, so correctness wins over the extra round trip.
const DefaultReadTTL = 60 * time.Second

type cacheEntry struct {
	visibility models.Visibility
	fetchedAt  time.Time
}

// Resolver answers "is owner/repo public or private?" using an ordered list
// of credentials. The bot credential is tried first because it can see the
// large majority of repositories; querying sequentially keeps the dominant
// case at one API call.
type Resolver struct {
	creds   []Credential
	readTTL time.Duration

	mu       sync.Mutex
	cache    map[string]cacheEntry
	keyLocks map[string]*sync.Mutex
}

// NewResolver creates a Resolver over the given credential order.
func NewResolver(creds []Credential, readTTL time.Duration) *Resolver {
	if readTTL <= 0 {
		readTTL = DefaultReadTTL
	}
	return &Resolver{
		creds:    creds,
		readTTL:  readTTL,
		cache:    map[string]cacheEntry{},
		keyLocks: map[string]*sync.Mutex{},
	}
}

// Resolve classifies the repository. forWrite bypasses the cache. Returns
// VisibilityUnknown when every credential fails; Unknown results are never
// cached, only successful classifications populate the cache.
func (r *Resolver) Resolve(ctx context.Context, owner, repo string, forWrite bool) models.Visibility {
	key := owner + "/" + repo

	if !forWrite {
		if v, ok := r.cached(key); ok {
			return v
		}
	}

	// Per-key lock: concurrent requests for the same repo collapse into
	// one upstream fetch, while different repos proceed in parallel. The
	// global mutex is never held across a network call.
	kl := r.keyLock(key)
	kl.Lock()
	defer kl.Unlock()

	if !forWrite {
		if v, ok := r.cached(key); ok {
			return v
		}
	}

	for _, cred := range r.creds {
		v, err := cred.Lookup(ctx, owner, repo)
		if err == nil {
			r.mu.Lock()
			r.cache[key] = cacheEntry{visibility: v, fetchedAt: time.Now()}
			r.mu.Unlock()
			return v
		}
		if errors.Is(err, ErrNotVisible) {
			log.Debug().Str("repo", key).Str("credential", cred.Name()).
				Msg("repository not visible to credential, trying next")
			continue
		}
		log.Warn().Err(err).Str("repo", key).Str("credential", cred.Name()).
			Msg("visibility lookup failed for credential")
	}
	return models.VisibilityUnknown
}

func (r *Resolver) cached(key string) (models.Visibility, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[key]
	if !ok || time.Since(e.fetchedAt) > r.readTTL {
		return models.VisibilityUnknown, false
	}
	return e.visibility, true
}

func (r *Resolver) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	kl, ok := r.keyLocks[key]
	if !ok {
		kl = &sync.Mutex{}
		r.keyLocks[key] = kl
	}
	return kl
}

// Flush clears the cache. Called from the admin reload path.
func (r *Resolver) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[string]cacheEntry{}
}

// CacheSize returns the number of cached entries.
func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
