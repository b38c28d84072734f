package visibility

import (
	"context"
	"errors"
	"testing"

	"github.com/org/gitgateway/pkg/models"
)

// fakeCred is a scripted Credential that counts lookups.
type fakeCred struct {
	name  string
	v     models.Visibility
	err   error
	calls int
}

func (f *fakeCred) Name() string { return f.name }

func (f *fakeCred) Lookup(_ context.Context, _, _ string) (models.Visibility, error) {
	f.calls++
	if f.err != nil {
		return models.VisibilityUnknown, f.err
	}
	return f.v, nil
}

func TestResolveCachesReads(t *testing.T) {
	cred := &fakeCred{name: "bot", v: models.VisibilityPublic}
	r := NewResolver([]Credential{cred}, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if v := r.Resolve(ctx, "acme", "widgets", false); v != models.VisibilityPublic {
			t.Fatalf("resolve %d: got %s", i, v)
		}
	}
	if cred.calls != 1 {
		t.Errorf("lookups = %d, want 1 (cache miss only on first call)", cred.calls)
	}
}

func TestResolveCredentialFallback(t *testing.T) {
	bot := &fakeCred{name: "bot", err: ErrNotVisible}
	user := &fakeCred{name: "user", v: models.VisibilityPrivate}
	r := NewResolver([]Credential{bot, user}, 0)

	v := r.Resolve(context.Background(), "acme", "widgets", false)
	if v != models.VisibilityPrivate {
		t.Fatalf("got %s, want private", v)
	}
	if bot.calls != 1 || user.calls != 1 {
		t.Errorf("calls bot=%d user=%d, want 1 each", bot.calls, user.calls)
	}

	// The successful fallback result is cached like any other.
	r.Resolve(context.Background(), "acme", "widgets", false)
	if bot.calls != 1 || user.calls != 1 {
		t.Errorf("cached resolve hit upstream again: bot=%d user=%d", bot.calls, user.calls)
	}
}

func TestResolveFailuresNeverCached(t *testing.T) {
	cred := &fakeCred{name: "bot", err: errors.New("network down")}
	r := NewResolver([]Credential{cred}, 0)
	ctx := context.Background()

	if v := r.Resolve(ctx, "acme", "widgets", false); v != models.VisibilityUnknown {
		t.Fatalf("got %s, want unknown", v)
	}
	if r.CacheSize() != 0 {
		t.Fatal("failed lookup was cached")
	}

	// Recovery: the next call must reach upstream and succeed.
	cred.err = nil
	cred.v = models.VisibilityPublic
	if v := r.Resolve(ctx, "acme", "widgets", false); v != models.VisibilityPublic {
		t.Fatalf("after recovery got %s, want public", v)
	}
	if cred.calls != 2 {
		t.Errorf("lookups = %d, want 2", cred.calls)
	}
}

func TestResolveWriteBypassesCache(t *testing.T) {
	cred := &fakeCred{name: "bot", v: models.VisibilityPrivate}
	r := NewResolver([]Credential{cred}, 0)
	ctx := context.Background()

	r.Resolve(ctx, "acme", "widgets", false)
	r.Resolve(ctx, "acme", "widgets", true)
	r.Resolve(ctx, "acme", "widgets", true)

	if cred.calls != 3 {
		t.Errorf("lookups = %d, want 3 (writes always refetch)", cred.calls)
	}
}

func TestResolveDistinctReposCachedSeparately(t *testing.T) {
	cred := &fakeCred{name: "bot", v: models.VisibilityPublic}
	r := NewResolver([]Credential{cred}, 0)
	ctx := context.Background()

	r.Resolve(ctx, "acme", "widgets", false)
	r.Resolve(ctx, "acme", "gadgets", false)
	if cred.calls != 2 {
		t.Errorf("lookups = %d, want 2", cred.calls)
	}
	if r.CacheSize() != 2 {
		t.Errorf("cache size = %d, want 2", r.CacheSize())
	}
}

func TestFlushClearsCache(t *testing.T) {
	cred := &fakeCred{name: "bot", v: models.VisibilityPublic}
	r := NewResolver([]Credential{cred}, 0)
	ctx := context.Background()

	r.Resolve(ctx, "acme", "widgets", false)
	r.Flush()
	r.Resolve(ctx, "acme", "widgets", false)

	if cred.calls != 2 {
		t.Errorf("lookups = %d, want 2 after flush", cred.calls)
	}
}
