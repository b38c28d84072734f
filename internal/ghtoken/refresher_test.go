package ghtoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/gitgateway/pkg/models"
)

// fakeExchanger is a scripted Exchanger.
type fakeExchanger struct {
	token     string
	expiresAt time.Time
	err       error
	calls     int
}

func (f *fakeExchanger) Exchange(_ context.Context) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.token, f.expiresAt, nil
}

func TestStaticIdentity(t *testing.T) {
	r := NewRefresher(0, 0)
	r.AddStaticIdentity("user", "ghp_static")

	tok, err := r.GetToken(context.Background(), "user")
	if err != nil || tok != "ghp_static" {
		t.Fatalf("got (%q, %v), want static token", tok, err)
	}
}

func TestUnknownIdentity(t *testing.T) {
	r := NewRefresher(0, 0)
	if _, err := r.GetToken(context.Background(), "nobody"); !errors.Is(err, models.ErrTokenUnavailable) {
		t.Fatalf("got %v, want ErrTokenUnavailable", err)
	}
}

func TestFreshTokenServedFromCache(t *testing.T) {
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(time.Hour)}
	r := NewRefresher(0, 0)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := r.GetToken(ctx, "bot")
		if err != nil || tok != "ghs_1" {
			t.Fatalf("call %d: got (%q, %v)", i, tok, err)
		}
	}
	if ex.calls != 1 {
		t.Errorf("exchanges = %d, want 1", ex.calls)
	}
}

func TestRefreshInsideMargin(t *testing.T) {
	// A token expiring inside the refresh margin triggers an exchange even
	// though it has not expired yet.
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(5 * time.Minute)}
	r := NewRefresher(15*time.Minute, 0)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	r.GetToken(ctx, "bot")
	ex.token = "ghs_2"
	ex.expiresAt = time.Now().Add(time.Hour)
	tok, err := r.GetToken(ctx, "bot")
	if err != nil || tok != "ghs_2" {
		t.Fatalf("got (%q, %v), want refreshed token", tok, err)
	}
	if ex.calls != 2 {
		t.Errorf("exchanges = %d, want 2", ex.calls)
	}
}

func TestDegradedServesCachedUntilExhausted(t *testing.T) {
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(5 * time.Minute)}
	r := NewRefresher(15*time.Minute, 3)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	if _, err := r.GetToken(ctx, "bot"); err != nil {
		t.Fatalf("seed exchange failed: %v", err)
	}

	// Refreshes now fail; the unexpired cached token is served twice.
	ex.err = errors.New("upstream 500")
	for i := 0; i < 2; i++ {
		tok, err := r.GetToken(ctx, "bot")
		if err != nil || tok != "ghs_1" {
			t.Fatalf("degraded call %d: got (%q, %v), want cached token", i, tok, err)
		}
	}

	// Third consecutive failure crosses the threshold: the cached token is
	// discarded even though it is technically unexpired.
	if _, err := r.GetToken(ctx, "bot"); !errors.Is(err, models.ErrTokenUnavailable) {
		t.Fatalf("got %v, want ErrTokenUnavailable after threshold", err)
	}

	// And it stays unavailable until an exchange succeeds.
	if _, err := r.GetToken(ctx, "bot"); !errors.Is(err, models.ErrTokenUnavailable) {
		t.Fatalf("got %v, want ErrTokenUnavailable while exhausted", err)
	}
	ex.err = nil
	ex.token = "ghs_2"
	ex.expiresAt = time.Now().Add(time.Hour)
	tok, err := r.GetToken(ctx, "bot")
	if err != nil || tok != "ghs_2" {
		t.Fatalf("after recovery: got (%q, %v)", tok, err)
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(5 * time.Minute)}
	r := NewRefresher(15*time.Minute, 3)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	r.GetToken(ctx, "bot")

	// Two failures, then a success, then two more failures: the counter
	// reset keeps the identity out of the exhausted state.
	ex.err = errors.New("flaky")
	r.GetToken(ctx, "bot")
	r.GetToken(ctx, "bot")
	ex.err = nil
	ex.expiresAt = time.Now().Add(5 * time.Minute)
	r.GetToken(ctx, "bot")
	ex.err = errors.New("flaky")
	for i := 0; i < 2; i++ {
		tok, err := r.GetToken(ctx, "bot")
		if err != nil || tok == "" {
			t.Fatalf("post-reset failure %d: got (%q, %v), want cached token", i, tok, err)
		}
	}
}

func TestExpiredCachedTokenNotServed(t *testing.T) {
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(10 * time.Millisecond)}
	r := NewRefresher(time.Minute, 3)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	r.GetToken(ctx, "bot")
	time.Sleep(20 * time.Millisecond)

	ex.err = errors.New("upstream down")
	if _, err := r.GetToken(ctx, "bot"); !errors.Is(err, models.ErrTokenUnavailable) {
		t.Fatalf("got %v, want ErrTokenUnavailable for expired cache", err)
	}
}

func TestInvalidateForcesExchange(t *testing.T) {
	ex := &fakeExchanger{token: "ghs_1", expiresAt: time.Now().Add(time.Hour)}
	r := NewRefresher(0, 0)
	r.AddExchangerIdentity("bot", ex)
	ctx := context.Background()

	r.GetToken(ctx, "bot")
	r.Invalidate()
	r.GetToken(ctx, "bot")

	if ex.calls != 2 {
		t.Errorf("exchanges = %d, want 2 after invalidate", ex.calls)
	}
}

func TestStatusNeverContainsTokenValues(t *testing.T) {
	r := NewRefresher(0, 0)
	r.AddStaticIdentity("user", "ghp_secret")
	ex := &fakeExchanger{token: "ghs_secret", expiresAt: time.Now().Add(time.Hour)}
	r.AddExchangerIdentity("bot", ex)
	r.GetToken(context.Background(), "bot")

	for _, st := range r.Status() {
		if !st.Valid {
			t.Errorf("identity %s reported invalid", st.Identity)
		}
	}
}
