package models

import (
	"testing"
	"time"
)

func TestModeCredentialIdentity(t *testing.T) {
	cases := []struct {
		mode SessionMode
		want string
	}{
		{ModeBot, IdentityBot},
		{ModeUser, IdentityUser},
		{ModePrivate, IdentityUser},
		{ModePublic, IdentityBot},
	}
	for _, tc := range cases {
		if got := tc.mode.CredentialIdentity(); got != tc.want {
			t.Errorf("mode %s: identity = %s, want %s", tc.mode, got, tc.want)
		}
	}
}

func TestModeRequiredVisibility(t *testing.T) {
	if _, restricted := ModeBot.RequiredVisibility(); restricted {
		t.Error("bot mode should be unrestricted")
	}
	if _, restricted := ModeUser.RequiredVisibility(); restricted {
		t.Error("user mode should be unrestricted")
	}
	if v, restricted := ModePrivate.RequiredVisibility(); !restricted || v != VisibilityPrivate {
		t.Errorf("private mode: (%s, %v)", v, restricted)
	}
	if v, restricted := ModePublic.RequiredVisibility(); !restricted || v != VisibilityPublic {
		t.Errorf("public mode: (%s, %v)", v, restricted)
	}
}

func TestParseVisibilityClosedSet(t *testing.T) {
	for _, s := range []string{"public", "private", "internal"} {
		if _, ok := ParseVisibility(s); !ok {
			t.Errorf("%q rejected", s)
		}
	}
	for _, s := range []string{"", "PUBLIC", "unknown", "secret"} {
		if _, ok := ParseVisibility(s); ok {
			t.Errorf("%q accepted", s)
		}
	}
}

func TestSessionExpiry(t *testing.T) {
	s := &Session{ExpiresAt: time.Now().Add(-time.Second)}
	if !s.IsExpired() {
		t.Error("past expiry not detected")
	}
	forever := &Session{} // zero expiry means no expiry (launcher sessions)
	if forever.IsExpired() {
		t.Error("zero expiry treated as expired")
	}
}
