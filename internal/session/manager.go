package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/org/gitgateway/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const tokenPrefix = "gws_"

// DefaultTTL bounds how long an agent session token stays valid. Sandboxes
// are ephemeral; a torn-down sandbox never needs its token back.
const DefaultTTL = 4 * time.Hour

// Manager owns the in-memory session table. A process restart invalidates
// all sessions; sandboxes re-authenticate through the launcher.
type Manager struct {
	mu                 sync.RWMutex
	sessions           map[string]*models.Session // keyed by token hash
	launcherSecretHash []byte                     // bcrypt hash of the launcher shared secret
	ttl                time.Duration
}

// NewManager creates a Manager. launcherSecretHash is the bcrypt hash of
// the static launcher secret; the plaintext secret never reaches this
// process's configuration.
func NewManager(launcherSecretHash string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions:           map[string]*models.Session{},
		launcherSecretHash: []byte(launcherSecretHash),
		ttl:                ttl,
	}
}

// Create mints a new agent session bound to the given mode. Returns the
// session and the plaintext token (shown once to the launcher). The mode is
// immutable for the session's lifetime.
func (m *Manager) Create(mode models.SessionMode) (*models.Session, string, error) {
	if !mode.Valid() {
		return nil, "", fmt.Errorf("invalid session mode %q", mode)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generating session token: %w", err)
	}
	plaintext := tokenPrefix + base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	s := &models.Session{
		ID:        newUUID(),
		Kind:      models.KindAgent,
		Mode:      mode,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[HashToken(plaintext)] = s
	m.mu.Unlock()
	return s, plaintext, nil
}

// Validate resolves a presented credential to a session. Agent tokens are
// looked up by hash; anything else is compared against the launcher secret.
// All failures collapse to ErrInvalidSession; no detail that would aid
// credential guessing.
func (m *Manager) Validate(credential string) (*models.Session, error) {
	if credential == "" {
		return nil, models.ErrInvalidSession
	}

	hash := HashToken(credential)
	m.mu.RLock()
	s, ok := m.sessions[hash]
	m.mu.RUnlock()
	if ok {
		if s.IsExpired() {
			m.mu.Lock()
			delete(m.sessions, hash)
			m.mu.Unlock()
			return nil, models.ErrInvalidSession
		}
		return s, nil
	}

	// Launcher shared secret. bcrypt is slow; launcher traffic is rare
	// lifecycle/admin calls, agent tokens above take the fast path.
	if len(m.launcherSecretHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(m.launcherSecretHash, []byte(credential)); err == nil {
			now := time.Now().UTC()
			return &models.Session{
				ID:        "launcher",
				Kind:      models.KindLauncher,
				Mode:      models.ModeBot,
				CreatedAt: now,
			}, nil
		}
	}
	return nil, models.ErrInvalidSession
}

// Revoke destroys the session identified by the plaintext token. Revoking
// an unknown token is not an error.
func (m *Manager) Revoke(credential string) {
	m.mu.Lock()
	delete(m.sessions, HashToken(credential))
	m.mu.Unlock()
}

// PurgeExpired drops expired sessions and returns how many were removed.
func (m *Manager) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for hash, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, hash)
			n++
		}
	}
	return n
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HashToken returns the SHA-256 hex hash of a plaintext token. Used as the
// storage key and for audit correlation; the plaintext is never retained.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

func newUUID() string {
	b := make([]byte, 16)
	rand.Read(b) //nolint:errcheck
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
