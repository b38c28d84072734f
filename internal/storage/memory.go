package storage

import (
	"context"
	"sync"

	"github.com/org/gitgateway/pkg/models"
)

// MemoryStore is an in-memory AuditStore used when no database is
// configured. It keeps the most recent maxEvents entries; older events are
// dropped (the retention window).
type MemoryStore struct {
	mu        sync.RWMutex
	events    []*models.AuditEvent
	nextID    int64
	maxEvents int
}

// NewMemoryStore creates a MemoryStore retaining up to maxEvents entries.
func NewMemoryStore(maxEvents int) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &MemoryStore{maxEvents: maxEvents, nextID: 1}
}

func (m *MemoryStore) WriteEvent(_ context.Context, e *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = m.nextID
	m.nextID++
	m.events = append(m.events, e)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
	return nil
}

func (m *MemoryStore) QueryEvents(_ context.Context, filter AuditFilter) ([]*models.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var out []*models.AuditEvent
	skipped := 0
	// Newest first, matching the Postgres store's ordering.
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if filter.Repo != "" && e.Repo != filter.Repo {
			continue
		}
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		if filter.DeniedOnly && e.Allowed {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) Close() {}

var _ AuditStore = (*MemoryStore)(nil)
