package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/gitgateway/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// AuditStore persists gateway audit events. Events are append-only and
// write-once; there is no update path.
type AuditStore interface {
	WriteEvent(ctx context.Context, event *models.AuditEvent) error
	QueryEvents(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, error)
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	Repo       string
	Operation  string
	DeniedOnly bool
	Since      *time.Time
	Limit      int
	Offset     int
}
