package audit

import (
	"context"
	"time"

	"github.com/org/gitgateway/internal/storage"
	"github.com/org/gitgateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// Logger records every gateway decision, allowed or denied, as a
// structured event. Events flow through a buffered queue drained by a
// single writer goroutine, so audit writes are safe under concurrent
// request handlers and never block request flow.
//
// Secret values must NEVER be passed here, only metadata.
type Logger struct {
	store storage.AuditStore
	queue chan *models.AuditEvent
	done  chan struct{}
}

// NewLogger creates a Logger draining into the given store and starts its
// writer goroutine.
func NewLogger(store storage.AuditStore) *Logger {
	l := &Logger{
		store: store,
		queue: make(chan *models.AuditEvent, 1024),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

// Record enqueues one event. If the queue is full the event is logged but
// not persisted; auditing must not stall the request path.
func (l *Logger) Record(event *models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	l.emit(event)
	select {
	case l.queue <- event:
	default:
		log.Error().Str("correlation_id", event.CorrelationID).
			Msg("audit queue full, event not persisted")
	}
}

// emit writes the event to the structured log. Denials go to the
// warning feed; allowed operations are the expected common case.
func (l *Logger) emit(e *models.AuditEvent) {
	ev := log.Info()
	if !e.Allowed {
		ev = log.Warn()
	}
	ev.Str("correlation_id", e.CorrelationID).
		Str("operation", e.Operation).
		Str("repo", e.Repo).
		Str("mode", string(e.SessionMode)).
		Bool("allowed", e.Allowed).
		Str("matched_rule", e.MatchedRule).
		Bool("success", e.Success).
		Int64("duration_ms", e.DurationMs).
		Msg("audit")
}

func (l *Logger) drain() {
	for event := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.WriteEvent(ctx, event); err != nil {
			log.Error().Err(err).Str("correlation_id", event.CorrelationID).
				Msg("persisting audit event failed")
		}
		cancel()
	}
	close(l.done)
}

// Query retrieves audit events from the backing store.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEvent, error) {
	return l.store.QueryEvents(ctx, filter)
}

// Close flushes queued events and stops the writer goroutine.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}
