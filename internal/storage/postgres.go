package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/gitgateway/pkg/models"
)

// PostgresStore is an AuditStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pgxpool connection and returns a ready store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) WriteEvent(ctx context.Context, e *models.AuditEvent) error {
	var details []byte
	if e.Details != nil {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO audit_events
		   (correlation_id, ts, session_id, session_mode, operation, repo,
		    allowed, matched_rule, success, duration_ms, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.CorrelationID, e.Timestamp, e.SessionID, string(e.SessionMode),
		e.Operation, e.Repo, e.Allowed, e.MatchedRule, e.Success, e.DurationMs, details,
	)
	return err
}

func (p *PostgresStore) QueryEvents(ctx context.Context, filter AuditFilter) ([]*models.AuditEvent, error) {
	query := strings.Builder{}
	query.WriteString(
		`SELECT id, correlation_id, ts, session_id, session_mode, operation,
		        repo, allowed, matched_rule, success, duration_ms, details
		 FROM audit_events WHERE 1=1`)
	args := []any{}

	if filter.Repo != "" {
		args = append(args, filter.Repo)
		fmt.Fprintf(&query, " AND repo = $%d", len(args))
	}
	if filter.Operation != "" {
		args = append(args, filter.Operation)
		fmt.Fprintf(&query, " AND operation = $%d", len(args))
	}
	if filter.DeniedOnly {
		query.WriteString(" AND allowed = false")
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		fmt.Fprintf(&query, " AND ts >= $%d", len(args))
	}

	query.WriteString(" ORDER BY ts DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	fmt.Fprintf(&query, " LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&query, " OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		e := &models.AuditEvent{}
		var mode string
		var details []byte
		if err := rows.Scan(&e.ID, &e.CorrelationID, &e.Timestamp, &e.SessionID,
			&mode, &e.Operation, &e.Repo, &e.Allowed, &e.MatchedRule,
			&e.Success, &e.DurationMs, &details); err != nil {
			return nil, err
		}
		e.SessionMode = models.SessionMode(mode)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ AuditStore = (*PostgresStore)(nil)
