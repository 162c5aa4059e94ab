package journal

import (
	"context"
	"fmt"
	"strings"

	"agent_workbench/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the journal in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies the journal migrations and returns a store on pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := db.RunPoolMigrations(ctx, pool, migrationsFS, "migrations/postgres"); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.pool == nil {
		return errNotConfigured
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO command_journal (
			id, occurred_at, session_id, agent_id, command, entity, entity_id,
			outcome, error_kind, remote_status, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.OccurredAt.UTC(), e.SessionID, e.AgentID, e.Command, e.Entity, e.EntityID,
		e.Outcome, e.ErrorKind, e.RemoteStatus, e.Detail)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, errNotConfigured
	}

	var (
		where []string
		args  []any
	)
	if q.AgentID != nil {
		args = append(args, *q.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if q.Outcome != "" {
		args = append(args, q.Outcome)
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}
	query := `
		SELECT id, occurred_at, session_id, agent_id, command, entity, entity_id,
			outcome, error_kind, remote_status, detail
		FROM command_journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.limit())
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.OccurredAt, &e.SessionID, &e.AgentID, &e.Command, &e.Entity, &e.EntityID,
			&e.Outcome, &e.ErrorKind, &e.RemoteStatus, &e.Detail)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errNotConfigured
	}
	return s.pool.Ping(ctx)
}

// Close is a no-op: the pool belongs to the caller.
func (s *PostgresStore) Close() {}
