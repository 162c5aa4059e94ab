package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"agent_workbench/platform/db"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

// sqliteTimeLayout is fixed width so text order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps the journal in a local SQLite file, for single-node
// deployments without Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens path, applies the journal migrations and returns a store.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, conn, goose.DialectSQLite3, migrationsFS, "migrations/sqlite"); err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO command_journal (
			id, occurred_at, session_id, agent_id, command, entity, entity_id,
			outcome, error_kind, remote_status, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), e.OccurredAt.UTC().Format(sqliteTimeLayout), e.SessionID, e.AgentID, e.Command, e.Entity,
		e.EntityID, e.Outcome, e.ErrorKind, e.RemoteStatus, e.Detail)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errNotConfigured
	}

	var (
		where []string
		args  []any
	)
	if q.AgentID != nil {
		where = append(where, "agent_id = ?")
		args = append(args, *q.AgentID)
	}
	if q.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, q.Outcome)
	}
	query := `
		SELECT id, occurred_at, session_id, agent_id, command, entity, entity_id,
			outcome, error_kind, remote_status, detail
		FROM command_journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			id, occurredAt    string
			errorKind, detail sql.NullString
			remoteStatus      sql.NullInt64
		)
		if err := rows.Scan(&id, &occurredAt, &e.SessionID, &e.AgentID, &e.Command, &e.Entity, &e.EntityID,
			&e.Outcome, &errorKind, &remoteStatus, &detail); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal id %q: %w", id, err)
		}
		if e.OccurredAt, err = time.Parse(sqliteTimeLayout, occurredAt); err != nil {
			return nil, fmt.Errorf("journal time %q: %w", occurredAt, err)
		}
		if errorKind.Valid {
			e.ErrorKind = &errorKind.String
		}
		if remoteStatus.Valid {
			status := int(remoteStatus.Int64)
			e.RemoteStatus = &status
		}
		if detail.Valid {
			e.Detail = &detail.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}
