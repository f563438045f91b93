package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowctl/agentrt/agent"
)

// PostgresStore is a Store (and SessionStore) backed by PostgreSQL, for
// deployments that want run/session observability to survive a process
// restart even though agent state itself (SessionState, C8) is explicitly
// out of scope for durable persistence (spec.md §1).
//
// Expected schema (created out of band via migrations, not by this type):
//
//	CREATE TABLE runs (
//	  run_id TEXT PRIMARY KEY,
//	  agent_id TEXT NOT NULL,
//	  session_id TEXT NOT NULL DEFAULT '',
//	  turn_id TEXT NOT NULL DEFAULT '',
//	  status TEXT NOT NULL,
//	  started_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL,
//	  labels JSONB NOT NULL DEFAULT '{}',
//	  metadata JSONB NOT NULL DEFAULT '{}'
//	);
//	CREATE TABLE sessions (
//	  session_id TEXT PRIMARY KEY,
//	  status TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  ended_at TIMESTAMPTZ
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pgx connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, record Record) error {
	labels, err := json.Marshal(record.Labels)
	if err != nil {
		return fmt.Errorf("run: marshal labels: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("run: marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (run_id, agent_id, session_id, turn_id, status, started_at, updated_at, labels, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			labels = EXCLUDED.labels,
			metadata = EXCLUDED.metadata
	`, record.RunID, string(record.AgentID), record.SessionID, record.TurnID, string(record.Status),
		record.StartedAt, record.UpdatedAt, labels, metadata)
	if err != nil {
		return fmt.Errorf("run: upsert run %s: %w", record.RunID, err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, runID string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, agent_id, session_id, turn_id, status, started_at, updated_at, labels, metadata
		FROM runs WHERE run_id = $1
	`, runID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// CreateSession implements SessionStore.
func (s *PostgresStore) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (Session, error) {
	existing, err := s.LoadSession(ctx, sessionID)
	if err == nil {
		if existing.Status == SessionStatusEnded {
			return Session{}, ErrSessionEnded
		}
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, status, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, string(SessionStatusActive), createdAt)
	if err != nil {
		return Session{}, fmt.Errorf("run: create session %s: %w", sessionID, err)
	}
	return Session{ID: sessionID, Status: SessionStatusActive, CreatedAt: createdAt}, nil
}

// LoadSession implements SessionStore.
func (s *PostgresStore) LoadSession(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	var status string
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, status, created_at, ended_at FROM sessions WHERE session_id = $1
	`, sessionID)
	if err := row.Scan(&sess.ID, &status, &sess.CreatedAt, &sess.EndedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("run: load session %s: %w", sessionID, err)
	}
	sess.Status = SessionStatus(status)
	return sess, nil
}

// EndSession implements SessionStore.
func (s *PostgresStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (Session, error) {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status == SessionStatusEnded {
		return sess, nil
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, ended_at = $3 WHERE session_id = $1
	`, sessionID, string(SessionStatusEnded), endedAt)
	if err != nil {
		return Session{}, fmt.Errorf("run: end session %s: %w", sessionID, err)
	}
	sess.Status = SessionStatusEnded
	sess.EndedAt = &endedAt
	return sess, nil
}

// ListRunsBySession implements SessionStore.
func (s *PostgresStore) ListRunsBySession(ctx context.Context, sessionID string, statuses []Status) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, agent_id, session_id, turn_id, status, started_at, updated_at, labels, metadata
		FROM runs WHERE session_id = $1 ORDER BY started_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("run: list runs for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	allowed := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if len(allowed) > 0 && !allowed[rec.Status] {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var agentID, status string
	var labels, metadata []byte
	if err := row.Scan(&rec.RunID, &agentID, &rec.SessionID, &rec.TurnID, &status,
		&rec.StartedAt, &rec.UpdatedAt, &labels, &metadata); err != nil {
		return Record{}, err
	}
	rec.AgentID = agent.Ident(agentID)
	rec.Status = Status(status)
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &rec.Labels); err != nil {
			return Record{}, fmt.Errorf("run: unmarshal labels: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("run: unmarshal metadata: %w", err)
		}
	}
	return rec, nil
}
