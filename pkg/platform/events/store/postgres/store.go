// Package postgres persists the event log with outbox semantics: events are
// inserted in the same transaction as the mutation that caused them, and the
// outbox relay publishes unacked rows to Kafka in sequence order afterwards.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"attestry/pkg/platform/events"
	txcontext "attestry/pkg/platform/tx"
)

// outboxLockID keys the advisory lock that serializes outbox inserts. Held
// until the surrounding transaction commits, it forces seq assignment order
// to match commit order; without it a later-committing transaction could hold
// a smaller seq, and the relay would either skip it or deliver it out of
// order.
const outboxLockID = int64(0x5ea0a77e57)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if dbTx, ok := txcontext.From(ctx); ok {
		return dbTx
	}
	return s.db
}

// EnsureSchema creates the log table. Idempotent; called at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_events (
			seq          BIGSERIAL PRIMARY KEY,
			id           UUID NOT NULL UNIQUE,
			event_type   TEXT NOT NULL,
			payload      JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			published_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure registry_events schema: %w", err)
	}
	return nil
}

// Append inserts the event and returns it with the assigned sequence number.
// When a transaction is present in context the insert joins it, so the event
// commits atomically with the mutation it describes.
func (s *Store) Append(ctx context.Context, event events.Event) (events.Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return events.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}

	exec := s.execer(ctx)
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxLockID); err != nil {
		return events.Event{}, fmt.Errorf("lock outbox: %w", err)
	}
	row := exec.QueryRowContext(ctx, `
		INSERT INTO registry_events (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING seq
	`, event.ID, string(event.Type), payload, event.Timestamp)
	if err := row.Scan(&event.Seq); err != nil {
		return events.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// ListAfter returns events with seq > after in sequence order.
func (s *Store) ListAfter(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, payload FROM registry_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListUnpublished returns committed events the relay has not acked yet, in
// sequence order.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, payload FROM registry_events
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MarkPublished acks exactly one produced event. The predicate matches a
// single seq on purpose: a range ack could flag a concurrently committed row
// the relay never produced.
func (s *Store) MarkPublished(ctx context.Context, seq uint64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE registry_events SET published_at = $1
		WHERE seq = $2 AND published_at IS NULL
	`, time.Now(), seq)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var out []events.Event
	for rows.Next() {
		var (
			seq     uint64
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event events.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		event.Seq = seq
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
