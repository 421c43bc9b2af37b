package entstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aaafuria/furia-feed/internal/event"
)

const (
	insertEvent = `INSERT INTO events (aggregate_id, type, data, version) VALUES ($1, $2, $3, $4)`
	lockPost    = `SELECT pg_advisory_xact_lock(hashtext($1))`

	insertNextEvent = `INSERT INTO events (aggregate_id, type, data, version)
		SELECT $1::text, $2::text, $3::jsonb, COALESCE(MAX(version), 0) + 1
		FROM events WHERE aggregate_id = $1::text`
)

// EventStore implements event.Store using database/sql.
type EventStore struct {
	db *sql.DB
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Append assigns missing versions under a per-post advisory lock.
func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		data := string(e.Data)
		if e.Version > 0 {
			_, err = tx.ExecContext(ctx, insertEvent, e.AggregateID, string(e.Type), data, e.Version)
		} else if _, err = tx.ExecContext(ctx, lockPost, e.AggregateID); err == nil {
			_, err = tx.ExecContext(ctx, insertNextEvent, e.AggregateID, string(e.Type), data)
		}
		if err != nil {
			return fmt.Errorf("inserting %s event for %s: %w", e.Type, e.AggregateID, err)
		}
	}

	return tx.Commit()
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return scanEvents(rows)
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC, version ASC`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()

	events := []event.Event{}
	for rows.Next() {
		var e event.Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.Type, &data, &e.Version, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Data = append(e.Data[:0], data...)
		events = append(events, e)
	}
	return events, rows.Err()
}
