package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aaafuria/furia-feed/internal/event"
)

const (
	insertEvent = `INSERT INTO events (aggregate_id, type, data, version) VALUES ($1, $2, $3, $4)`

	// lockPost holds a per-post advisory lock until the transaction ends so
	// the MAX(version) read below cannot race another writer.
	lockPost = `SELECT pg_advisory_xact_lock(hashtext($1))`

	insertNextEvent = `INSERT INTO events (aggregate_id, type, data, version)
		SELECT $1::text, $2::text, $3::jsonb, COALESCE(MAX(version), 0) + 1
		FROM events WHERE aggregate_id = $1::text`
)

// EventStore is the sqlx event log.
type EventStore struct {
	db *sqlx.DB
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		// jsonb takes text; lib/pq would send []byte as bytea.
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
	events := []event.Event{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events of %s: %w", aggregateID, err)
	}
	return events, nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	events := []event.Event{}
	err := s.db.SelectContext(ctx, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC, version ASC`, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("loading %s events: %w", eventType, err)
	}
	return events, nil
}
