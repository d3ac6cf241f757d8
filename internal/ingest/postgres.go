package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// EventQuerier is the slice of pgxpool.Pool the event store needs, kept
// small so tests can substitute a mock pool.
type EventQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// EventStore persists interaction events in Postgres so the in-memory model
// can be rebuilt from history after a restart.
type EventStore struct {
	db     EventQuerier
	logger *logrus.Logger
}

func NewEventStore(db EventQuerier, logger *logrus.Logger) *EventStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EventStore{db: db, logger: logger}
}

// EnsureSchema creates the interaction_events table when it does not exist.
func (s *EventStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS interaction_events (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			action TEXT NOT NULL DEFAULT '',
			event_time DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create interaction_events table: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_interaction_events_session
		ON interaction_events (session_id, event_time)`)
	if err != nil {
		return fmt.Errorf("failed to create interaction_events index: %w", err)
	}
	return nil
}

// SaveEvent appends one interaction to the durable log.
func (s *EventStore) SaveEvent(ctx context.Context, event Event) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO interaction_events (session_id, item_id, action, event_time)
		 VALUES ($1, $2, $3, $4)`,
		event.SessionID, event.ItemID, event.Action, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save interaction event: %w", err)
	}
	return nil
}

// SaveEvents appends a batch of interactions one statement per event. A
// failure aborts the batch and reports how many were written.
func (s *EventStore) SaveEvents(ctx context.Context, events []Event) (int, error) {
	for i, event := range events {
		if err := s.SaveEvent(ctx, event); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// LoadEvents streams the event log in time order, oldest first. A zero since
// loads everything.
func (s *EventStore) LoadEvents(ctx context.Context, since float64) ([]Event, error) {
	started := time.Now()
	rows, err := s.db.Query(ctx,
		`SELECT session_id, item_id, action, event_time
		 FROM interaction_events
		 WHERE event_time >= $1
		 ORDER BY event_time, id`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.SessionID, &event.ItemID, &event.Action, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan interaction event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"events":   len(events),
		"duration": time.Since(started),
	}).Debug("Loaded interaction events from storage")
	return events, nil
}

// CountEvents reports the size of the durable log.
func (s *EventStore) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM interaction_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count interaction events: %w", err)
	}
	return count, nil
}

// PruneEvents deletes log entries older than the cutoff and reports how many
// rows went away.
func (s *EventStore) PruneEvents(ctx context.Context, before float64) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM interaction_events WHERE event_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune interaction events: %w", err)
	}
	return tag.RowsAffected(), nil
}
