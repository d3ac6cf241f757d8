package ingest

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockEventStore(t *testing.T) (*EventStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockDB.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewEventStore(mockDB, logger), mockDB
}

func TestEventStoreSaveEvent(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	mockDB.ExpectExec("INSERT INTO interaction_events").
		WithArgs("s1", "i1", "view", 100.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.SaveEvent(context.Background(), Event{
		SessionID: "s1",
		ItemID:    "i1",
		Action:    "view",
		Timestamp: 100.5,
	})
	require.NoError(t, err)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStoreSaveEventsStopsOnFailure(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	mockDB.ExpectExec("INSERT INTO interaction_events").
		WithArgs("s1", "i1", "view", 1.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockDB.ExpectExec("INSERT INTO interaction_events").
		WithArgs("s1", "i2", "view", 2.0).
		WillReturnError(assert.AnError)

	written, err := store.SaveEvents(context.Background(), []Event{
		{SessionID: "s1", ItemID: "i1", Action: "view", Timestamp: 1},
		{SessionID: "s1", ItemID: "i2", Action: "view", Timestamp: 2},
		{SessionID: "s1", ItemID: "i3", Action: "view", Timestamp: 3},
	})
	require.Error(t, err)
	assert.Equal(t, 1, written)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStoreLoadEvents(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	rows := pgxmock.NewRows([]string{"session_id", "item_id", "action", "event_time"}).
		AddRow("s1", "i1", "view", 10.0).
		AddRow("s1", "i2", "add_to_cart", 20.0)

	mockDB.ExpectQuery("SELECT session_id, item_id, action, event_time").
		WithArgs(5.0).
		WillReturnRows(rows)

	events, err := store.LoadEvents(context.Background(), 5.0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, Event{SessionID: "s1", ItemID: "i1", Action: "view", Timestamp: 10}, events[0])
	assert.Equal(t, Event{SessionID: "s1", ItemID: "i2", Action: "add_to_cart", Timestamp: 20}, events[1])
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStoreCountEvents(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	mockDB.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := store.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStorePruneEvents(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	mockDB.ExpectExec("DELETE FROM interaction_events").
		WithArgs(100.0).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := store.PruneEvents(context.Background(), 100.0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestEventStoreEnsureSchema(t *testing.T) {
	store, mockDB := newMockEventStore(t)

	mockDB.ExpectExec("CREATE TABLE IF NOT EXISTS interaction_events").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mockDB.ExpectExec("CREATE INDEX IF NOT EXISTS idx_interaction_events_session").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mockDB.ExpectationsWereMet())
}
