package idempotency_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/idempotency"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*idempotency.Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)

	return idempotency.NewStore(db, 24*time.Hour), mock
}

func TestStore_CompleteMarksInFlightRecord(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Complete(context.Background(), "K1", json.RawMessage(`{"ok":true}`), nil)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CompleteRefusesRecordNotInFlight(t *testing.T) {
	store, mock := newStore(t)

	// the status guard matches nothing: the record was reclaimed or purged
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Complete(context.Background(), "K1", json.RawMessage(`{"ok":true}`), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer in flight")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FailRefusesRecordNotInFlight(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Fail(context.Background(), "K1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer in flight")
	assert.NoError(t, mock.ExpectationsWereMet())
}
