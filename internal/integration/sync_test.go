package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/integration"
	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/config"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name      string
	failures  int
	calls     int
	lastQty   int
	lastProd  string
	permanent bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) UpdateInventory(ctx context.Context, productRef string, quantity int) (integration.SyncResult, error) {
	f.calls++
	f.lastProd = productRef
	f.lastQty = quantity
	if f.permanent || f.calls <= f.failures {
		return integration.SyncResult{}, errors.ExternalService(f.name, assert.AnError)
	}
	return integration.SyncResult{Platform: f.name, ProductRef: productRef}, nil
}

func newSyncer(t *testing.T) (*integration.Syncer, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)
	records := invrepo.NewRecordRepository(db)

	cfg := config.IntegrationConfig{MaxAttempts: 3, RetryBackoff: time.Millisecond}
	return integration.NewSyncer(records, cfg, log), mock
}

func expectRecords(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"product_id", "location_id", "on_hand", "reserved", "allocated", "pick_sequence", "updated_at",
		}).
			AddRow("p1", "l1", 10, 2, 0, 1, now).
			AddRow("p1", "l2", 5, 0, 1, 2, now))
}

func TestSyncer_PushesAggregateAvailableQuantity(t *testing.T) {
	syncer, mock := newSyncer(t)
	adapter := &fakeAdapter{name: "shopfront"}
	syncer.Register(adapter)

	expectRecords(mock)

	results, err := syncer.SyncProduct(context.Background(), "p1", "shopfront")

	require.NoError(t, err)
	require.Len(t, results, 1)
	// (10-2) + (5-1) uncommitted across both locations
	assert.Equal(t, 12, adapter.lastQty)
	assert.Equal(t, "p1", adapter.lastProd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncer_RetriesTransientFailures(t *testing.T) {
	syncer, mock := newSyncer(t)
	adapter := &fakeAdapter{name: "shopfront", failures: 2}
	syncer.Register(adapter)

	expectRecords(mock)

	_, err := syncer.SyncProduct(context.Background(), "p1", "shopfront")

	require.NoError(t, err)
	assert.Equal(t, 3, adapter.calls)
}

func TestSyncer_GivesUpAfterMaxAttempts(t *testing.T) {
	syncer, mock := newSyncer(t)
	adapter := &fakeAdapter{name: "shopfront", permanent: true}
	syncer.Register(adapter)

	expectRecords(mock)

	_, err := syncer.SyncProduct(context.Background(), "p1", "shopfront")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalService))
	assert.Equal(t, 3, adapter.calls)
}

func TestSyncer_UnknownPlatformRejected(t *testing.T) {
	syncer, mock := newSyncer(t)

	expectRecords(mock)

	_, err := syncer.SyncProduct(context.Background(), "p1", "nope")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSyncer_CancelledContextStopsBetweenPlatforms(t *testing.T) {
	syncer, mock := newSyncer(t)
	adapter := &fakeAdapter{name: "shopfront"}
	syncer.Register(adapter)

	expectRecords(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := syncer.SyncProduct(ctx, "p1", "shopfront")

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, adapter.calls)
}
