package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/idempotency"
	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	invservice "github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/internal/picking/repository"
	"github.com/stockflow/stockflow-backend/internal/picking/service"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopFulfillments struct{}

func (noopFulfillments) IncrementFulfilled(ctx context.Context, itemID string, quantity int) error {
	return nil
}

func newOrchestrator(t *testing.T) (*service.Orchestrator, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)
	store := idempotency.NewStore(db, 24*time.Hour)
	bus := events.NewBus(log)
	runner := operation.NewRunner(store, db, bus, log)

	records := invrepo.NewRecordRepository(db)
	rules := invrepo.NewRuleRepository(db)
	movements := invrepo.NewMovementRepository(db)
	ledger := invservice.NewLedger(records, rules, movements, log)
	picks := repository.NewPickRepository(db)

	return service.NewOrchestrator(runner, picks, records, ledger, noopFulfillments{}, log), mock
}

func pickColumns() []string {
	return []string{
		"id", "warehouse_id", "type", "strategy", "zone", "status",
		"workers", "optimization_score", "created_at", "updated_at",
	}
}

func pickRow(status, pickType string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(pickColumns()).
		AddRow("pick-1", "wh-1", pickType, repository.StrategyPriority, nil, status,
			[]byte("{}"), nil, now, now)
}

func TestOrchestrator_CompleteFromPendingRejected(t *testing.T) {
	orchestrator, mock := newOrchestrator(t)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id").
		WillReturnRows(pickRow("pending", repository.TypeBatch))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1)) // mark failed

	_, err := orchestrator.Complete(context.Background(), "K1",
		service.TransitionRequest{PickID: "pick-1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_StartTwiceIsNoOp(t *testing.T) {
	orchestrator, mock := newOrchestrator(t)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id").
		WillReturnRows(pickRow("in_progress", repository.TypeBatch))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1)) // complete
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1)) // mark published

	res, err := orchestrator.Start(context.Background(), "K2",
		service.TransitionRequest{PickID: "pick-1"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"pick_id":"pick-1","status":"in_progress"}`, string(res.Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_OptimizeRejectsNonClusterPick(t *testing.T) {
	orchestrator, mock := newOrchestrator(t)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id").
		WillReturnRows(pickRow("pending", repository.TypeBatch))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orchestrator.Optimize(context.Background(), "K3",
		service.OptimizeRequest{PickID: "pick-1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_OptimizeRejectedOnceInProgress(t *testing.T) {
	orchestrator, mock := newOrchestrator(t)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id").
		WillReturnRows(pickRow("in_progress", repository.TypeCluster))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orchestrator.Optimize(context.Background(), "K4",
		service.OptimizeRequest{PickID: "pick-1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_AssignShortInventoryLeavesPickPending(t *testing.T) {
	orchestrator, mock := newOrchestrator(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id").
		WillReturnRows(pickRow("pending", repository.TypeBatch))
	mock.ExpectQuery("SELECT id, pick_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pick_id", "product_id", "location_id", "fulfillment_item_id",
			"order_ref", "priority", "quantity", "sequence", "location_sequence", "picked",
		}).AddRow("item-1", "pick-1", "p1", "l1", nil, "ord-1", 0, 5, 1, 10, false))
	// reservation reads the inventory row and finds it short
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"product_id", "location_id", "on_hand", "reserved", "allocated", "pick_sequence", "updated_at",
		}).AddRow("p1", "l1", 3, 0, 0, 10, now))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := orchestrator.Assign(context.Background(), "K5",
		service.AssignRequest{PickID: "pick-1", Workers: []string{"w1"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))
	assert.NoError(t, mock.ExpectationsWereMet())
}
