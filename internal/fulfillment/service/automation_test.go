package service_test

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stockflow/stockflow-backend/internal/fulfillment/repository"
	"github.com/stockflow/stockflow-backend/internal/fulfillment/service"
	"github.com/stockflow/stockflow-backend/internal/idempotency"
	invrepo "github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*service.AutomationEngine, sqlmock.Sqlmock, *events.Bus) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)
	store := idempotency.NewStore(db, 24*time.Hour)
	bus := events.NewBus(log)
	runner := operation.NewRunner(store, db, bus, log)

	fulfillments := repository.NewFulfillmentRepository(db)
	carriers := repository.NewCarrierRepository(db)
	records := invrepo.NewRecordRepository(db)

	return service.NewAutomationEngine(runner, fulfillments, carriers, records, log), mock, bus
}

func recordRows(rows ...[]driverValue) *sqlmock.Rows {
	out := sqlmock.NewRows([]string{
		"product_id", "location_id", "on_hand", "reserved", "allocated", "pick_sequence", "updated_at",
	})
	for _, r := range rows {
		out.AddRow(r...)
	}
	return out
}

type driverValue = driver.Value

func TestAutomation_ShortProductFailsBeforeAnyWrite(t *testing.T) {
	engine, mock, _ := newEngine(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(recordRows([]driverValue{"p1", "l1", 10, 8, 0, 1, now}))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := engine.Process(context.Background(), "K1", service.ProcessRequest{
		OrderRef:    "SO-1",
		WarehouseID: "wh-1",
		Items: []service.ProcessItem{
			{ProductID: "p1", Quantity: 5, UnitWeight: decimal.NewFromInt(1)},
		},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomation_ProcessRunsAllStepsInOneOperation(t *testing.T) {
	engine, mock, bus := newEngine(t)

	var processed []events.Event
	bus.Subscribe(events.EventFulfillmentProcessed, func(ctx context.Context, ev events.Event) error {
		processed = append(processed, ev)
		return nil
	})

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	// availability aggregation across two locations
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(recordRows(
			[]driverValue{"p1", "l1", 3, 0, 0, 1, now},
			[]driverValue{"p1", "l2", 10, 0, 0, 2, now},
		))
	mock.ExpectExec("INSERT INTO order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fulfillment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// l1 cannot cover the full line, so l2 is stamped despite its higher
	// pick sequence
	mock.ExpectExec("UPDATE fulfillment_items").
		WithArgs(sqlmock.AnyArg(), "l2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, name, code").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "code", "base_rate", "rate_per_kg", "is_default", "is_active",
		}).AddRow("car-1", "Express", "EXP", "5.00", "2.50", true, true))
	mock.ExpectExec("UPDATE order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1)) // complete
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1)) // mark published

	res, err := engine.Process(context.Background(), "K2", service.ProcessRequest{
		OrderRef:    "SO-2",
		WarehouseID: "wh-1",
		Items: []service.ProcessItem{
			{ProductID: "p1", Quantity: 5, UnitWeight: decimal.NewFromInt(2)},
		},
	})

	require.NoError(t, err)
	assert.False(t, res.WasDuplicate)

	var result service.ProcessResult
	require.NoError(t, json.Unmarshal(res.Value, &result))
	assert.Equal(t, "in_progress", result.Status)
	assert.Equal(t, "car-1", result.CarrierID)
	// 5.00 base + 2.50/kg * 10kg
	assert.True(t, result.ShippingCost.Equal(decimal.RequireFromString("30")),
		"got %s", result.ShippingCost)
	// the whole line fits in l2, so it is not split
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, "l2", result.Assignments[0].LocationID)
	assert.Equal(t, 5, result.Assignments[0].Quantity)

	require.Len(t, processed, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomation_ProcessSplitsLineWhenNoSingleLocationSuffices(t *testing.T) {
	engine, mock, _ := newEngine(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(recordRows(
			[]driverValue{"p1", "l1", 3, 0, 0, 1, now},
			[]driverValue{"p1", "l2", 10, 0, 0, 2, now},
		))
	mock.ExpectExec("INSERT INTO order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fulfillment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fulfillment_items").
		WithArgs(sqlmock.AnyArg(), "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, name, code").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "code", "base_rate", "rate_per_kg", "is_default", "is_active",
		}).AddRow("car-1", "Express", "EXP", "5.00", "2.50", true, true))
	mock.ExpectExec("UPDATE order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := engine.Process(context.Background(), "K6", service.ProcessRequest{
		OrderRef:    "SO-6",
		WarehouseID: "wh-1",
		Items: []service.ProcessItem{
			{ProductID: "p1", Quantity: 12, UnitWeight: decimal.NewFromInt(1)},
		},
	})

	require.NoError(t, err)

	var result service.ProcessResult
	require.NoError(t, json.Unmarshal(res.Value, &result))
	// 13 available in total but no single location holds 12, so the line is
	// split, lowest pick sequence first
	require.Len(t, result.Assignments, 2)
	assert.Equal(t, "l1", result.Assignments[0].LocationID)
	assert.Equal(t, 3, result.Assignments[0].Quantity)
	assert.Equal(t, "l2", result.Assignments[1].LocationID)
	assert.Equal(t, 9, result.Assignments[1].Quantity)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomation_RulesDisableCarrierSelection(t *testing.T) {
	engine, mock, bus := newEngine(t)

	var processed []events.Event
	bus.Subscribe(events.EventFulfillmentProcessed, func(ctx context.Context, ev events.Event) error {
		processed = append(processed, ev)
		return nil
	})

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(recordRows([]driverValue{"p1", "l1", 10, 0, 0, 1, now}))
	mock.ExpectExec("INSERT INTO order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fulfillment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE fulfillment_items").
		WithArgs(sqlmock.AnyArg(), "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// no carrier query: carrier and cost stay unset
	mock.ExpectExec("UPDATE order_fulfillments").
		WithArgs(sqlmock.AnyArg(), "in_progress", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := engine.Process(context.Background(), "K7", service.ProcessRequest{
		OrderRef:    "SO-7",
		WarehouseID: "wh-1",
		Rules:       &repository.AutomationRules{AssignLocations: true, SelectCarrier: false},
		Items: []service.ProcessItem{
			{ProductID: "p1", Quantity: 5, UnitWeight: decimal.NewFromInt(2)},
		},
	})

	require.NoError(t, err)

	var result service.ProcessResult
	require.NoError(t, json.Unmarshal(res.Value, &result))
	assert.Equal(t, "in_progress", result.Status)
	assert.Empty(t, result.CarrierID)
	assert.True(t, result.ShippingCost.IsZero())
	require.Len(t, result.Assignments, 1)

	require.Len(t, processed, 1)
	var payload events.FulfillmentProcessedPayload
	require.NoError(t, json.Unmarshal(processed[0].Payload, &payload))
	assert.Empty(t, payload.CarrierID)
	assert.Empty(t, payload.ShippingCost)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomation_RulesDisableLocationAssignment(t *testing.T) {
	engine, mock, _ := newEngine(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT product_id, location_id").
		WillReturnRows(recordRows([]driverValue{"p1", "l1", 10, 0, 0, 1, now}))
	mock.ExpectExec("INSERT INTO order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO fulfillment_items").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// no pick location update: the step is disabled
	mock.ExpectQuery("SELECT id, name, code").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "code", "base_rate", "rate_per_kg", "is_default", "is_active",
		}).AddRow("car-1", "Express", "EXP", "5.00", "2.50", true, true))
	mock.ExpectExec("UPDATE order_fulfillments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := engine.Process(context.Background(), "K8", service.ProcessRequest{
		OrderRef:    "SO-8",
		WarehouseID: "wh-1",
		Rules:       &repository.AutomationRules{AssignLocations: false, SelectCarrier: true},
		Items: []service.ProcessItem{
			{ProductID: "p1", Quantity: 5, UnitWeight: decimal.NewFromInt(2)},
		},
	})

	require.NoError(t, err)

	var result service.ProcessResult
	require.NoError(t, json.Unmarshal(res.Value, &result))
	assert.Empty(t, result.Assignments)
	assert.Equal(t, "car-1", result.CarrierID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomation_CompleteRequiresEveryItemFulfilled(t *testing.T) {
	engine, mock, _ := newEngine(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, order_ref").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "order_ref", "warehouse_id", "status", "priority", "auto_assign_locations", "auto_select_carrier", "carrier_id", "shipping_cost", "created_at", "updated_at",
		}).AddRow("f1", "SO-3", "wh-1", "in_progress", 0, true, true, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, fulfillment_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "fulfillment_id", "product_id", "ordered", "fulfilled", "remaining", "unit_weight", "pick_location_id",
		}).AddRow("i1", "f1", "p1", 5, 3, 2, "1.0", nil))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := engine.Complete(context.Background(), "K3",
		service.TransitionRequest{FulfillmentID: "f1"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}
