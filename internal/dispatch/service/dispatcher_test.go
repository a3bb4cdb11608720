package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/dispatch/repository"
	"github.com/stockflow/stockflow-backend/internal/dispatch/service"
	"github.com/stockflow/stockflow-backend/internal/idempotency"
	"github.com/stockflow/stockflow-backend/internal/operation"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*service.Dispatcher, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)
	store := idempotency.NewStore(db, 24*time.Hour)
	bus := events.NewBus(log)
	runner := operation.NewRunner(store, db, bus, log)

	plans := repository.NewLoadPlanRepository(db)
	shipments := repository.NewShipmentRepository(db)

	return service.NewDispatcher(runner, plans, shipments, log), mock
}

func planColumns() []string {
	return []string{
		"id", "warehouse_id", "vehicle_id", "driver_id", "status", "strategy",
		"origin_lat", "origin_lon", "route_fingerprint", "total_distance_km",
		"departed_at", "fuel_level", "odometer_km", "created_at", "updated_at",
	}
}

func shipmentColumns() []string {
	return []string{
		"id", "fulfillment_id", "order_ref", "warehouse_id", "status", "carrier_id",
		"address", "dest_lat", "dest_lon", "weight", "load_plan_id", "stop_sequence",
		"shipped_at", "created_at", "updated_at",
	}
}

func TestDispatcher_OptimizeUnchangedSetIsNoOp(t *testing.T) {
	dispatcher, mock := newDispatcher(t)

	fingerprint := service.RouteFingerprint([]string{"s1"})
	distance := 42.5
	now := time.Now()

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id, vehicle_id").
		WillReturnRows(sqlmock.NewRows(planColumns()).
			AddRow("plan-1", "wh-1", "veh-1", nil, "optimized", "distance",
				0.0, 0.0, fingerprint, distance, nil, nil, nil, now, now))
	mock.ExpectQuery("SELECT id, fulfillment_id").
		WillReturnRows(sqlmock.NewRows(shipmentColumns()).
			AddRow("s1", nil, "SO-1", "wh-1", "pending", nil,
				"addr", 1.0, 1.0, nil, "plan-1", 1, nil, now, now))
	// no UPDATE statements: the stored route is kept
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := dispatcher.Optimize(context.Background(), "K1",
		service.OptimizeRequest{LoadPlanID: "plan-1"})

	require.NoError(t, err)
	assert.JSONEq(t,
		`{"load_plan_id":"plan-1","status":"optimized","total_distance_km":42.5,"reoptimized":false}`,
		string(res.Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_DispatchFromPendingRejected(t *testing.T) {
	dispatcher, mock := newDispatcher(t)

	now := time.Now()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, warehouse_id, vehicle_id").
		WillReturnRows(sqlmock.NewRows(planColumns()).
			AddRow("plan-1", "wh-1", "veh-1", nil, "pending", "distance",
				0.0, 0.0, nil, nil, nil, nil, nil, now, now))
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := dispatcher.Dispatch(context.Background(), "K2",
		service.DispatchRequest{LoadPlanID: "plan-1", FuelLevel: 90, OdometerKm: 1000})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatcher_AttachedShipmentCannotJoinSecondPlan(t *testing.T) {
	dispatcher, mock := newDispatcher(t)

	mock.ExpectExec("INSERT INTO idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO load_plans").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE shipments").
		WillReturnResult(sqlmock.NewResult(0, 0)) // already attached elsewhere
	mock.ExpectRollback()
	mock.ExpectExec("UPDATE idempotency_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := dispatcher.CreatePlan(context.Background(), "K3", service.CreatePlanRequest{
		WarehouseID: "wh-1",
		VehicleID:   "veh-1",
		ShipmentIDs: []string{"s1"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}
