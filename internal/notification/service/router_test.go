package service_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stockflow/stockflow-backend/internal/notification/repository"
	"github.com/stockflow/stockflow-backend/internal/notification/service"
	"github.com/stockflow/stockflow-backend/pkg/database"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	byRole map[string][]string
}

func (f fakeDirectory) ListByRole(ctx context.Context, role string) ([]string, error) {
	return f.byRole[role], nil
}

func newRouter(t *testing.T, directory service.RoleLister) (*service.Router, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	log := logger.New("test", "test")
	db := database.FromSqlx(sqlx.NewDb(mockDB, "sqlmock"), log)
	notifications := repository.NewNotificationRepository(db)
	resolver := service.NewResolver(directory)

	return service.NewRouter(notifications, resolver, service.NewMemoryDeduper(), log), mock
}

func TestRouter_TaskAssignedGoesToWorkers(t *testing.T) {
	router, mock := newRouter(t, fakeDirectory{})

	ev, err := events.New(events.EventTaskAssigned, events.TaskAssignedPayload{
		TaskType: "pick",
		TaskID:   "pick-1",
		Workers:  []string{"w1", "w2"},
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "w1", ev.ID, ev.Name, sqlmock.AnyArg(), repository.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "w2", ev.ID, ev.Name, sqlmock.AnyArg(), repository.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, router.Handle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_ApprovalDecidedGoesToRequestor(t *testing.T) {
	router, mock := newRouter(t, fakeDirectory{})

	ev, err := events.New(events.EventApprovalDecided, events.ApprovalDecidedPayload{
		ApprovalID:  "mv-1",
		RequestorID: "clerk-7",
		Decision:    "approved",
		DecidedBy:   "supervisor-1",
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "clerk-7", ev.ID, ev.Name, sqlmock.AnyArg(), repository.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, router.Handle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_ThresholdAlertGoesToInventoryManagers(t *testing.T) {
	router, mock := newRouter(t, fakeDirectory{byRole: map[string][]string{
		repository.RoleInventoryManager: {"mgr-1"},
	}})

	ev, err := events.New(events.EventThresholdAlert, events.ThresholdAlertPayload{
		RuleID: "r1", ProductID: "p1", Severity: "critical",
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "mgr-1", ev.ID, ev.Name, sqlmock.AnyArg(), repository.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, router.Handle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_DuplicateEventDeliveredOnce(t *testing.T) {
	router, mock := newRouter(t, fakeDirectory{})

	ev, err := events.New(events.EventApprovalDecided, events.ApprovalDecidedPayload{
		RequestorID: "clerk-7", Decision: "rejected",
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// second Handle of the same event: deduper filters, no INSERT expected

	require.NoError(t, router.Handle(context.Background(), ev))
	require.NoError(t, router.Handle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouter_FailingRecipientDoesNotBlockOthers(t *testing.T) {
	router, mock := newRouter(t, fakeDirectory{})

	ev, err := events.New(events.EventTaskAssigned, events.TaskAssignedPayload{
		Workers: []string{"w1", "w2"},
	})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(assert.AnError)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(sqlmock.AnyArg(), "w2", ev.ID, ev.Name, sqlmock.AnyArg(), repository.StatusDelivered).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, router.Handle(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
