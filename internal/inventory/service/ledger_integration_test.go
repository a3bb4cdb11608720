package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/internal/inventory/service"
	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/events"
	"github.com/stockflow/stockflow-backend/pkg/logger"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	suiteOnce sync.Once
	suite     *testutil.IntegrationSuite
	suiteErr  error
)

// ledgerSuite lazily starts the shared postgres container. Integration tests
// are skipped under -short.
func ledgerSuite(t *testing.T) *testutil.IntegrationSuite {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suiteOnce.Do(func() {
		suite, suiteErr = testutil.NewIntegrationSuite(context.Background())
	})
	require.NoError(t, suiteErr)
	require.NoError(t, suite.Reset(context.Background()))
	return suite
}

func newTestLedger(s *testutil.IntegrationSuite) (*service.Ledger, *repository.RecordRepository, *repository.MovementRepository) {
	log := logger.New("test", "test")
	records := repository.NewRecordRepository(s.DB)
	rules := repository.NewRuleRepository(s.DB)
	movements := repository.NewMovementRepository(s.DB)
	return service.NewLedger(records, rules, movements, log), records, movements
}

func TestLedger_AdjustCreatesRecordAndMovement(t *testing.T) {
	s := ledgerSuite(t)
	ledger, records, movements := newTestLedger(s)
	ctx := context.Background()

	newQty, err := ledger.Adjust(ctx, "p1", "l1", 10, "receiving", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, newQty)

	rec, err := records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 10, rec.OnHand)

	moves, err := movements.ListByProduct(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, 10, moves[0].Delta)
	assert.Equal(t, "receiving", moves[0].Reason)
}

func TestLedger_NegativeAdjustBelowZeroFailsAndChangesNothing(t *testing.T) {
	s := ledgerSuite(t)
	ledger, records, _ := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 5, 0, 1))

	_, err := ledger.Adjust(ctx, "p1", "l1", -8, "correction", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))

	rec, err := records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.OnHand)
}

func TestLedger_AdjustProtectsReservedQuantity(t *testing.T) {
	s := ledgerSuite(t)
	ledger, _, _ := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 10, 6, 1))

	// dropping to 4 on-hand would leave less than the 6 reserved
	_, err := ledger.Adjust(ctx, "p1", "l1", -6, "correction", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))
}

func TestLedger_TransferMovesBothLegs(t *testing.T) {
	s := ledgerSuite(t)
	ledger, records, _ := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 10, 0, 1))

	require.NoError(t, ledger.Transfer(ctx, "p1", "l1", "l2", 4, "rebalance", nil))

	src, err := records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 6, src.OnHand)

	dst, err := records.Get(ctx, "p1", "l2")
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, 4, dst.OnHand)
}

func TestLedger_TransferShortSourceMovesNothing(t *testing.T) {
	s := ledgerSuite(t)
	ledger, records, _ := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 3, 0, 1))

	err := ledger.Transfer(ctx, "p1", "l1", "l2", 5, "rebalance", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))

	src, err := records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 3, src.OnHand)

	dst, err := records.Get(ctx, "p1", "l2")
	require.NoError(t, err)
	assert.Nil(t, dst)
}

func TestLedger_ReserveAndConsumeLifecycle(t *testing.T) {
	s := ledgerSuite(t)
	ledger, records, movements := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 10, 0, 1))

	require.NoError(t, ledger.Reserve(ctx, "p1", "l1", 4))

	rec, err := records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Reserved)
	assert.Equal(t, 6, rec.Available())

	// reserving beyond the uncommitted quantity fails
	err = ledger.Reserve(ctx, "p1", "l1", 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientInventory))

	require.NoError(t, ledger.ConsumeReservation(ctx, "p1", "l1", 4, "pick-1", nil))

	rec, err = records.Get(ctx, "p1", "l1")
	require.NoError(t, err)
	assert.Equal(t, 6, rec.OnHand)
	assert.Zero(t, rec.Reserved)

	moves, err := movements.ListByProduct(ctx, "p1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, moves)
	assert.Equal(t, "pick", moves[0].Reason)
	require.NotNil(t, moves[0].Reference)
	assert.Equal(t, "pick-1", *moves[0].Reference)
}

func TestLedger_ThresholdAlertRaisedIntoRecorder(t *testing.T) {
	s := ledgerSuite(t)
	ledger, _, _ := newTestLedger(s)
	ctx := context.Background()

	require.NoError(t, s.Fixtures.InventoryRecord(ctx, "p1", "l1", 10, 0, 1))
	_, err := s.Fixtures.ThresholdRule(ctx, "p1", "on_hand", "<=", 5, nil)
	require.NoError(t, err)

	recorder := events.NewRecorder()
	ctx = events.WithRecorder(ctx, recorder)

	_, err = ledger.Adjust(ctx, "p1", "l1", -6, "correction", nil)
	require.NoError(t, err)

	var names []string
	for _, ev := range recorder.Drain() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, events.EventInventoryAdjusted)
	assert.Contains(t, names, events.EventThresholdAlert)
}

func TestLedger_LargeAdjustmentRequestsApproval(t *testing.T) {
	s := ledgerSuite(t)
	ledger, _, movements := newTestLedger(s)
	ctx := context.Background()

	recorder := events.NewRecorder()
	ctx = events.WithRecorder(ctx, recorder)

	actor := "clerk-7"
	_, err := ledger.Adjust(ctx, "p1", "l1", 1500, "bulk-receiving", &actor)
	require.NoError(t, err)

	var names []string
	for _, ev := range recorder.Drain() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, events.EventApprovalRequested)

	moves, err := movements.ListByProduct(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	require.NotNil(t, moves[0].ReviewStatus)
	assert.Equal(t, repository.ReviewPending, *moves[0].ReviewStatus)
}
