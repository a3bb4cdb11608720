package lifecycle_test

import (
	"testing"

	"github.com/stockflow/stockflow-backend/pkg/errors"
	"github.com/stockflow/stockflow-backend/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickMachine_AllowedPath(t *testing.T) {
	m := lifecycle.PickMachine()

	state := lifecycle.StatePending
	for _, next := range []lifecycle.State{
		lifecycle.StateAssigned,
		lifecycle.StateInProgress,
		lifecycle.StateCompleted,
	} {
		var err error
		state, err = m.Transition("pick-1", state, next)
		require.NoError(t, err)
		assert.Equal(t, next, state)
	}
}

func TestPickMachine_CompleteFromPendingFails(t *testing.T) {
	m := lifecycle.PickMachine()

	state, err := m.Transition("pick-1", lifecycle.StatePending, lifecycle.StateCompleted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateTransition))

	// State is returned unchanged on rejection.
	assert.Equal(t, lifecycle.StatePending, state)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "STATE_TRANSITION", appErr.Code)
	assert.Equal(t, "pending", appErr.Details["current_state"])
	assert.Equal(t, "pick", appErr.Details["entity"])
}

func TestLoadPlanMachine_DispatchRequiresLoaded(t *testing.T) {
	m := lifecycle.LoadPlanMachine()

	_, err := m.Transition("lp-1", lifecycle.StateOptimized, lifecycle.StateDispatched)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStateTransition))

	next, err := m.Transition("lp-1", lifecycle.StateLoaded, lifecycle.StateDispatched)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateDispatched, next)
}

func TestMachine_TerminalStatesHaveNoExits(t *testing.T) {
	cases := []struct {
		machine *lifecycle.Machine
		state   lifecycle.State
	}{
		{lifecycle.PickMachine(), lifecycle.StateCompleted},
		{lifecycle.LoadPlanMachine(), lifecycle.StateDispatched},
		{lifecycle.ShipmentMachine(), lifecycle.StateShipped},
	}

	for _, tc := range cases {
		for _, next := range []lifecycle.State{
			lifecycle.StatePending, lifecycle.StateAssigned, lifecycle.StateInProgress,
			lifecycle.StateCompleted, lifecycle.StateOptimized, lifecycle.StateLoaded,
			lifecycle.StateDispatched, lifecycle.StateShipped,
		} {
			assert.False(t, tc.machine.CanTransition(tc.state, next),
				"expected no transition out of %s", tc.state)
		}
	}
}
