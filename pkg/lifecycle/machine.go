// Package lifecycle centralizes entity state machines behind explicit
// transition tables. Every status change of picks, fulfillments, shipments
// and load plans goes through a Machine so invalid transitions fail uniformly
// with a StateTransition error instead of ad hoc status checks.
package lifecycle

import (
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// State is an entity lifecycle state.
type State string

// Common states shared by warehouse work items.
const (
	StatePending    State = "pending"
	StateAssigned   State = "assigned"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateOptimized  State = "optimized"
	StateLoaded     State = "loaded"
	StateDispatched State = "dispatched"
	StateReady      State = "ready"
	StateShipped    State = "shipped"
	StateCancelled  State = "cancelled"
)

// Machine is a transition table for one entity type.
type Machine struct {
	entity      string
	transitions map[State][]State
}

// NewMachine creates a machine for the named entity type.
func NewMachine(entity string, transitions map[State][]State) *Machine {
	return &Machine{entity: entity, transitions: transitions}
}

// CanTransition reports whether moving from current to next is allowed.
func (m *Machine) CanTransition(current, next State) bool {
	for _, allowed := range m.transitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates a state change and returns the next state, or a
// StateTransition error naming the entity, its id and the current state.
func (m *Machine) Transition(id string, current, next State) (State, error) {
	if !m.CanTransition(current, next) {
		return current, errors.StateTransition(m.entity, id, string(current), string(next))
	}
	return next, nil
}

// PickMachine is the lifecycle of batch, zone and cluster picks.
func PickMachine() *Machine {
	return NewMachine("pick", map[State][]State{
		StatePending:    {StateAssigned},
		StateAssigned:   {StateInProgress},
		StateInProgress: {StateCompleted},
	})
}

// FulfillmentMachine is the lifecycle of order fulfillments.
func FulfillmentMachine() *Machine {
	return NewMachine("fulfillment", map[State][]State{
		StatePending:    {StateInProgress, StateCancelled},
		StateInProgress: {StateCompleted, StateCancelled},
	})
}

// LoadPlanMachine is the lifecycle of load plans.
func LoadPlanMachine() *Machine {
	return NewMachine("load_plan", map[State][]State{
		StatePending:   {StateOptimized},
		StateOptimized: {StateLoaded},
		StateLoaded:    {StateDispatched},
	})
}

// ShipmentMachine is the lifecycle of shipments.
func ShipmentMachine() *Machine {
	return NewMachine("shipment", map[State][]State{
		StatePending: {StateReady, StateCancelled},
		StateReady:   {StateShipped, StateCancelled},
	})
}
