package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names. Payload shapes per name are stable and versioned; consumers
// (NotificationRouter, the external sink) decode by name.
const (
	EventThresholdAlert       = "threshold.alert"
	EventInventoryAdjusted    = "inventory.adjusted"
	EventTaskAssigned         = "task.assigned"
	EventPickCompleted        = "pick.completed"
	EventFulfillmentProcessed = "fulfillment.processed"
	EventApprovalRequested    = "approval.requested"
	EventApprovalDecided      = "approval.decided"
	EventLoadPlanDispatched   = "loadplan.dispatched"
	EventShipmentShipped      = "shipment.shipped"
)

// Event is a domain event raised during an operation. Events are buffered
// until the owning transaction commits and only then handed to subscribers.
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Version    int             `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New creates an event with the given name and payload.
func New(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:         uuid.New().String(),
		Name:       name,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

// ThresholdAlertPayload is the payload of threshold.alert events.
type ThresholdAlertPayload struct {
	RuleID     string `json:"rule_id"`
	ProductID  string `json:"product_id"`
	LocationID string `json:"location_id"`
	Metric     string `json:"metric"`
	Quantity   int    `json:"quantity"`
	Threshold  int    `json:"threshold"`
	Severity   string `json:"severity"`
}

// InventoryAdjustedPayload is the payload of inventory.adjusted events.
type InventoryAdjustedPayload struct {
	ProductID   string `json:"product_id"`
	LocationID  string `json:"location_id"`
	Delta       int    `json:"delta"`
	NewQuantity int    `json:"new_quantity"`
	Reason      string `json:"reason"`
}

// TaskAssignedPayload is the payload of task.assigned events.
type TaskAssignedPayload struct {
	TaskType string   `json:"task_type"`
	TaskID   string   `json:"task_id"`
	Workers  []string `json:"workers"`
}

// PickCompletedPayload is the payload of pick.completed events.
type PickCompletedPayload struct {
	PickID    string `json:"pick_id"`
	PickType  string `json:"pick_type"`
	Warehouse string `json:"warehouse"`
	ItemCount int    `json:"item_count"`
}

// FulfillmentProcessedPayload is the payload of fulfillment.processed events.
type FulfillmentProcessedPayload struct {
	FulfillmentID string `json:"fulfillment_id"`
	SalesOrderRef string `json:"sales_order_ref"`
	Status        string `json:"status"`
	CarrierID     string `json:"carrier_id,omitempty"`
	ShippingCost  string `json:"shipping_cost,omitempty"`
}

// ApprovalRequestedPayload is the payload of approval.requested events.
type ApprovalRequestedPayload struct {
	ApprovalID  string `json:"approval_id"`
	RequestorID string `json:"requestor_id"`
	Subject     string `json:"subject"`
	Reference   string `json:"reference"`
}

// ApprovalDecidedPayload is the payload of approval.decided events.
type ApprovalDecidedPayload struct {
	ApprovalID  string `json:"approval_id"`
	RequestorID string `json:"requestor_id"`
	Decision    string `json:"decision"`
	DecidedBy   string `json:"decided_by"`
}

// LoadPlanDispatchedPayload is the payload of loadplan.dispatched events.
type LoadPlanDispatchedPayload struct {
	LoadPlanID    string    `json:"load_plan_id"`
	VehicleID     string    `json:"vehicle_id"`
	DriverID      string    `json:"driver_id"`
	ShipmentCount int       `json:"shipment_count"`
	DepartedAt    time.Time `json:"departed_at"`
}

// ShipmentShippedPayload is the payload of shipment.shipped events.
type ShipmentShippedPayload struct {
	ShipmentID string `json:"shipment_id"`
	LoadPlanID string `json:"load_plan_id"`
	CarrierID  string `json:"carrier_id,omitempty"`
}
