package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exchange and queue names
const (
	ExchangeWarehouseEvents = "warehouse.events"
	QueueSyncRequests       = "warehouse.sync"
)

// Message types consumed from the sync queue
const (
	MessagePlatformSyncRequested = "platform.sync.requested"
)

// Envelope is the wire structure for messages crossing the broker, both for
// domain events mirrored to the external sink and for inbound sync requests.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates an envelope with the given type and data
func NewEnvelope(msgType, source, correlationID string, data interface{}) (*Envelope, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            uuid.New().String(),
		Type:          msgType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// SyncRequestedData is the payload of platform.sync.requested messages.
type SyncRequestedData struct {
	ProductID string `json:"product_id"`
	Platform  string `json:"platform,omitempty"`
}
