package event

import (
	"encoding/json"
	"time"
)

const (
	// OrdersTopic is the subject the queue events are published on when the
	// broker is reached directly instead of through the WebSocket gateway.
	OrdersTopic = "pedidos.cola"

	EventOrderCreated = "pedido.creado"
	EventOrderUpdated = "pedido.actualizado"
)

// OrderEvent is the envelope pushed over the live channel.
// Data carries only the fields that changed, so it is kept raw and merged
// field by field by the consumer.
type OrderEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	OrderID    int64           `json:"pedido_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Ping is the keepalive frame a client may send while connected.
type Ping struct {
	Type string `json:"type"`
}

func NewPing() Ping {
	return Ping{Type: "ping"}
}
