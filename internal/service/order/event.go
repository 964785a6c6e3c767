package order

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Additional-Code/orders/internal/entity"
	"github.com/Additional-Code/orders/internal/messaging"
)

// Event types carried in the messaging.HeaderEventType header.
const (
	EventOrderCreated = "order.created"
	EventOrderPaid    = "order.paid"
)

// OrderEvent is emitted when an order is created or paid.
type OrderEvent struct {
	Type          string           `json:"type"`
	ID            int64            `json:"id"`
	CustomerEmail string           `json:"customer_email,omitempty"`
	Item          string           `json:"item,omitempty"`
	Qty           int              `json:"qty,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Status        string           `json:"status"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func newOrderEvent(eventType string, order *entity.Order, at time.Time) OrderEvent {
	price := order.UnitPrice
	return OrderEvent{
		Type:          eventType,
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		Item:          order.Item,
		Qty:           order.Qty,
		UnitPrice:     &price,
		Status:        string(order.Status),
		OccurredAt:    at,
	}
}

// Message encodes the event for the bus, keyed by order id.
func (e OrderEvent) Message() (messaging.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return messaging.Message{}, err
	}
	return messaging.Message{
		Key:   []byte("order-" + strconv.FormatInt(e.ID, 10)),
		Value: payload,
		Headers: map[string]string{
			messaging.HeaderEventType: e.Type,
			messaging.HeaderEventID:   uuid.NewString(),
		},
	}, nil
}

// DecodeEvent parses an OrderEvent from a consumed message.
func DecodeEvent(msg messaging.Message) (OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return OrderEvent{}, err
	}
	if event.Type == "" {
		event.Type = msg.Headers[messaging.HeaderEventType]
	}
	return event, nil
}
