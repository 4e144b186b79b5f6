package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an outbox row handed to publishers once its transaction has committed.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	OutletID    uuid.UUID       `json:"outlet_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderCreated is the payload of an order.created event.
type OrderCreated struct {
	OrderID       uuid.UUID          `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	OutletID      uuid.UUID          `json:"outlet_id"`
	TableNumber   string             `json:"table_number,omitempty"`
	CustomerName  string             `json:"customer_name,omitempty"`
	PaymentMethod string             `json:"payment_method"`
	Source        string             `json:"source"`
	TotalAmount   string             `json:"total_amount"`
	Items         []OrderCreatedItem `json:"items"`
	CreatedAt     time.Time          `json:"created_at"`
}

type OrderCreatedItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int32     `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	Subtotal    string    `json:"subtotal"`
}

// StatusChanged is the payload of an order.status_changed event.
type StatusChanged struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	OutletID    uuid.UUID `json:"outlet_id"`
	TableNumber string    `json:"table_number,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ChangedBy   uuid.UUID `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

// PaymentUpdated is the payload of an order.payment_updated event.
type PaymentUpdated struct {
	OrderID           uuid.UUID `json:"order_id"`
	OrderNumber       string    `json:"order_number"`
	OutletID          uuid.UUID `json:"outlet_id"`
	PaymentReference  string    `json:"payment_reference"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	TransactionStatus string    `json:"transaction_status"`
	UpdatedAt         time.Time `json:"updated_at"`
}
