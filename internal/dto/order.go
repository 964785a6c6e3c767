package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest is the payload accepted when creating an order.
type CreateOrderRequest struct {
	CustomerEmail string          `json:"customer_email"`
	Item          string          `json:"item"`
	Qty           int             `json:"qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            int64           `json:"id"`
	CustomerEmail string          `json:"customer_email"`
	Item          string          `json:"item"`
	Qty           int             `json:"qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreatedResponse carries the id of a freshly inserted order.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// PaymentResponse reports the outcome of paying an order.
type PaymentResponse struct {
	ID   int64 `json:"id"`
	Paid bool  `json:"paid"`
}

// RevenueResponse carries the paid revenue total.
type RevenueResponse struct {
	Revenue decimal.Decimal `json:"revenue"`
}
