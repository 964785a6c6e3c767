package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is one of the statuses accepted by the orders table.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// Order represents a purchase order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            int64           `bun:",pk,autoincrement"`
	CustomerEmail string          `bun:"customer_email,notnull"`
	Item          string          `bun:"item,notnull"`
	Qty           int             `bun:"qty,notnull"`
	UnitPrice     decimal.Decimal `bun:"unit_price,type:numeric(10,2),notnull"`
	Status        Status          `bun:"status,notnull,default:'NEW'"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// Total is qty * unit_price.
func (o *Order) Total() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Qty)))
}
