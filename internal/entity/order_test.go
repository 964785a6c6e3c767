package entity_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Additional-Code/orders/internal/entity"
)

func TestStatus_Valid(t *testing.T) {
	assert.True(t, entity.StatusNew.Valid())
	assert.True(t, entity.StatusPaid.Valid())
	assert.True(t, entity.StatusCancelled.Valid())
	assert.False(t, entity.Status("SHIPPED").Valid())
	assert.False(t, entity.Status("").Valid())
}

func TestOrder_Total(t *testing.T) {
	order := entity.Order{Qty: 2, UnitPrice: decimal.RequireFromString("50.40")}

	assert.True(t, decimal.RequireFromString("100.80").Equal(order.Total()))
}
