package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/messaging"
	ordersvc "github.com/Additional-Code/orders/internal/service/order"
	"github.com/Additional-Code/orders/internal/worker"
	workerorder "github.com/Additional-Code/orders/internal/worker/order"
)

// MockRevenueCalculator is a mock implementation of RevenueCalculator.
type MockRevenueCalculator struct {
	mock.Mock
}

func (m *MockRevenueCalculator) CalculateRevenue(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func newEngine(t *testing.T, logger *zap.Logger, revenue workerorder.RevenueCalculator) *worker.Engine {
	t.Helper()
	return worker.NewEngine(worker.Params{
		Client: messaging.NewNoop("orders.events"),
		Logger: logger,
		Config: config.Config{},
		Registrations: []worker.HandlerRegistration{
			workerorder.NewOrderCreatedHandler(logger),
			workerorder.NewOrderPaidHandler(logger, revenue),
		},
	})
}

func encode(t *testing.T, event ordersvc.OrderEvent) messaging.Message {
	t.Helper()
	msg, err := event.Message()
	require.NoError(t, err)
	msg.Topic = "orders.events"
	return msg
}

func TestOrderCreatedHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	engine := newEngine(t, zap.New(core), new(MockRevenueCalculator))

	price := decimal.RequireFromString("50.40")
	msg := encode(t, ordersvc.OrderEvent{
		Type:      ordersvc.EventOrderCreated,
		ID:        1,
		Item:      "Poster",
		Qty:       2,
		UnitPrice: &price,
		Status:    "NEW",
	})

	require.NoError(t, engine.Dispatch(context.Background(), msg))

	entries := logs.FilterMessage("order created event processed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "50.40", entries[0].ContextMap()["unit_price"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["id"])
}

func TestOrderPaidHandler_LogsRevenue(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	revenue := new(MockRevenueCalculator)
	revenue.On("CalculateRevenue", mock.Anything).Return(decimal.RequireFromString("120.95"), nil).Once()
	engine := newEngine(t, zap.New(core), revenue)

	msg := encode(t, ordersvc.OrderEvent{Type: ordersvc.EventOrderPaid, ID: 2, Status: "PAID"})

	require.NoError(t, engine.Dispatch(context.Background(), msg))

	entries := logs.FilterMessage("order paid event processed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "120.95", entries[0].ContextMap()["revenue"])
	revenue.AssertExpectations(t)
}

func TestOrderPaidHandler_RevenueFailure(t *testing.T) {
	revenue := new(MockRevenueCalculator)
	revenue.On("CalculateRevenue", mock.Anything).Return(decimal.Zero, errors.New("db down")).Once()
	engine := newEngine(t, zap.NewNop(), revenue)

	msg := encode(t, ordersvc.OrderEvent{Type: ordersvc.EventOrderPaid, ID: 2})

	require.Error(t, engine.Dispatch(context.Background(), msg))
	revenue.AssertExpectations(t)
}

func TestDispatch_MalformedPayload(t *testing.T) {
	engine := newEngine(t, zap.NewNop(), new(MockRevenueCalculator))

	msg := messaging.Message{
		Value:   []byte("{not json"),
		Headers: map[string]string{messaging.HeaderEventType: ordersvc.EventOrderCreated},
	}

	require.Error(t, engine.Dispatch(context.Background(), msg))
}

func TestDispatch_UnknownEventTypeIsDropped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	engine := newEngine(t, zap.New(core), new(MockRevenueCalculator))

	msg := messaging.Message{
		Value:   []byte(`{}`),
		Headers: map[string]string{messaging.HeaderEventType: "order.shipped"},
	}

	require.NoError(t, engine.Dispatch(context.Background(), msg))
	assert.Equal(t, 1, logs.FilterMessage("no handler for event type").Len())
}
