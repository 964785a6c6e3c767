package order_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/cache"
	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/database"
	"github.com/Additional-Code/orders/internal/database/databasetest"
	"github.com/Additional-Code/orders/internal/entity"
	"github.com/Additional-Code/orders/internal/messaging"
	repo "github.com/Additional-Code/orders/internal/repository/order"
	service "github.com/Additional-Code/orders/internal/service/order"
	"github.com/Additional-Code/orders/pkg/errorbank"
)

// recordingPublisher keeps every published message in memory.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []messaging.Message
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.err
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "orders.events" }

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		types = append(types, msg.Headers[messaging.HeaderEventType])
	}
	return types
}

// memoryCache is a map backed cache.Store.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *memoryCache) Add(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return false, nil
	}
	m.items[key] = value
	return true, nil
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

// interleavingCache runs beforeAdd once, right before the first Add reaches the
// underlying store.
type interleavingCache struct {
	*memoryCache
	beforeAdd func()
}

func (c *interleavingCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if hook := c.beforeAdd; hook != nil {
		c.beforeAdd = nil
		hook()
	}
	return c.memoryCache.Add(ctx, key, value, ttl)
}

// OrderServiceTestSuite runs the service against a fresh in-memory SQLite
// database for every test.
type OrderServiceTestSuite struct {
	suite.Suite
	conns     *database.Connections
	svc       *service.Service
	cache     *memoryCache
	publisher *recordingPublisher
}

func (suite *OrderServiceTestSuite) SetupTest() {
	suite.conns = databasetest.NewSQLite(suite.T())
	suite.cache = newMemoryCache()
	suite.publisher = &recordingPublisher{}

	cfg := config.Config{}
	cfg.Cache.DefaultTTL = time.Minute
	cfg.Messaging.Enabled = true

	suite.svc = service.NewService(service.Params{
		Repository: repo.NewRepository(suite.conns),
		Cache:      suite.cache,
		Config:     cfg,
		Logger:     zap.NewNop(),
		Publisher:  suite.publisher,
	})
}

func (suite *OrderServiceTestSuite) TestCreateOrder_ValidInput_PersistsNewOrder() {
	ctx := context.Background()

	id, err := suite.svc.CreateOrder(ctx, "someone@i.ua", "Poster", 32, decimal.NewFromInt(3000))
	suite.Require().NoError(err)
	suite.Equal(int64(1), id)

	var stored entity.Order
	suite.Require().NoError(suite.conns.Writer.NewSelect().Model(&stored).Where("id = ?", id).Scan(ctx))
	suite.Equal(entity.StatusNew, stored.Status)
	suite.Equal("someone@i.ua", stored.CustomerEmail)
	suite.Equal("Poster", stored.Item)
	suite.Equal(32, stored.Qty)
	suite.True(decimal.NewFromInt(3000).Equal(stored.UnitPrice))
	suite.False(stored.CreatedAt.IsZero())

	suite.True(suite.cache.has("orders:1"))
	suite.Equal([]string{service.EventOrderCreated}, suite.publisher.eventTypes())
}

func (suite *OrderServiceTestSuite) TestCreateOrder_IDsAreUnique() {
	ctx := context.Background()
	seen := map[int64]bool{}

	for range 5 {
		id, err := suite.svc.CreateOrder(ctx, "a@b.c", "Toy car", 1, decimal.RequireFromString("9.99"))
		suite.Require().NoError(err)
		suite.Positive(id)
		suite.False(seen[id], "id %d returned twice", id)
		seen[id] = true
	}
}

func (suite *OrderServiceTestSuite) TestCreateOrder_InvalidInput() {
	testCases := []struct {
		name     string
		email    string
		qty      int
		price    decimal.Decimal
		expected error
		message  string
	}{
		{"email without at sign", "someonei.ua", 2, decimal.NewFromInt(4000), service.ErrInvalidEmail, "ValidationError: invalid email"},
		{"zero qty", "s@i.ua", 0, decimal.NewFromInt(200), service.ErrInvalidQty, "ValidationError: invalid qty"},
		{"negative qty", "s@i.ua", -1, decimal.NewFromInt(200), service.ErrInvalidQty, "ValidationError: invalid qty"},
		{"zero price", "s@i.ua", 1, decimal.Zero, service.ErrInvalidPrice, "ValidationError: invalid price"},
		{"negative price", "s@i.ua", 1, decimal.NewFromInt(-1), service.ErrInvalidPrice, "ValidationError: invalid price"},
		{"email checked before qty", "nobody", 0, decimal.Zero, service.ErrInvalidEmail, "ValidationError: invalid email"},
		{"qty checked before price", "s@i.ua", 0, decimal.Zero, service.ErrInvalidQty, "ValidationError: invalid qty"},
		{"qty above int32", "s@i.ua", math.MaxInt32 + 1, decimal.NewFromInt(1), service.ErrInvalidQty, "ValidationError: invalid qty"},
		{"price below a cent", "s@i.ua", 1, decimal.RequireFromString("0.004"), service.ErrInvalidPrice, "ValidationError: invalid price"},
		{"price with three decimals", "s@i.ua", 1, decimal.RequireFromString("10.125"), service.ErrInvalidPrice, "ValidationError: invalid price"},
		{"price above column range", "s@i.ua", 1, decimal.RequireFromString("100000000"), service.ErrInvalidPrice, "ValidationError: invalid price"},
	}

	ctx := context.Background()
	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			id, err := suite.svc.CreateOrder(ctx, tc.email, "Toy car", tc.qty, tc.price)

			suite.Zero(id)
			suite.Require().ErrorIs(err, tc.expected)
			suite.EqualError(err, tc.message)
			suite.True(errorbank.IsKind(err, errorbank.KindValidation))
		})
	}

	suite.assertOrderCount(0)
	suite.Empty(suite.publisher.eventTypes())
}

func (suite *OrderServiceTestSuite) TestPayOrder_NewOrder_BecomesPaid() {
	ctx := context.Background()
	id := suite.createOrder(2, "50.40")

	paid, err := suite.svc.PayOrder(ctx, id)
	suite.Require().NoError(err)
	suite.True(paid)

	order, err := suite.svc.Get(ctx, id)
	suite.Require().NoError(err)
	suite.Equal(entity.StatusPaid, order.Status)

	suite.Equal([]string{service.EventOrderCreated, service.EventOrderPaid}, suite.publisher.eventTypes())
}

func (suite *OrderServiceTestSuite) TestCreateOrder_PriceBounds_Accepted() {
	ctx := context.Background()
	for _, price := range []string{"0.01", "10.000", "99999999.99"} {
		_, err := suite.svc.CreateOrder(ctx, "a@b.c", "Poster", math.MaxInt32, decimal.RequireFromString(price))
		suite.Require().NoError(err, price)
	}
	suite.assertOrderCount(3)
}

func (suite *OrderServiceTestSuite) TestPayOrder_RefreshesCachedOrder() {
	ctx := context.Background()
	id := suite.createOrder(1, "10.00")
	suite.True(suite.cache.has("orders:1"))

	_, err := suite.svc.PayOrder(ctx, id)
	suite.Require().NoError(err)
	suite.True(suite.cache.has("orders:1"))

	// The row is gone, so only the cache can answer.
	_, err = suite.conns.Writer.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
	suite.Require().NoError(err)

	order, err := suite.svc.Get(ctx, id)
	suite.Require().NoError(err)
	suite.Equal(entity.StatusPaid, order.Status)
}

func (suite *OrderServiceTestSuite) TestGet_PayBetweenReadAndFill_KeepsPaidCopy() {
	ctx := context.Background()
	store := &interleavingCache{memoryCache: newMemoryCache()}
	cfg := config.Config{}
	cfg.Cache.DefaultTTL = time.Minute
	svc := service.NewService(service.Params{
		Repository: repo.NewRepository(suite.conns),
		Cache:      store,
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	id, err := svc.CreateOrder(ctx, "a@b.c", "Poster", 1, decimal.NewFromInt(10))
	suite.Require().NoError(err)
	suite.Require().NoError(store.Delete(ctx, "orders:1"))

	// Get reads the NEW row, then the order is paid before Get fills the cache.
	store.beforeAdd = func() {
		paid, err := svc.PayOrder(ctx, id)
		suite.Require().NoError(err)
		suite.Require().True(paid)
	}
	stale, err := svc.Get(ctx, id)
	suite.Require().NoError(err)
	suite.Equal(entity.StatusNew, stale.Status)

	order, err := svc.Get(ctx, id)
	suite.Require().NoError(err)
	suite.Equal(entity.StatusPaid, order.Status)
}

func (suite *OrderServiceTestSuite) TestPayOrder_AlreadyPaid_InvalidState() {
	ctx := context.Background()
	id := suite.createOrder(1, "10.00")

	_, err := suite.svc.PayOrder(ctx, id)
	suite.Require().NoError(err)

	paid, err := suite.svc.PayOrder(ctx, id)
	suite.False(paid)
	suite.Require().ErrorIs(err, service.ErrNotPayable)
	suite.EqualError(err, "InvalidState: order must have NEW status")
}

func (suite *OrderServiceTestSuite) TestPayOrder_CancelledOrder_InvalidState() {
	ctx := context.Background()
	id := suite.createOrder(1, "10.00")

	_, err := suite.conns.Writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", entity.StatusCancelled).
		Where("id = ?", id).
		Exec(ctx)
	suite.Require().NoError(err)

	_, err = suite.svc.PayOrder(ctx, id)
	suite.Require().ErrorIs(err, service.ErrNotPayable)
}

func (suite *OrderServiceTestSuite) TestPayOrder_UnknownID_OrderNotFound() {
	paid, err := suite.svc.PayOrder(context.Background(), 2)

	suite.False(paid)
	suite.Require().ErrorIs(err, service.ErrOrderNotFound)
	suite.True(errorbank.IsKind(err, errorbank.KindNotFound))
}

func (suite *OrderServiceTestSuite) TestCalculateRevenue_NoPaidOrders_ReturnsZero() {
	total, err := suite.svc.CalculateRevenue(context.Background())
	suite.Require().NoError(err)
	suite.True(total.Equal(decimal.Zero), "got %s", total)
}

func (suite *OrderServiceTestSuite) TestCalculateRevenue_OnlyPaidOrdersCount() {
	ctx := context.Background()
	first := suite.createOrder(2, "50.40")
	second := suite.createOrder(1, "20.15")

	total, err := suite.svc.CalculateRevenue(ctx)
	suite.Require().NoError(err)
	suite.True(total.IsZero(), "unpaid orders must not count, got %s", total)

	_, err = suite.svc.PayOrder(ctx, first)
	suite.Require().NoError(err)

	total, err = suite.svc.CalculateRevenue(ctx)
	suite.Require().NoError(err)
	suite.True(decimal.RequireFromString("100.80").Equal(total), "got %s", total)

	_, err = suite.svc.PayOrder(ctx, second)
	suite.Require().NoError(err)

	total, err = suite.svc.CalculateRevenue(ctx)
	suite.Require().NoError(err)
	suite.True(decimal.RequireFromString("120.95").Equal(total), "got %s", total)
	suite.Equal("120.95", total.StringFixed(2))

	again, err := suite.svc.CalculateRevenue(ctx)
	suite.Require().NoError(err)
	suite.True(total.Equal(again))
}

func (suite *OrderServiceTestSuite) TestGet_UsesCacheAfterFirstRead() {
	ctx := context.Background()
	id := suite.createOrder(3, "1.50")

	first, err := suite.svc.Get(ctx, id)
	suite.Require().NoError(err)

	// Remove the row behind the service's back; the cached copy still answers.
	_, err = suite.conns.Writer.NewDelete().Model((*entity.Order)(nil)).Where("id = ?", id).Exec(ctx)
	suite.Require().NoError(err)

	second, err := suite.svc.Get(ctx, id)
	suite.Require().NoError(err)
	suite.Equal(first.ID, second.ID)
	suite.True(first.UnitPrice.Equal(second.UnitPrice))
}

func (suite *OrderServiceTestSuite) TestGet_UnknownID_OrderNotFound() {
	_, err := suite.svc.Get(context.Background(), 99)
	suite.Require().ErrorIs(err, service.ErrOrderNotFound)
}

func (suite *OrderServiceTestSuite) TestPublishFailure_DoesNotFailCreate() {
	suite.publisher.err = errors.New("broker down")

	id, err := suite.svc.CreateOrder(context.Background(), "a@b.c", "Poster", 1, decimal.NewFromInt(5))
	suite.Require().NoError(err)
	suite.Positive(id)
}

func (suite *OrderServiceTestSuite) TestStorageFailure_WrapsCause() {
	suite.Require().NoError(suite.conns.Close())

	_, err := suite.svc.CreateOrder(context.Background(), "a@b.c", "Poster", 1, decimal.NewFromInt(5))
	suite.Require().Error(err)
	suite.True(errorbank.IsKind(err, errorbank.KindStorage))

	_, err = suite.svc.CalculateRevenue(context.Background())
	suite.True(errorbank.IsKind(err, errorbank.KindStorage))
}

func (suite *OrderServiceTestSuite) TestHasOrders() {
	ctx := context.Background()

	has, err := suite.svc.HasOrders(ctx)
	suite.Require().NoError(err)
	suite.False(has)

	suite.createOrder(1, "1.00")

	has, err = suite.svc.HasOrders(ctx)
	suite.Require().NoError(err)
	suite.True(has)
}

// createOrder inserts a valid order and returns its id.
func (suite *OrderServiceTestSuite) createOrder(qty int, price string) int64 {
	id, err := suite.svc.CreateOrder(context.Background(), "someone@i.ua", "Poster", qty, decimal.RequireFromString(price))
	suite.Require().NoError(err)
	return id
}

// assertOrderCount verifies the number of orders in the database.
func (suite *OrderServiceTestSuite) assertOrderCount(expected int) {
	count, err := suite.conns.Writer.NewSelect().Model((*entity.Order)(nil)).Count(context.Background())
	suite.Require().NoError(err)
	suite.Equal(expected, count)
}

func TestOrderServiceTestSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}
