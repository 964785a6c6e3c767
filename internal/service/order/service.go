package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/cache"
	"github.com/Additional-Code/orders/internal/config"
	"github.com/Additional-Code/orders/internal/entity"
	"github.com/Additional-Code/orders/internal/messaging"
	repo "github.com/Additional-Code/orders/internal/repository/order"
	"github.com/Additional-Code/orders/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/orders/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/orders/service/order")
)

// Module provides the order service to Fx.
var Module = fx.Provide(NewService)

// Domain errors returned by Service. Compare with errors.Is.
var (
	ErrInvalidEmail  = errorbank.Validation("invalid email")
	ErrInvalidQty    = errorbank.Validation("invalid qty")
	ErrInvalidPrice  = errorbank.Validation("invalid price")
	ErrOrderNotFound = errorbank.NotFound("order not found")
	ErrNotPayable    = errorbank.InvalidState("order must have NEW status")
)

// maxUnitPrice is the exclusive upper bound of a NUMERIC(10,2) column.
var maxUnitPrice = decimal.New(1, 8)

// Service encapsulates business logic around orders.
type Service struct {
	repo      *repo.Repository
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	messaging messagingConfig
	now       func() time.Time

	createdCounter metric.Int64Counter
	paidCounter    metric.Int64Counter
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store `optional:"true"`
	Config     config.Config
	Logger     *zap.Logger      `optional:"true"`
	Publisher  messaging.Client `optional:"true"`
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	created, err := serviceMeter.Int64Counter("orders.created", metric.WithDescription("Orders created"))
	if err != nil {
		logger.Warn("orders.created counter unavailable", zap.Error(err))
	}
	paid, err := serviceMeter.Int64Counter("orders.paid", metric.WithDescription("Orders moved to PAID"))
	if err != nil {
		logger.Warn("orders.paid counter unavailable", zap.Error(err))
	}

	return &Service{
		repo:      p.Repository,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    logger,
		publisher: p.Publisher,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
		},
		now:            func() time.Time { return time.Now().UTC() },
		createdCounter: created,
		paidCounter:    paid,
	}
}

// CreateOrder validates the input and stores a NEW order, returning its id.
//
// Validation runs in a fixed order and stops at the first failure: email must
// contain '@', qty must be positive and fit a 32-bit column, price must be
// positive and fit NUMERIC(10,2) without rounding.
func (s *Service) CreateOrder(ctx context.Context, email, item string, qty int, price decimal.Decimal) (int64, error) {
	if !strings.Contains(email, "@") {
		return 0, ErrInvalidEmail
	}
	if qty <= 0 || qty > math.MaxInt32 {
		return 0, ErrInvalidQty
	}
	if !price.IsPositive() || !price.Truncate(2).Equal(price) || price.GreaterThanOrEqual(maxUnitPrice) {
		return 0, ErrInvalidPrice
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.CreateOrder", trace.WithAttributes(
		attribute.String("order.item", item),
		attribute.Int("order.qty", qty),
	))
	defer span.End()

	order := &entity.Order{
		CustomerEmail: email,
		Item:          item,
		Qty:           qty,
		UnitPrice:     price,
		Status:        entity.StatusNew,
		CreatedAt:     s.now(),
	}

	if err := s.repo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return 0, errorbank.Storage("failed to create order", err)
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	if s.createdCounter != nil {
		s.createdCounter.Add(ctx, 1)
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", order.ID), zap.Error(err))
	}

	s.publish(ctx, newOrderEvent(EventOrderCreated, order, s.now()))

	return order.ID, nil
}

// PayOrder moves a NEW order to PAID. The check and the write are a single
// conditional statement, so of two concurrent payers exactly one succeeds.
func (s *Service) PayOrder(ctx context.Context, id int64) (bool, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.PayOrder", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	err := s.repo.TransitionStatus(ctx, id, entity.StatusNew, entity.StatusPaid)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		span.SetStatus(codes.Error, "not found")
		return false, ErrOrderNotFound
	case errors.Is(err, repo.ErrStatusConflict):
		span.SetStatus(codes.Error, "invalid state")
		return false, ErrNotPayable
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return false, errorbank.Storage("failed to pay order", err)
	}

	if s.paidCounter != nil {
		s.paidCounter.Add(ctx, 1)
	}

	s.refreshCache(ctx, id)

	s.publish(ctx, OrderEvent{
		Type:       EventOrderPaid,
		ID:         id,
		Status:     string(entity.StatusPaid),
		OccurredAt: s.now(),
	})

	return true, nil
}

// CalculateRevenue sums qty * unit_price over PAID orders. It returns exactly zero
// when nothing has been paid.
func (s *Service) CalculateRevenue(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CalculateRevenue")
	defer span.End()

	total, err := s.repo.SumRevenue(ctx, entity.StatusPaid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return decimal.Zero, errorbank.Storage("failed to calculate revenue", err)
	}

	// unit_price carries two fractional digits; rounding drops float noise from
	// engines without an exact numeric type.
	return total.Round(2), nil
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Storage("failed to load order", err)
	}

	// Fill only an empty slot: a concurrent PayOrder may already have cached a
	// newer copy than the one just read.
	if _, err := cache.AddJSON(ctx, s.cache, s.cacheKey(id), order, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache fill failed", zap.Int64("id", id), zap.Error(err))
	}

	return order, nil
}

// HasOrders reports whether any order has been stored.
func (s *Service) HasOrders(ctx context.Context) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, errorbank.Storage("failed to count orders", err)
	}
	return count > 0, nil
}

func (s *Service) publish(ctx context.Context, event OrderEvent) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	msg, err := event.Message()
	if err != nil {
		s.logger.Error("marshal order event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("publish order event", zap.String("type", event.Type), zap.Int64("id", event.ID), zap.Error(err))
	}
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	var order entity.Order
	if err := cache.GetJSON(ctx, s.cache, s.cacheKey(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	return cache.SetJSON(ctx, s.cache, s.cacheKey(order.ID), order, s.cacheTTL)
}

// refreshCache overwrites the cached copy with the committed row. When the row
// cannot be read back the entry is evicted instead.
func (s *Service) refreshCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	order, err := s.repo.GetByIDFromWriter(ctx, id)
	if err == nil {
		if err = s.storeInCache(ctx, order); err == nil {
			return
		}
	}
	s.logger.Warn("orders cache refresh failed", zap.Int64("id", id), zap.Error(err))
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache evict failed", zap.Int64("id", id), zap.Error(err))
	}
}
