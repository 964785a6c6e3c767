package seeder

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	ordersvc "github.com/Additional-Code/orders/internal/service/order"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Sample describes a seeded order.
type Sample struct {
	Email string
	Item  string
	Qty   int
	Price decimal.Decimal
	Paid  bool
}

// DefaultSamples is the dataset applied by the seed command.
var DefaultSamples = []Sample{
	{Email: "someone@i.ua", Item: "Poster", Qty: 2, Price: decimal.RequireFromString("50.40"), Paid: true},
	{Email: "someone@i.ua", Item: "Poster", Qty: 1, Price: decimal.RequireFromString("20.15"), Paid: true},
	{Email: "s@i.ua", Item: "Toy car", Qty: 3, Price: decimal.RequireFromString("200")},
	{Email: "buyer@example.com", Item: "Suit", Qty: 1, Price: decimal.RequireFromString("4000")},
}

// Seeder performs database seeding for local/dev setups. Orders go through the
// service so seeded rows obey the same validation as API traffic.
type Seeder struct {
	svc     *ordersvc.Service
	logger  *zap.Logger
	samples []Sample
}

// New constructs a Seeder using DefaultSamples.
func New(svc *ordersvc.Service, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{svc: svc, logger: logger, samples: DefaultSamples}
}

// WithSamples replaces the dataset.
func (s *Seeder) WithSamples(samples []Sample) *Seeder {
	s.samples = samples
	return s
}

// Orders seeds example orders into an empty table and returns how many were
// inserted. A table that already holds orders is left untouched.
func (s *Seeder) Orders(ctx context.Context) (int, error) {
	exists, err := s.svc.HasOrders(ctx)
	if err != nil {
		return 0, err
	}
	if exists {
		s.logger.Info("orders already present; skipping seed")
		return 0, nil
	}

	for i, sample := range s.samples {
		id, err := s.svc.CreateOrder(ctx, sample.Email, sample.Item, sample.Qty, sample.Price)
		if err != nil {
			return i, fmt.Errorf("seed order %d: %w", i, err)
		}
		if !sample.Paid {
			continue
		}
		if _, err := s.svc.PayOrder(ctx, id); err != nil {
			return i + 1, fmt.Errorf("pay seeded order %d: %w", id, err)
		}
	}

	s.logger.Info("seeded orders", zap.Int("count", len(s.samples)))
	return len(s.samples), nil
}
