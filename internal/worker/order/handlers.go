package order

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orders/internal/messaging"
	ordersvc "github.com/Additional-Code/orders/internal/service/order"
	"github.com/Additional-Code/orders/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/orders/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewOrderPaidHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		func(svc *ordersvc.Service) RevenueCalculator { return svc },
	),
)

// RevenueCalculator reports the current paid revenue.
type RevenueCalculator interface {
	CalculateRevenue(ctx context.Context) (decimal.Decimal, error)
}

// NewOrderCreatedHandler sets up a worker handler that logs order creations.
func NewOrderCreatedHandler(logger *zap.Logger) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := startSpan(ctx, msg)
		defer span.End()

		event, err := ordersvc.DecodeEvent(msg)
		if err != nil {
			logger.Error("failed to decode order created", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		fields := []zap.Field{
			zap.Int64("id", event.ID),
			zap.String("item", event.Item),
			zap.Int("qty", event.Qty),
			zap.String("status", event.Status),
		}
		if event.UnitPrice != nil {
			fields = append(fields, zap.String("unit_price", event.UnitPrice.StringFixed(2)))
		}
		logger.Info("order created event processed", fields...)

		return nil
	}

	return worker.HandlerRegistration{
		EventType: ordersvc.EventOrderCreated,
		Handler:   handler,
	}
}

// NewOrderPaidHandler sets up a worker handler that logs payments together with
// the revenue total they produced.
func NewOrderPaidHandler(logger *zap.Logger, revenue RevenueCalculator) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := startSpan(ctx, msg)
		defer span.End()

		event, err := ordersvc.DecodeEvent(msg)
		if err != nil {
			logger.Error("failed to decode order paid", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		total, err := revenue.CalculateRevenue(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "revenue error")
			return err
		}

		logger.Info("order paid event processed",
			zap.Int64("id", event.ID),
			zap.String("revenue", total.StringFixed(2)),
		)

		return nil
	}

	return worker.HandlerRegistration{
		EventType: ordersvc.EventOrderPaid,
		Handler:   handler,
	}
}

func startSpan(ctx context.Context, msg messaging.Message) (context.Context, trace.Span) {
	return workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
		attribute.String("messaging.topic", msg.Topic),
		attribute.String("messaging.event_type", msg.Headers[messaging.HeaderEventType]),
	))
}
