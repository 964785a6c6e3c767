package order

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/orders/internal/dto"
	"github.com/Additional-Code/orders/internal/entity"
	"github.com/Additional-Code/orders/internal/presentation/http/response"
	service "github.com/Additional-Code/orders/internal/service/order"
	"github.com/Additional-Code/orders/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/orders/transport/http/order")

// Module registers the order routes on the shared Echo instance.
var Module = fx.Module("http_orders",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("/revenue", h.revenue)
	g.GET("/:id", h.getByID)
	g.POST("/:id/pay", h.pay)
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateOrderRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create")
	span.SetAttributes(
		attribute.String("order.item", payload.Item),
		attribute.Int("order.qty", payload.Qty),
	)
	defer span.End()

	id, err := h.svc.CreateOrder(ctx, payload.CustomerEmail, payload.Item, payload.Qty, payload.UnitPrice)
	if err != nil {
		return b.WithError(err).Build()
	}

	return response.Created(c, dto.CreatedResponse{ID: id})
}

func (h *Handler) pay(c echo.Context) error {
	b := response.New(c)

	id, err := parseID(c)
	if err != nil {
		return b.WithError(err).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.pay", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	paid, err := h.svc.PayOrder(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.PaymentResponse{ID: id, Paid: paid}).Build()
}

func (h *Handler) revenue(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.revenue")
	defer span.End()

	total, err := h.svc.CalculateRevenue(ctx)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(dto.RevenueResponse{Revenue: total}).Build()
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errorbank.BadRequest("invalid id", errorbank.WithCause(err))
	}
	return id, nil
}

func toDTO(order *entity.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:            order.ID,
		CustomerEmail: order.CustomerEmail,
		Item:          order.Item,
		Qty:           order.Qty,
		UnitPrice:     order.UnitPrice,
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
	}
}
