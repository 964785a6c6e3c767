package order

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/orders/internal/database"
	"github.com/Additional-Code/orders/internal/entity"
)

// Module provides the order repository to Fx.
var Module = fx.Provide(NewRepository)

var repoTracer = otel.Tracer("github.com/Additional-Code/orders/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when a conditional status update matched an
	// existing row in a different status.
	ErrStatusConflict = errors.New("order status conflict")
)

// Repository encapsulates read/write access for orders.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new order using the write connection and fills in its generated id.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.item", order.Item)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return nil
}

// GetByID fetches an order by primary key using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.selectByID(ctx, span, r.reader, id)
}

// GetByIDFromWriter fetches an order from the write connection, so it observes the
// outcome of a preceding write even when replicas lag.
func (r *Repository) GetByIDFromWriter(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByIDFromWriter", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	return r.selectByID(ctx, span, r.writer, id)
}

func (r *Repository) selectByID(ctx context.Context, span trace.Span, db *bun.DB, id int64) (*entity.Order, error) {
	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// Status reads the current status of a single order from the writer, so it observes
// the outcome of a preceding write.
func (r *Repository) Status(ctx context.Context, id int64) (entity.Status, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Status", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	var status entity.Status
	err := r.writer.NewSelect().
		Model((*entity.Order)(nil)).
		Column("status").
		Where("id = ?", id).
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return "", ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return "", err
	}
	return status, nil
}

// TransitionStatus moves an order from one status to another in a single conditional
// update. It returns ErrNotFound when no row has the id and ErrStatusConflict when the
// row exists in a status other than from.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to entity.Status) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.TransitionStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.from", string(from)),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", to).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows affected unavailable")
		return err
	}
	if affected > 0 {
		return nil
	}

	// Nothing matched: tell a missing row apart from one in another status.
	if _, err := r.Status(ctx, id); err != nil {
		return err
	}
	span.SetStatus(codes.Error, "status conflict")
	return ErrStatusConflict
}

// SumRevenue returns sum(qty * unit_price) over orders in the given status, or zero
// when none match.
func (r *Repository) SumRevenue(ctx context.Context, status entity.Status) (decimal.Decimal, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SumRevenue", trace.WithAttributes(attribute.String("order.status", string(status))))
	defer span.End()

	var total decimal.NullDecimal
	err := r.reader.NewSelect().
		Model((*entity.Order)(nil)).
		ColumnExpr("COALESCE(SUM(qty * unit_price), 0)").
		Where("status = ?", status).
		Scan(ctx, &total)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate failed")
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// Count returns the number of stored orders.
func (r *Repository) Count(ctx context.Context) (int, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Count")
	defer span.End()

	count, err := r.reader.NewSelect().Model((*entity.Order)(nil)).Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
	}
	return count, err
}
