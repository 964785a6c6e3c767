package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/orders/pkg/errorbank"
)

// Builder assembles the JSON envelope shared by every HTTP endpoint:
// {"success": bool, "data"|"error": ..., "meta": {...}}.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	err    error
	meta   map[string]any
}

// ErrorBody is the error member of a failed response.
type ErrorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// New instantiates a Builder for the provided request context.
func New(ctx echo.Context) *Builder {
	return &Builder{ctx: ctx, status: http.StatusOK}
}

// Created is shorthand for a 201 response carrying data.
func Created(ctx echo.Context, data any) error {
	return New(ctx).WithStatus(http.StatusCreated).WithData(data).Build()
}

// WithStatus overrides the response status code.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData attaches a success payload.
func (b *Builder) WithData(data any) *Builder {
	b.data = data
	return b
}

// WithError records an error to be rendered. It takes precedence over data.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta appends auxiliary metadata to the response.
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Build finalises and emits the HTTP response.
func (b *Builder) Build() error {
	if id := b.ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		b.WithMeta("request_id", id)
	}
	if b.err != nil {
		return b.buildError()
	}
	return b.buildSuccess()
}

func (b *Builder) buildSuccess() error {
	payload := struct {
		Success bool           `json:"success"`
		Data    any            `json:"data,omitempty"`
		Meta    map[string]any `json:"meta,omitempty"`
	}{
		Success: true,
		Data:    b.data,
		Meta:    b.meta,
	}
	return b.ctx.JSON(b.status, payload)
}

func (b *Builder) buildError() error {
	appErr := errorbank.From(b.err)
	status := b.status
	if status < http.StatusBadRequest {
		status = appErr.StatusCode()
	}

	body := ErrorBody{
		Kind:    string(appErr.Kind()),
		Message: appErr.Message(),
	}
	// Details of server-side failures may carry driver internals.
	if status < http.StatusInternalServerError {
		body.Details = appErr.Details()
	}

	payload := struct {
		Success bool           `json:"success"`
		Error   ErrorBody      `json:"error"`
		Meta    map[string]any `json:"meta,omitempty"`
	}{
		Error: body,
		Meta:  b.meta,
	}
	return b.ctx.JSON(status, payload)
}
