// Package correlation ties together the log lines of one unit of work. HTTP
// requests get an ID from middleware; nudge timer callbacks and world-feed
// ticks have no request, so they mint their own through NewContext.
package correlation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const attrKey = "correlation_id"

type ctxKey struct{}

// NewID returns a short correlation ID, the first hex group of a UUID.
func NewID() string {
	return uuid.NewString()[:8]
}

// NewContext returns ctx tagged with a freshly minted correlation ID.
func NewContext(ctx context.Context) context.Context {
	return WithID(ctx, NewID())
}

// WithID returns ctx carrying the given correlation ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID extracts the correlation ID from ctx. The second return is false when
// no non-empty ID is present.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Handler decorates records with the context's correlation ID before passing
// them to the wrapped slog.Handler.
type Handler struct {
	next slog.Handler
}

// NewHandler wraps next in a correlation-aware handler.
func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String(attrKey, id))
	}
	if err := h.next.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}
