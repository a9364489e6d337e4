package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"feedalert/internal/model"
)

// DefaultTimeout bounds a single transport call.
const DefaultTimeout = 5 * time.Second

// Transport delivers a notification to a push service.
type Transport interface {
	Send(ctx context.Context, n model.Notification) error
}

// Dispatcher paces and bounds transport calls.
type Dispatcher struct {
	transport Transport
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher sending through t. perSecond limits the
// sustained send rate; zero or less disables pacing.
func NewDispatcher(t Transport, timeout time.Duration, perSecond float64, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Dispatcher{
		transport: t,
		limiter:   rate.NewLimiter(limit, 1),
		timeout:   timeout,
		logger:    logger,
	}
}

// Dispatch sends n, waiting for the rate limiter first.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.Notification) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.transport.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	d.logger.Debug("notification sent",
		"title", n.Title,
		"priority", n.Priority,
		"sound", n.Sound,
		"took", time.Since(start),
	)
	return nil
}
