package events

import (
	"context"
	"fmt"
	"sync"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// StatusChangedHandler reacts to an order status change inside the caller's
// unit of work
type StatusChangedHandler func(ctx context.Context, repo store.Repository, event models.OrderStatusChanged) error

// Dispatcher delivers order lifecycle events to subscribers synchronously,
// in subscription order. The first failing handler aborts delivery.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *zap.Logger
}

type namedHandler struct {
	name string
	fn   StatusChangedHandler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{logger: util.GetLogger()}
}

// Subscribe registers a handler for OrderStatusChanged
func (d *Dispatcher) Subscribe(name string, fn StatusChangedHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, namedHandler{name: name, fn: fn})
}

// PublishStatusChanged runs every subscriber against repo
func (d *Dispatcher) PublishStatusChanged(ctx context.Context, repo store.Repository, event models.OrderStatusChanged) error {
	d.mu.RLock()
	handlers := make([]namedHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	for _, h := range handlers {
		d.logger.Debug("Dispatching order status change",
			zap.String("subscriber", h.name),
			zap.Int64("order_id", event.OrderID),
			zap.String("from", event.From),
			zap.String("to", event.To))

		if err := h.fn(ctx, repo, event); err != nil {
			return fmt.Errorf("%s: %w", h.name, err)
		}
	}
	return nil
}
