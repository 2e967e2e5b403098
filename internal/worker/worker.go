package worker

import (
	"context"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// HostOrderWorker consumes order lifecycle events published by the host
// commerce engine and applies them to marketplace orders
type HostOrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewHostOrderWorker creates a new host order worker
func NewHostOrderWorker(consumer *broker.Consumer, hostEvents *service.HostEventHandler) *HostOrderWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(hostEvents.HandleOrderStatusChanged)

	return &HostOrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.Named("host-order-worker"),
	}
}

// Start blocks consuming until ctx is cancelled
func (w *HostOrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting host order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *HostOrderWorker) Stop() error {
	w.logger.Info("Stopping host order worker")
	return w.consumer.Close()
}
