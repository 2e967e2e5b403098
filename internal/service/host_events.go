package service

import (
	"context"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// HostEventHandler applies order status changes announced by the host
// commerce engine
type HostEventHandler struct {
	repo   store.Repository
	orders *OrderService
	logger *zap.Logger
}

// NewHostEventHandler creates a new host event handler
func NewHostEventHandler(repo store.Repository, orders *OrderService) *HostEventHandler {
	return &HostEventHandler{
		repo:   repo,
		orders: orders,
		logger: util.Named("host-events"),
	}
}

// HandleOrderStatusChanged applies event once per event id
func (h *HostEventHandler) HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChanged) error {
	ctx, span := util.StartSpan(ctx, "HostEventHandler.HandleOrderStatusChanged",
		attribute.Int64("order_id", event.OrderID), attribute.String("event_id", event.EventID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if event.EventID != "" {
		processed, checkErr := h.repo.IsEventProcessed(ctx, event.EventID)
		if checkErr != nil {
			err = storageErr("Failed to check event processed.", checkErr)
			return err
		}
		if processed {
			h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}
	}

	_, err = h.orders.UpdateStatus(ctx, models.SystemPrincipal, event.OrderID, event.To)
	switch {
	case apperr.Is(err, apperr.KindNotFound), apperr.Is(err, apperr.KindValidation):
		h.logger.Warn("Dropping host order event",
			zap.Int64("order_id", event.OrderID),
			zap.String("to", event.To),
			zap.Error(err))
		err = nil
	case err != nil:
		return err
	}

	if event.EventID != "" {
		if markErr := h.repo.MarkEventProcessed(ctx, event.EventID, models.EventTypeOrderStatusChanged); markErr != nil {
			h.logger.Error("Failed to mark event processed", zap.Error(markErr))
		}
	}
	return nil
}
