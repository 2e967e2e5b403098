package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/events"
	"marketplace-service/internal/models"
	"marketplace-service/internal/period"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CommissionLedger records and reconciles the platform's commission on
// seller-attributed order lines
type CommissionLedger struct {
	repo      store.Repository
	rate      decimal.Decimal
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCommissionLedger creates a ledger charging rate on every completed line
func NewCommissionLedger(repo store.Repository, rate decimal.Decimal, publisher EventPublisher) *CommissionLedger {
	return &CommissionLedger{
		repo:      repo,
		rate:      rate,
		publisher: publisher,
		logger:    util.Named("ledger"),
		now:       time.Now,
	}
}

// Rate returns the configured commission rate
func (l *CommissionLedger) Rate() decimal.Decimal {
	return l.rate
}

// RecordRequest describes one ledger entry. Amount is nullable so that a
// missing amount can be told apart from zero.
type RecordRequest struct {
	OrderID   int64
	ProductID int64
	SellerID  int64
	BuyerID   int64
	Amount    decimal.NullDecimal
	Status    string
}

// Record appends a ledger entry and returns its id
func (l *CommissionLedger) Record(ctx context.Context, req RecordRequest) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CommissionLedger.Record", attribute.Int64("order_id", req.OrderID))
	entry, err := l.record(ctx, l.repo, req)
	util.EndSpan(span, err)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func (l *CommissionLedger) record(ctx context.Context, repo store.Repository, req RecordRequest) (*models.Commission, error) {
	switch {
	case req.OrderID <= 0:
		return nil, apperr.Validation("missing_order_id", "Order ID is required.")
	case req.ProductID <= 0:
		return nil, apperr.Validation("missing_product_id", "Product ID is required.")
	case req.SellerID <= 0:
		return nil, apperr.Validation("missing_seller_id", "Seller ID is required.")
	case req.BuyerID <= 0:
		return nil, apperr.Validation("missing_buyer_id", "Buyer ID is required.")
	case !req.Amount.Valid:
		return nil, apperr.Validation("missing_amount", "Commission amount is required.")
	case req.Amount.Decimal.IsNegative():
		return nil, apperr.Validation("invalid_amount", "Commission amount cannot be negative.")
	}

	status := req.Status
	if status == "" {
		status = models.CommissionStatusPending
	}
	if models.CommissionSourceStatuses(status) == nil {
		return nil, apperr.Validation("invalid_status", fmt.Sprintf("Unknown commission status %q.", status))
	}

	entry := &models.Commission{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		SellerID:  req.SellerID,
		BuyerID:   req.BuyerID,
		Amount:    req.Amount.Decimal,
		Status:    status,
	}
	if err := repo.InsertCommission(ctx, entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("commission_exists", "A commission already exists for this order line.")
		}
		return nil, storageErr("Failed to record commission.", err)
	}

	util.CommissionsRecordedTotal.Inc()
	util.CommissionAmountTotal.Add(entry.Amount.InexactFloat64())
	return entry, nil
}

// SetStatus moves every entry of orderID to status and reports how many
// entries were touched. Orders without entries are a no-op.
func (l *CommissionLedger) SetStatus(ctx context.Context, orderID int64, status string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CommissionLedger.SetStatus",
		attribute.Int64("order_id", orderID), attribute.String("status", status))
	n, err := l.setStatus(ctx, l.repo, orderID, status)
	util.EndSpan(span, err)
	return n, err
}

func (l *CommissionLedger) setStatus(ctx context.Context, repo store.Repository, orderID int64, status string) (int64, error) {
	from := models.CommissionSourceStatuses(status)
	if from == nil {
		return 0, apperr.Validation("invalid_status", fmt.Sprintf("Unknown commission status %q.", status))
	}

	n, err := repo.UpdateCommissionStatus(ctx, orderID, status, from)
	if err != nil {
		return 0, storageErr("Failed to update commission status.", err)
	}

	if n > 0 {
		util.CommissionStatusUpdatesTotal.WithLabelValues(status).Add(float64(n))
		l.logger.Info("Commission status updated",
			zap.Int64("order_id", orderID),
			zap.String("status", status),
			zap.Int64("entries", n))

		event := &models.CommissionsUpdatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCommissionsUpdated),
			OrderID:   orderID,
			Status:    status,
			Updated:   n,
		}
		events.AfterCommit(ctx, func(ctx context.Context) {
			if err := l.publisher.PublishCommissionsUpdated(ctx, event); err != nil {
				l.logger.Error("Failed to publish CommissionsUpdated event", zap.Error(err))
			}
		})
	}
	return n, nil
}

// Total sums entries with the given status created inside period. A zero
// sellerID spans all sellers and an empty status means completed.
func (l *CommissionLedger) Total(ctx context.Context, sellerID int64, status string, p period.Period) (decimal.Decimal, error) {
	since, err := windowStart(p, l.now())
	if err != nil {
		return decimal.Zero, err
	}
	if status == "" {
		status = models.CommissionStatusCompleted
	}
	return l.sum(ctx, models.CommissionQuery{SellerID: sellerID, Status: status, Since: since})
}

// Sum totals the entries List would return for q, ignoring paging
func (l *CommissionLedger) Sum(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error) {
	return l.sum(ctx, q)
}

func (l *CommissionLedger) sum(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error) {
	if q.Status != "" && models.CommissionSourceStatuses(q.Status) == nil {
		return decimal.Zero, apperr.Validation("invalid_status", fmt.Sprintf("Unknown commission status %q.", q.Status))
	}

	total, err := l.repo.SumCommissions(ctx, q)
	if err != nil {
		return decimal.Zero, storageErr("Failed to total commissions.", err)
	}
	return total, nil
}

// orderWindowTotal sums completed entries of orders placed since since, the
// same window the sales aggregates use
func (l *CommissionLedger) orderWindowTotal(ctx context.Context, sellerID int64, since *time.Time) (decimal.Decimal, error) {
	return l.sum(ctx, models.CommissionQuery{
		SellerID:          sellerID,
		Status:            models.CommissionStatusCompleted,
		OrderCreatedSince: since,
	})
}

// List returns matching entries, newest first unless q says otherwise
func (l *CommissionLedger) List(ctx context.Context, q models.CommissionQuery) ([]models.Commission, error) {
	entries, err := l.repo.ListCommissions(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to list commissions.", err)
	}
	return entries, nil
}

// HandleOrderStatusChanged reacts to order lifecycle transitions within the
// caller's transaction
func (l *CommissionLedger) HandleOrderStatusChanged(ctx context.Context, repo store.Repository, event models.OrderStatusChanged) error {
	switch event.To {
	case models.OrderStatusCompleted:
		_, err := l.recordForCompletedOrder(ctx, repo, event.OrderID)
		return err
	case models.OrderStatusRefunded:
		_, err := l.setStatus(ctx, repo, event.OrderID, models.CommissionStatusRefunded)
		return err
	case models.OrderStatusCancelled:
		_, err := l.setStatus(ctx, repo, event.OrderID, models.CommissionStatusCancelled)
		return err
	}
	return nil
}

type commissionLine struct {
	productID int64
	sellerID  int64
	total     decimal.Decimal
}

// recordForCompletedOrder writes one completed entry per product line with a
// resolvable seller. An order that already has entries is left alone.
func (l *CommissionLedger) recordForCompletedOrder(ctx context.Context, repo store.Repository, orderID int64) ([]models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionLedger.RecordForCompletedOrder", attribute.Int64("order_id", orderID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	existing, err := repo.ListCommissions(ctx, models.CommissionQuery{OrderID: orderID, Limit: 1})
	if err != nil {
		return nil, storageErr("Failed to read commissions.", err)
	}
	if len(existing) > 0 {
		l.logger.Debug("Commissions already recorded", zap.Int64("order_id", orderID))
		return nil, nil
	}

	order, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, lookupErr("order_not_found", "Order", err)
	}

	lines, err := l.resolveLines(ctx, repo, order)
	if err != nil {
		return nil, err
	}

	recorded := make([]models.Commission, 0, len(lines))
	for _, line := range lines {
		var entry *models.Commission
		entry, err = l.record(ctx, repo, RecordRequest{
			OrderID:   order.ID,
			ProductID: line.productID,
			SellerID:  line.sellerID,
			BuyerID:   order.CustomerID,
			Amount:    decimal.NewNullDecimal(l.commissionFor(line.total)),
			Status:    models.CommissionStatusCompleted,
		})
		if apperr.Is(err, apperr.KindConflict) {
			err = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		recorded = append(recorded, *entry)
	}

	l.logger.Info("Commissions recorded",
		zap.Int64("order_id", order.ID),
		zap.Int("entries", len(recorded)))

	if len(recorded) > 0 {
		event := &models.CommissionsRecordedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCommissionsRecorded),
			OrderID:   order.ID,
			Entries:   make([]models.CommissionData, 0, len(recorded)),
		}
		for _, c := range recorded {
			event.Entries = append(event.Entries, models.CommissionData{
				CommissionID: c.ID,
				ProductID:    c.ProductID,
				SellerID:     c.SellerID,
				Amount:       c.Amount,
			})
		}
		events.AfterCommit(ctx, func(ctx context.Context) {
			if err := l.publisher.PublishCommissionsRecorded(ctx, event); err != nil {
				l.logger.Error("Failed to publish CommissionsRecorded event", zap.Error(err))
			}
		})
	}

	return recorded, nil
}

// resolveLines attributes each order line to a seller, preferring the line's
// own attribution over the product's, and merges lines of the same product
func (l *CommissionLedger) resolveLines(ctx context.Context, repo store.Repository, order *models.Order) ([]commissionLine, error) {
	var missing []int64
	for _, item := range order.Items {
		if item.SellerID == nil {
			missing = append(missing, item.ProductID)
		}
	}

	productSellers := make(map[int64]int64)
	if len(missing) > 0 {
		products, err := repo.GetProductsByIDs(ctx, missing)
		if err != nil {
			return nil, storageErr("Failed to load order products.", err)
		}
		for _, p := range products {
			if p.SellerID != nil {
				productSellers[p.ID] = *p.SellerID
			}
		}
	}

	var lines []commissionLine
	index := make(map[int64]int)
	for _, item := range order.Items {
		var sellerID int64
		if item.SellerID != nil {
			sellerID = *item.SellerID
		} else {
			sellerID = productSellers[item.ProductID]
		}
		if sellerID <= 0 {
			util.CommissionLinesSkippedTotal.Inc()
			l.logger.Warn("Order line has no seller, skipping commission",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID))
			continue
		}

		if i, ok := index[item.ProductID]; ok {
			lines[i].total = lines[i].total.Add(item.Total)
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, commissionLine{productID: item.ProductID, sellerID: sellerID, total: item.Total})
	}
	return lines, nil
}

func (l *CommissionLedger) commissionFor(lineTotal decimal.Decimal) decimal.Decimal {
	return lineTotal.Mul(l.rate).Round(4)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
