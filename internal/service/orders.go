package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/events"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderOptions tunes order handling
type OrderOptions struct {
	RejectEmptyOrders bool
	IdempotencyTTL    time.Duration
	LockTTL           time.Duration
}

// OrderService is the marketplace order adapter
type OrderService struct {
	repo        store.Repository
	filter      *OwnershipFilter
	dispatcher  *events.Dispatcher
	publisher   EventPublisher
	idempotency IdempotencyStore
	locker      Locker
	opts        OrderOptions
	logger      *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo store.Repository,
	filter *OwnershipFilter,
	dispatcher *events.Dispatcher,
	publisher EventPublisher,
	idempotency IdempotencyStore,
	locker Locker,
	opts OrderOptions,
) *OrderService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	return &OrderService{
		repo:        repo,
		filter:      filter,
		dispatcher:  dispatcher,
		publisher:   publisher,
		idempotency: idempotency,
		locker:      locker,
		opts:        opts,
		logger:      util.Named("orders"),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	LineItems      []LineItemRequest `json:"line_items"`
	Billing        *models.Address   `json:"billing,omitempty"`
	Shipping       *models.Address   `json:"shipping,omitempty"`
	PaymentMethod  string            `json:"payment_method,omitempty"`
	IdempotencyKey string            `json:"-"`
}

// LineItemRequest represents a line in an order request
type LineItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Create builds an order from the request, attributing each line to the
// product's seller
func (s *OrderService) Create(ctx context.Context, p models.Principal, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create", attribute.Int64("user_id", p.UserID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if !p.IsAuthenticated() {
		err = apperr.Unauthenticated()
		return nil, err
	}
	if len(req.LineItems) == 0 {
		util.OrdersRejectedTotal.WithLabelValues("no_items").Inc()
		err = apperr.Validation("no_items", "Order must contain at least one line item.")
		return nil, err
	}

	if req.IdempotencyKey != "" {
		orderID, found, lookupFailure := s.idempotency.LookupOrder(ctx, p.UserID, req.IdempotencyKey)
		if lookupFailure != nil {
			s.logger.Warn("Idempotency lookup failed", zap.Error(lookupFailure))
		} else if found {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", orderID))
			order, getErr := s.repo.GetOrder(ctx, orderID)
			if getErr == nil {
				return order, nil
			}
			s.logger.Warn("Remembered order is gone, creating anew", zap.Int64("order_id", orderID), zap.Error(getErr))
		}
	}

	order, err := s.buildOrder(ctx, p, req)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(repo store.Repository) error {
		if err := repo.CreateOrder(ctx, order); err != nil {
			return storageErr("Failed to create order.", err)
		}
		return nil
	})
	if err != nil {
		util.OrdersRejectedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.Int("lines", len(order.Items)))

	if req.IdempotencyKey != "" {
		if err := s.idempotency.RememberOrder(ctx, p.UserID, req.IdempotencyKey, order.ID, s.opts.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to remember idempotency key", zap.Error(err))
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCreated),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Items:      make([]models.OrderItemData, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, models.OrderItemData{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Quantity:  item.Quantity,
			Total:     item.Total,
		})
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// buildOrder resolves products and prices every line. Unknown products are
// skipped; buying one's own product rejects the whole order.
func (s *OrderService) buildOrder(ctx context.Context, p models.Principal, req *CreateOrderRequest) (*models.Order, error) {
	ids := make([]int64, 0, len(req.LineItems))
	for _, line := range req.LineItems {
		if line.Quantity < 0 {
			util.OrdersRejectedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, apperr.Validation("invalid_quantity", fmt.Sprintf("Invalid quantity for product %d.", line.ProductID))
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("Failed to load products.", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	order := &models.Order{
		CustomerID:    p.UserID,
		Status:        models.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		Items:         []models.OrderItem{},
	}
	if req.Billing != nil {
		order.Billing = *req.Billing
	}
	if req.Shipping != nil {
		order.Shipping = *req.Shipping
	}

	for _, line := range req.LineItems {
		product, ok := byID[line.ProductID]
		if !ok {
			util.OrderLinesSkippedTotal.Inc()
			s.logger.Warn("Skipping order line for unknown product", zap.Int64("product_id", line.ProductID))
			continue
		}
		if product.OwnedBy(p.UserID) {
			util.OrdersRejectedTotal.WithLabelValues("self_purchase").Inc()
			return nil, apperr.SelfPurchase()
		}

		quantity := line.Quantity
		if quantity == 0 {
			quantity = 1
		}
		total := product.EffectivePrice().Mul(decimal.NewFromInt(int64(quantity)))

		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  quantity,
			Subtotal:  total,
			Total:     total,
			SellerID:  product.SellerID,
		})
		order.Subtotal = order.Subtotal.Add(total)
	}
	order.Total = order.Subtotal

	if len(order.Items) == 0 {
		if s.opts.RejectEmptyOrders {
			util.OrdersRejectedTotal.WithLabelValues("no_purchasable_items").Inc()
			return nil, apperr.Validation("no_valid_items", "None of the requested products exist.")
		}
		s.logger.Warn("Creating order without purchasable lines", zap.Int64("customer_id", p.UserID))
	}

	return order, nil
}

// Get returns an order visible to the principal
func (s *OrderService) Get(ctx context.Context, p models.Principal, id int64) (*models.Order, error) {
	if err := requireAuth(p); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, lookupErr("order_not_found", "Order", err)
	}
	if err := s.filter.CanViewOrder(p, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns the orders the principal may see, filtered by q
func (s *OrderService) List(ctx context.Context, p models.Principal, q models.OrderQuery) ([]models.Order, error) {
	q, err := s.filter.ScopeOrders(ctx, p, q)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrders(ctx, q)
	if err != nil {
		return nil, storageErr("Failed to list orders.", err)
	}
	return orders, nil
}

// ListForUser returns userID's orders as buyer, seller, or both
func (s *OrderService) ListForUser(ctx context.Context, userID int64, role string, pg models.Page) ([]models.Order, error) {
	if role == "" {
		role = "all"
	}
	if role != "buyer" && role != "seller" && role != "all" {
		return nil, apperr.Validation("invalid_role", fmt.Sprintf("Unknown role %q.", role))
	}

	ids, err := s.filter.visibleOrderIDs(ctx, userID, role)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListOrders(ctx, models.OrderQuery{
		Restricted: true,
		IDs:        ids,
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	})
	if err != nil {
		return nil, storageErr("Failed to list orders.", err)
	}
	return orders, nil
}

// UpdateStatus moves an order to a new status and notifies lifecycle
// subscribers within the same transaction
func (s *OrderService) UpdateStatus(ctx context.Context, p models.Principal, orderID int64, to string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus",
		attribute.Int64("order_id", orderID), attribute.String("to", to))
	var err error
	defer func() { util.EndSpan(span, err) }()

	if err = requireAuth(p); err != nil {
		return nil, err
	}
	if !p.IsAdmin {
		err = apperr.Forbidden("admin_required", "Only administrators can change order status.")
		return nil, err
	}
	if !models.ValidOrderStatus(to) {
		err = apperr.Validation("invalid_status", fmt.Sprintf("Unknown order status %q.", to))
		return nil, err
	}

	lockKey := fmt.Sprintf("order-status:%d", orderID)
	token, acquired, err := s.locker.AcquireLock(ctx, lockKey, s.opts.LockTTL)
	if err != nil {
		err = storageErr("Failed to lock order.", err)
		return nil, err
	}
	if !acquired {
		err = apperr.Conflict("order_busy", "The order is being updated, try again.")
		return nil, err
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
			s.logger.Warn("Failed to release order lock", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()

	txCtx, flush := events.WithDeferred(ctx)
	var change models.OrderStatusChanged
	var order *models.Order

	err = s.repo.WithTx(txCtx, func(repo store.Repository) error {
		current, err := repo.GetOrder(txCtx, orderID)
		if err != nil {
			return lookupErr("order_not_found", "Order", err)
		}

		if err := repo.UpdateOrderStatus(txCtx, orderID, to); err != nil {
			return lookupErr("order_not_found", "Order", err)
		}

		change = models.OrderStatusChanged{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:   orderID,
			From:      current.Status,
			To:        to,
		}
		if err := s.dispatcher.PublishStatusChanged(txCtx, repo, change); err != nil {
			return storageErr("Failed to apply order status change.", err)
		}

		current.Status = to
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(to).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", change.From),
		zap.String("to", to),
		zap.Int64("by", p.UserID))

	if err := s.publisher.PublishOrderStatusChanged(ctx, &change); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
	flush(ctx)

	return order, nil
}
