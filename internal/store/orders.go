package store

import (
	"context"
	"fmt"
	"strings"

	"marketplace-service/internal/models"

	"github.com/lib/pq"
)

const orderColumns = `id, customer_id, status, subtotal, total, payment_method, billing, shipping, created_at, updated_at`

var orderOrderColumns = map[string]string{
	"date":  "created_at",
	"id":    "id",
	"total": "total",
}

// CreateOrder inserts an order and its items. Callers wrap it in WithTx.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_id, status, subtotal, total, payment_method, billing, shipping)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, order, query,
		order.CustomerID, order.Status, order.Subtotal, order.Total, order.PaymentMethod,
		order.Billing, order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := s.q.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, product_id, name, quantity, subtotal, total, seller_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			item.OrderID, item.ProductID, item.Name, item.Quantity, item.Subtotal, item.Total, item.SellerID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// GetOrder retrieves an order with its items
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}

	order.Items = []models.OrderItem{}
	err = s.q.SelectContext(ctx, &order.Items,
		"SELECT id, order_id, product_id, name, quantity, subtotal, total, seller_id FROM order_items WHERE order_id = $1 ORDER BY id", id)
	if err != nil {
		return nil, err
	}

	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

// BuyerOrderIDs returns orders owned by userID
func (s *Store) BuyerOrderIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := s.q.SelectContext(ctx, &ids, "SELECT id FROM orders WHERE customer_id = $1", userID)
	return ids, err
}

// SellerOrderIDs returns orders with at least one line attributed to userID
func (s *Store) SellerOrderIDs(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	err := s.q.SelectContext(ctx, &ids, "SELECT DISTINCT order_id FROM order_items WHERE seller_id = $1", userID)
	return ids, err
}

// ListOrders returns orders matching q with their items
func (s *Store) ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error) {
	orders := []models.Order{}
	if q.Restricted && len(q.IDs) == 0 {
		return orders, nil
	}

	where := []string{"1=1"}
	var args []interface{}
	if q.Restricted {
		where = append(where, "id = ANY(?)")
		args = append(args, pq.Array(q.IDs))
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}

	orderBy, ok := orderOrderColumns[q.OrderBy]
	if !ok {
		orderBy = orderOrderColumns["date"]
	}

	query := "SELECT " + orderColumns + " FROM orders WHERE " + strings.Join(where, " AND ") +
		" ORDER BY " + orderBy + " " + sortDirection(q.Order) + ", id DESC"
	query, args = appendLimit(query, args, q.Limit, q.Offset)

	if err := s.q.SelectContext(ctx, &orders, s.q.Rebind(query), args...); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		orders[i].Items = []models.OrderItem{}
		byID[orders[i].ID] = &orders[i]
	}

	var items []models.OrderItem
	err := s.q.SelectContext(ctx, &items,
		"SELECT id, order_id, product_id, name, quantity, subtotal, total, seller_id FROM order_items WHERE order_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	return orders, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func sortDirection(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

func appendLimit(query string, args []interface{}, limit, offset int) (string, []interface{}) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}
