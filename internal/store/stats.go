package store

import (
	"context"
	"time"

	"marketplace-service/internal/models"
)

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.q.GetContext(ctx, &user,
		"SELECT id, display_name, email, is_admin, registered_at FROM users WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

// ListSellers returns every non-administrator account
func (s *Store) ListSellers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	err := s.q.SelectContext(ctx, &users,
		"SELECT id, display_name, email, is_admin, registered_at FROM users WHERE is_admin = FALSE ORDER BY id")
	return users, err
}

// SellerSales sums completed line totals attributed to sellerID
func (s *Store) SellerSales(ctx context.Context, sellerID int64, since *time.Time) (models.SalesSummary, error) {
	query := `
		SELECT COUNT(DISTINCT o.id) AS order_count, COALESCE(SUM(oi.total), 0) AS total_sales
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = 'completed' AND oi.seller_id = $1`
	args := []interface{}{sellerID}
	if since != nil {
		query += " AND o.created_at >= $2"
		args = append(args, *since)
	}

	var summary models.SalesSummary
	err := s.q.GetContext(ctx, &summary, query, args...)
	return summary, err
}

// SellerCompletedOrders counts a seller's completed orders over all time and
// finds the earliest one
func (s *Store) SellerCompletedOrders(ctx context.Context, sellerID int64) (models.OrderSpan, error) {
	query := `
		SELECT COUNT(DISTINCT o.id) AS order_count, MIN(o.created_at) AS first_order
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.status = 'completed' AND oi.seller_id = $1`

	var span models.OrderSpan
	err := s.q.GetContext(ctx, &span, query, sellerID)
	return span, err
}

// PlatformSales aggregates completed orders across the marketplace
func (s *Store) PlatformSales(ctx context.Context, since *time.Time) (models.PlatformSales, error) {
	window := ""
	var args []interface{}
	if since != nil {
		window = " AND o.created_at >= $1"
		args = append(args, *since)
	}

	query := `
		SELECT
			COALESCE(SUM(o.total), 0) AS total_sales,
			COUNT(*) AS total_orders,
			(SELECT COUNT(DISTINCT oi.seller_id)
				FROM order_items oi
				JOIN orders o ON o.id = oi.order_id
				WHERE o.status = 'completed' AND oi.seller_id IS NOT NULL` + window + `) AS active_sellers
		FROM orders o
		WHERE o.status = 'completed'` + window

	var sales models.PlatformSales
	err := s.q.GetContext(ctx, &sales, query, args...)
	return sales, err
}
