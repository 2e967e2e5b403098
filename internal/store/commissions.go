package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"marketplace-service/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const commissionColumns = `id, order_id, product_id, seller_id, buyer_id, amount, status, created_at, updated_at`

var commissionOrderColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"order_id":   "order_id",
	"id":         "id",
}

// InsertCommission appends a ledger entry. A second entry for the same
// order line is rejected with ErrDuplicate.
func (s *Store) InsertCommission(ctx context.Context, c *models.Commission) error {
	query := `
		INSERT INTO commissions (order_id, product_id, seller_id, buyer_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id, product_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err := s.q.GetContext(ctx, c, query,
		c.OrderID, c.ProductID, c.SellerID, c.BuyerID, c.Amount, c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("commission for order %d product %d: %w", c.OrderID, c.ProductID, ErrDuplicate)
	}
	return err
}

// UpdateCommissionStatus moves every entry of an order whose current status
// is in from to status, returning the number of entries touched
func (s *Store) UpdateCommissionStatus(ctx context.Context, orderID int64, status string, from []string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE commissions SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = ANY($3)",
		status, orderID, pq.Array(from))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SumCommissions totals amount over matching entries, zero when none match
func (s *Store) SumCommissions(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error) {
	where, args := commissionWhere(q)

	var total decimal.Decimal
	err := s.q.GetContext(ctx, &total,
		s.q.Rebind("SELECT COALESCE(SUM(amount), 0) FROM commissions WHERE "+where), args...)
	return total, err
}

// ListCommissions returns matching entries, newest first by default
func (s *Store) ListCommissions(ctx context.Context, q models.CommissionQuery) ([]models.Commission, error) {
	where, args := commissionWhere(q)

	orderBy, ok := commissionOrderColumns[q.OrderBy]
	if !ok {
		orderBy = commissionOrderColumns["created_at"]
	}

	query := "SELECT " + commissionColumns + " FROM commissions WHERE " + where +
		" ORDER BY " + orderBy + " " + sortDirection(q.Order) + ", id DESC"
	query, args = appendLimit(query, args, q.Limit, q.Offset)

	entries := []models.Commission{}
	err := s.q.SelectContext(ctx, &entries, s.q.Rebind(query), args...)
	return entries, err
}

func commissionWhere(q models.CommissionQuery) (string, []interface{}) {
	where := []string{"1=1"}
	var args []interface{}

	if q.OrderID > 0 {
		where = append(where, "order_id = ?")
		args = append(args, q.OrderID)
	}
	if q.SellerID > 0 {
		where = append(where, "seller_id = ?")
		args = append(args, q.SellerID)
	}
	if q.BuyerID > 0 {
		where = append(where, "buyer_id = ?")
		args = append(args, q.BuyerID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if q.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *q.Since)
	}
	if q.OrderCreatedSince != nil {
		where = append(where, "order_id IN (SELECT id FROM orders WHERE created_at >= ?)")
		args = append(args, *q.OrderCreatedSince)
	}

	return strings.Join(where, " AND "), args
}
