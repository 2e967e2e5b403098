package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"marketplace-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestInsertCommission(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO commissions")).
		WithArgs(int64(10), int64(20), int64(3), int64(4), decimal.NewFromInt(5), models.CommissionStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	c := &models.Commission{
		OrderID:   10,
		ProductID: 20,
		SellerID:  3,
		BuyerID:   4,
		Amount:    decimal.NewFromInt(5),
		Status:    models.CommissionStatusCompleted,
	}
	require.NoError(t, s.InsertCommission(context.Background(), c))

	assert.Equal(t, int64(1), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCommissionDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (order_id, product_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}))

	err := s.InsertCommission(context.Background(), &models.Commission{OrderID: 1, ProductID: 2})

	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCommissionStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE commissions SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = ANY($3)")).
		WithArgs(models.CommissionStatusRefunded, int64(10), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.UpdateCommissionStatus(context.Background(), 10, models.CommissionStatusRefunded,
		models.CommissionSourceStatuses(models.CommissionStatusRefunded))

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumCommissionsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0) FROM commissions WHERE 1=1 AND seller_id = $1 AND status = $2 AND created_at >= $3")).
		WithArgs(int64(3), models.CommissionStatusCompleted, since).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("12.5000"))

	total, err := s.SumCommissions(context.Background(), models.CommissionQuery{
		SellerID: 3,
		Status:   models.CommissionStatusCompleted,
		Since:    &since,
	})

	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumCommissionsByOrderWindow(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM commissions WHERE 1=1 AND status = $1 AND order_id IN (SELECT id FROM orders WHERE created_at >= $2)")).
		WithArgs(models.CommissionStatusCompleted, since).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))

	total, err := s.SumCommissions(context.Background(), models.CommissionQuery{
		Status:            models.CommissionStatusCompleted,
		OrderCreatedSince: &since,
	})

	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCommissionsDefaultsToNewestFirst(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM commissions WHERE 1=1 AND order_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(int64(9), 5, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "seller_id", "buyer_id", "amount", "status", "created_at", "updated_at"}).
			AddRow(2, 9, 20, 3, 4, "5.0000", "completed", now, now))

	entries, err := s.ListCommissions(context.Background(), models.CommissionQuery{
		OrderID: 9,
		Limit:   5,
		Offset:  10,
		OrderBy: "DROP TABLE",
	})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(5)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersRestrictedEmptyReturnsNothing(t *testing.T) {
	s, mock := newMockStore(t)

	orders, err := s.ListOrders(context.Background(), models.OrderQuery{Restricted: true})

	require.NoError(t, err)
	assert.Empty(t, orders)
	// no query may reach the database for an empty visible set
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersLoadsItems(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE 1=1 AND id = ANY($1) ORDER BY created_at DESC, id DESC")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_id", "status", "subtotal", "total", "payment_method", "billing", "shipping", "created_at", "updated_at"}).
			AddRow(5, 2, "completed", "100", "100", "cod", nil, []byte(`{"city":"Oslo"}`), now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_items WHERE order_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "name", "quantity", "subtotal", "total", "seller_id"}).
			AddRow(1, 5, 7, "Chrome pole", 2, "100", "100", 3))

	orders, err := s.ListOrders(context.Background(), models.OrderQuery{Restricted: true, IDs: []int64{5}})

	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Oslo", orders[0].Shipping.City)
	require.Len(t, orders[0].Items, 1)
	assert.True(t, orders[0].HasSeller(3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetProduct(context.Background(), 99)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteProductMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteProduct(context.Background(), 4)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsBuildsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	seller := int64(3)
	min := decimal.NewFromInt(10)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products p WHERE 1=1 AND p.seller_id = $1 AND p.status = $2 AND p.price >= $3 ORDER BY p.price ASC, p.id DESC LIMIT $4")).
		WithArgs(seller, models.ProductStatusPublished, min, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Chrome pole"))

	products, err := s.ListProducts(context.Background(), models.ProductQuery{
		SellerID: &seller,
		Status:   models.ProductStatusPublished,
		MinPrice: &min,
		OrderBy:  "price",
		Order:    "asc",
		Limit:    10,
	})

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Chrome pole", products[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE orders SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx Repository) error {
		if err := tx.UpdateOrderStatus(context.Background(), 1, models.OrderStatusCompleted); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO processed_events")).
		WithArgs("evt-1", models.EventTypeOrderStatusChanged).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx Repository) error {
		return tx.MarkEventProcessed(context.Background(), "evt-1", models.EventTypeOrderStatusChanged)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlatformSalesEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("AS active_sellers")).
		WillReturnRows(sqlmock.NewRows([]string{"total_sales", "total_orders", "active_sellers"}).AddRow("0", 0, 0))

	sales, err := s.PlatformSales(context.Background(), nil)

	require.NoError(t, err)
	assert.True(t, sales.TotalSales.IsZero())
	assert.Zero(t, sales.TotalOrders)
	assert.Zero(t, sales.ActiveSellers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
