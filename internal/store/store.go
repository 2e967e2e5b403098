package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a referenced row does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert
var ErrDuplicate = errors.New("duplicate")

// Repository is the host commerce storage consumed by the marketplace core
type Repository interface {
	WithTx(ctx context.Context, fn func(Repository) error) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, error)
	CountProducts(ctx context.Context, q models.ProductQuery) (int, error)

	TaxonomyExists(ctx context.Context, taxonomy string) (bool, error)
	FindOrCreateTerm(ctx context.Context, taxonomy, name string) (*models.Term, error)
	SetProductTerms(ctx context.Context, productID int64, taxonomy string, termIDs []int64) error
	ReplaceProductAttributes(ctx context.Context, productID int64, attrs []models.ProductAttribute) error
	GetProductAttributes(ctx context.Context, productID int64) ([]models.ProductAttribute, error)

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) error
	BuyerOrderIDs(ctx context.Context, userID int64) ([]int64, error)
	SellerOrderIDs(ctx context.Context, userID int64) ([]int64, error)
	ListOrders(ctx context.Context, q models.OrderQuery) ([]models.Order, error)

	InsertCommission(ctx context.Context, c *models.Commission) error
	UpdateCommissionStatus(ctx context.Context, orderID int64, status string, from []string) (int64, error)
	SumCommissions(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error)
	ListCommissions(ctx context.Context, q models.CommissionQuery) ([]models.Commission, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListSellers(ctx context.Context) ([]models.User, error)
	SellerSales(ctx context.Context, sellerID int64, since *time.Time) (models.SalesSummary, error)
	SellerCompletedOrders(ctx context.Context, sellerID int64) (models.OrderSpan, error)
	PlatformSales(ctx context.Context, since *time.Time) (models.PlatformSales, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

type Store struct {
	db *sqlx.DB
	q  queryer
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an existing connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a single transaction. Nested calls reuse the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(Repository) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}
