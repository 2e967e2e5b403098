package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductQuery filters catalog listings
type ProductQuery struct {
	SellerID     *int64
	Status       string
	CategorySlug string
	Search       string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	CreatedSince *time.Time
	OrderBy      string
	Order        string
	Limit        int
	Offset       int
}

// OrderQuery filters order listings. When Restricted is set only IDs are
// eligible, and an empty IDs slice yields no rows.
type OrderQuery struct {
	Restricted bool
	IDs        []int64
	Status     string
	Limit      int
	Offset     int
	OrderBy    string
	Order      string
}

// Page is a limit/offset window over a list. A zero Limit means unbounded.
type Page struct {
	Limit  int
	Offset int
}

// CommissionQuery filters ledger reads. Since bounds the entry's creation,
// OrderCreatedSince the creation of the order it belongs to.
type CommissionQuery struct {
	OrderID           int64
	SellerID          int64
	BuyerID           int64
	Status            string
	Since             *time.Time
	OrderCreatedSince *time.Time
	Limit             int
	Offset            int
	OrderBy           string
	Order             string
}

// SalesSummary aggregates a seller's completed line totals
type SalesSummary struct {
	OrderCount int             `db:"order_count"`
	TotalSales decimal.Decimal `db:"total_sales"`
}

// OrderSpan describes a seller's completed orders over all time
type OrderSpan struct {
	Count      int        `db:"order_count"`
	FirstOrder *time.Time `db:"first_order"`
}

// PlatformSales aggregates completed orders across all sellers
type PlatformSales struct {
	TotalSales    decimal.Decimal `db:"total_sales"`
	TotalOrders   int             `db:"total_orders"`
	ActiveSellers int             `db:"active_sellers"`
}

// SellerStats is the derived per-seller snapshot
type SellerStats struct {
	TotalSales        decimal.Decimal `json:"total_sales"`
	OrderCount        int             `json:"order_count"`
	Commission        decimal.Decimal `json:"commission"`
	NetEarnings       decimal.Decimal `json:"net_earnings"`
	ProductCount      int             `json:"product_count"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	OrderFrequency    decimal.Decimal `json:"order_frequency"`
}

// PlatformStats is the derived platform-wide snapshot
type PlatformStats struct {
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalOrders     int             `json:"total_orders"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	ActiveSellers   int             `json:"active_sellers"`
	TotalProducts   int             `json:"total_products"`
}

// SellerWithStats pairs a user with their snapshot
type SellerWithStats struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	SellerStats
}
