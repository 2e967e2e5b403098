package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Principal is the authenticated actor making a request
type Principal struct {
	UserID  int64
	IsAdmin bool
}

// IsAuthenticated reports whether the principal carries a user
func (p Principal) IsAuthenticated() bool {
	return p.UserID > 0
}

// SystemPrincipal is used for host-originated lifecycle events
var SystemPrincipal = Principal{UserID: -1, IsAdmin: true}

// User represents a host platform account
type User struct {
	ID           int64     `db:"id" json:"id"`
	DisplayName  string    `db:"display_name" json:"name"`
	Email        string    `db:"email" json:"email"`
	IsAdmin      bool      `db:"is_admin" json:"-"`
	RegisteredAt time.Time `db:"registered_at" json:"registered"`
}

// Product represents a catalog entry decorated with seller attribution
type Product struct {
	ID               int64               `db:"id" json:"id"`
	SellerID         *int64              `db:"seller_id" json:"seller_id"`
	Name             string              `db:"name" json:"name"`
	Slug             string              `db:"slug" json:"slug"`
	Status           string              `db:"status" json:"status"`
	Description      string              `db:"description" json:"description"`
	ShortDescription string              `db:"short_description" json:"short_description"`
	RegularPrice     decimal.Decimal     `db:"regular_price" json:"regular_price"`
	SalePrice        decimal.NullDecimal `db:"sale_price" json:"sale_price"`
	Price            decimal.Decimal     `db:"price" json:"price"`
	CategoryIDs      pq.Int64Array       `db:"category_ids" json:"categories"`
	ImageIDs         pq.Int64Array       `db:"image_ids" json:"images"`
	CreatedAt        time.Time           `db:"created_at" json:"date_created"`
	UpdatedAt        time.Time           `db:"updated_at" json:"date_modified"`

	Attributes []ProductAttribute `db:"-" json:"attributes,omitempty"`
}

// Product statuses
const (
	ProductStatusPublished = "published"
	ProductStatusDraft     = "draft"
	ProductStatusPending   = "pending"
	ProductStatusPrivate   = "private"
)

// ValidProductStatus reports whether s is a known product status
func ValidProductStatus(s string) bool {
	switch s {
	case ProductStatusPublished, ProductStatusDraft, ProductStatusPending, ProductStatusPrivate:
		return true
	}
	return false
}

// EffectivePrice is the sale price when set and lower than the regular price
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.LessThan(p.RegularPrice) {
		return p.SalePrice.Decimal
	}
	return p.RegularPrice
}

// OwnedBy reports whether the product is attributed to userID
func (p *Product) OwnedBy(userID int64) bool {
	return p.SellerID != nil && *p.SellerID == userID
}

// ProductAttribute is a marketplace-specific attribute on a product.
// Taxonomy-backed attributes keep their values as terms and leave Value empty.
type ProductAttribute struct {
	ProductID  int64    `db:"product_id" json:"-"`
	Name       string   `db:"name" json:"name"`
	Value      string   `db:"value" json:"value"`
	IsTaxonomy bool     `db:"is_taxonomy" json:"is_taxonomy"`
	Position   int      `db:"position" json:"position"`
	Options    []string `db:"-" json:"options,omitempty"`
}

// Term is a value inside an attribute taxonomy
type Term struct {
	ID       int64  `db:"id" json:"id"`
	Taxonomy string `db:"taxonomy" json:"taxonomy"`
	Name     string `db:"name" json:"name"`
	Slug     string `db:"slug" json:"slug"`
}

// Order represents a customer order in the host engine
type Order struct {
	ID            int64           `db:"id" json:"id"`
	CustomerID    int64           `db:"customer_id" json:"customer_id"`
	Status        string          `db:"status" json:"status"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total         decimal.Decimal `db:"total" json:"total"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Billing       Address         `db:"billing" json:"billing"`
	Shipping      Address         `db:"shipping" json:"shipping"`
	CreatedAt     time.Time       `db:"created_at" json:"date_created"`
	UpdatedAt     time.Time       `db:"updated_at" json:"date_modified"`

	Items []OrderItem `db:"-" json:"line_items"`
}

// OrderItem is a single line of an order, attributed to its seller
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"-"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	Total     decimal.Decimal `db:"total" json:"total"`
	SellerID  *int64          `db:"seller_id" json:"seller_id"`
}

// HasSeller reports whether the line is attributed to userID
func (o *Order) HasSeller(userID int64) bool {
	for _, item := range o.Items {
		if item.SellerID != nil && *item.SellerID == userID {
			return true
		}
	}
	return false
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusOnHold     = "on-hold"
	OrderStatusCompleted  = "completed"
	OrderStatusRefunded   = "refunded"
	OrderStatusCancelled  = "cancelled"
	OrderStatusFailed     = "failed"
)

// ValidOrderStatus reports whether s is a known order status
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusOnHold, OrderStatusCompleted,
		OrderStatusRefunded, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// Address is a billing or shipping address stored as JSONB
type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1,omitempty"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode,omitempty"`
	Country   string `json:"country,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Value implements driver.Valuer
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Address) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into Address", src)
	}
}

// Commission is a single ledger entry owed on an order line
type Commission struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	SellerID  int64           `db:"seller_id" json:"seller_id"`
	BuyerID   int64           `db:"buyer_id" json:"buyer_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Commission statuses
const (
	CommissionStatusPending   = "pending"
	CommissionStatusCompleted = "completed"
	CommissionStatusRefunded  = "refunded"
	CommissionStatusCancelled = "cancelled"
)

// CommissionSourceStatuses lists the statuses an entry may move to target from.
// The target itself is included so that repeating a transition only re-stamps.
func CommissionSourceStatuses(target string) []string {
	switch target {
	case CommissionStatusPending:
		return []string{CommissionStatusPending}
	case CommissionStatusCompleted:
		return []string{CommissionStatusPending, CommissionStatusCompleted}
	case CommissionStatusRefunded:
		return []string{CommissionStatusPending, CommissionStatusCompleted, CommissionStatusRefunded}
	case CommissionStatusCancelled:
		return []string{CommissionStatusPending, CommissionStatusCompleted, CommissionStatusCancelled}
	}
	return nil
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
