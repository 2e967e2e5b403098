package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeCommissionsRecorded = "COMMISSIONS_RECORDED"
	EventTypeCommissionsUpdated  = "COMMISSIONS_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChanged is emitted by the host engine whenever an order moves
// between statuses
type OrderStatusChanged struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// OrderCreatedEvent published when a marketplace order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	CustomerID int64           `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Items      []OrderItemData `json:"items"`
}

// CommissionsRecordedEvent published after an order's commissions are written
type CommissionsRecordedEvent struct {
	BaseEvent
	OrderID int64            `json:"order_id"`
	Entries []CommissionData `json:"entries"`
}

// CommissionsUpdatedEvent published after an order's commissions change status
type CommissionsUpdatedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
	Updated int64  `json:"updated"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	SellerID  *int64          `json:"seller_id,omitempty"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
}

// CommissionData represents a ledger entry in events
type CommissionData struct {
	CommissionID int64           `json:"commission_id"`
	ProductID    int64           `json:"product_id"`
	SellerID     int64           `json:"seller_id"`
	Amount       decimal.Decimal `json:"amount"`
}
