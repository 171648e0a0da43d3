// Package domain holds the order aggregate: line items, shipment state and
// the cancellation workflow.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus represents lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusCanceled      OrderStatus = "CANCELED"
	OrderStatusDisputeOpened OrderStatus = "DISPUTE_OPENED"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
)

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidTransition = errors.New("order_invalid_transition")
	ErrEmptyReason       = errors.New("order_empty_reason")
	ErrNoItems           = errors.New("order_no_items")
	ErrInvalidItem       = errors.New("order_invalid_item")
	ErrMixedCreators     = errors.New("order_mixed_creators")
	ErrMissingPaymentRef = errors.New("order_missing_payment_ref")
	ErrEmptyTracking     = errors.New("order_empty_tracking")
)

// transitions lists every permitted (from -> to) edge. Anything absent is
// rejected with ErrInvalidTransition.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCanceled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {OrderStatusDisputeOpened, OrderStatusRefunded},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined for status.
func IsTerminal(status OrderStatus) bool {
	return len(transitions[status]) == 0
}

// Order is one purchase from one customer to one creator. Rows are never
// deleted; terminal states remain as the audit trail.
type Order struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	OrderNumber           string       `gorm:"type:text;not null;uniqueIndex"`
	CustomerID            snowflake.ID `gorm:"not null;index"`
	CreatorID             snowflake.ID `gorm:"not null;index"`
	Currency              string       `gorm:"type:text;not null"`
	TotalAmount           int64        `gorm:"not null"`
	Status                OrderStatus  `gorm:"type:text;not null;index"`
	StripePaymentIntentID *string      `gorm:"type:text;index"`
	CancelReason          *string      `gorm:"type:text"`
	Carrier               *string      `gorm:"type:text"`
	TrackingNumber        *string      `gorm:"type:text"`
	ShippedAt             *time.Time   `gorm:""`
	DeliveredAt           *time.Time   `gorm:""`
	EscrowReleasedAt      *time.Time   `gorm:""`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []OrderItem `gorm:"-"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderItem is one ordered line. Subtotal is always quantity * unit price
// in minor units.
type OrderItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	OrderID   snowflake.ID `gorm:"not null;index"`
	ProductID snowflake.ID `gorm:"not null;index"`
	Quantity  int64        `gorm:"not null"`
	UnitPrice int64        `gorm:"not null"`
	Subtotal  int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }

// RefundSignal tells the command layer that captured funds must be returned
// through the payment provider. The aggregate itself never calls the
// gateway.
type RefundSignal struct {
	OrderID          snowflake.ID
	PaymentIntentRef string
	Amount           int64
	Currency         string
}
