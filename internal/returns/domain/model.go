// Package domain holds the post-delivery return aggregate.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReturnStatus represents lifecycle states for a return request.
type ReturnStatus string

const (
	ReturnStatusRequested   ReturnStatus = "REQUESTED"
	ReturnStatusApproved    ReturnStatus = "APPROVED"
	ReturnStatusShippedBack ReturnStatus = "SHIPPED_BACK"
	ReturnStatusReceived    ReturnStatus = "RECEIVED"
	ReturnStatusRefunded    ReturnStatus = "REFUNDED"
	ReturnStatusRejected    ReturnStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is defined.
func IsTerminal(status ReturnStatus) bool {
	return status == ReturnStatusRefunded || status == ReturnStatusRejected
}

// ReturnReason enumerates why the customer wants to send goods back.
type ReturnReason string

const (
	ReasonDamaged        ReturnReason = "DAMAGED"
	ReasonNotAsDescribed ReturnReason = "NOT_AS_DESCRIBED"
	ReasonWrongItem      ReturnReason = "WRONG_ITEM"
	ReasonChangedMind    ReturnReason = "CHANGED_MIND"
	ReasonOther          ReturnReason = "OTHER"
)

func ParseReason(raw string) (ReturnReason, error) {
	switch ReturnReason(raw) {
	case ReasonDamaged, ReasonNotAsDescribed, ReasonWrongItem, ReasonChangedMind, ReasonOther:
		return ReturnReason(raw), nil
	default:
		return "", ErrInvalidReason
	}
}

var (
	ErrNotFound          = errors.New("return_not_found")
	ErrInvalidTransition = errors.New("return_invalid_transition")
	ErrInvalidReason     = errors.New("return_invalid_reason")
	ErrEmptyReason       = errors.New("return_empty_reason")
	ErrEmptyReference    = errors.New("return_empty_reference")
	ErrOrderNotDelivered = errors.New("return_order_not_delivered")
	ErrWindowExpired     = errors.New("return_window_expired")
	ErrActiveExists      = errors.New("return_active_exists")
	ErrItemNotInOrder    = errors.New("return_item_not_in_order")
	ErrQuantityExceeded  = errors.New("return_quantity_exceeded")
	ErrInvalidQuantity   = errors.New("return_invalid_quantity")
)

// Return is a customer's post-delivery request to send goods back. At most
// one non-terminal return exists per order, enforced by a partial unique
// index on the order reference.
type Return struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderID       snowflake.ID `gorm:"not null;index"`
	OrderNumber   string       `gorm:"type:text;not null"`
	CreatorID     snowflake.ID `gorm:"not null;index"`
	CustomerID    snowflake.ID `gorm:"not null;index"`
	CustomerName  string       `gorm:"type:text;not null"`
	CustomerEmail string       `gorm:"type:text;not null"`
	Reason        ReturnReason `gorm:"type:text;not null"`
	ReasonDetails *string      `gorm:"type:text"`
	Status        ReturnStatus `gorm:"type:text;not null;index"`
	// RefundAmount is fixed at request time: the whole order total, or the
	// sum over the selected partial items.
	RefundAmount    int64      `gorm:"not null"`
	Currency        string     `gorm:"type:text;not null"`
	StripeRefundID  *string    `gorm:"type:text"`
	RejectionReason *string    `gorm:"type:text"`
	CreatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ApprovedAt      *time.Time `gorm:""`
	RejectedAt      *time.Time `gorm:""`
	RefundedAt      *time.Time `gorm:""`
	UpdatedAt       time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []ReturnItem `gorm:"-"`
}

// TableName sets the database table name.
func (Return) TableName() string { return "returns" }

// ReturnItem selects a partial quantity of one ordered line. An empty item
// list means the whole order comes back.
type ReturnItem struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ReturnID  snowflake.ID `gorm:"not null;index"`
	ProductID snowflake.ID `gorm:"not null"`
	Quantity  int64        `gorm:"not null"`
	UnitPrice int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ReturnItem) TableName() string { return "return_items" }
