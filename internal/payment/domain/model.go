// Package domain holds the payment aggregate: the financial record
// mirroring one provider-side payment attempt, owned 1:1 by an order.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/money"
	"gorm.io/gorm"
)

// PaymentStatus represents lifecycle states for a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

var (
	ErrNotFound          = errors.New("payment_not_found")
	ErrInvalidTransition = errors.New("payment_invalid_transition")
	// ErrAlreadyFinal marks re-invocation against a terminal payment. The
	// webhook reconciler treats it as "nothing to do", unlike
	// ErrInvalidTransition which is a genuine protocol violation.
	ErrAlreadyFinal = errors.New("payment_already_final")
	// ErrReferenceConflict means the payment already succeeded under a
	// different provider reference. Data integrity issue; never swallowed.
	ErrReferenceConflict = errors.New("payment_reference_conflict")
	ErrEmptyReason       = errors.New("payment_empty_reason")
	ErrEmptyReference    = errors.New("payment_empty_reference")
	ErrNotRefundable     = errors.New("payment_not_refundable")
	// ErrProviderFailure wraps failures talking to the external payment
	// provider so callers can decide whether to commit local state.
	ErrProviderFailure = errors.New("payment_provider_failure")
)

// IsTerminal reports whether status permits no further transition.
func IsTerminal(status PaymentStatus) bool {
	return status == PaymentStatusFailed || status == PaymentStatusRefunded
}

// Payment mirrors one provider payment attempt for one order.
type Payment struct {
	ID                    snowflake.ID        `gorm:"primaryKey"`
	OrderID               snowflake.ID        `gorm:"not null;uniqueIndex"`
	Amount                int64               `gorm:"not null"`
	Currency              string              `gorm:"type:text;not null"`
	Method                money.PaymentMethod `gorm:"type:text;not null"`
	Status                PaymentStatus       `gorm:"type:text;not null;index"`
	StripePaymentIntentID *string             `gorm:"type:text;index"`
	StripeRefundID        *string             `gorm:"type:text"`
	FailureReason         *string             `gorm:"type:text"`
	CreatedAt             time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// CanBeRefunded reports whether a refund may be issued.
func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentStatusSucceeded
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)

	// MarkProcessing transitions PENDING -> PROCESSING.
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// MarkSucceeded transitions PENDING/PROCESSING -> SUCCEEDED recording
	// the provider payment reference.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, intentRef string) (bool, error)
	// MarkFailed transitions PENDING/PROCESSING -> FAILED with the reason.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (bool, error)
	// MarkRefunded transitions SUCCEEDED -> REFUNDED recording the provider
	// refund reference.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string) (bool, error)
}

// RefundIssuer is the outbound port toward the payment provider. The
// aggregate only signals; issuing the refund is an external collaborator.
type RefundIssuer interface {
	IssueRefund(ctx context.Context, paymentIntentRef string, amount int64) (string, error)
}
