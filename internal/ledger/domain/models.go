// Package domain defines the append-only platform revenue ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies recognized platform revenue.
type TransactionType string

const (
	TypeCommission   TransactionType = "COMMISSION"
	TypeSubscription TransactionType = "SUBSCRIPTION"
)

// TransactionStatus is RECORDED for normal entries and REVERSED for
// compensating corrections. Rows are never mutated.
type TransactionStatus string

const (
	StatusRecorded TransactionStatus = "RECORDED"
	StatusReversed TransactionStatus = "REVERSED"
)

var (
	ErrInvalidType    = errors.New("ledger_invalid_type")
	ErrInvalidAmount  = errors.New("ledger_invalid_amount")
	ErrInvalidEventID = errors.New("ledger_invalid_event_id")
	ErrInvalidCreator = errors.New("ledger_invalid_creator")
	ErrEntryNotFound  = errors.New("ledger_entry_not_found")
)

// PlatformTransaction is one immutable ledger row. The stripe_event_id
// column carries a unique constraint: exactly one row exists per external
// event no matter how many times the event is delivered.
type PlatformTransaction struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	Type           TransactionType   `gorm:"type:text;not null;index"`
	Status         TransactionStatus `gorm:"type:text;not null"`
	Amount         int64             `gorm:"not null"`
	Currency       string            `gorm:"type:text;not null"`
	CreatorID      snowflake.ID      `gorm:"not null;index"`
	OrderID        *snowflake.ID     `gorm:"index"`
	SubscriptionID *snowflake.ID     `gorm:"index"`
	StripeEventID  string            `gorm:"type:text;not null;uniqueIndex"`
	// PeriodStart is the first of the accounting month, UTC.
	PeriodStart time.Time `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlatformTransaction) TableName() string { return "platform_transactions" }

// PeriodOf truncates t to the first of its month in UTC.
func PeriodOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
