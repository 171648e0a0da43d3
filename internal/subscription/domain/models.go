// Package domain contains the creator platform-subscription model.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a creator's platform
// subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusPaused   SubscriptionStatus = "PAUSED"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

var ErrNotFound = errors.New("subscription_not_found")

// Subscription is a creator's billing agreement with the platform. The
// plan determines the commission rate applied to each of the creator's
// orders.
type Subscription struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	CreatorID            snowflake.ID       `gorm:"not null;index"`
	Status               SubscriptionStatus `gorm:"type:text;not null;index"`
	StripeSubscriptionID string             `gorm:"type:text;not null;uniqueIndex"`
	StripePriceID        *string            `gorm:"type:text"`
	// CommissionBps is the plan rate in basis points (1000 = 10%).
	CommissionBps int64      `gorm:"not null"`
	CanceledAt    *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsActive reports whether the subscription currently entitles the
// creator to its plan rate.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}

// MapProviderStatus folds the provider's status vocabulary onto the local
// enumeration. Unrecognized values fall back to PAST_DUE, the safe state:
// the creator keeps selling but entitlement checks stay conservative.
// Callers log the fallback.
func MapProviderStatus(raw string) (SubscriptionStatus, bool) {
	switch raw {
	case "active", "trialing":
		if raw == "trialing" {
			return SubscriptionStatusTrialing, true
		}
		return SubscriptionStatusActive, true
	case "past_due", "incomplete", "unpaid":
		return SubscriptionStatusPastDue, true
	case "canceled", "incomplete_expired":
		return SubscriptionStatusCanceled, true
	case "paused":
		return SubscriptionStatusPaused, true
	default:
		return SubscriptionStatusPastDue, false
	}
}
