package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("creator_not_found")
	ErrEmptyName    = errors.New("creator_name_required")
	ErrMissingStripeRef = errors.New("creator_stripe_account_required")
)

// Creator is a seller on the platform. Payouts cannot be released until
// Stripe onboarding has completed for the connected account.
type Creator struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id,string"`
	DisplayName        string       `gorm:"column:display_name" json:"display_name"`
	Email              string       `gorm:"column:email" json:"email"`
	StripeAccountID    string       `gorm:"column:stripe_account_id;uniqueIndex" json:"stripe_account_id"`
	OnboardingComplete bool         `gorm:"column:onboarding_complete" json:"onboarding_complete"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (Creator) TableName() string { return "creators" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, creator *Creator) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Creator, error)
	FindByStripeAccount(ctx context.Context, db *gorm.DB, accountRef string) (*Creator, error)

	// CompleteOnboarding flips onboarding_complete for the account. The
	// returned bool reports whether this call changed the row.
	CompleteOnboarding(ctx context.Context, db *gorm.DB, accountRef string, at time.Time) (bool, error)
}
