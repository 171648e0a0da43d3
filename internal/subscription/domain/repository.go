package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByProviderRef(ctx context.Context, db *gorm.DB, providerRef string) (*Subscription, error)
	FindActiveByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*Subscription, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus, priceRef *string) error
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
