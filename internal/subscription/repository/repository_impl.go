package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, creator_id, status, stripe_subscription_id, stripe_price_id,
			commission_bps, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.CreatorID,
		sub.Status,
		sub.StripeSubscriptionID,
		sub.StripePriceID,
		sub.CommissionBps,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, providerRef string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, status, stripe_subscription_id, stripe_price_id,
			commission_bps, canceled_at, created_at, updated_at
		 FROM subscriptions
		 WHERE stripe_subscription_id = ?
		 LIMIT 1`,
		providerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) FindActiveByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, status, stripe_subscription_id, stripe_price_id,
			commission_bps, canceled_at, created_at, updated_at
		 FROM subscriptions
		 WHERE creator_id = ? AND status IN (?, ?)
		 ORDER BY id DESC
		 LIMIT 1`,
		creatorID,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusTrialing,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SubscriptionStatus, priceRef *string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, stripe_price_id = COALESCE(?, stripe_price_id), updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		status,
		priceRef,
		id,
	).Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, canceled_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		domain.SubscriptionStatusCanceled,
		at,
		id,
	).Error
}
