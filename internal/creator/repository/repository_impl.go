package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/creator/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, creator *domain.Creator) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO creators (
			id, display_name, email, stripe_account_id, onboarding_complete,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		creator.ID,
		creator.DisplayName,
		creator.Email,
		creator.StripeAccountID,
		creator.OnboardingComplete,
		creator.CreatedAt,
		creator.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Creator, error) {
	var item domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, email, stripe_account_id, onboarding_complete,
			created_at, updated_at
		 FROM creators
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) FindByStripeAccount(ctx context.Context, db *gorm.DB, accountRef string) (*domain.Creator, error) {
	var item domain.Creator
	err := db.WithContext(ctx).Raw(
		`SELECT id, display_name, email, stripe_account_id, onboarding_complete,
			created_at, updated_at
		 FROM creators
		 WHERE stripe_account_id = ?`,
		accountRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) CompleteOnboarding(ctx context.Context, db *gorm.DB, accountRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE creators
		 SET onboarding_complete = ?, updated_at = ?
		 WHERE stripe_account_id = ? AND onboarding_complete = ?`,
		true, at, accountRef, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Either already complete or the account is unknown.
		var count int64
		if err := db.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM creators WHERE stripe_account_id = ?`, accountRef,
		).Scan(&count).Error; err != nil {
			return false, err
		}
		if count == 0 {
			return false, domain.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}
