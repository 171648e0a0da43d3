package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, name, unit_price, currency, stock, created_at, updated_at
		 FROM products
		 WHERE id = ?
		 LIMIT 1`,
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

func (r *repo) ReserveStock(ctx context.Context, db *gorm.DB, id snowflake.ID, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock >= ?`,
		qty,
		id,
		qty,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Find(ctx, db, id); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *repo) RestoreStock(ctx context.Context, db *gorm.DB, id snowflake.ID, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET stock = stock + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		qty,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
