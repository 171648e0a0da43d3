package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("product_not_found")
	ErrInsufficientStock = errors.New("insufficient_stock")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
)

// Product is the sellable unit listed by a creator. Only the fields the
// order lifecycle needs are modeled here; catalog management is owned by
// other collaborators.
type Product struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CreatorID snowflake.ID `gorm:"not null;index"`
	Name      string       `gorm:"type:text;not null"`
	UnitPrice int64        `gorm:"not null"`
	Currency  string       `gorm:"type:text;not null"`
	Stock     int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	// ReserveStock decrements available stock, failing when not enough
	// remains. The decrement is a single conditional UPDATE.
	ReserveStock(ctx context.Context, db *gorm.DB, id snowflake.ID, qty int64) error
	// RestoreStock returns previously reserved quantity to the shelf.
	RestoreStock(ctx context.Context, db *gorm.DB, id snowflake.ID, qty int64) error
}
