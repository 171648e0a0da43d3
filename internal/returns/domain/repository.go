package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ret *Return) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Return, error)
	// FindActiveByOrder returns the single non-terminal return for an
	// order, or ErrNotFound.
	FindActiveByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Return, error)
	ListItems(ctx context.Context, db *gorm.DB, returnID snowflake.ID) ([]ReturnItem, error)

	// Each transition is a conditional UPDATE from the immediately
	// preceding state; no step may be skipped.
	Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error)
	MarkShippedBack(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	MarkReceived(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string, at time.Time) (bool, error)
}
