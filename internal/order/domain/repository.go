package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists orders with single-statement conditional transitions.
// Every mutation carries its precondition in the WHERE clause so that the
// commit that lands first wins and the loser observes zero rows affected.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByPaymentIntent(ctx context.Context, db *gorm.DB, intentRef string) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)

	// MarkPaid transitions PENDING -> PAID; reports whether a row changed.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// Cancel transitions PAID -> CANCELED recording the reason.
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (bool, error)
	// MarkShipped transitions PAID -> SHIPPED with carrier details.
	MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, carrier, tracking string, at time.Time) (bool, error)
	// MarkDelivered transitions SHIPPED -> DELIVERED anchoring the return
	// window and the escrow clock.
	MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// OpenDispute transitions DELIVERED -> DISPUTE_OPENED.
	OpenDispute(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// MarkRefunded transitions DELIVERED -> REFUNDED at the end of the
	// return workflow.
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
