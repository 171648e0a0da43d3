package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, creator_id, currency, total_amount,
			status, stripe_payment_intent_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNumber,
		order.CustomerID,
		order.CreatorID,
		order.Currency,
		order.TotalAmount,
		order.Status,
		order.StripePaymentIntentID,
		order.CreatedAt,
		order.UpdatedAt,
	).Error; err != nil {
		return err
	}

	for _, item := range order.Items {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO order_items (
				id, order_id, product_id, quantity, unit_price, subtotal, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			order.ID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findWhere(ctx, db, `id = ?`, id)
}

func (r *repo) FindByPaymentIntent(ctx context.Context, db *gorm.DB, intentRef string) (*domain.Order, error) {
	return r.findWhere(ctx, db, `stripe_payment_intent_id = ?`, intentRef)
}

func (r *repo) findWhere(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_number, customer_id, creator_id, currency, total_amount,
			status, stripe_payment_intent_id, cancel_reason, carrier, tracking_number,
			shipped_at, delivered_at, escrow_released_at, created_at, updated_at
		 FROM orders
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, quantity, unit_price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = ?
		 ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusPaid,
		id,
		domain.OrderStatusPending,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, cancel_reason = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusCanceled,
		reason,
		id,
		domain.OrderStatusPaid,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkShipped(ctx context.Context, db *gorm.DB, id snowflake.ID, carrier, tracking string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, carrier = ?, tracking_number = ?, shipped_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusShipped,
		carrier,
		tracking,
		at,
		id,
		domain.OrderStatusPaid,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkDelivered(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, delivered_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusDelivered,
		at,
		id,
		domain.OrderStatusShipped,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) OpenDispute(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusDisputeOpened,
		id,
		domain.OrderStatusDelivered,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.OrderStatusRefunded,
		id,
		domain.OrderStatusDelivered,
	)
	return res.RowsAffected > 0, res.Error
}
