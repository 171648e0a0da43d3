package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, amount, currency, method, status,
			stripe_payment_intent_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
		payment.StripePaymentIntentID,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findWhere(ctx, db, `id = ?`, id)
}

func (r *repo) FindByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	return r.findWhere(ctx, db, `order_id = ?`, orderID)
}

func (r *repo) findWhere(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, amount, currency, method, status,
			stripe_payment_intent_id, stripe_refund_id, failure_reason,
			created_at, updated_at
		 FROM payments
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

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusProcessing,
		id,
		domain.PaymentStatusPending,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, intentRef string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, stripe_payment_intent_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (?, ?)`,
		domain.PaymentStatusSucceeded,
		intentRef,
		id,
		domain.PaymentStatusPending,
		domain.PaymentStatusProcessing,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status IN (?, ?)`,
		domain.PaymentStatusFailed,
		reason,
		id,
		domain.PaymentStatusPending,
		domain.PaymentStatusProcessing,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, stripe_refund_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusRefunded,
		refundRef,
		id,
		domain.PaymentStatusSucceeded,
	)
	return res.RowsAffected > 0, res.Error
}
