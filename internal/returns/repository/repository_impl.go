package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/returns/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ret *domain.Return) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO returns (
			id, order_id, order_number, creator_id, customer_id, customer_name,
			customer_email, reason, reason_details, status, refund_amount,
			currency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ret.ID,
		ret.OrderID,
		ret.OrderNumber,
		ret.CreatorID,
		ret.CustomerID,
		ret.CustomerName,
		ret.CustomerEmail,
		ret.Reason,
		ret.ReasonDetails,
		ret.Status,
		ret.RefundAmount,
		ret.Currency,
		ret.CreatedAt,
		ret.UpdatedAt,
	).Error; err != nil {
		return err
	}

	for _, item := range ret.Items {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO return_items (
				id, return_id, product_id, quantity, unit_price, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID,
			ret.ID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Return, error) {
	var item domain.Return
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE id = ? LIMIT 1`,
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

func (r *repo) FindActiveByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Return, error) {
	var item domain.Return
	err := db.WithContext(ctx).Raw(
		selectColumns+` WHERE order_id = ? AND status NOT IN (?, ?) LIMIT 1`,
		orderID,
		domain.ReturnStatusRefunded,
		domain.ReturnStatusRejected,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

const selectColumns = `SELECT id, order_id, order_number, creator_id, customer_id,
	customer_name, customer_email, reason, reason_details, status, refund_amount,
	currency, stripe_refund_id, rejection_reason, created_at, approved_at,
	rejected_at, refunded_at, updated_at
 FROM returns`

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, returnID snowflake.ID) ([]domain.ReturnItem, error) {
	var items []domain.ReturnItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, return_id, product_id, quantity, unit_price, created_at
		 FROM return_items
		 WHERE return_id = ?
		 ORDER BY id`,
		returnID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE returns
		 SET status = ?, approved_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.ReturnStatusApproved,
		at,
		id,
		domain.ReturnStatusRequested,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) Reject(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE returns
		 SET status = ?, rejection_reason = ?, rejected_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.ReturnStatusRejected,
		reason,
		at,
		id,
		domain.ReturnStatusRequested,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkShippedBack(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE returns
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.ReturnStatusShippedBack,
		id,
		domain.ReturnStatusApproved,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkReceived(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE returns
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.ReturnStatusReceived,
		id,
		domain.ReturnStatusShippedBack,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE returns
		 SET status = ?, stripe_refund_id = ?, refunded_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.ReturnStatusRefunded,
		refundRef,
		at,
		id,
		domain.ReturnStatusReceived,
	)
	return res.RowsAffected > 0, res.Error
}
