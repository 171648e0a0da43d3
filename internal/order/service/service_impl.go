package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/craftora/craftora/internal/catalog/domain"
	"github.com/craftora/craftora/internal/clock"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    orderdomain.Repository
	Catalog catalogdomain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    orderdomain.Repository
	catalog catalogdomain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

// CreateRequest is what the checkout collaborator supplies.
type CreateRequest struct {
	CustomerID      snowflake.ID
	Items           []CreateItem
	PaymentIntentID string
}

type CreateItem struct {
	ProductID snowflake.ID
	Quantity  int64
}

// Create opens a PENDING order, reserving stock for every line item. Unit
// prices are read from the catalog at order time; the total is always the
// sum of line subtotals.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*orderdomain.Order, error) {
	if req.CustomerID == 0 {
		return nil, orderdomain.ErrInvalidItem
	}
	if len(req.Items) == 0 {
		return nil, orderdomain.ErrNoItems
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:         s.genID.Generate(),
		CustomerID: req.CustomerID,
		Status:     orderdomain.OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	order.OrderNumber = fmt.Sprintf("ORD-%s", order.ID)
	if ref := strings.TrimSpace(req.PaymentIntentID); ref != "" {
		order.StripePaymentIntentID = &ref
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		for _, line := range req.Items {
			if line.ProductID == 0 || line.Quantity <= 0 {
				return orderdomain.ErrInvalidItem
			}
			product, err := s.catalog.Find(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if order.CreatorID == 0 {
				order.CreatorID = product.CreatorID
				order.Currency = product.Currency
			} else if order.CreatorID != product.CreatorID {
				return orderdomain.ErrMixedCreators
			}
			if err := s.catalog.ReserveStock(ctx, tx, product.ID, line.Quantity); err != nil {
				return err
			}
			subtotal := line.Quantity * product.UnitPrice
			total += subtotal
			order.Items = append(order.Items, orderdomain.OrderItem{
				ID:        s.genID.Generate(),
				OrderID:   order.ID,
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.UnitPrice,
				Subtotal:  subtotal,
				CreatedAt: now,
			})
		}
		order.TotalAmount = total
		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("total_amount", order.TotalAmount),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Service) FindByPaymentIntent(ctx context.Context, intentRef string) (*orderdomain.Order, error) {
	intentRef = strings.TrimSpace(intentRef)
	if intentRef == "" {
		return nil, orderdomain.ErrMissingPaymentRef
	}
	return s.repo.FindByPaymentIntent(ctx, s.db, intentRef)
}

// MarkPaid transitions a PENDING order to PAID. Re-invocation when the
// order is already PAID is a no-op so duplicate webhook delivery stays
// harmless.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.MarkPaid(ctx, s.db, id)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}

	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	if order.Status == orderdomain.OrderStatusPaid {
		return nil
	}
	return s.transitionError(order, orderdomain.OrderStatusPaid)
}

// Cancel aborts a PAID order: the status flips, reserved stock returns to
// the shelf, and the caller receives the signal to refund captured funds.
// Stock restoration and the status change commit in one transaction.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*orderdomain.RefundSignal, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, orderdomain.ErrEmptyReason
	}

	var signal *orderdomain.RefundSignal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.Cancel(ctx, tx, id, reason)
		if err != nil {
			return err
		}
		if !moved {
			order, err := s.repo.Find(ctx, tx, id)
			if err != nil {
				return err
			}
			return s.transitionError(order, orderdomain.OrderStatusCanceled)
		}

		order, err := s.repo.Find(ctx, tx, id)
		if err != nil {
			return err
		}
		items, err := s.repo.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.catalog.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if order.StripePaymentIntentID == nil || *order.StripePaymentIntentID == "" {
			return orderdomain.ErrMissingPaymentRef
		}
		signal = &orderdomain.RefundSignal{
			OrderID:          order.ID,
			PaymentIntentRef: *order.StripePaymentIntentID,
			Amount:           order.TotalAmount,
			Currency:         order.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order canceled",
		zap.String("order_id", id.String()),
		zap.String("reason", reason),
	)
	return signal, nil
}

func (s *Service) RecordShipment(ctx context.Context, id snowflake.ID, carrier, tracking string) error {
	carrier = strings.TrimSpace(carrier)
	tracking = strings.TrimSpace(tracking)
	if carrier == "" || tracking == "" {
		return orderdomain.ErrEmptyTracking
	}

	moved, err := s.repo.MarkShipped(ctx, s.db, id, carrier, tracking, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	return s.transitionError(order, orderdomain.OrderStatusShipped)
}

func (s *Service) RecordDelivery(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.MarkDelivered(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	return s.transitionError(order, orderdomain.OrderStatusDelivered)
}

func (s *Service) OpenDispute(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.OpenDispute(ctx, s.db, id)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	return s.transitionError(order, orderdomain.OrderStatusDisputeOpened)
}

// MarkRefunded closes the aggregate at the end of a completed return.
func (s *Service) MarkRefunded(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.MarkRefunded(ctx, s.db, id)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	if order.Status == orderdomain.OrderStatusRefunded {
		return nil
	}
	return s.transitionError(order, orderdomain.OrderStatusRefunded)
}

func (s *Service) transitionError(order *orderdomain.Order, target orderdomain.OrderStatus) error {
	return fmt.Errorf("%w: order %s is %s, cannot move to %s",
		orderdomain.ErrInvalidTransition, order.OrderNumber, order.Status, target)
}
