package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	"github.com/craftora/craftora/internal/returns/domain"
	pkgdb "github.com/craftora/craftora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      domain.Repository
	OrderRepo orderdomain.Repository
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	window    time.Duration
	repo      domain.Repository
	orderRepo orderdomain.Repository
}

func NewService(p Params) *Service {
	days := p.Cfg.ReturnWindowDays
	if days <= 0 {
		days = 14
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("returns.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		window:    time.Duration(days) * 24 * time.Hour,
		repo:      p.Repo,
		orderRepo: p.OrderRepo,
	}
}

// CreateRequest is the customer-facing return command.
type CreateRequest struct {
	OrderID       snowflake.ID
	CustomerName  string
	CustomerEmail string
	Reason        domain.ReturnReason
	ReasonDetails string
	// Items selects a partial return. Empty means the whole order.
	Items []RequestItem
}

type RequestItem struct {
	ProductID snowflake.ID
	Quantity  int64
}

// Create opens a REQUESTED return. Only a DELIVERED order within the
// return window qualifies; the window boundary is inclusive at exactly
// deliveredAt + window. The refundable amount is fixed here, capped per
// item at the originally purchased quantity.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Return, error) {
	order, err := s.orderRepo.Find(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != orderdomain.OrderStatusDelivered || order.DeliveredAt == nil {
		return nil, domain.ErrOrderNotDelivered
	}

	now := s.clock.Now()
	deadline := order.DeliveredAt.Add(s.window)
	if now.After(deadline) {
		return nil, domain.ErrWindowExpired
	}

	orderItems, err := s.orderRepo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}

	refundAmount, returnItems, err := s.buildItems(order, orderItems, req.Items, now)
	if err != nil {
		return nil, err
	}

	ret := &domain.Return{
		ID:            s.genID.Generate(),
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CreatorID:     order.CreatorID,
		CustomerID:    order.CustomerID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Reason:        req.Reason,
		Status:        domain.ReturnStatusRequested,
		RefundAmount:  refundAmount,
		Currency:      order.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         returnItems,
	}
	if details := strings.TrimSpace(req.ReasonDetails); details != "" {
		ret.ReasonDetails = &details
	}
	if _, err := domain.ParseReason(string(ret.Reason)); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, ret); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrActiveExists
		}
		return nil, err
	}

	s.log.Info("return requested",
		zap.String("return_id", ret.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.Int64("refund_amount", refundAmount),
	)
	return ret, nil
}

func (s *Service) buildItems(
	order *orderdomain.Order,
	orderItems []orderdomain.OrderItem,
	requested []RequestItem,
	now time.Time,
) (int64, []domain.ReturnItem, error) {
	if len(requested) == 0 {
		return order.TotalAmount, nil, nil
	}

	purchased := make(map[snowflake.ID]orderdomain.OrderItem, len(orderItems))
	for _, item := range orderItems {
		purchased[item.ProductID] = item
	}

	var amount int64
	items := make([]domain.ReturnItem, 0, len(requested))
	for _, sel := range requested {
		if sel.Quantity <= 0 {
			return 0, nil, domain.ErrInvalidQuantity
		}
		line, ok := purchased[sel.ProductID]
		if !ok {
			return 0, nil, domain.ErrItemNotInOrder
		}
		if sel.Quantity > line.Quantity {
			return 0, nil, domain.ErrQuantityExceeded
		}
		amount += sel.Quantity * line.UnitPrice
		items = append(items, domain.ReturnItem{
			ID:        s.genID.Generate(),
			ProductID: sel.ProductID,
			Quantity:  sel.Quantity,
			UnitPrice: line.UnitPrice,
			CreatedAt: now,
		})
	}
	return amount, items, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Return, error) {
	ret, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return ret, nil
}

// HasActive reports whether a non-terminal return exists for the order.
// The escrow scheduler blocks payout while one does.
func (s *Service) HasActive(ctx context.Context, orderID snowflake.ID) (bool, error) {
	_, err := s.repo.FindActiveByOrder(ctx, s.db, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Approve accepts a REQUESTED return. Only pending returns may be approved.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.Approve(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	return s.rejection(ctx, id, "approved")
}

// Reject declines a REQUESTED return with a mandatory reason.
func (s *Service) Reject(ctx context.Context, id snowflake.ID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ErrEmptyReason
	}
	moved, err := s.repo.Reject(ctx, s.db, id, reason, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	return s.rejection(ctx, id, "rejected")
}

func (s *Service) MarkShippedBack(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.MarkShippedBack(ctx, s.db, id)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	return s.rejection(ctx, id, "marked shipped back")
}

func (s *Service) MarkReceived(ctx context.Context, id snowflake.ID) error {
	moved, err := s.repo.MarkReceived(ctx, s.db, id)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	return s.rejection(ctx, id, "marked received")
}

// Refund records the completed provider refund and closes the return.
func (s *Service) Refund(ctx context.Context, id snowflake.ID, refundRef string) error {
	refundRef = strings.TrimSpace(refundRef)
	if refundRef == "" {
		return domain.ErrEmptyReference
	}
	moved, err := s.repo.MarkRefunded(ctx, s.db, id, refundRef, s.clock.Now())
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	return s.rejection(ctx, id, "refunded")
}

func (s *Service) rejection(ctx context.Context, id snowflake.ID, action string) error {
	ret, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: return %s is %s and cannot be %s",
		domain.ErrInvalidTransition, ret.ID, ret.Status, action)
}
