package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/money"
	"github.com/craftora/craftora/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// CreatePending opens the payment record when the checkout session is
// created. Exactly one payment exists per order.
func (s *Service) CreatePending(
	ctx context.Context,
	orderID snowflake.ID,
	amount money.Amount,
	method money.PaymentMethod,
	intentRef string,
) (*domain.Payment, error) {
	now := s.clock.Now()
	payment := &domain.Payment{
		ID:        s.genID.Generate(),
		OrderID:   orderID,
		Amount:    amount.Value,
		Currency:  amount.Currency,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ref := strings.TrimSpace(intentRef); ref != "" {
		payment.StripePaymentIntentID = &ref
	}
	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) GetByOrder(ctx context.Context, orderID snowflake.ID) (*domain.Payment, error) {
	return s.repo.FindByOrder(ctx, s.db, orderID)
}

func (s *Service) MarkProcessing(ctx context.Context, orderID snowflake.ID) error {
	payment, err := s.repo.FindByOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	moved, err := s.repo.MarkProcessing(ctx, s.db, payment.ID)
	if err != nil {
		return err
	}
	if moved || payment.Status == domain.PaymentStatusProcessing {
		return nil
	}
	return s.rejection(payment)
}

// MarkSucceeded settles the payment. Redelivery with the same provider
// reference is a no-op; a different reference on an already-succeeded
// payment is a data-integrity conflict and fails loudly.
func (s *Service) MarkSucceeded(ctx context.Context, orderID snowflake.ID, intentRef string) error {
	intentRef = strings.TrimSpace(intentRef)
	if intentRef == "" {
		return domain.ErrEmptyReference
	}

	payment, err := s.repo.FindByOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}

	moved, err := s.repo.MarkSucceeded(ctx, s.db, payment.ID, intentRef)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}

	payment, err = s.repo.Find(ctx, s.db, payment.ID)
	if err != nil {
		return err
	}
	if payment.Status == domain.PaymentStatusSucceeded {
		if payment.StripePaymentIntentID != nil && *payment.StripePaymentIntentID == intentRef {
			return nil
		}
		s.log.Error("payment succeeded under conflicting provider reference",
			zap.String("payment_id", payment.ID.String()),
			zap.String("order_id", orderID.String()),
			zap.String("incoming_ref", intentRef),
		)
		return domain.ErrReferenceConflict
	}
	return s.rejection(payment)
}

func (s *Service) MarkFailed(ctx context.Context, orderID snowflake.ID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.ErrEmptyReason
	}

	payment, err := s.repo.FindByOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	moved, err := s.repo.MarkFailed(ctx, s.db, payment.ID, reason)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}
	payment, err = s.repo.Find(ctx, s.db, payment.ID)
	if err != nil {
		return err
	}
	return s.rejection(payment)
}

// Refund records a completed provider refund against a SUCCEEDED payment.
func (s *Service) Refund(ctx context.Context, orderID snowflake.ID, refundRef string) error {
	refundRef = strings.TrimSpace(refundRef)
	if refundRef == "" {
		return domain.ErrEmptyReference
	}

	payment, err := s.repo.FindByOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if !payment.CanBeRefunded() && payment.Status != domain.PaymentStatusRefunded {
		return domain.ErrNotRefundable
	}

	moved, err := s.repo.MarkRefunded(ctx, s.db, payment.ID, refundRef)
	if err != nil {
		return err
	}
	if moved {
		return nil
	}

	payment, err = s.repo.Find(ctx, s.db, payment.ID)
	if err != nil {
		return err
	}
	if payment.Status == domain.PaymentStatusRefunded {
		if payment.StripeRefundID != nil && *payment.StripeRefundID == refundRef {
			return nil
		}
		return domain.ErrReferenceConflict
	}
	return s.rejection(payment)
}

// rejection maps a failed conditional transition to the right error class:
// terminal states yield ErrAlreadyFinal so the reconciler can tell "nothing
// to do" apart from a protocol violation.
func (s *Service) rejection(payment *domain.Payment) error {
	if domain.IsTerminal(payment.Status) {
		return domain.ErrAlreadyFinal
	}
	return domain.ErrInvalidTransition
}
