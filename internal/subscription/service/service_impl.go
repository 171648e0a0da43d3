package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	"github.com/craftora/craftora/internal/money"
	"github.com/craftora/craftora/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
	Repo  domain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	defaultBps int64
	repo       domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("subscription.service"),
		clock:      p.Clock,
		defaultBps: int64(p.Cfg.DefaultCommissionBps),
		repo:       p.Repo,
	}
}

func (s *Service) FindByProviderRef(ctx context.Context, providerRef string) (*domain.Subscription, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindByProviderRef(ctx, s.db, providerRef)
}

// CommissionBpsForCreator resolves the plan rate of the creator's active
// subscription, falling back to the platform default when none exists.
func (s *Service) CommissionBpsForCreator(ctx context.Context, creatorID snowflake.ID) (int64, error) {
	sub, err := s.repo.FindActiveByCreator(ctx, s.db, creatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.defaultBps, nil
		}
		return 0, err
	}
	if sub.CommissionBps <= 0 {
		return s.defaultBps, nil
	}
	// A plan rate above the full share would let the commission exceed
	// the order total.
	if sub.CommissionBps > money.BpsDenominator {
		s.log.Warn("plan commission rate exceeds full share, clamping",
			zap.String("subscription_id", sub.ID.String()),
			zap.Int64("commission_bps", sub.CommissionBps),
		)
		return money.BpsDenominator, nil
	}
	return sub.CommissionBps, nil
}

// SyncProviderStatus maps the provider's status vocabulary onto the local
// enumeration and syncs the current price reference. Unrecognized values
// land on the logged safe fallback rather than failing the event.
func (s *Service) SyncProviderStatus(ctx context.Context, providerRef, providerStatus, priceRef string) error {
	sub, err := s.FindByProviderRef(ctx, providerRef)
	if err != nil {
		return err
	}

	status, known := domain.MapProviderStatus(strings.TrimSpace(providerStatus))
	if !known {
		s.log.Warn("unrecognized provider subscription status",
			zap.String("provider_ref", providerRef),
			zap.String("provider_status", providerStatus),
			zap.String("fallback", string(status)),
		)
	}

	var price *string
	if trimmed := strings.TrimSpace(priceRef); trimmed != "" {
		price = &trimmed
	}
	return s.repo.UpdateStatus(ctx, s.db, sub.ID, status, price)
}

// Cancel marks the local subscription CANCELED in response to a provider
// deletion event. Repeat delivery is harmless.
func (s *Service) Cancel(ctx context.Context, providerRef string) error {
	sub, err := s.FindByProviderRef(ctx, providerRef)
	if err != nil {
		return err
	}
	return s.repo.Cancel(ctx, s.db, sub.ID, s.clock.Now())
}
