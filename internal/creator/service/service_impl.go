package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/creator/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("creator.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

type RegisterInput struct {
	DisplayName     string `json:"display_name"`
	Email           string `json:"email"`
	StripeAccountID string `json:"stripe_account_id"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Creator, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, domain.ErrEmptyName
	}
	accountRef := strings.TrimSpace(in.StripeAccountID)
	if accountRef == "" {
		return nil, domain.ErrMissingStripeRef
	}

	now := s.clock.Now()
	creator := &domain.Creator{
		ID:              s.genID.Generate(),
		DisplayName:     name,
		Email:           strings.TrimSpace(in.Email),
		StripeAccountID: accountRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, creator); err != nil {
		return nil, err
	}
	return creator, nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*domain.Creator, error) {
	return s.repo.Find(ctx, s.db, id)
}

func (s *Service) FindByStripeAccount(ctx context.Context, accountRef string) (*domain.Creator, error) {
	return s.repo.FindByStripeAccount(ctx, s.db, accountRef)
}

// CompleteOnboarding records that the connected account finished Stripe
// onboarding. Repeat notifications for an already-complete account are
// no-ops.
func (s *Service) CompleteOnboarding(ctx context.Context, accountRef string) error {
	changed, err := s.repo.CompleteOnboarding(ctx, s.db, accountRef, s.clock.Now())
	if err != nil {
		return err
	}
	if changed {
		s.log.Info("creator onboarding complete", zap.String("stripe_account_id", accountRef))
	}
	return nil
}
