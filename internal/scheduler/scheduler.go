package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	"github.com/craftora/craftora/internal/escrow"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	returnsdomain "github.com/craftora/craftora/internal/returns/domain"
	"github.com/craftora/craftora/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const sweepBatchSize = 100

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Metrics     *telemetry.Metrics
	EscrowSvc   *escrow.Service
	PaymentRepo paymentdomain.Repository
	ReturnRepo  returnsdomain.Repository
}

// Scheduler runs the payout sweep: delivered orders whose escrow hold has
// elapsed get their release stamped. Each sweep claims candidate rows with
// SKIP LOCKED so concurrent instances never contend on the same order.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	interval    time.Duration
	metrics     *telemetry.Metrics
	escrowSvc   *escrow.Service
	paymentRepo paymentdomain.Repository
	returnRepo  returnsdomain.Repository
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.EscrowSvc == nil || p.PaymentRepo == nil || p.ReturnRepo == nil {
		return nil, ErrInvalidConfig
	}
	interval := time.Duration(p.Cfg.PayoutSweepSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "payout_sweep")),
		clock:       p.Clock,
		interval:    interval,
		metrics:     p.Metrics,
		escrowSvc:   p.EscrowSvc,
		paymentRepo: p.PaymentRepo,
		returnRepo:  p.ReturnRepo,
	}, nil
}

// RunOnce executes a single sweep pass.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()
	released, err := s.sweep(ctx, now)
	if err != nil {
		s.metrics.ObservePayoutSweep("error")
		return fmt.Errorf("payout_sweep: %w", err)
	}
	s.metrics.ObservePayoutSweep("ok")
	s.metrics.ObservePayoutRelease(released)
	if released > 0 {
		s.log.Info("escrow released", zap.Int("orders", released), zap.Time("as_of", now))
	}
	return nil
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.escrowSvc.Hold())
	released := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []orderdomain.Order
		if err := tx.Raw(s.claimSQL(), orderdomain.OrderStatusDelivered, cutoff, sweepBatchSize).
			Scan(&candidates).Error; err != nil {
			return err
		}

		for _, order := range candidates {
			order := order
			payment, err := s.paymentRepo.FindByOrder(ctx, tx, order.ID)
			if err != nil {
				if errors.Is(err, paymentdomain.ErrNotFound) {
					continue
				}
				return err
			}

			hasActiveReturn := true
			_, err = s.returnRepo.FindActiveByOrder(ctx, tx, order.ID)
			if errors.Is(err, returnsdomain.ErrNotFound) {
				hasActiveReturn = false
			} else if err != nil {
				return err
			}

			if !s.escrowSvc.IsReleasable(&order, payment, hasActiveReturn, now) {
				continue
			}

			res := tx.Exec(
				`UPDATE orders
				 SET escrow_released_at = ?, updated_at = ?
				 WHERE id = ? AND status = ? AND escrow_released_at IS NULL`,
				now, now, order.ID, orderdomain.OrderStatusDelivered,
			)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				released++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// claimSQL selects sweep candidates. Row locking is a Postgres feature;
// other dialects run unlocked, which is fine for single-instance setups.
func (s *Scheduler) claimSQL() string {
	sql := `SELECT id, order_number, customer_id, creator_id, currency, total_amount, status,
			stripe_payment_intent_id, cancel_reason, carrier, tracking_number,
			shipped_at, delivered_at, escrow_released_at, created_at, updated_at
		 FROM orders
		 WHERE status = ? AND escrow_released_at IS NULL AND delivered_at <= ?
		 ORDER BY delivered_at
		 LIMIT ?`
	if s.db.Dialector.Name() == "postgres" {
		sql += " FOR UPDATE SKIP LOCKED"
	}
	return sql
}

// RunForever loops RunOnce on the configured interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("payout sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
