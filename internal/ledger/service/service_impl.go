package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/ledger/domain"
	"github.com/craftora/craftora/pkg/telemetry"
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
	Metrics *telemetry.Metrics
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *telemetry.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// RecordCommission appends the commission recognized on one paid order.
// The insert is keyed by the originating event id with ON CONFLICT DO
// NOTHING, so redelivery writes nothing and reports inserted=false. That
// single atomic statement is the whole deduplication strategy.
func (s *Service) RecordCommission(
	ctx context.Context,
	eventID string,
	creatorID snowflake.ID,
	orderID snowflake.ID,
	amount int64,
	currency string,
	occurredAt time.Time,
) (bool, error) {
	return s.record(ctx, entry{
		eventID:   eventID,
		kind:      domain.TypeCommission,
		creatorID: creatorID,
		orderID:   &orderID,
		amount:    amount,
		currency:  currency,
		occurred:  occurredAt,
	})
}

// RecordSubscriptionFee appends the platform fee recognized on a paid
// subscription invoice.
func (s *Service) RecordSubscriptionFee(
	ctx context.Context,
	eventID string,
	creatorID snowflake.ID,
	subscriptionID snowflake.ID,
	amount int64,
	currency string,
	occurredAt time.Time,
) (bool, error) {
	return s.record(ctx, entry{
		eventID:        eventID,
		kind:           domain.TypeSubscription,
		creatorID:      creatorID,
		subscriptionID: &subscriptionID,
		amount:         amount,
		currency:       currency,
		occurred:       occurredAt,
	})
}

// Reverse appends a compensating entry for a previously recorded event.
// Existing rows are never touched; the correction is itself keyed by its
// own event id.
func (s *Service) Reverse(ctx context.Context, originalEventID, eventID string) (bool, error) {
	originalEventID = strings.TrimSpace(originalEventID)
	eventID = strings.TrimSpace(eventID)
	if originalEventID == "" || eventID == "" {
		return false, domain.ErrInvalidEventID
	}

	original, err := s.findByEventID(ctx, originalEventID)
	if err != nil {
		return false, err
	}

	inserted, err := s.insert(ctx, &domain.PlatformTransaction{
		ID:             s.genID.Generate(),
		Type:           original.Type,
		Status:         domain.StatusReversed,
		Amount:         -original.Amount,
		Currency:       original.Currency,
		CreatorID:      original.CreatorID,
		OrderID:        original.OrderID,
		SubscriptionID: original.SubscriptionID,
		StripeEventID:  eventID,
		PeriodStart:    domain.PeriodOf(s.clock.Now()),
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// ListByCreator reads recognized revenue for reporting collaborators.
func (s *Service) ListByCreator(ctx context.Context, creatorID snowflake.ID, period time.Time, limit int) ([]domain.PlatformTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []domain.PlatformTransaction
	query := `SELECT id, type, status, amount, currency, creator_id, order_id,
			subscription_id, stripe_event_id, period_start, created_at
		 FROM platform_transactions
		 WHERE creator_id = ?`
	args := []any{creatorID}
	if !period.IsZero() {
		query += ` AND period_start = ?`
		args = append(args, domain.PeriodOf(period))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type entry struct {
	eventID        string
	kind           domain.TransactionType
	creatorID      snowflake.ID
	orderID        *snowflake.ID
	subscriptionID *snowflake.ID
	amount         int64
	currency       string
	occurred       time.Time
}

func (s *Service) record(ctx context.Context, e entry) (bool, error) {
	e.eventID = strings.TrimSpace(e.eventID)
	if e.eventID == "" {
		return false, domain.ErrInvalidEventID
	}
	if e.creatorID == 0 {
		return false, domain.ErrInvalidCreator
	}
	if e.amount < 0 {
		return false, domain.ErrInvalidAmount
	}
	occurred := e.occurred
	if occurred.IsZero() {
		occurred = s.clock.Now()
	}

	inserted, err := s.insert(ctx, &domain.PlatformTransaction{
		ID:             s.genID.Generate(),
		Type:           e.kind,
		Status:         domain.StatusRecorded,
		Amount:         e.amount,
		Currency:       strings.ToUpper(strings.TrimSpace(e.currency)),
		CreatorID:      e.creatorID,
		OrderID:        e.orderID,
		SubscriptionID: e.subscriptionID,
		StripeEventID:  e.eventID,
		PeriodStart:    domain.PeriodOf(occurred),
		CreatedAt:      s.clock.Now(),
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		s.log.Debug("ledger entry already recorded",
			zap.String("stripe_event_id", e.eventID),
			zap.String("type", string(e.kind)),
		)
	}
	return inserted, nil
}

func (s *Service) insert(ctx context.Context, tx *domain.PlatformTransaction) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		`INSERT INTO platform_transactions (
			id, type, status, amount, currency, creator_id, order_id,
			subscription_id, stripe_event_id, period_start, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stripe_event_id) DO NOTHING`,
		tx.ID,
		tx.Type,
		tx.Status,
		tx.Amount,
		tx.Currency,
		tx.CreatorID,
		tx.OrderID,
		tx.SubscriptionID,
		tx.StripeEventID,
		tx.PeriodStart,
		tx.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	inserted := res.RowsAffected > 0
	outcome := "recorded"
	if !inserted {
		outcome = "duplicate"
	}
	s.metrics.ObserveLedgerEntry(string(tx.Type), outcome)
	return inserted, nil
}

func (s *Service) findByEventID(ctx context.Context, eventID string) (*domain.PlatformTransaction, error) {
	var row domain.PlatformTransaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, type, status, amount, currency, creator_id, order_id,
			subscription_id, stripe_event_id, period_start, created_at
		 FROM platform_transactions
		 WHERE stripe_event_id = ?
		 LIMIT 1`,
		eventID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, domain.ErrEntryNotFound
	}
	return &row, nil
}
