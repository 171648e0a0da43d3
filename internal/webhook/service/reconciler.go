package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	creatorservice "github.com/craftora/craftora/internal/creator/service"
	ledgerservice "github.com/craftora/craftora/internal/ledger/service"
	"github.com/craftora/craftora/internal/money"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	orderservice "github.com/craftora/craftora/internal/order/service"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	paymentservice "github.com/craftora/craftora/internal/payment/service"
	subscriptiondomain "github.com/craftora/craftora/internal/subscription/domain"
	subscriptionservice "github.com/craftora/craftora/internal/subscription/service"
	"github.com/craftora/craftora/internal/webhook/domain"
	"github.com/craftora/craftora/internal/webhook/stripe"
	"github.com/craftora/craftora/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	Metrics       *telemetry.Metrics
	Orders        *orderservice.Service
	Payments      *paymentservice.Service
	Ledger        *ledgerservice.Service
	Subscriptions *subscriptionservice.Service
	Creators      *creatorservice.Service
}

// Reconciler turns provider notifications into local state. Verification
// and envelope parsing gate the ack; individual handler failures do not,
// because the provider retries whole deliveries and every handler is safe
// to replay.
type Reconciler struct {
	log           *zap.Logger
	clock         clock.Clock
	verifier      *stripe.Verifier
	metrics       *telemetry.Metrics
	orders        *orderservice.Service
	payments      *paymentservice.Service
	ledger        *ledgerservice.Service
	subscriptions *subscriptionservice.Service
	creators      *creatorservice.Service
}

func NewReconciler(p Params) *Reconciler {
	return &Reconciler{
		log:           p.Log.Named("webhook.reconciler"),
		clock:         p.Clock,
		verifier:      stripe.NewVerifier(p.Cfg.StripeWebhookSecret, p.Clock),
		metrics:       p.Metrics,
		orders:        p.Orders,
		payments:      p.Payments,
		ledger:        p.Ledger,
		subscriptions: p.Subscriptions,
		creators:      p.Creators,
	}
}

// Process verifies and dispatches one delivery. A nil return means the
// delivery may be acked.
func (r *Reconciler) Process(ctx context.Context, payload []byte, headers http.Header) error {
	start := r.clock.Now()

	if err := r.verifier.Verify(payload, headers); err != nil {
		r.metrics.ObserveWebhookEvent("unknown", "invalid_signature", r.clock.Now().Sub(start))
		return err
	}

	event, err := stripe.ParseEnvelope(payload, r.clock.Now())
	if err != nil {
		r.metrics.ObserveWebhookEvent("unknown", "invalid_payload", r.clock.Now().Sub(start))
		return err
	}

	outcome := r.dispatch(ctx, event)
	r.metrics.ObserveWebhookEvent(event.Type, outcome, r.clock.Now().Sub(start))
	return nil
}

func (r *Reconciler) dispatch(ctx context.Context, event *domain.Event) string {
	var err error
	switch event.Type {
	case "payment_intent.succeeded":
		err = r.handlePaymentSucceeded(ctx, event)
	case "payment_intent.payment_failed":
		err = r.handlePaymentFailed(ctx, event)
	case "invoice.paid":
		err = r.handleInvoicePaid(ctx, event)
	case "account.updated":
		err = r.handleAccountUpdated(ctx, event)
	case "customer.subscription.updated":
		err = r.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = r.handleSubscriptionDeleted(ctx, event)
	default:
		return "ignored"
	}

	if err == nil {
		return "processed"
	}
	if errors.Is(err, domain.ErrEventIgnored) {
		return "ignored"
	}
	r.log.Error("webhook handler failed",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Error(err),
	)
	return "error"
}

func (r *Reconciler) handlePaymentSucceeded(ctx context.Context, event *domain.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Payload, &intent); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return domain.ErrInvalidEvent
	}

	order, err := r.orders.FindByPaymentIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrNotFound) {
			r.log.Warn("payment intent matches no order",
				zap.String("event_id", event.ID),
				zap.String("payment_intent_id", intent.ID),
			)
			return nil
		}
		return err
	}

	if err := r.payments.MarkSucceeded(ctx, order.ID, intent.ID); err != nil {
		// A payment that already reached a terminal state has nothing left
		// to reconcile: the order was canceled and refunded before this
		// redelivery arrived.
		if errors.Is(err, paymentdomain.ErrAlreadyFinal) {
			r.log.Info("payment already settled, skipping redelivery",
				zap.String("event_id", event.ID),
				zap.Int64("order_id", int64(order.ID)),
			)
			return domain.ErrEventIgnored
		}
		return err
	}

	rate, err := r.subscriptions.CommissionBpsForCreator(ctx, order.CreatorID)
	if err != nil {
		return err
	}
	commission := money.MulBps(order.TotalAmount, rate)

	inserted, err := r.ledger.RecordCommission(
		ctx, event.ID, order.CreatorID, order.ID, commission, order.Currency, event.OccurredAt,
	)
	if err != nil {
		return err
	}
	if !inserted {
		r.log.Info("commission already recorded for event",
			zap.String("event_id", event.ID),
			zap.Int64("order_id", int64(order.ID)),
		)
	}

	return r.orders.MarkPaid(ctx, order.ID)
}

func (r *Reconciler) handlePaymentFailed(ctx context.Context, event *domain.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Payload, &intent); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return domain.ErrInvalidEvent
	}

	order, err := r.orders.FindByPaymentIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, orderdomain.ErrNotFound) {
			r.log.Warn("failed payment intent matches no order",
				zap.String("event_id", event.ID),
				zap.String("payment_intent_id", intent.ID),
			)
			return nil
		}
		return err
	}

	return r.payments.MarkFailed(ctx, order.ID, intent.FailureReason())
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event *domain.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Payload, &invoice); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.Subscription) == "" {
		// One-off invoices carry no platform fee.
		return domain.ErrEventIgnored
	}

	sub, err := r.subscriptions.FindByProviderRef(ctx, invoice.Subscription)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrNotFound) {
			r.log.Warn("invoice references unknown subscription",
				zap.String("event_id", event.ID),
				zap.String("stripe_subscription_id", invoice.Subscription),
			)
			return nil
		}
		return err
	}

	_, err = r.ledger.RecordSubscriptionFee(
		ctx, event.ID, sub.CreatorID, sub.ID, invoice.AmountPaid,
		strings.ToUpper(strings.TrimSpace(invoice.Currency)), event.OccurredAt,
	)
	return err
}

func (r *Reconciler) handleAccountUpdated(ctx context.Context, event *domain.Event) error {
	var account stripe.Account
	if err := json.Unmarshal(event.Payload, &account); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(account.ID) == "" {
		return domain.ErrInvalidEvent
	}
	if !account.Onboarded() {
		return domain.ErrEventIgnored
	}
	return r.creators.CompleteOnboarding(ctx, account.ID)
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event *domain.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Payload, &sub); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return domain.ErrInvalidEvent
	}
	err := r.subscriptions.SyncProviderStatus(ctx, sub.ID, sub.Status, sub.PriceRef())
	if errors.Is(err, subscriptiondomain.ErrNotFound) {
		r.log.Warn("subscription event matches no local subscription",
			zap.String("event_id", event.ID),
			zap.String("stripe_subscription_id", sub.ID),
		)
		return nil
	}
	return err
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event *domain.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Payload, &sub); err != nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return domain.ErrInvalidEvent
	}
	err := r.subscriptions.Cancel(ctx, sub.ID)
	if errors.Is(err, subscriptiondomain.ErrNotFound) {
		r.log.Warn("deletion event matches no local subscription",
			zap.String("event_id", event.ID),
			zap.String("stripe_subscription_id", sub.ID),
		)
		return nil
	}
	return err
}
