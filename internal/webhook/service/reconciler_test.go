package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogrepo "github.com/craftora/craftora/internal/catalog/repository"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	creatorrepo "github.com/craftora/craftora/internal/creator/repository"
	creatorservice "github.com/craftora/craftora/internal/creator/service"
	ledgerservice "github.com/craftora/craftora/internal/ledger/service"
	"github.com/craftora/craftora/internal/money"
	orderdomain "github.com/craftora/craftora/internal/order/domain"
	orderrepo "github.com/craftora/craftora/internal/order/repository"
	orderservice "github.com/craftora/craftora/internal/order/service"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	paymentrepo "github.com/craftora/craftora/internal/payment/repository"
	paymentservice "github.com/craftora/craftora/internal/payment/service"
	subscriptiondomain "github.com/craftora/craftora/internal/subscription/domain"
	subscriptionrepo "github.com/craftora/craftora/internal/subscription/repository"
	subscriptionservice "github.com/craftora/craftora/internal/subscription/service"
	webhookdomain "github.com/craftora/craftora/internal/webhook/domain"
	webhookservice "github.com/craftora/craftora/internal/webhook/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type env struct {
	db         *gorm.DB
	clk        *clock.FakeClock
	node       *snowflake.Node
	orders     *orderservice.Service
	payments   *paymentservice.Service
	reconciler *webhookservice.Reconciler
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			creator_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			unit_price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			stock BIGINT NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			order_number TEXT NOT NULL,
			customer_id BIGINT NOT NULL,
			creator_id BIGINT NOT NULL,
			currency TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			stripe_payment_intent_id TEXT,
			cancel_reason TEXT,
			carrier TEXT,
			tracking_number TEXT,
			shipped_at DATETIME,
			delivered_at DATETIME,
			escrow_released_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE order_items (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL,
			unit_price BIGINT NOT NULL,
			subtotal BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			stripe_payment_intent_id TEXT,
			stripe_refund_id TEXT,
			failure_reason TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE platform_transactions (
			id BIGINT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			creator_id BIGINT NOT NULL,
			order_id BIGINT,
			subscription_id BIGINT,
			stripe_event_id TEXT NOT NULL,
			period_start DATETIME NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_platform_transactions_event ON platform_transactions(stripe_event_id)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			creator_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			stripe_subscription_id TEXT NOT NULL,
			stripe_price_id TEXT,
			commission_bps BIGINT NOT NULL,
			canceled_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_stripe ON subscriptions(stripe_subscription_id)`,
		`CREATE TABLE creators (
			id BIGINT PRIMARY KEY,
			display_name TEXT NOT NULL,
			email TEXT NOT NULL,
			stripe_account_id TEXT NOT NULL,
			onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(15)
	require.NoError(t, err)
	log := zap.NewNop()
	cfg := config.Config{
		StripeWebhookSecret:  testSecret,
		DefaultCommissionBps: 1000,
	}

	orders := orderservice.NewService(orderservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: orderrepo.Provide(), Catalog: catalogrepo.Provide(),
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: paymentrepo.Provide(),
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
	})
	subscriptions := subscriptionservice.NewService(subscriptionservice.Params{
		DB: db, Log: log, Clock: clk, Cfg: cfg, Repo: subscriptionrepo.Provide(),
	})
	creators := creatorservice.NewService(creatorservice.Params{
		DB: db, Log: log, Clock: clk, GenID: node, Repo: creatorrepo.Provide(),
	})

	reconciler := webhookservice.NewReconciler(webhookservice.Params{
		Log: log, Clock: clk, Cfg: cfg, Metrics: nil,
		Orders: orders, Payments: payments, Ledger: ledger,
		Subscriptions: subscriptions, Creators: creators,
	})

	return &env{db: db, clk: clk, node: node, orders: orders, payments: payments, reconciler: reconciler}
}

func (e *env) signedHeaders(payload []byte) http.Header {
	timestamp := e.clk.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", timestamp, payload)))

	headers := http.Header{}
	headers.Set("Stripe-Signature",
		fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil))))
	return headers
}

func (e *env) deliver(t *testing.T, payload string) error {
	t.Helper()
	raw := []byte(payload)
	return e.reconciler.Process(context.Background(), raw, e.signedHeaders(raw))
}

// seedOrder creates a PENDING order for pi with one 2 x 4000 line.
func (e *env) seedOrder(t *testing.T, pi string) *orderdomain.Order {
	t.Helper()

	productID := e.node.Generate()
	now := e.clk.Now()
	require.NoError(t, e.db.Exec(
		`INSERT INTO products (id, creator_id, name, unit_price, currency, stock, created_at, updated_at)
		 VALUES (?, ?, 'walnut board', 4000, 'USD', 10, ?, ?)`,
		productID, e.node.Generate(), now, now,
	).Error)

	order, err := e.orders.Create(context.Background(), orderservice.CreateRequest{
		CustomerID:      e.node.Generate(),
		PaymentIntentID: pi,
		Items: []orderservice.CreateItem{
			{ProductID: productID, Quantity: 2},
		},
	})
	require.NoError(t, err)

	amount, err := money.NewAmount(order.TotalAmount, order.Currency)
	require.NoError(t, err)
	_, err = e.payments.CreatePending(context.Background(), order.ID, amount, money.MethodCard, pi)
	require.NoError(t, err)
	return order
}

func (e *env) seedSubscription(t *testing.T, ref string, creatorID snowflake.ID, bps int64) snowflake.ID {
	t.Helper()
	id := e.node.Generate()
	now := e.clk.Now()
	require.NoError(t, e.db.Exec(
		`INSERT INTO subscriptions (id, creator_id, status, stripe_subscription_id, commission_bps, created_at, updated_at)
		 VALUES (?, ?, 'ACTIVE', ?, ?, ?, ?)`,
		id, creatorID, ref, bps, now, now,
	).Error)
	return id
}

func (e *env) subscriptionByRef(t *testing.T, ref string) *subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	require.NoError(t, e.db.Raw(
		`SELECT * FROM subscriptions WHERE stripe_subscription_id = ?`, ref,
	).Scan(&sub).Error)
	return &sub
}

func (e *env) ledgerRows(t *testing.T) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, e.db.Raw(
		`SELECT type, amount, stripe_event_id FROM platform_transactions ORDER BY id`,
	).Scan(&rows).Error)
	return rows
}

func TestPaymentSucceededIsIdempotentAcrossRedelivery(t *testing.T) {
	e := newEnv(t)
	order := e.seedOrder(t, "pi_100")

	payload := `{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": 1772364000,
		"data": {"object": {"id": "pi_100", "amount": 8000, "currency": "usd"}}
	}`
	require.NoError(t, e.deliver(t, payload))
	require.NoError(t, e.deliver(t, payload))

	got, err := e.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPaid, got.Status)

	payment, err := e.payments.GetByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, payment.Status)

	// Default 10% commission on the 8000 order, exactly once.
	rows := e.ledgerRows(t)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 800, rows[0]["amount"])
	assert.EqualValues(t, "evt_1", rows[0]["stripe_event_id"])
}

func TestPaymentSucceededUsesSubscriptionRate(t *testing.T) {
	e := newEnv(t)
	order := e.seedOrder(t, "pi_101")
	e.seedSubscription(t, "sub_pro", order.CreatorID, 500)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_2",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_101"}}
	}`))

	rows := e.ledgerRows(t)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 400, rows[0]["amount"])
}

func TestBadSignatureWritesNothing(t *testing.T) {
	e := newEnv(t)
	order := e.seedOrder(t, "pi_102")

	payload := []byte(`{
		"id": "evt_3",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_102"}}
	}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", e.clk.Now().Unix(), "deadbeef"))

	err := e.reconciler.Process(context.Background(), payload, headers)
	require.ErrorIs(t, err, webhookdomain.ErrInvalidSignature)

	got, err := e.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusPending, got.Status)
	assert.Empty(t, e.ledgerRows(t))
}

func TestMalformedPayloadIsNotAcked(t *testing.T) {
	e := newEnv(t)

	raw := []byte(`{"id": "evt_4"}`)
	err := e.reconciler.Process(context.Background(), raw, e.signedHeaders(raw))
	require.ErrorIs(t, err, webhookdomain.ErrInvalidEvent)
}

func TestUnknownPaymentIntentIsAcked(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_5",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_missing"}}
	}`))
	assert.Empty(t, e.ledgerRows(t))
}

func TestPaymentFailedStoresReason(t *testing.T) {
	e := newEnv(t)
	order := e.seedOrder(t, "pi_103")

	require.NoError(t, e.deliver(t, `{
		"id": "evt_6",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_103",
			"last_payment_error": {"code": "card_declined", "message": "Your card was declined."}
		}}
	}`))

	payment, err := e.payments.GetByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "Your card was declined.", *payment.FailureReason)
}

func TestAccountUpdatedCompletesOnboardingOnce(t *testing.T) {
	e := newEnv(t)
	creatorID := e.node.Generate()
	now := e.clk.Now()
	require.NoError(t, e.db.Exec(
		`INSERT INTO creators (id, display_name, email, stripe_account_id, onboarding_complete, created_at, updated_at)
		 VALUES (?, 'Mara', 'mara@example.com', 'acct_1', FALSE, ?, ?)`,
		creatorID, now, now,
	).Error)

	payload := `{
		"id": "evt_7",
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_1",
			"charges_enabled": true,
			"payouts_enabled": true,
			"details_submitted": true
		}}
	}`
	require.NoError(t, e.deliver(t, payload))
	require.NoError(t, e.deliver(t, payload))

	var complete bool
	require.NoError(t, e.db.Raw(
		`SELECT onboarding_complete FROM creators WHERE id = ?`, creatorID,
	).Scan(&complete).Error)
	assert.True(t, complete)
}

func TestAccountUpdatedIgnoresPartialOnboarding(t *testing.T) {
	e := newEnv(t)

	// No creators table row needed: the event is ignored before lookup.
	require.NoError(t, e.deliver(t, `{
		"id": "evt_8",
		"type": "account.updated",
		"data": {"object": {"id": "acct_2", "charges_enabled": true}}
	}`))
}

func TestSubscriptionUpdatedMapsProviderStatus(t *testing.T) {
	e := newEnv(t)
	e.seedSubscription(t, "sub_1", e.node.Generate(), 1000)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_9",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_1", "status": "past_due"}}
	}`))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, e.subscriptionByRef(t, "sub_1").Status)

	// Unrecognized provider vocabulary falls back conservatively.
	require.NoError(t, e.deliver(t, `{
		"id": "evt_10",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_1", "status": "some_new_state"}}
	}`))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusPastDue, e.subscriptionByRef(t, "sub_1").Status)
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	e := newEnv(t)
	e.seedSubscription(t, "sub_2", e.node.Generate(), 1000)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_11",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_2", "status": "canceled"}}
	}`))

	sub := e.subscriptionByRef(t, "sub_2")
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)
}

func TestInvoicePaidRecordsFeeOnce(t *testing.T) {
	e := newEnv(t)
	creatorID := e.node.Generate()
	e.seedSubscription(t, "sub_3", creatorID, 1000)

	payload := `{
		"id": "evt_12",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1", "subscription": "sub_3", "amount_paid": 2900, "currency": "usd"}}
	}`
	require.NoError(t, e.deliver(t, payload))
	require.NoError(t, e.deliver(t, payload))

	rows := e.ledgerRows(t)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "SUBSCRIPTION", rows[0]["type"])
	assert.EqualValues(t, 2900, rows[0]["amount"])
}

func TestOneOffInvoiceIsIgnored(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_13",
		"type": "invoice.paid",
		"data": {"object": {"id": "in_2", "amount_paid": 500, "currency": "usd"}}
	}`))
	assert.Empty(t, e.ledgerRows(t))
}

func TestPaymentSucceededRedeliveryAfterCancelIsIgnored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	order := e.seedOrder(t, "pi_110")

	payload := `{
		"id": "evt_20",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_110"}}
	}`
	require.NoError(t, e.deliver(t, payload))

	// The buyer backs out between the provider's first and second delivery.
	signal, err := e.orders.Cancel(ctx, order.ID, "customer request")
	require.NoError(t, err)
	require.NotNil(t, signal)
	require.NoError(t, e.payments.Refund(ctx, order.ID, "re_1"))

	// Redelivery against the refunded payment is acked without reviving
	// the order or double-counting the commission.
	require.NoError(t, e.deliver(t, payload))

	got, err := e.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCanceled, got.Status)

	payment, err := e.payments.GetByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRefunded, payment.Status)

	require.Len(t, e.ledgerRows(t), 1)
}

func TestSubscriptionUpdatedUnknownRefIsAcked(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_21",
		"type": "customer.subscription.updated",
		"data": {"object": {"id": "sub_missing", "status": "active"}}
	}`))
}

func TestSubscriptionDeletedUnknownRefIsAcked(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_22",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_missing", "status": "canceled"}}
	}`))
}

func TestUnhandledEventTypeIsAcked(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.deliver(t, `{
		"id": "evt_14",
		"type": "charge.refund.updated",
		"data": {"object": {}}
	}`))
}
