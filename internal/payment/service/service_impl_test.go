package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/money"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	paymentrepo "github.com/craftora/craftora/internal/payment/repository"
	paymentservice "github.com/craftora/craftora/internal/payment/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
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
		`CREATE UNIQUE INDEX ux_payments_order ON payments(order_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T) (*paymentservice.Service, *snowflake.Node) {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(12)
	require.NoError(t, err)

	svc := paymentservice.NewService(paymentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  paymentrepo.Provide(),
	})
	return svc, node
}

func createPending(t *testing.T, ctx context.Context, svc *paymentservice.Service, node *snowflake.Node) *paymentdomain.Payment {
	t.Helper()

	amount, err := money.NewAmount(5000, "USD")
	require.NoError(t, err)

	payment, err := svc.CreatePending(ctx, node.Generate(), amount, money.MethodCard, "pi_test")
	require.NoError(t, err)
	return payment
}

func TestCreatePendingOpensRecord(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	assert.Equal(t, paymentdomain.PaymentStatusPending, payment.Status)
	assert.Equal(t, int64(5000), payment.Amount)
	require.NotNil(t, payment.StripePaymentIntentID)
	assert.Equal(t, "pi_test", *payment.StripePaymentIntentID)
}

func TestMarkSucceededIsIdempotentOnSameReference(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	require.NoError(t, svc.MarkSucceeded(ctx, payment.OrderID, "pi_test"))

	// Redelivery with the same provider reference is a no-op.
	require.NoError(t, svc.MarkSucceeded(ctx, payment.OrderID, "pi_test"))

	got, err := svc.GetByOrder(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusSucceeded, got.Status)
}

func TestMarkSucceededRejectsConflictingReference(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	require.NoError(t, svc.MarkSucceeded(ctx, payment.OrderID, "pi_test"))

	err := svc.MarkSucceeded(ctx, payment.OrderID, "pi_other")
	require.ErrorIs(t, err, paymentdomain.ErrReferenceConflict)
}

func TestMarkSucceededFromProcessing(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	require.NoError(t, svc.MarkProcessing(ctx, payment.OrderID))
	require.NoError(t, svc.MarkSucceeded(ctx, payment.OrderID, "pi_test"))
}

func TestMarkFailedRequiresReason(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	err := svc.MarkFailed(ctx, payment.OrderID, "   ")
	require.ErrorIs(t, err, paymentdomain.ErrEmptyReason)

	require.NoError(t, svc.MarkFailed(ctx, payment.OrderID, "card_declined"))

	got, err := svc.GetByOrder(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "card_declined", *got.FailureReason)
}

func TestMarkSucceededAfterFailureIsAlreadyFinal(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	require.NoError(t, svc.MarkFailed(ctx, payment.OrderID, "card_declined"))

	err := svc.MarkSucceeded(ctx, payment.OrderID, "pi_test")
	require.ErrorIs(t, err, paymentdomain.ErrAlreadyFinal)
}

func TestRefundIsIdempotentOnSameReference(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	require.NoError(t, svc.MarkSucceeded(ctx, payment.OrderID, "pi_test"))

	require.NoError(t, svc.Refund(ctx, payment.OrderID, "re_1"))
	require.NoError(t, svc.Refund(ctx, payment.OrderID, "re_1"))

	err := svc.Refund(ctx, payment.OrderID, "re_2")
	require.ErrorIs(t, err, paymentdomain.ErrReferenceConflict)

	got, err := svc.GetByOrder(ctx, payment.OrderID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusRefunded, got.Status)
	require.NotNil(t, got.StripeRefundID)
	assert.Equal(t, "re_1", *got.StripeRefundID)
}

func TestRefundRequiresSucceededPayment(t *testing.T) {
	ctx := context.Background()
	svc, node := newService(t)

	payment := createPending(t, ctx, svc, node)
	err := svc.Refund(ctx, payment.OrderID, "re_1")
	require.ErrorIs(t, err, paymentdomain.ErrNotRefundable)
}
