package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/clock"
	"github.com/craftora/craftora/internal/config"
	orderrepo "github.com/craftora/craftora/internal/order/repository"
	returnsdomain "github.com/craftora/craftora/internal/returns/domain"
	returnsrepo "github.com/craftora/craftora/internal/returns/repository"
	returnsservice "github.com/craftora/craftora/internal/returns/service"
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
		`CREATE TABLE returns (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			order_number TEXT NOT NULL,
			creator_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			reason TEXT NOT NULL,
			reason_details TEXT,
			status TEXT NOT NULL,
			refund_amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			stripe_refund_id TEXT,
			rejection_reason TEXT,
			created_at DATETIME NOT NULL,
			approved_at DATETIME,
			rejected_at DATETIME,
			refunded_at DATETIME,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_returns_active_order ON returns(order_id)
			WHERE status NOT IN ('REFUNDED', 'REJECTED')`,
		`CREATE TABLE return_items (
			id BIGINT PRIMARY KEY,
			return_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL,
			unit_price BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB, clk clock.Clock) (*returnsservice.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(13)
	require.NoError(t, err)

	svc := returnsservice.NewService(returnsservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Cfg:       config.Config{ReturnWindowDays: 14},
		Repo:      returnsrepo.Provide(),
		OrderRepo: orderrepo.Provide(),
	})
	return svc, node
}

type seededOrder struct {
	ID       snowflake.ID
	Product  snowflake.ID
	Product2 snowflake.ID
}

// seedDeliveredOrder writes a DELIVERED two-line order: 2 x 3000 + 1 x 4000.
func seedDeliveredOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, deliveredAt time.Time) seededOrder {
	t.Helper()

	orderID := node.Generate()
	productA := node.Generate()
	productB := node.Generate()

	require.NoError(t, db.Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, creator_id, currency, total_amount,
			status, delivered_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, 'USD', 10000, 'DELIVERED', ?, ?, ?)`,
		orderID, fmt.Sprintf("ORD-%s", orderID), node.Generate(), node.Generate(),
		deliveredAt, deliveredAt.Add(-72*time.Hour), deliveredAt,
	).Error)

	for _, line := range []struct {
		product  snowflake.ID
		qty      int64
		unit     int64
		subtotal int64
	}{
		{productA, 2, 3000, 6000},
		{productB, 1, 4000, 4000},
	} {
		require.NoError(t, db.Exec(
			`INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, subtotal, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			node.Generate(), orderID, line.product, line.qty, line.unit, line.subtotal,
			deliveredAt.Add(-72*time.Hour),
		).Error)
	}

	return seededOrder{ID: orderID, Product: productA, Product2: productB}
}

func TestCreateFullReturn(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(48 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	ret, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonDamaged,
	})
	require.NoError(t, err)
	assert.Equal(t, returnsdomain.ReturnStatusRequested, ret.Status)
	assert.Equal(t, int64(10000), ret.RefundAmount)
	assert.Equal(t, "USD", ret.Currency)
	assert.Empty(t, ret.Items)
}

func TestCreatePartialReturnSumsSelectedLines(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	ret, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonWrongItem,
		Items: []returnsservice.RequestItem{
			{ProductID: order.Product, Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), ret.RefundAmount)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, int64(3000), ret.Items[0].UnitPrice)
}

func TestCreateRejectsExcessQuantity(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	_, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonOther,
		Items: []returnsservice.RequestItem{
			{ProductID: order.Product, Quantity: 3},
		},
	})
	require.ErrorIs(t, err, returnsdomain.ErrQuantityExceeded)

	_, err = svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonOther,
		Items: []returnsservice.RequestItem{
			{ProductID: node.Generate(), Quantity: 1},
		},
	})
	require.ErrorIs(t, err, returnsdomain.ErrItemNotInOrder)
}

func TestWindowBoundaryIsInclusive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 14 * 24 * time.Hour

	// Exactly at deliveredAt + window the return still qualifies.
	clk := clock.NewFakeClock(deliveredAt.Add(window))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	_, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonChangedMind,
	})
	require.NoError(t, err)

	// One second past the deadline does not.
	late := seedDeliveredOrder(t, db, node, deliveredAt)
	clk.Advance(time.Second)
	_, err = svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       late.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonChangedMind,
	})
	require.ErrorIs(t, err, returnsdomain.ErrWindowExpired)
}

func TestCreateRequiresDeliveredOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, node := newService(t, db, clk)

	orderID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO orders (
			id, order_number, customer_id, creator_id, currency, total_amount,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, 'USD', 5000, 'SHIPPED', ?, ?)`,
		orderID, fmt.Sprintf("ORD-%s", orderID), node.Generate(), node.Generate(),
		clk.Now(), clk.Now(),
	).Error)

	_, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       orderID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonDamaged,
	})
	require.ErrorIs(t, err, returnsdomain.ErrOrderNotDelivered)
}

func TestSecondActiveReturnIsRejected(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	req := returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonDamaged,
	}
	first, err := svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = svc.Create(ctx, req)
	require.ErrorIs(t, err, returnsdomain.ErrActiveExists)

	// A rejected return frees the slot for a fresh request.
	require.NoError(t, svc.Reject(ctx, first.ID, "outside policy"))
	_, err = svc.Create(ctx, req)
	require.NoError(t, err)
}

func TestLifecycleProgressesLinearly(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	ret, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonNotAsDescribed,
	})
	require.NoError(t, err)

	// Receiving before approval is out of order.
	err = svc.MarkReceived(ctx, ret.ID)
	require.ErrorIs(t, err, returnsdomain.ErrInvalidTransition)

	require.NoError(t, svc.Approve(ctx, ret.ID))
	require.NoError(t, svc.MarkShippedBack(ctx, ret.ID))
	require.NoError(t, svc.MarkReceived(ctx, ret.ID))
	require.NoError(t, svc.Refund(ctx, ret.ID, "re_42"))

	got, err := svc.Get(ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, returnsdomain.ReturnStatusRefunded, got.Status)
	require.NotNil(t, got.StripeRefundID)
	assert.Equal(t, "re_42", *got.StripeRefundID)
	require.NotNil(t, got.RefundedAt)

	// Approving a closed return fails.
	err = svc.Approve(ctx, ret.ID)
	require.ErrorIs(t, err, returnsdomain.ErrInvalidTransition)
}

func TestRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	ret, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonDamaged,
	})
	require.NoError(t, err)

	err = svc.Reject(ctx, ret.ID, "  ")
	require.ErrorIs(t, err, returnsdomain.ErrEmptyReason)
}

func TestHasActive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	deliveredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(deliveredAt.Add(24 * time.Hour))
	svc, node := newService(t, db, clk)
	order := seedDeliveredOrder(t, db, node, deliveredAt)

	active, err := svc.HasActive(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, active)

	ret, err := svc.Create(ctx, returnsservice.CreateRequest{
		OrderID:       order.ID,
		CustomerName:  "Jamie Doe",
		CustomerEmail: "jamie@example.com",
		Reason:        returnsdomain.ReasonDamaged,
	})
	require.NoError(t, err)

	active, err = svc.HasActive(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Reject(ctx, ret.ID, "outside policy"))
	active, err = svc.HasActive(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, active)
}
