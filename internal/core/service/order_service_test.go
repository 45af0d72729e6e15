package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/adapter/storage"
	"github.com/rl1809/stockroom/internal/core/domain"
)

const lowStockThreshold = 10

func testPricing() domain.Pricing {
	return domain.Pricing{
		TaxRate:     decimal.RequireFromString("0.08"),
		ShippingFee: decimal.RequireFromString("5.99"),
	}
}

type fixtures struct {
	user   domain.User
	widget domain.Product // 12.50, stock 10
	phone  domain.Product // 499.99, stock 5
}

func setupOrderTest(t *testing.T) (*OrderService, *storage.MemoryStore, fixtures) {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore(nil, lowStockThreshold, zap.NewNop())

	user, err := store.CreateUser(ctx, domain.User{Username: gofakeit.Username()})
	require.NoError(t, err)

	category, err := store.CreateCategory(ctx, domain.Category{Name: "Electronics"})
	require.NoError(t, err)

	widget, err := store.CreateProduct(ctx, domain.Product{
		Name:          "Widget",
		SKU:           "WID001",
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: 10,
		CategoryID:    category.ID,
	})
	require.NoError(t, err)

	phone, err := store.CreateProduct(ctx, domain.Product{
		Name:          "Smartphone",
		SKU:           "PHONE456",
		Price:         decimal.RequireFromString("499.99"),
		StockQuantity: 5,
		CategoryID:    category.ID,
	})
	require.NoError(t, err)

	svc := NewOrderService(store, store, testPricing(), zap.NewNop())
	return svc, store, fixtures{user: user, widget: widget, phone: phone}
}

func TestCreateOrder(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, receipt.Order.Status)
	assert.Equal(t, fx.user.ID, receipt.Order.UserID)
	assert.True(t, receipt.Order.Total.Equal(decimal.RequireFromString("32.99")),
		"expected total 32.99, got %s", receipt.Order.Total)
	assert.True(t, receipt.Breakdown.Tax.Equal(decimal.RequireFromString("2.00")))

	require.Len(t, receipt.Items, 1)
	assert.True(t, receipt.Items[0].PriceAtTime.Equal(fx.widget.Price))

	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, product.StockQuantity)
	assert.Equal(t, int64(1), product.Version)
}

func TestCreateOrder_MultipleProducts(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 2},
		{ProductID: fx.phone.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Items, 2)

	// subtotal 524.99, tax 41.9992, shipping 5.99
	assert.True(t, receipt.Order.Total.Equal(decimal.RequireFromString("572.9792")),
		"got total %s", receipt.Order.Total)

	widget, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, widget.StockQuantity)

	phone, err := store.GetProduct(ctx, fx.phone.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, phone.StockQuantity)
}

func TestCreateOrder_Validation(t *testing.T) {
	svc, _, fx := setupOrderTest(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		lines  []domain.OrderLine
	}{
		{"missing user", "", []domain.OrderLine{{ProductID: fx.widget.ID, Quantity: 1}}},
		{"no items", fx.user.ID, nil},
		{"missing product id", fx.user.ID, []domain.OrderLine{{Quantity: 1}}},
		{"zero quantity", fx.user.ID, []domain.OrderLine{{ProductID: fx.widget.ID, Quantity: 0}}},
		{"negative quantity", fx.user.ID, []domain.OrderLine{{ProductID: fx.widget.ID, Quantity: -1}}},
		{"duplicate product", fx.user.ID, []domain.OrderLine{
			{ProductID: fx.widget.ID, Quantity: 1},
			{ProductID: fx.widget.ID, Quantity: 2},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tc.userID, tc.lines)
			var verr domain.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	svc, _, fx := setupOrderTest(t)

	_, err := svc.CreateOrder(context.Background(), fx.user.ID, []domain.OrderLine{
		{ProductID: "no-such-product", Quantity: 1},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 11},
	})

	var stockErr domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Widget", stockErr.ProductName)
	assert.Equal(t, 10, stockErr.Available)

	// nothing changed
	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, product.StockQuantity)
	assert.Equal(t, int64(0), product.Version)

	orders, err := store.ListOrdersByUser(ctx, fx.user.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrder_PartialFailureRollsBack(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	// widget would succeed, phone exceeds its stock
	_, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 2},
		{ProductID: fx.phone.ID, Quantity: 6},
	})

	var stockErr domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Smartphone", stockErr.ProductName)

	widget, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, widget.StockQuantity)
	assert.Equal(t, int64(0), widget.Version)
}

func TestGetOrder_PriceSnapshotSurvivesPriceChange(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 2},
	})
	require.NoError(t, err)

	// raise the price after the order was placed
	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	product.Price = decimal.RequireFromString("99.99")
	_, err = store.UpdateProduct(ctx, product)
	require.NoError(t, err)

	fetched, err := svc.GetOrder(ctx, receipt.Order.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Breakdown.Subtotal.Equal(decimal.RequireFromString("25.00")),
		"got subtotal %s", fetched.Breakdown.Subtotal)
	assert.True(t, fetched.Breakdown.Total.Equal(decimal.RequireFromString("32.99")))
}

func TestGetOrder_NotFound(t *testing.T) {
	svc, _, _ := setupOrderTest(t)

	_, err := svc.GetOrder(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 3},
	})
	require.NoError(t, err)

	order, err := svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, order.Status)

	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, product.StockQuantity)
	// one version bump for the reservation, one for the restore
	assert.Equal(t, int64(2), product.Version)
}

func TestUpdateStatus_DoubleCancelRejected(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 3},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusCancelled)
	var transErr domain.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)

	// stock restored exactly once
	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, product.StockQuantity)
}

func TestUpdateStatus_ShippedOrderCannotBeCancelled(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.Fulfill(ctx, receipt.Order.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusCancelled)
	var transErr domain.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, domain.OrderStatusShipped, transErr.From)

	// shipped stock stays reserved
	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, product.StockQuantity)
}

func TestUpdateStatus_FullLifecycle(t *testing.T) {
	svc, _, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 1},
	})
	require.NoError(t, err)

	order, err := svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)

	order, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, order.Status)

	order, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, order.Status)

	// delivered is terminal
	_, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatusShipped)
	var transErr domain.InvalidTransitionError
	assert.ErrorAs(t, err, &transErr)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	svc, _, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, receipt.Order.ID, domain.OrderStatus("refunded"))
	var verr domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestFulfill_FromPending(t *testing.T) {
	svc, _, fx := setupOrderTest(t)
	ctx := context.Background()

	receipt, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
		{ProductID: fx.widget.ID, Quantity: 1},
	})
	require.NoError(t, err)

	order, err := svc.Fulfill(ctx, receipt.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, order.Status)
}

func TestListUserOrders(t *testing.T) {
	svc, _, fx := setupOrderTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
			{ProductID: fx.widget.ID, Quantity: 1},
		})
		require.NoError(t, err)
	}

	orders, err := svc.ListUserOrders(ctx, fx.user.ID)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	for i := 1; i < len(orders); i++ {
		assert.False(t, orders[i-1].CreatedAt.Before(orders[i].CreatedAt), "orders not newest first")
	}

	_, err = svc.ListUserOrders(ctx, "no-such-user")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrder_ConcurrentNeverOversells(t *testing.T) {
	svc, store, fx := setupOrderTest(t)
	ctx := context.Background()

	const requests = 30 // widget stock is 10

	var success, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, fx.user.ID, []domain.OrderLine{
				{ProductID: fx.widget.ID, Quantity: 1},
			})
			switch {
			case err == nil:
				success.Add(1)
			default:
				var stockErr domain.InsufficientStockError
				if !errors.As(err, &stockErr) && !errors.Is(err, domain.ErrVersionConflict) {
					t.Errorf("unexpected error: %v", err)
				}
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), success.Load())
	assert.Equal(t, int32(requests-10), failed.Load())

	product, err := store.GetProduct(ctx, fx.widget.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, product.StockQuantity)
}
