package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// captureNotifier records every published change.
type captureNotifier struct {
	mu     sync.Mutex
	events []domain.StockChange
}

func (c *captureNotifier) PublishStockChange(ctx context.Context, change domain.StockChange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, change)
	return nil
}

func (c *captureNotifier) all() []domain.StockChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.StockChange, len(c.events))
	copy(out, c.events)
	return out
}

func newTestStore(t *testing.T) (*MemoryStore, *captureNotifier, domain.Product) {
	t.Helper()
	notifier := &captureNotifier{}
	store := NewMemoryStore(notifier, 10, zap.NewNop())

	product, err := store.CreateProduct(context.Background(), domain.Product{
		Name:          "Widget",
		SKU:           "WID001",
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: 20,
		CategoryID:    "cat-1",
	})
	require.NoError(t, err)
	return store, notifier, product
}

func TestAdjustStock(t *testing.T) {
	store, _, product := newTestStore(t)

	updated, err := store.AdjustStock(context.Background(), product.ID, -5, product.Version)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.StockQuantity)
	assert.Equal(t, product.Version+1, updated.Version)
}

func TestAdjustStock_VersionConflict(t *testing.T) {
	store, _, product := newTestStore(t)
	ctx := context.Background()

	_, err := store.AdjustStock(ctx, product.ID, -1, product.Version)
	require.NoError(t, err)

	// replay with the stale version
	_, err = store.AdjustStock(ctx, product.ID, -1, product.Version)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestAdjustStock_RetryAfterConflict(t *testing.T) {
	store, _, product := newTestStore(t)
	ctx := context.Background()

	_, err := store.AdjustStock(ctx, product.ID, -1, product.Version)
	require.NoError(t, err)

	_, err = store.AdjustStock(ctx, product.ID, -1, product.Version)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	// re-read and retry with the current version succeeds
	current, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)

	updated, err := store.AdjustStock(ctx, product.ID, -1, current.Version)
	require.NoError(t, err)
	assert.Equal(t, 18, updated.StockQuantity)
}

func TestAdjustStock_InsufficientStock(t *testing.T) {
	store, _, product := newTestStore(t)

	_, err := store.AdjustStock(context.Background(), product.ID, -21, product.Version)
	var stockErr domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 20, stockErr.Available)
	assert.Equal(t, 21, stockErr.Requested)
}

func TestAdjustStock_NotFound(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.AdjustStock(context.Background(), "no-such-product", -1, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustStock_EmitsLowStockAlert(t *testing.T) {
	store, notifier, product := newTestStore(t)

	_, err := store.AdjustStock(context.Background(), product.ID, -15, product.Version)
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 2) // create + adjust
	last := events[len(events)-1]
	assert.Equal(t, 5, last.Product.StockQuantity)
	assert.True(t, last.LowStockAlert)
}

func TestWithinTx_RollbackRestoresStateAndDropsEvents(t *testing.T) {
	store, notifier, product := newTestStore(t)
	ctx := context.Background()

	published := len(notifier.all())

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		if _, err := st.AdjustStock(ctx, product.ID, -5, product.Version); err != nil {
			return err
		}
		if _, err := st.InsertOrder(ctx, domain.Order{UserID: "u1", Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// stock, version and staged events all rolled back
	current, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, current.StockQuantity)
	assert.Equal(t, product.Version, current.Version)

	orders, err := store.ListOrdersByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	assert.Len(t, notifier.all(), published)
}

func TestWithinTx_CommitPublishesStagedEvents(t *testing.T) {
	store, notifier, product := newTestStore(t)
	ctx := context.Background()

	published := len(notifier.all())

	err := store.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		_, err := st.AdjustStock(ctx, product.ID, -3, product.Version)
		return err
	})
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, published+1)
	assert.Equal(t, 17, events[len(events)-1].Product.StockQuantity)
}

func TestSeed_Idempotent(t *testing.T) {
	store := NewMemoryStore(nil, 10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, Seed(ctx, store))
	require.NoError(t, Seed(ctx, store))

	products, err := store.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)

	user, err := store.GetUserByUsername(ctx, "testuser")
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
}

func TestOrderRoundTrip(t *testing.T) {
	store, _, product := newTestStore(t)
	ctx := context.Background()

	order, err := store.InsertOrder(ctx, domain.Order{
		UserID: "u1",
		Total:  decimal.RequireFromString("32.99"),
		Status: domain.OrderStatusPending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)

	require.NoError(t, store.InsertOrderItem(ctx, domain.OrderItem{
		OrderID:     order.ID,
		ProductID:   product.ID,
		Quantity:    2,
		PriceAtTime: product.Price,
	}))

	items, err := store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].PriceAtTime.Equal(product.Price))

	updated, err := store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
}

func TestUpdateOrderStatus_StaleStatusRejected(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	order, err := store.InsertOrder(ctx, domain.Order{
		UserID: "u1",
		Total:  decimal.RequireFromString("32.99"),
		Status: domain.OrderStatusPending,
	})
	require.NoError(t, err)

	_, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	require.NoError(t, err)

	// a writer that still believes the order is pending loses
	_, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusShipped)
	var transErr domain.InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, domain.OrderStatusCancelled, transErr.From)

	current, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, current.Status)
}

func TestUpdateProduct_StaleVersionRejected(t *testing.T) {
	store, _, product := newTestStore(t)
	ctx := context.Background()

	_, err := store.AdjustStock(ctx, product.ID, -1, product.Version)
	require.NoError(t, err)

	stale := product // still carries the pre-adjust version
	stale.Name = "Renamed Widget"
	_, err = store.UpdateProduct(ctx, stale)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	current, err := store.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", current.Name)
}
