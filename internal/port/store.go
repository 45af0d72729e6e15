package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

type ProductStore interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)

	// ListLowStockProducts returns products with stock below the threshold.
	ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error)

	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)

	// UpdateProduct writes name, sku, price and category, conditional on
	// product.Version matching the stored version; the version is bumped on
	// success. Stock changes go exclusively through AdjustStock. Fails with
	// ErrVersionConflict on a stale version.
	UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error)

	// AdjustStock applies delta to the product's stock as one conditional
	// write: it succeeds only if the stored version equals expectedVersion
	// and the resulting quantity is non-negative, incrementing the version
	// by one. Returns the updated product. Fails with ErrVersionConflict on
	// a stale version and InsufficientStockError on a would-be-negative
	// result. A committed adjustment emits one stock-change event.
	AdjustStock(ctx context.Context, productID string, delta int, expectedVersion int64) (domain.Product, error)
}

type OrderStore interface {
	InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	InsertOrderItem(ctx context.Context, item domain.OrderItem) error

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// UpdateOrderStatus moves the order from one status to another as a
	// single conditional write: it succeeds only if the stored status still
	// equals from. Fails with InvalidTransitionError carrying the actual
	// current status when another transition committed first.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (domain.Order, error)
}

type CategoryStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error)
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

// Store is the full persistence surface visible inside a mutation unit.
type Store interface {
	ProductStore
	OrderStore
	CategoryStore
	UserStore
}

// TxManager groups store mutations into one all-or-nothing unit. Effects of
// fn become visible atomically on commit; any error aborts the whole unit,
// including the stock-change events staged inside it.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
