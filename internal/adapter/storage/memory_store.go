package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// MemoryStore implements port.Store and port.TxManager on in-process maps.
// It backs the memory storage driver and the service unit tests.
//
// A mutation unit holds the store lock for its whole duration, which gives
// serializable units; rollback restores a snapshot taken at unit start.
// Stock mutations still go through the same version CAS as the MySQL store,
// so conflict behaviour is identical for callers outside a unit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState

	notifier  port.StockNotifier
	threshold int
	logger    *zap.Logger
}

func NewMemoryStore(notifier port.StockNotifier, lowStockThreshold int, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		state:     newMemState(),
		notifier:  notifier,
		threshold: lowStockThreshold,
		logger:    logger,
	}
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store port.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	scoped := &memTxStore{st: s.state, threshold: s.threshold}

	if err := fn(ctx, scoped); err != nil {
		s.state = snapshot
		return err
	}

	s.drain(ctx)
	return nil
}

// drain publishes staged events; the caller holds the lock.
func (s *MemoryStore) drain(ctx context.Context) {
	events := s.state.events
	s.state.events = nil
	for _, ev := range events {
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.PublishStockChange(ctx, ev); err != nil && s.logger != nil {
			s.logger.Warn("stock change notification failed",
				zap.String("product_id", ev.Product.ID),
				zap.Error(err))
		}
	}
}

func (s *MemoryStore) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getProduct(productID)
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listProducts(), nil
}

func (s *MemoryStore) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listLowStock(threshold), nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.state.createProduct(product, s.threshold)
	if err != nil {
		return domain.Product{}, err
	}
	s.drain(ctx)
	return p, nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateProduct(product)
}

func (s *MemoryStore) AdjustStock(ctx context.Context, productID string, delta int, expectedVersion int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.state.adjustStock(productID, delta, expectedVersion, s.threshold)
	if err != nil {
		return domain.Product{}, err
	}
	s.drain(ctx)
	return p, nil
}

func (s *MemoryStore) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertOrder(order)
}

func (s *MemoryStore) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.insertOrderItem(item)
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getOrder(orderID)
}

func (s *MemoryStore) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listOrderItems(orderID), nil
}

func (s *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listOrdersByUser(userID), nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateOrderStatus(orderID, from, to)
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listCategories(), nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createCategory(category)
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getUser(userID)
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.getUserByUsername(username)
}

func (s *MemoryStore) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.createUser(user)
}

// memTxStore is the store view handed to a mutation unit; the unit already
// holds the lock, so it delegates straight to the shared state.
type memTxStore struct {
	st        *memState
	threshold int
}

func (t *memTxStore) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return t.st.getProduct(id)
}

func (t *memTxStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return t.st.listProducts(), nil
}

func (t *memTxStore) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	return t.st.listLowStock(threshold), nil
}

func (t *memTxStore) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	return t.st.createProduct(p, t.threshold)
}

func (t *memTxStore) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	return t.st.updateProduct(p)
}

func (t *memTxStore) AdjustStock(ctx context.Context, id string, delta int, expectedVersion int64) (domain.Product, error) {
	return t.st.adjustStock(id, delta, expectedVersion, t.threshold)
}

func (t *memTxStore) InsertOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	return t.st.insertOrder(o)
}

func (t *memTxStore) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	return t.st.insertOrderItem(item)
}

func (t *memTxStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return t.st.getOrder(id)
}

func (t *memTxStore) ListOrderItems(ctx context.Context, id string) ([]domain.OrderItem, error) {
	return t.st.listOrderItems(id), nil
}

func (t *memTxStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return t.st.listOrdersByUser(userID), nil
}

func (t *memTxStore) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	return t.st.updateOrderStatus(id, from, to)
}

func (t *memTxStore) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return t.st.listCategories(), nil
}

func (t *memTxStore) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	return t.st.createCategory(c)
}

func (t *memTxStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	return t.st.getUser(id)
}

func (t *memTxStore) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return t.st.getUserByUsername(username)
}

// memState holds the actual data; all methods assume the lock is held.
type memState struct {
	products   map[string]domain.Product
	orders     map[string]domain.Order
	orderItems map[string][]domain.OrderItem
	categories map[string]domain.Category
	users      map[string]domain.User

	events []domain.StockChange
}

func newMemState() *memState {
	return &memState{
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		orderItems: make(map[string][]domain.OrderItem),
		categories: make(map[string]domain.Category),
		users:      make(map[string]domain.User),
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.orderItems {
		items := make([]domain.OrderItem, len(v))
		copy(items, v)
		c.orderItems[k] = items
	}
	for k, v := range st.categories {
		c.categories[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	c.events = append(c.events, st.events...)
	return c
}

func (st *memState) getProduct(id string) (domain.Product, error) {
	p, ok := st.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (st *memState) listProducts() []domain.Product {
	products := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].CreatedAt.Before(products[j].CreatedAt) })
	return products
}

func (st *memState) listLowStock(threshold int) []domain.Product {
	var products []domain.Product
	for _, p := range st.products {
		if p.StockQuantity < threshold {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].StockQuantity < products[j].StockQuantity })
	return products
}

func (st *memState) createProduct(p domain.Product, threshold int) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.Version = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	st.products[p.ID] = p
	st.events = append(st.events, domain.StockChange{Product: p, LowStockAlert: p.StockQuantity < threshold})
	return p, nil
}

func (st *memState) updateProduct(p domain.Product) (domain.Product, error) {
	current, err := st.getProduct(p.ID)
	if err != nil {
		return domain.Product{}, err
	}
	if current.Version != p.Version {
		return domain.Product{}, fmt.Errorf("product %s: %w", p.ID, domain.ErrVersionConflict)
	}
	current.Version++
	current.Name = p.Name
	current.SKU = p.SKU
	current.Price = p.Price
	current.CategoryID = p.CategoryID
	current.UpdatedAt = time.Now().UTC()
	st.products[current.ID] = current
	return current, nil
}

func (st *memState) adjustStock(id string, delta int, expectedVersion int64, threshold int) (domain.Product, error) {
	p, err := st.getProduct(id)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Version != expectedVersion {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrVersionConflict)
	}
	if p.StockQuantity+delta < 0 {
		return domain.Product{}, domain.InsufficientStockError{
			ProductName: p.Name,
			Requested:   -delta,
			Available:   p.StockQuantity,
		}
	}
	p.StockQuantity += delta
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	st.products[id] = p
	st.events = append(st.events, domain.StockChange{Product: p, LowStockAlert: p.StockQuantity < threshold})
	return p, nil
}

func (st *memState) insertOrder(o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	st.orders[o.ID] = o
	return o, nil
}

func (st *memState) insertOrderItem(item domain.OrderItem) error {
	st.orderItems[item.OrderID] = append(st.orderItems[item.OrderID], item)
	return nil
}

func (st *memState) getOrder(id string) (domain.Order, error) {
	o, ok := st.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (st *memState) listOrderItems(orderID string) []domain.OrderItem {
	items := make([]domain.OrderItem, len(st.orderItems[orderID]))
	copy(items, st.orderItems[orderID])
	return items
}

func (st *memState) listOrdersByUser(userID string) []domain.Order {
	var orders []domain.Order
	for _, o := range st.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (st *memState) updateOrderStatus(id string, from, to domain.OrderStatus) (domain.Order, error) {
	o, err := st.getOrder(id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != from {
		return domain.Order{}, domain.InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	st.orders[id] = o
	return o, nil
}

func (st *memState) listCategories() []domain.Category {
	categories := make([]domain.Category, 0, len(st.categories))
	for _, c := range st.categories {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories
}

func (st *memState) createCategory(c domain.Category) (domain.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	st.categories[c.ID] = c
	return c, nil
}

func (st *memState) getUser(id string) (domain.User, error) {
	u, ok := st.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return u, nil
}

func (st *memState) getUserByUsername(username string) (domain.User, error) {
	for _, u := range st.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
}

func (st *memState) createUser(u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	st.users[u.ID] = u
	return u, nil
}
