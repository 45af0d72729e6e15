package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// OrderService implements the order workflow: creation that reserves stock
// across all requested products in one mutation unit, retrieval with a price
// breakdown, and status transitions including the compensating stock restore
// on cancellation.
type OrderService struct {
	store   port.Store
	tx      port.TxManager
	pricing domain.Pricing
	logger  *zap.Logger
}

func NewOrderService(store port.Store, tx port.TxManager, pricing domain.Pricing, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:   store,
		tx:      tx,
		pricing: pricing,
		logger:  logger,
	}
}

// OrderReceipt is an order with its items and price breakdown.
type OrderReceipt struct {
	Order     domain.Order
	Items     []domain.OrderItem
	Breakdown domain.Breakdown
}

func (s *OrderService) CreateOrder(ctx context.Context, userID string, lines []domain.OrderLine) (OrderReceipt, error) {
	if userID == "" {
		return OrderReceipt{}, domain.ValidationError("user_id is required")
	}
	if len(lines) == 0 {
		return OrderReceipt{}, domain.ValidationError("order must contain at least one item")
	}
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return OrderReceipt{}, domain.ValidationError("each item must reference a product")
		}
		if line.Quantity < 1 {
			return OrderReceipt{}, domain.ValidationError("each item quantity must be a positive integer")
		}
		if _, dup := seen[line.ProductID]; dup {
			return OrderReceipt{}, domain.ValidationError("duplicate product in order: " + line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
	}

	var receipt OrderReceipt

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		// First pass re-reads every product inside the unit: availability is
		// checked against current state, never a cached read.
		subtotal := decimal.Zero
		products := make([]domain.Product, 0, len(lines))
		for _, line := range lines {
			product, err := st.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if line.Quantity > product.StockQuantity {
				return domain.InsufficientStockError{
					ProductName: product.Name,
					Requested:   line.Quantity,
					Available:   product.StockQuantity,
				}
			}
			products = append(products, product)
			subtotal = subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		breakdown := s.pricing.Breakdown(subtotal)

		order, err := st.InsertOrder(ctx, domain.Order{
			UserID: userID,
			Total:  breakdown.Total,
			Status: domain.OrderStatusPending,
		})
		if err != nil {
			return err
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for i, line := range lines {
			item := domain.OrderItem{
				OrderID:     order.ID,
				ProductID:   line.ProductID,
				Quantity:    line.Quantity,
				PriceAtTime: products[i].Price,
			}
			if err := st.InsertOrderItem(ctx, item); err != nil {
				return err
			}
			if _, err := st.AdjustStock(ctx, line.ProductID, -line.Quantity, products[i].Version); err != nil {
				return err
			}
			items = append(items, item)
		}

		receipt = OrderReceipt{Order: order, Items: items, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		return OrderReceipt{}, err
	}

	s.logger.Info("order created",
		zap.String("order_id", receipt.Order.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(receipt.Items)),
		zap.String("total", receipt.Order.Total.String()))

	return receipt, nil
}

// GetOrder returns the order with its items; the subtotal is recomputed from
// the immutable price snapshots, tax and shipping from the injected pricing.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (OrderReceipt, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderReceipt{}, err
	}

	items, err := s.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return OrderReceipt{}, fmt.Errorf("list order items: %w", err)
	}

	return OrderReceipt{
		Order:     order,
		Items:     items,
		Breakdown: s.pricing.Breakdown(domain.ItemsSubtotal(items)),
	}, nil
}

// UpdateStatus moves an order to target if the state machine allows it.
// Cancellation restores every item's stock in the same unit that flips the
// status, so a concurrent cancel either loses the version race or observes
// the cancelled status; stock is never restored twice.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (domain.Order, error) {
	if _, err := domain.ToOrderStatus(string(target)); err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		order, err := st.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(target) {
			return domain.InvalidTransitionError{From: order.Status, To: target}
		}

		if target == domain.OrderStatusCancelled {
			items, err := st.ListOrderItems(ctx, orderID)
			if err != nil {
				return fmt.Errorf("list order items: %w", err)
			}
			for _, item := range items {
				product, err := st.GetProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				if _, err := st.AdjustStock(ctx, item.ProductID, item.Quantity, product.Version); err != nil {
					return err
				}
			}
		}

		// Conditional on the status just observed: if another transition
		// commits in between, the write fails instead of overwriting it.
		updated, err = st.UpdateOrderStatus(ctx, orderID, order.Status, target)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(target)))

	return updated, nil
}

// Fulfill ships the order; it is the same transition as UpdateStatus with a
// shipped target and shares its validation path.
func (s *OrderService) Fulfill(ctx context.Context, orderID string) (domain.Order, error) {
	return s.UpdateStatus(ctx, orderID, domain.OrderStatusShipped)
}

// ListUserOrders returns a user's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListOrdersByUser(ctx, userID)
}
