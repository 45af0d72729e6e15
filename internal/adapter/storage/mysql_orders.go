package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stockroom/internal/core/domain"
)

func (s *MySQLStore) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.Total, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (s *MySQLStore) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_time)
		VALUES (?, ?, ?, ?)`,
		item.OrderID, item.ProductID, item.Quantity, item.PriceAtTime,
	)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	row := s.exec.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, created_at, updated_at
		FROM orders WHERE id = ?`, orderID)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (s *MySQLStore) ListOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.exec.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price_at_time
		FROM order_items WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *MySQLStore) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.exec.QueryContext(ctx, `
		SELECT id, user_id, total, status, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus is a conditional write: the status flips only if the row
// still holds from, so a transition validated against a stale snapshot cannot
// overwrite a concurrently committed one.
func (s *MySQLStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (domain.Order, error) {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status rows affected: %w", err)
	}
	if rows == 0 {
		return domain.Order{}, s.classifyStatusFailure(ctx, orderID, to)
	}

	return s.GetOrder(ctx, orderID)
}

// classifyStatusFailure reads the order with a locking read (latest committed
// row, not the transaction snapshot) to report the transition that actually
// lost the race.
func (s *MySQLStore) classifyStatusFailure(ctx context.Context, orderID string, to domain.OrderStatus) error {
	row := s.exec.QueryRowContext(ctx, `
		SELECT id, user_id, total, status, created_at, updated_at
		FROM orders WHERE id = ? FOR UPDATE`, orderID)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query order: %w", err)
	}
	return domain.InvalidTransitionError{From: o.Status, To: to}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}
