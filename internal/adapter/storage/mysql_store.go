package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the same queries run
// inside and outside a mutation unit.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MySQLStore implements port.Store and port.TxManager on MySQL.
//
// Stock-change events produced inside a unit are staged and only handed to
// the notifier after the transaction commits; an aborted unit emits nothing.
type MySQLStore struct {
	db        *sql.DB // nil in a transaction-scoped store
	exec      dbtx
	notifier  port.StockNotifier
	threshold int
	logger    *zap.Logger

	staged *[]domain.StockChange // non-nil only inside a unit
}

func NewMySQLStore(db *sql.DB, notifier port.StockNotifier, lowStockThreshold int, logger *zap.Logger) *MySQLStore {
	return &MySQLStore{
		db:        db,
		exec:      db,
		notifier:  notifier,
		threshold: lowStockThreshold,
		logger:    logger,
	}
}

func (s *MySQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store port.Store) error) error {
	if s.db == nil {
		return fmt.Errorf("nested mutation units are not supported")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var events []domain.StockChange
	scoped := &MySQLStore{
		exec:      tx,
		notifier:  s.notifier,
		threshold: s.threshold,
		logger:    s.logger,
		staged:    &events,
	}

	if err := fn(ctx, scoped); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

// emit records a committed stock mutation. Inside a unit the event is staged
// until commit; outside it is published immediately.
func (s *MySQLStore) emit(ctx context.Context, p domain.Product) {
	ev := domain.StockChange{Product: p, LowStockAlert: p.StockQuantity < s.threshold}
	if s.staged != nil {
		*s.staged = append(*s.staged, ev)
		return
	}
	s.publish(ctx, ev)
}

func (s *MySQLStore) publish(ctx context.Context, ev domain.StockChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishStockChange(ctx, ev); err != nil {
		s.logger.Warn("stock change notification failed",
			zap.String("product_id", ev.Product.ID),
			zap.Error(err))
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         CHAR(36) PRIMARY KEY,
		username   VARCHAR(255) NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          CHAR(36) PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		description TEXT,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id             CHAR(36) PRIMARY KEY,
		name           VARCHAR(255) NOT NULL,
		sku            VARCHAR(64) NOT NULL UNIQUE,
		price          DECIMAL(12,2) NOT NULL,
		stock_quantity INT NOT NULL,
		version        BIGINT NOT NULL DEFAULT 0,
		category_id    CHAR(36) NOT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_products_category (category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         CHAR(36) PRIMARY KEY,
		user_id    CHAR(36) NOT NULL,
		total      DECIMAL(12,2) NOT NULL,
		status     VARCHAR(20) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_orders_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id      CHAR(36) NOT NULL,
		product_id    CHAR(36) NOT NULL,
		quantity      INT NOT NULL,
		price_at_time DECIMAL(12,2) NOT NULL,
		PRIMARY KEY (order_id, product_id)
	)`,
}

func (s *MySQLStore) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.exec.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}
