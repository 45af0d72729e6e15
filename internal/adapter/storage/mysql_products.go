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

const productColumns = `id, name, sku, price, stock_quantity, version, category_id, created_at, updated_at`

func (s *MySQLStore) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	row := s.exec.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = ?`, productID)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (s *MySQLStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.exec.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *MySQLStore) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := s.exec.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE stock_quantity < ? ORDER BY stock_quantity`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query low stock products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func (s *MySQLStore) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.Version = 0
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, price, stock_quantity, version, category_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID, product.Name, product.SKU, product.Price, product.StockQuantity,
		product.Version, product.CategoryID, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}

	s.emit(ctx, product)
	return product, nil
}

// UpdateProduct writes the non-stock fields under the same version token as
// the stock mutation, so two concurrent patches cannot silently overwrite
// each other.
func (s *MySQLStore) UpdateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, price = ?, category_id = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		product.Name, product.SKU, product.Price, product.CategoryID, product.ID, product.Version,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product rows affected: %w", err)
	}
	if rows == 0 {
		row := s.exec.QueryRowContext(ctx, `
			SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, product.ID)
		if _, err := scanProduct(row); errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, fmt.Errorf("product %s: %w", product.ID, domain.ErrNotFound)
		} else if err != nil {
			return domain.Product{}, fmt.Errorf("query product: %w", err)
		}
		return domain.Product{}, fmt.Errorf("product %s: %w", product.ID, domain.ErrVersionConflict)
	}

	return s.GetProduct(ctx, product.ID)
}

// AdjustStock is the conditional stock mutation: one UPDATE whose predicate
// checks both the version token and the resulting quantity, so no window
// exists between the availability check and the commit.
func (s *MySQLStore) AdjustStock(ctx context.Context, productID string, delta int, expectedVersion int64) (domain.Product, error) {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ? AND stock_quantity + ? >= 0`,
		delta, productID, expectedVersion, delta,
	)
	if err != nil {
		return domain.Product{}, fmt.Errorf("adjust stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return domain.Product{}, fmt.Errorf("adjust stock rows affected: %w", err)
	}
	if rows == 0 {
		return domain.Product{}, s.classifyAdjustFailure(ctx, productID, delta, expectedVersion)
	}

	updated, err := s.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	s.emit(ctx, updated)
	return updated, nil
}

// classifyAdjustFailure turns a zero-row conditional write into the precise
// failure: missing product, stale version, or insufficient stock. The locking
// read sees the latest committed row rather than the transaction snapshot,
// which matters under REPEATABLE READ after a lost version race.
func (s *MySQLStore) classifyAdjustFailure(ctx context.Context, productID string, delta int, expectedVersion int64) error {
	row := s.exec.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = ? FOR UPDATE`, productID)

	current, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query product: %w", err)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("product %s: %w", productID, domain.ErrVersionConflict)
	}
	return domain.InsufficientStockError{
		ProductName: current.Name,
		Requested:   -delta,
		Available:   current.StockQuantity,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.StockQuantity,
		&p.Version, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
