package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// SeedStore is the surface Seed needs; both store backends provide it.
type SeedStore interface {
	port.Store
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
}

// Seed installs the default fixtures: a test user, an Electronics category
// and two products. It is idempotent and does nothing once the user exists.
func Seed(ctx context.Context, store SeedStore) error {
	if _, err := store.GetUserByUsername(ctx, "testuser"); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("check seed user: %w", err)
	}

	if _, err := store.CreateUser(ctx, domain.User{Username: "testuser"}); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	category, err := store.CreateCategory(ctx, domain.Category{
		Name:        "Electronics",
		Description: "Gadgets and devices",
	})
	if err != nil {
		return fmt.Errorf("seed category: %w", err)
	}

	products := []domain.Product{
		{
			Name:          "Laptop",
			SKU:           "LAP123",
			Price:         decimal.RequireFromString("999.99"),
			StockQuantity: 50,
			CategoryID:    category.ID,
		},
		{
			Name:          "Smartphone",
			SKU:           "PHONE456",
			Price:         decimal.RequireFromString("499.99"),
			StockQuantity: 5,
			CategoryID:    category.ID,
		},
	}
	for _, p := range products {
		if _, err := store.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
	}

	return nil
}
