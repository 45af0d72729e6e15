package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string
	Name          string
	SKU           string
	Price         decimal.Decimal
	StockQuantity int
	Version       int64 // optimistic locking
	CategoryID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p Product) Validate() error {
	if p.Name == "" {
		return ValidationError("product name is required")
	}
	if p.SKU == "" {
		return ValidationError("product sku is required")
	}
	if p.Price.IsNegative() {
		return ValidationError("product price must be non-negative")
	}
	if p.StockQuantity < 0 {
		return ValidationError("stock quantity must be non-negative")
	}
	if p.CategoryID == "" {
		return ValidationError("product category is required")
	}
	return nil
}

// StockChange is emitted once per committed stock mutation.
type StockChange struct {
	Product       Product `json:"product"`
	LowStockAlert bool    `json:"low_stock_alert"`
}
