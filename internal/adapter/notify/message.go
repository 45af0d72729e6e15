package notify

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// stockChangeMessage is the wire form of a stock-change event, shared by
// all sinks.
type stockChangeMessage struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Version       int64           `json:"version"`
	CategoryID    string          `json:"category_id"`
	LowStockAlert bool            `json:"low_stock_alert"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func encodeStockChange(change domain.StockChange) ([]byte, error) {
	return json.Marshal(stockChangeMessage{
		ProductID:     change.Product.ID,
		Name:          change.Product.Name,
		SKU:           change.Product.SKU,
		Price:         change.Product.Price,
		StockQuantity: change.Product.StockQuantity,
		Version:       change.Product.Version,
		CategoryID:    change.Product.CategoryID,
		LowStockAlert: change.LowStockAlert,
		UpdatedAt:     change.Product.UpdatedAt,
	})
}
