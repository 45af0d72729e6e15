package port

import (
	"context"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// StockNotifier receives committed stock-change events. Delivery is
// best-effort: no acknowledgement, no retry, and no ordering guarantee
// across subscribers beyond the commit order of the publishing side.
type StockNotifier interface {
	PublishStockChange(ctx context.Context, change domain.StockChange) error
}
