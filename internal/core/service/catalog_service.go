package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/port"
)

// CatalogService covers the CRUD surface around the order workflow:
// products, categories and user lookup. Stock-level changes are routed
// through the store's conditional mutation so the version token and the
// non-negative invariant hold here too.
type CatalogService struct {
	store     port.Store
	tx        port.TxManager
	threshold int
	logger    *zap.Logger
}

func NewCatalogService(store port.Store, tx port.TxManager, lowStockThreshold int, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		store:     store,
		tx:        tx,
		threshold: lowStockThreshold,
		logger:    logger,
	}
}

// ProductSummary is a product with its derived low-stock flag.
type ProductSummary struct {
	domain.Product
	LowStockAlert bool
}

func (s *CatalogService) summarize(p domain.Product) ProductSummary {
	return ProductSummary{Product: p, LowStockAlert: p.StockQuantity < s.threshold}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]ProductSummary, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(products, func(p domain.Product, _ int) ProductSummary {
		return s.summarize(p)
	}), nil
}

func (s *CatalogService) ListLowStockProducts(ctx context.Context) ([]ProductSummary, error) {
	products, err := s.store.ListLowStockProducts(ctx, s.threshold)
	if err != nil {
		return nil, err
	}
	return lo.Map(products, func(p domain.Product, _ int) ProductSummary {
		return s.summarize(p)
	}), nil
}

func (s *CatalogService) GetProduct(ctx context.Context, productID string) (ProductSummary, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return ProductSummary{}, err
	}
	return s.summarize(p), nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, product domain.Product) (ProductSummary, error) {
	if err := product.Validate(); err != nil {
		return ProductSummary{}, err
	}

	created, err := s.store.CreateProduct(ctx, product)
	if err != nil {
		return ProductSummary{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("sku", created.SKU))

	return s.summarize(created), nil
}

// ProductUpdate carries the optional fields of a product update; nil fields
// are left unchanged.
type ProductUpdate struct {
	Name          *string
	SKU           *string
	Price         *decimal.Decimal
	CategoryID    *string
	StockQuantity *int
}

// UpdateProduct applies the patch in one unit. A stock change is expressed
// as a delta against the current quantity and goes through the conditional
// stock mutation, bumping the version like any other stock write.
func (s *CatalogService) UpdateProduct(ctx context.Context, productID string, patch ProductUpdate) (ProductSummary, error) {
	if patch.StockQuantity != nil && *patch.StockQuantity < 0 {
		return ProductSummary{}, domain.ValidationError("stock quantity must be a non-negative integer")
	}

	var result domain.Product

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		product, err := st.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			product.Name = *patch.Name
		}
		if patch.SKU != nil {
			product.SKU = *patch.SKU
		}
		if patch.Price != nil {
			product.Price = *patch.Price
		}
		if patch.CategoryID != nil {
			product.CategoryID = *patch.CategoryID
		}
		if err := product.Validate(); err != nil {
			return err
		}

		result, err = st.UpdateProduct(ctx, product)
		if err != nil {
			return err
		}

		if patch.StockQuantity != nil {
			delta := *patch.StockQuantity - result.StockQuantity
			if delta != 0 {
				result, err = st.AdjustStock(ctx, productID, delta, result.Version)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ProductSummary{}, err
	}

	return s.summarize(result), nil
}

// SetStock moves a product to an absolute stock level via the conditional
// mutation.
func (s *CatalogService) SetStock(ctx context.Context, productID string, quantity int) (ProductSummary, error) {
	if quantity < 0 {
		return ProductSummary{}, domain.ValidationError("stock quantity must be a non-negative integer")
	}

	var result domain.Product

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st port.Store) error {
		product, err := st.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		delta := quantity - product.StockQuantity
		if delta == 0 {
			result = product
			return nil
		}

		result, err = st.AdjustStock(ctx, productID, delta, product.Version)
		return err
	})
	if err != nil {
		return ProductSummary{}, err
	}

	return s.summarize(result), nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	if category.Name == "" {
		return domain.Category{}, domain.ValidationError("category name is required")
	}
	return s.store.CreateCategory(ctx, category)
}

func (s *CatalogService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.store.GetUserByUsername(ctx, username)
}
