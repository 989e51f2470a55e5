package inventory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-intake/internal/domain/product"
)

// Service performs stock operations that are independent of order commit.
type Service struct {
	products product.Repository
}

// NewService creates an inventory Service backed by the product repository.
func NewService(products product.Repository) *Service {
	return &Service{products: products}
}

// Restock adds qty units to a product's stock and returns the updated
// product. The product is resolved first, so an unknown id reports
// product.ErrNotFound even when qty is also invalid.
func (s *Service) Restock(ctx context.Context, productID string, qty int) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrap(err, "get product")
	}

	if _, err := Increment(p.Stock, qty); err != nil {
		return nil, err
	}

	updated, err := s.products.AdjustStock(ctx, productID, qty)
	if err != nil {
		// A concurrent restock can still push the stored value out of range.
		if errors.Is(err, product.ErrStockOutOfRange) {
			return nil, ErrInvalidQuantity
		}
		return nil, errors.Wrap(err, "increment stock")
	}

	zctx.From(ctx).Info("Product restocked",
		zap.String("product_id", productID),
		zap.Int("quantity", qty),
		zap.Int("stock", updated.Stock),
	)
	return updated, nil
}
