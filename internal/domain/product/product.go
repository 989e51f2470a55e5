package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrNegativeStock is returned by the store when a stock adjustment would
	// drive quantity in stock below zero.
	ErrNegativeStock = errors.New("stock quantity would become negative")
	// ErrStockOutOfRange is returned by the store when a stock adjustment
	// would overflow the stored quantity.
	ErrStockOutOfRange = errors.New("stock quantity out of range")
)

// Product represents a catalog item available for ordering.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

// Repository defines the catalog operations used by order intake.
//
// LockByIDs must be called inside a transaction: the returned rows stay
// locked until it commits or rolls back. Missing ids are silently skipped.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	LockByIDs(ctx context.Context, ids []string) ([]Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (*Product, error)
}
