package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no committed order has the requested number.
var ErrNotFound = errors.New("order not found")

// Order is a committed customer order. Totals are always computed by the
// service and never change after commit.
type Order struct {
	ID        string
	Number    string
	Items     []Item
	PromoCode string
	Subtotal  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Item is a committed line item. UnitPrice is the catalog price at commit time.
type Item struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Repository defines persistence operations for orders.
//
// WithTx runs fn in a transaction shared by every repository call made with
// the context it passes to fn. Create returns ErrDuplicateOrderNumber when
// the order number is already taken.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Exists(ctx context.Context, number string) (bool, error)
	Create(ctx context.Context, order *Order) error
}
