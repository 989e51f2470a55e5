package inventory

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"
)

// MaxQuantity bounds both a single adjustment and the resulting stock level,
// which is stored as a 32-bit INTEGER.
const MaxQuantity = math.MaxInt32

// ErrInvalidQuantity is returned for stock adjustments with a quantity < 1
// or one that would leave stock above MaxQuantity.
var ErrInvalidQuantity = errors.New("invalid quantity")

// InsufficientStockError indicates that a decrement asked for more units
// than are available. Stock is never clamped.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Decrement returns stock reduced by qty. It rejects qty outside
// [1, MaxQuantity] and any qty larger than stock.
func Decrement(productID string, stock, qty int) (int, error) {
	if qty < 1 || qty > MaxQuantity {
		return stock, ErrInvalidQuantity
	}
	if qty > stock {
		return stock, &InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: stock,
		}
	}
	return stock - qty, nil
}

// Increment returns stock increased by qty. It rejects qty < 1 and any qty
// that would push stock above MaxQuantity.
func Increment(stock, qty int) (int, error) {
	if qty < 1 || qty > MaxQuantity-stock {
		return stock, ErrInvalidQuantity
	}
	return stock + qty, nil
}
