// Package pricing computes order totals from line items and an optional
// promotion. All functions are pure.
//
// Monetary results are rounded half-to-even to two fractional digits, the
// same scale used for stored prices, discount values and totals.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-intake/internal/domain/promotion"
)

// Scale is the number of fractional digits kept for every monetary amount.
const Scale = 2

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

var (
	// ErrUnknownDiscountKind signals a promotion whose kind the engine does
	// not understand. It is a data-integrity problem, not a pricing outcome.
	ErrUnknownDiscountKind = errors.New("unknown discount kind")
	// ErrInvalidLine is returned for a line with quantity < 1 or a negative price.
	ErrInvalidLine = errors.New("invalid line item")
)

// Line is a priced line item.
type Line struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the result of pricing an order. Subtotal == Total + Discount.
type Quote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Compute prices lines and applies promo when it is non-nil. The promotion
// must already be resolved as valid for these lines.
func Compute(lines []Line, promo *promotion.Promotion) (Quote, error) {
	subtotal, err := Subtotal(lines)
	if err != nil {
		return Quote{}, err
	}

	total := subtotal
	if promo != nil {
		total, err = Apply(subtotal, promo)
		if err != nil {
			return Quote{}, err
		}
	}

	return Quote{
		Subtotal: subtotal,
		Discount: subtotal.Sub(total),
		Total:    total,
	}, nil
}

// Subtotal returns the rounded sum of unit price * quantity.
func Subtotal(lines []Line) (decimal.Decimal, error) {
	sum := zero
	for _, l := range lines {
		if l.Quantity < 1 || l.UnitPrice.IsNegative() {
			return zero, errors.Wrapf(ErrInvalidLine, "product %s", l.ProductID)
		}
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return round(sum), nil
}

// Apply returns the discounted total for subtotal, never below zero.
func Apply(subtotal decimal.Decimal, promo *promotion.Promotion) (decimal.Decimal, error) {
	switch promo.Kind {
	case promotion.KindPercent:
		// subtotal * (1 - value/100), computed as subtotal * (100 - value) / 100
		// to keep the division last.
		total := subtotal.Mul(hundred.Sub(promo.Value)).Div(hundred)
		return round(floorAtZero(total)), nil
	case promotion.KindFixed:
		return round(floorAtZero(subtotal.Sub(promo.Value))), nil
	default:
		return zero, errors.Wrapf(ErrUnknownDiscountKind, "promotion %q has kind %q", promo.Code, promo.Kind)
	}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
