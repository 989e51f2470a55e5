package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercent takes a percentage off the subtotal.
	KindPercent Kind = "percent"
	// KindFixed takes a fixed amount off the subtotal.
	KindFixed Kind = "fixed"
)

// ParseKind maps a stored discount type name to a Kind, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPercent, KindFixed:
		return k, nil
	default:
		return "", errors.Errorf("unknown discount type %q", s)
	}
}

var (
	// ErrPromoNotFound is returned when no promotion matches the code.
	ErrPromoNotFound = errors.New("promo code not found")
	// ErrPromoInvalidOrExpired is returned when the promotion exists but the
	// current time is outside its active window.
	ErrPromoInvalidOrExpired = errors.New("invalid or expired promo code")
	// ErrPromoNotApplicable is returned when at least one ordered product is
	// outside the promotion's eligible product set.
	ErrPromoNotApplicable = errors.New("promo code is not applicable to all products in the order")
)

// Promotion is a discount code restricted to a time window and a set of
// eligible products.
type Promotion struct {
	ID         int64
	Name       string
	Code       string
	Kind       Kind
	Value      decimal.Decimal
	StartsAt   time.Time
	EndsAt     time.Time
	ProductIDs []string
}

// ActiveAt reports whether t falls inside the inclusive [StartsAt, EndsAt] window.
func (p *Promotion) ActiveAt(t time.Time) bool {
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

// Covers reports whether every product id is in the eligible set.
func (p *Promotion) Covers(productIDs []string) bool {
	eligible := make(map[string]struct{}, len(p.ProductIDs))
	for _, id := range p.ProductIDs {
		eligible[id] = struct{}{}
	}
	for _, id := range productIDs {
		if _, ok := eligible[id]; !ok {
			return false
		}
	}
	return true
}

// Repository provides case-insensitive lookup of promotions by code.
// FindByCode returns ErrPromoNotFound when nothing matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
}
