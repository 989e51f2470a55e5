package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Resolver validates a promotion code against the current time and the set
// of products in an order.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by the given Repository.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// ResolveAt looks up the promotion for code and checks that it is active at
// the given instant and eligible for every product id. It never mutates the
// promotion.
func (r *Resolver) ResolveAt(ctx context.Context, code string, productIDs []string, at time.Time) (*Promotion, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrPromoNotFound
	}

	promo, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrPromoNotFound) {
			return nil, ErrPromoNotFound
		}
		return nil, errors.Wrap(err, "lookup promotion")
	}

	if !promo.ActiveAt(at) {
		return nil, ErrPromoInvalidOrExpired
	}
	if !promo.Covers(productIDs) {
		return nil, ErrPromoNotApplicable
	}

	return promo, nil
}
