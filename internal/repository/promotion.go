package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-intake/internal/domain/promotion"
)

const (
	findPromotionByCodeSQL = `SELECT p.id, p.name, p.code, p.discount_type, p.discount_value,
			p.starts_at, p.ends_at,
			COALESCE(ARRAY_AGG(pp.product_id ORDER BY pp.product_id)
				FILTER (WHERE pp.product_id IS NOT NULL), '{}') AS product_ids
		FROM promotions p
		LEFT JOIN promotion_products pp ON pp.promotion_id = p.id
		WHERE UPPER(p.code) = UPPER($1)
		GROUP BY p.id`

	upsertPromotionSQL = `INSERT INTO promotions (name, code, discount_type, discount_value, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (UPPER(code)) DO UPDATE SET
			name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at
		RETURNING id`

	clearPromotionProductsSQL = `DELETE FROM promotion_products WHERE promotion_id = $1`

	linkPromotionProductSQL = `INSERT INTO promotion_products (promotion_id, product_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`

	listPromotionCodesSQL = `SELECT UPPER(code) FROM promotions`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// FindByCode looks up a promotion by code, case-insensitively, together with
// its eligible product ids. Returns promotion.ErrPromoNotFound when no
// promotion matches.
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, findPromotionByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrPromoNotFound
		}
		return nil, fmt.Errorf("finding promotion by code %q: %w", code, err)
	}
	return &p, nil
}

// Upsert creates or replaces the promotion with the same code and resets its
// eligible product set. It returns the promotion id.
func (r *PromotionRepository) Upsert(ctx context.Context, p promotion.Promotion) (int64, error) {
	var id int64
	err := withTx(ctx, r.pool, func(ctx context.Context) error {
		db := conn(ctx, r.pool)
		if err := db.QueryRow(ctx, upsertPromotionSQL,
			p.Name, p.Code, string(p.Kind), p.Value, p.StartsAt, p.EndsAt,
		).Scan(&id); err != nil {
			return fmt.Errorf("upserting promotion %q: %w", p.Code, err)
		}

		batch := &pgx.Batch{}
		batch.Queue(clearPromotionProductsSQL, id)
		for _, productID := range p.ProductIDs {
			batch.Queue(linkPromotionProductSQL, id, productID)
		}
		if err := db.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("linking products to promotion %q: %w", p.Code, err)
		}
		return nil
	})
	return id, err
}

// ListCodes returns every stored promotion code, upper-cased.
func (r *PromotionRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listPromotionCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotion codes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p    promotion.Promotion
		kind string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Code, &kind, &p.Value, &p.StartsAt, &p.EndsAt, &p.ProductIDs)
	p.Kind = promotion.Kind(kind)
	return p, err
}
