package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-intake/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, quantity_in_stock`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	// Rows are locked in id order; callers pass sorted ids as well.
	lockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	adjustStockSQL = `UPDATE products SET quantity_in_stock = quantity_in_stock + $2
		WHERE id = $1 RETURNING ` + productColumns

	upsertProductSQL = `INSERT INTO products (id, name, description, price, quantity_in_stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			quantity_in_stock = EXCLUDED.quantity_in_stock`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
// Calls made with a context from OrderRepository.WithTx join that transaction.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// LockByIDs selects the given products FOR UPDATE. It must run inside
// WithTx, otherwise the locks are released as soon as the query returns.
func (r *ProductRepository) LockByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if txFromContext(ctx) == nil {
		return nil, errors.New("lock products: no transaction in context")
	}
	rows, err := conn(ctx, r.pool).Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// AdjustStock adds delta (negative to decrement) to the product's stock and
// returns the updated row. The schema CHECK constraint rejects negative stock
// and an INTEGER overflow is reported as product.ErrStockOutOfRange.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return nil, fmt.Errorf("adjusting stock for %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, product.ErrNotFound
	case isCheckViolation(err):
		return nil, product.ErrNegativeStock
	case isOutOfRange(err):
		return nil, product.ErrStockOutOfRange
	default:
		return nil, fmt.Errorf("adjusting stock for %q: %w", id, err)
	}
}

// Upsert inserts the product or overwrites the existing row with the same ID.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Description, p.Price, p.Stock)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		stock int32
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &stock)
	p.Stock = int(stock)
	return p, err
}
