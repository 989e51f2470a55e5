package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-intake/internal/domain/order"
)

const (
	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`

	createOrderSQL = `INSERT INTO orders (id, order_number, promo_code, subtotal, discount, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	getOrderByNumberSQL = `SELECT id, order_number, promo_code, subtotal, discount, total_price, created_at
		FROM orders WHERE order_number = $1`

	listOrderItemsSQL = `SELECT product_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY product_id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// WithTx runs fn in a read-committed transaction. Repositories sharing the
// pool pick the transaction up from the context passed to fn.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// Exists reports whether an order with the given number has been committed.
func (r *OrderRepository) Exists(ctx context.Context, number string) (bool, error) {
	var exists bool
	if err := conn(ctx, r.pool).QueryRow(ctx, orderExistsSQL, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order %q: %w", number, err)
	}
	return exists, nil
}

// Create persists the order header and its items in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(createOrderSQL,
		o.ID, o.Number, o.PromoCode, o.Subtotal, o.Discount, o.Total, o.CreatedAt,
	)
	for _, item := range o.Items {
		batch.Queue(createOrderItemSQL, o.ID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	if err := conn(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

// FindByNumber loads a committed order with its items. It returns
// order.ErrNotFound when no order matches.
func (r *OrderRepository) FindByNumber(ctx context.Context, number string) (*order.Order, error) {
	db := conn(ctx, r.pool)

	rows, err := db.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", number, err)
	}

	rows, err = db.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", number, err)
	}
	o.Items, err = pgx.CollectRows(rows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", number, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.Number, &o.PromoCode, &o.Subtotal, &o.Discount, &o.Total, &o.CreatedAt)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item order.Item
		qty  int32
	)
	err := row.Scan(&item.ProductID, &qty, &item.UnitPrice)
	item.Quantity = int(qty)
	return item, err
}
