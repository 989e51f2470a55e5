// Package handler implements the order intake HTTP API on net/http.
package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/order-intake/internal/domain/order"
	"github.com/xenking/order-intake/internal/domain/product"
)

// OrderPlacer commits orders.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// OrderFinder loads committed orders by number.
type OrderFinder interface {
	FindByNumber(ctx context.Context, number string) (*order.Order, error)
}

// Restocker adds stock to a product.
type Restocker interface {
	Restock(ctx context.Context, productID string, qty int) (*product.Product, error)
}

// Handler serves the order intake API, delegating business logic to the
// order and inventory services.
type Handler struct {
	products product.Repository
	orders   OrderPlacer
	history  OrderFinder
	stock    Restocker
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(products product.Repository, orders OrderPlacer, history OrderFinder, stock Restocker) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		history:  history,
		stock:    stock,
		validate: newValidator(),
	}
}

// Register mounts every route on mux. Mutating routes and order lookup are
// wrapped with requireToken.
func (h *Handler) Register(mux *http.ServeMux, requireToken func(http.Handler) http.Handler) {
	createOrder := requireToken(http.HandlerFunc(h.CreateOrder))
	mux.Handle("POST /api/orders", createOrder)
	mux.Handle("POST /api/import-order/", createOrder)
	mux.Handle("GET /api/orders/{number}", requireToken(http.HandlerFunc(h.GetOrder)))

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.Handle("POST /api/products/{id}/restock", requireToken(http.HandlerFunc(h.RestockProduct)))
}
