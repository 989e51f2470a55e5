package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-intake/internal/domain/inventory"
	"github.com/xenking/order-intake/internal/domain/product"
)

const (
	msgProductNotFound = "Product not found"
	msgInvalidQuantity = "Invalid quantity"
)

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeInternalError(r.Context(), w, errors.Wrap(err, "list products"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				encodeProduct(e, &products[i])
			}
		})
	})
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, msgProductNotFound)
			return
		}
		writeInternalError(r.Context(), w, errors.Wrap(err, "get product"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// RestockProduct handles POST /api/products/{id}/restock. A missing or
// malformed quantity is treated as zero and rejected.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := readBody(w, r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, msgMalformedBody)
		return
	}
	// An unreadable quantity stays zero so an unknown product still reports 404.
	var qty int
	_ = decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := decodeInt(d)
		if err != nil {
			return err
		}
		qty = v
		return nil
	})

	p, err := h.stock.Restock(ctx, r.PathValue("id"), qty)
	switch {
	case err == nil:
	case errors.Is(err, product.ErrNotFound):
		writeDetail(w, http.StatusNotFound, msgProductNotFound)
		return
	case errors.Is(err, inventory.ErrInvalidQuantity):
		writeDetail(w, http.StatusBadRequest, msgInvalidQuantity)
		return
	default:
		writeInternalError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("detail", func(e *jx.Encoder) { e.Str(fmt.Sprintf("%s restocked by %d", p.Name, qty)) })
			e.Field("product", func(e *jx.Encoder) { encodeProduct(e, p) })
		})
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { e.Str(p.Price.StringFixed(2)) })
		e.Field("quantity_in_stock", func(e *jx.Encoder) { e.Int(p.Stock) })
	})
}
