package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-intake/internal/domain/inventory"
	"github.com/xenking/order-intake/internal/domain/order"
	"github.com/xenking/order-intake/internal/domain/promotion"
)

const (
	maxOrderLines = 500

	msgOrderCreated     = "Order created successfully"
	msgMissingFields    = "Missing required fields"
	msgItemsRequired    = "Items required"
	msgMalformedBody    = "Malformed request body"
	msgPromoNotFound    = "Promo code not found"
	msgPromoExpired     = "Invalid or expired promo code"
	msgPromoNotEligible = "Promo code is not applicable to all products in the order"
	msgDuplicateOrder   = "Order number already exists"
	msgOrderNotFound    = "Order not found"
	msgInternal         = "Internal server error"
)

type createOrderRequest struct {
	OrderNumber string        `json:"order_number" validate:"required,max=100"`
	PromoCode   string        `json:"promo_code" validate:"max=100"`
	Products    []lineRequest `json:"products" validate:"dive"`
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// decodeCreateOrder reads the order payload. Unknown fields, including
// access_token and a caller-supplied total_price, are skipped. A line
// without quantity orders one unit.
func decodeCreateOrder(data []byte) (createOrderRequest, error) {
	var req createOrderRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "order_number":
			req.OrderNumber, err = decodeScalar(d)
		case "promo_code":
			req.PromoCode, err = decodeScalar(d)
		case "products":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Products = []lineRequest{}
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Products = append(req.Products, line)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

func decodeLine(d *jx.Decoder) (lineRequest, error) {
	line := lineRequest{Quantity: 1}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			line.ProductID, err = decodeScalar(d)
		case "quantity":
			line.Quantity, err = decodeInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	return line, err
}

// CreateOrder handles POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, err := readBody(w, r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, msgMalformedBody)
		return
	}
	req, err := decodeCreateOrder(data)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, msgMalformedBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeDetail(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	items := make([]order.LineRequest, len(req.Products))
	for i, line := range req.Products {
		items[i] = order.LineRequest{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	created, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		OrderNumber: req.OrderNumber,
		Items:       items,
		PromoCode:   req.PromoCode,
	})
	if err != nil {
		status, msg := mapOrderError(err)
		if status == http.StatusInternalServerError {
			writeInternalError(ctx, w, err)
			return
		}
		writeDetail(w, status, msg)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("detail", func(e *jx.Encoder) { e.Str(msgOrderCreated) })
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, created) })
		})
	})
}

// GetOrder handles GET /api/orders/{number}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.history.FindByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, msgOrderNotFound)
			return
		}
		writeInternalError(r.Context(), w, errors.Wrap(err, "find order"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// mapOrderError converts domain errors to a status code and client message.
func mapOrderError(err error) (int, string) {
	var (
		iq    *order.InvalidQuantityError
		pnf   *order.ProductNotFoundError
		short *inventory.InsufficientStockError
	)
	switch {
	case errors.Is(err, order.ErrMissingFields):
		return http.StatusBadRequest, msgMissingFields
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusBadRequest, msgItemsRequired
	case errors.As(err, &iq):
		if iq.TooLarge {
			return http.StatusBadRequest, fmt.Sprintf("Quantity must be at most %d for product %s", inventory.MaxQuantity, iq.ProductID)
		}
		return http.StatusBadRequest, fmt.Sprintf("Quantity must be greater than 0 for product %s", iq.ProductID)
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest, msgInvalidQuantity
	case errors.As(err, &pnf):
		return http.StatusBadRequest, fmt.Sprintf("Product with id %s not found", pnf.ProductID)
	case errors.As(err, &short):
		return http.StatusBadRequest, fmt.Sprintf("Insufficient stock for product %s", short.ProductID)
	case errors.Is(err, promotion.ErrPromoNotFound):
		return http.StatusBadRequest, msgPromoNotFound
	case errors.Is(err, promotion.ErrPromoInvalidOrExpired):
		return http.StatusBadRequest, msgPromoExpired
	case errors.Is(err, promotion.ErrPromoNotApplicable):
		return http.StatusBadRequest, msgPromoNotEligible
	case errors.Is(err, order.ErrDuplicateOrderNumber):
		return http.StatusConflict, msgDuplicateOrder
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount", func(e *jx.Encoder) { e.Str(o.Discount.StringFixed(2)) })
		e.Field("total_price", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("promo_code", func(e *jx.Encoder) {
			if o.PromoCode == "" {
				e.Null()
				return
			}
			e.Str(o.PromoCode)
		})
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { e.Str(item.UnitPrice.StringFixed(2)) })
					})
				}
			})
		})
	})
}
