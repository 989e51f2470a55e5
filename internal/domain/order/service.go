package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/order-intake/internal/domain/inventory"
	"github.com/xenking/order-intake/internal/domain/pricing"
	"github.com/xenking/order-intake/internal/domain/product"
	"github.com/xenking/order-intake/internal/domain/promotion"
)

// Sentinel errors for order validation.
var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrEmptyItems           = errors.New("items required")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product with id %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity, or
// that the total requested for a product exceeds inventory.MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
	TooLarge  bool
}

func (e *InvalidQuantityError) Error() string {
	if e.TooLarge {
		return fmt.Sprintf("quantity must be at most %d for product %s", inventory.MaxQuantity, e.ProductID)
	}
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineRequest is a requested (product, quantity) pair.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	OrderNumber string
	Items       []LineRequest
	PromoCode   string
}

// PromotionResolver resolves a promotion code for a set of products at a
// given instant.
type PromotionResolver interface {
	ResolveAt(ctx context.Context, code string, productIDs []string, at time.Time) (*promotion.Promotion, error)
}

// Service is the order commit coordinator: it validates a request, reserves
// stock, resolves the promotion, prices the order and persists it, all in
// one transaction.
type Service struct {
	products   product.Repository
	promotions PromotionResolver
	orders     Repository
	now        func() time.Time

	tracer    trace.Tracer
	committed metric.Int64Counter
	rejected  metric.Int64Counter
}

// Option configures a Service.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider sets the tracer provider used for commit spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

const instrumentationName = "github.com/xenking/order-intake/internal/domain/order"

// NewService creates an order Service with the required domain dependencies.
// Telemetry defaults to the global OpenTelemetry providers.
func NewService(
	products product.Repository,
	promotions PromotionResolver,
	orders Repository,
	opts ...Option,
) (*Service, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	committed, err := meter.Int64Counter("intake.orders.committed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create committed counter")
	}
	rejected, err := meter.Int64Counter("intake.orders.rejected",
		metric.WithDescription("Orders rejected, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Service{
		products:   products,
		promotions: promotions,
		orders:     orders,
		now:        time.Now,
		tracer:     o.tracerProvider.Tracer(instrumentationName),
		committed:  committed,
		rejected:   rejected,
	}, nil
}

// PlaceOrder validates the request and commits the order. Either the order,
// its line items and every stock decrement are persisted, or nothing is.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("order.number", req.OrderNumber)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(rerr))))
		}
		span.End()
	}()

	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		return nil, ErrMissingFields
	}

	lines, err := mergeLines(req.Items)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, len(lines))
	for i, l := range lines {
		productIDs[i] = l.ProductID
	}
	promoCode := strings.TrimSpace(req.PromoCode)
	now := s.now().UTC()

	var created *Order
	err = s.orders.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.orders.Exists(ctx, number)
		if err != nil {
			return errors.Wrap(err, "check order number")
		}
		if exists {
			return ErrDuplicateOrderNumber
		}

		products, err := s.lockProducts(ctx, productIDs)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, ok := products[l.ProductID]; !ok {
				return &ProductNotFoundError{ProductID: l.ProductID}
			}
		}

		// Stock is checked against locked rows, so no concurrent commit can
		// consume the same units before our decrement.
		priced := make([]pricing.Line, len(lines))
		for i, l := range lines {
			if l.invalid != nil {
				return l.invalid
			}
			p := products[l.ProductID]
			if _, err := inventory.Decrement(p.ID, p.Stock, l.Quantity); err != nil {
				return err
			}
			priced[i] = pricing.Line{ProductID: p.ID, UnitPrice: p.Price, Quantity: l.Quantity}
		}

		var promo *promotion.Promotion
		if promoCode != "" {
			promo, err = s.promotions.ResolveAt(ctx, promoCode, productIDs, now)
			if err != nil {
				return err
			}
		}

		quote, err := pricing.Compute(priced, promo)
		if err != nil {
			return errors.Wrap(err, "compute total")
		}

		o := &Order{
			ID:        uuid.New().String(),
			Number:    number,
			Items:     make([]Item, len(priced)),
			Subtotal:  quote.Subtotal,
			Discount:  quote.Discount,
			Total:     quote.Total,
			CreatedAt: now,
		}
		for i, l := range priced {
			o.Items[i] = Item{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		}
		if promo != nil {
			o.PromoCode = promo.Code
		}

		if err := s.orders.Create(ctx, o); err != nil {
			if errors.Is(err, ErrDuplicateOrderNumber) {
				return ErrDuplicateOrderNumber
			}
			return errors.Wrap(err, "create order")
		}

		for _, l := range lines {
			if _, err := s.products.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock for product %s", l.ProductID)
			}
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed.Add(ctx, 1)
	zctx.From(ctx).Info("Order committed",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.Number),
		zap.Stringer("total", created.Total),
		zap.String("promo_code", created.PromoCode),
		zap.Int("lines", len(created.Items)),
	)

	return created, nil
}

// lockProducts locks the rows for ids in ascending id order, so concurrent
// commits over overlapping product sets acquire locks in the same order.
func (s *Service) lockProducts(ctx context.Context, ids []string) (map[string]product.Product, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	locked, err := s.products.LockByIDs(ctx, sorted)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}

	byID := make(map[string]product.Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}
	return byID, nil
}

// mergedLine is the total demand for one product. A quantity problem is kept
// on the line and reported only once the product has been resolved.
type mergedLine struct {
	ProductID string
	Quantity  int
	invalid   *InvalidQuantityError
}

// mergeLines folds repeated product ids into one line, keeping first-seen
// order. Quantity never exceeds inventory.MaxQuantity, so the sum cannot
// overflow.
func mergeLines(items []LineRequest) ([]mergedLine, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	merged := make([]mergedLine, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, ErrMissingFields
		}
		i, ok := index[id]
		if !ok {
			i = len(merged)
			index[id] = i
			merged = append(merged, mergedLine{ProductID: id})
		}

		l := &merged[i]
		switch {
		case l.invalid != nil:
		case item.Quantity <= 0:
			l.invalid = &InvalidQuantityError{ProductID: id}
		case item.Quantity > inventory.MaxQuantity-l.Quantity:
			l.invalid = &InvalidQuantityError{ProductID: id, TooLarge: true}
		default:
			l.Quantity += item.Quantity
		}
	}
	return merged, nil
}

func rejectReason(err error) string {
	var (
		pnf   *ProductNotFoundError
		iq    *InvalidQuantityError
		short *inventory.InsufficientStockError
	)
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrEmptyItems), errors.As(err, &iq),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return "validation"
	case errors.Is(err, ErrDuplicateOrderNumber):
		return "duplicate"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &short):
		return "insufficient_stock"
	case errors.Is(err, promotion.ErrPromoNotFound):
		return "promo_not_found"
	case errors.Is(err, promotion.ErrPromoInvalidOrExpired):
		return "promo_expired"
	case errors.Is(err, promotion.ErrPromoNotApplicable):
		return "promo_not_applicable"
	default:
		return "internal"
	}
}
