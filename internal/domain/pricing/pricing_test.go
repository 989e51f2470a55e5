package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-intake/internal/domain/promotion"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func percent(v string) *promotion.Promotion {
	return &promotion.Promotion{Code: "PCT", Kind: promotion.KindPercent, Value: d(v)}
}

func fixed(v string) *promotion.Promotion {
	return &promotion.Promotion{Code: "FIX", Kind: promotion.KindFixed, Value: d(v)}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		lines        []Line
		promo        *promotion.Promotion
		wantSubtotal decimal.Decimal
		wantDiscount decimal.Decimal
		wantTotal    decimal.Decimal
	}{
		{
			name:         "no promotion",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("50"), Quantity: 2}},
			wantSubtotal: d("100"),
			wantDiscount: d("0"),
			wantTotal:    d("100"),
		},
		{
			name: "no promotion multiple lines",
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("6.50"), Quantity: 2},
				{ProductID: "p2", UnitPrice: d("7.00"), Quantity: 1},
			},
			wantSubtotal: d("20"),
			wantDiscount: d("0"),
			wantTotal:    d("20"),
		},
		{
			name:         "percent 20 off 200",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 2}},
			promo:        percent("20"),
			wantSubtotal: d("200"),
			wantDiscount: d("40"),
			wantTotal:    d("160"),
		},
		{
			name:         "percent 100 makes order free",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("25"), Quantity: 4}},
			promo:        percent("100"),
			wantSubtotal: d("100"),
			wantDiscount: d("100"),
			wantTotal:    d("0"),
		},
		{
			name:         "percent above 100 floors at zero",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("10"), Quantity: 1}},
			promo:        percent("150"),
			wantSubtotal: d("10"),
			wantDiscount: d("10"),
			wantTotal:    d("0"),
		},
		{
			name:         "percent rounds half to even down",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("10.05"), Quantity: 1}},
			promo:        percent("50"),
			wantSubtotal: d("10.05"),
			// 5.025 -> 5.02
			wantDiscount: d("5.03"),
			wantTotal:    d("5.02"),
		},
		{
			name:         "percent rounds half to even up",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("10.07"), Quantity: 1}},
			promo:        percent("50"),
			wantSubtotal: d("10.07"),
			// 5.035 -> 5.04
			wantDiscount: d("5.03"),
			wantTotal:    d("5.04"),
		},
		{
			name:         "percent with cents precision",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("9.99"), Quantity: 3}},
			promo:        percent("15"),
			wantSubtotal: d("29.97"),
			// 29.97 * 0.85 = 25.4745 -> 25.47
			wantDiscount: d("4.50"),
			wantTotal:    d("25.47"),
		},
		{
			name:         "fixed 9 off 100",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 1}},
			promo:        fixed("9"),
			wantSubtotal: d("100"),
			wantDiscount: d("9"),
			wantTotal:    d("91"),
		},
		{
			name:         "fixed larger than subtotal floors at zero",
			lines:        []Line{{ProductID: "p1", UnitPrice: d("50"), Quantity: 2}},
			promo:        fixed("200"),
			wantSubtotal: d("100"),
			wantDiscount: d("100"),
			wantTotal:    d("0"),
		},
		{
			name:         "zero priced product",
			lines:        []Line{{ProductID: "free", UnitPrice: d("0"), Quantity: 3}},
			promo:        fixed("5"),
			wantSubtotal: d("0"),
			wantDiscount: d("0"),
			wantTotal:    d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Compute(tt.lines, tt.promo)
			require.NoError(t, err)

			assert.True(t, tt.wantSubtotal.Equal(q.Subtotal), "subtotal: want %s, got %s", tt.wantSubtotal, q.Subtotal)
			assert.True(t, tt.wantDiscount.Equal(q.Discount), "discount: want %s, got %s", tt.wantDiscount, q.Discount)
			assert.True(t, tt.wantTotal.Equal(q.Total), "total: want %s, got %s", tt.wantTotal, q.Total)
			assert.False(t, q.Total.IsNegative())
			assert.True(t, q.Subtotal.Equal(q.Total.Add(q.Discount)))
		})
	}
}

func TestCompute_UnknownKind(t *testing.T) {
	promo := &promotion.Promotion{Code: "ODD", Kind: promotion.Kind("bogo"), Value: d("1")}

	_, err := Compute([]Line{{ProductID: "p1", UnitPrice: d("10"), Quantity: 1}}, promo)
	require.ErrorIs(t, err, ErrUnknownDiscountKind)
	assert.Contains(t, err.Error(), "ODD")
}

func TestSubtotal_InvalidLines(t *testing.T) {
	tests := []struct {
		name string
		line Line
	}{
		{name: "zero quantity", line: Line{ProductID: "p1", UnitPrice: d("1"), Quantity: 0}},
		{name: "negative quantity", line: Line{ProductID: "p1", UnitPrice: d("1"), Quantity: -2}},
		{name: "negative price", line: Line{ProductID: "p1", UnitPrice: d("-1"), Quantity: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Subtotal([]Line{tt.line})
			require.ErrorIs(t, err, ErrInvalidLine)
		})
	}
}

func TestSubtotal_Empty(t *testing.T) {
	got, err := Subtotal(nil)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
