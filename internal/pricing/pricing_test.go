package pricing

import (
	"testing"
	"time"

	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func product(price string) models.Product {
	return models.Product{
		ID:            7,
		BasePrice:     decimal.NewNullDecimal(decimal.RequireFromString(price)),
		PriceApproved: true,
	}
}

func discount(id int64, typ models.DiscountType, value string, created time.Time) models.Discount {
	return models.Discount{
		ID:        id,
		ProductID: 7,
		Type:      typ,
		Value:     decimal.RequireFromString(value),
		StartAt:   now.Add(-24 * time.Hour),
		EndAt:     now.Add(24 * time.Hour),
		CreatedAt: created,
	}
}

func TestEffectivePrice(t *testing.T) {
	created := now.Add(-48 * time.Hour)

	tests := []struct {
		name      string
		discounts []models.Discount
		want      string
	}{
		{name: "no discount", want: "100.00"},
		{name: "percentage 20", discounts: []models.Discount{discount(1, models.DiscountTypePercentage, "20", created)}, want: "80.00"},
		{name: "fixed 30", discounts: []models.Discount{discount(1, models.DiscountTypeFixed, "30", created)}, want: "70.00"},
		{name: "fixed clamps at zero", discounts: []models.Discount{discount(1, models.DiscountTypeFixed, "150", created)}, want: "0.00"},
		{name: "percentage clamps at zero", discounts: []models.Discount{discount(1, models.DiscountTypePercentage, "120", created)}, want: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := EffectivePrice(product("100"), tt.discounts, now)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(quote.UnitPrice), "got %s", quote.UnitPrice)
			assert.Equal(t, "100", quote.BasePrice.String())
		})
	}
}

func TestEffectivePriceRejectsNonPurchasable(t *testing.T) {
	unapproved := product("100")
	unapproved.PriceApproved = false
	_, err := EffectivePrice(unapproved, nil, now)
	assert.ErrorIs(t, err, ErrNotPurchasable)

	unpriced := models.Product{ID: 7, PriceApproved: true}
	_, err = EffectivePrice(unpriced, nil, now)
	assert.ErrorIs(t, err, ErrNotPurchasable)
}

func TestOverlappingDiscountsLatestCreatedWins(t *testing.T) {
	older := discount(1, models.DiscountTypePercentage, "50", now.Add(-72*time.Hour))
	latest := discount(2, models.DiscountTypeFixed, "10", now.Add(-1*time.Hour))

	quote, err := EffectivePrice(product("100"), []models.Discount{latest, older}, now)
	require.NoError(t, err)
	require.NotNil(t, quote.Discount)
	assert.Equal(t, int64(2), quote.Discount.ID)
	assert.Equal(t, "90", quote.UnitPrice.String())
}

func TestOverlappingDiscountsSameCreationUsesHighestID(t *testing.T) {
	created := now.Add(-time.Hour)
	a := discount(3, models.DiscountTypeFixed, "5", created)
	b := discount(9, models.DiscountTypeFixed, "15", created)

	active := ActiveDiscount(7, []models.Discount{b, a}, now)
	require.NotNil(t, active)
	assert.Equal(t, int64(9), active.ID)
}

func TestDiscountWindowBoundaries(t *testing.T) {
	d := discount(1, models.DiscountTypeFixed, "10", now.Add(-time.Hour))
	d.StartAt = now
	d.EndAt = now.Add(time.Hour)

	atStart, err := EffectivePrice(product("100"), []models.Discount{d}, now)
	require.NoError(t, err)
	assert.Equal(t, "90", atStart.UnitPrice.String())

	atEnd, err := EffectivePrice(product("100"), []models.Discount{d}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, atEnd.Discount)
	assert.Equal(t, "100", atEnd.UnitPrice.String())
}

func TestDiscountForOtherProductIgnored(t *testing.T) {
	d := discount(1, models.DiscountTypeFixed, "10", now.Add(-time.Hour))
	d.ProductID = 99

	quote, err := EffectivePrice(product("100"), []models.Discount{d}, now)
	require.NoError(t, err)
	assert.Nil(t, quote.Discount)
}

func TestPercentageRoundsToCents(t *testing.T) {
	d := discount(1, models.DiscountTypePercentage, "15", now.Add(-time.Hour))

	quote, err := EffectivePrice(product("19.99"), []models.Discount{d}, now)
	require.NoError(t, err)
	assert.Equal(t, "16.99", quote.UnitPrice.StringFixed(2))
}

func TestUnitCost(t *testing.T) {
	price := decimal.RequireFromString("80")

	assert.Equal(t, "40.00", UnitCost(decimal.NullDecimal{}, price).StringFixed(2))
	assert.Equal(t, "55.25", UnitCost(decimal.NewNullDecimal(decimal.RequireFromString("55.25")), price).StringFixed(2))
	assert.Equal(t, "4.63", UnitCost(decimal.NullDecimal{}, decimal.RequireFromString("9.25")).StringFixed(2))
}
