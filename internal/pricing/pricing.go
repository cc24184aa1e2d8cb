// Package pricing resolves the unit price a product sells for at a point in
// time and the cost snapshot recorded alongside it.
package pricing

import (
	"errors"
	"time"

	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

var ErrNotPurchasable = errors.New("product is not purchasable")

var (
	hundred          = decimal.NewFromInt(100)
	costFallbackRate = decimal.NewFromFloat(0.5)
)

// Quote is the resolved price for one product.
type Quote struct {
	UnitPrice decimal.Decimal
	BasePrice decimal.Decimal
	Discount  *models.Discount
}

// EffectivePrice returns the unit price for product at the given time.
// Discounts for other products and inactive windows are ignored; when several
// windows overlap the most recently created discount wins, then the highest id.
func EffectivePrice(product models.Product, discounts []models.Discount, at time.Time) (Quote, error) {
	if !product.Purchasable() {
		return Quote{}, ErrNotPurchasable
	}

	base := product.BasePrice.Decimal
	quote := Quote{UnitPrice: base.Round(2), BasePrice: base}

	active := ActiveDiscount(product.ID, discounts, at)
	if active == nil {
		return quote, nil
	}

	quote.UnitPrice = Apply(base, *active)
	quote.Discount = active
	return quote, nil
}

func ActiveDiscount(productID int64, discounts []models.Discount, at time.Time) *models.Discount {
	var winner *models.Discount
	for i := range discounts {
		d := discounts[i]
		if d.ProductID != productID || !d.ActiveAt(at) {
			continue
		}
		if winner == nil || newer(d, *winner) {
			winner = &d
		}
	}
	return winner
}

func newer(a, b models.Discount) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// Apply computes the discounted price, never below zero, rounded to cents.
func Apply(price decimal.Decimal, discount models.Discount) decimal.Decimal {
	var result decimal.Decimal

	switch discount.Type {
	case models.DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(discount.Value.Div(hundred))
		result = price.Mul(factor)
	case models.DiscountTypeFixed:
		result = price.Sub(discount.Value)
	default:
		result = price
	}

	if result.IsNegative() {
		result = decimal.Zero
	}
	return result.Round(2)
}

// UnitCost is the cost snapshot for a line: the product cost when known,
// otherwise half of the unit price.
func UnitCost(cost decimal.NullDecimal, unitPrice decimal.Decimal) decimal.Decimal {
	if cost.Valid {
		return cost.Decimal.Round(2)
	}
	return unitPrice.Mul(costFallbackRate).Round(2)
}
