package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-fulfillment/internal/domain/product"
)

var hundred = decimal.NewFromInt(100)

// AppliedCoupon is the discount input to Price.
type AppliedCoupon struct {
	ID      int64
	Code    string
	Percent decimal.Decimal
}

// Line is a priced cart item.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Pricing holds the totals for a cart. Monetary fields are rounded to two
// decimal places.
type Pricing struct {
	Lines      []Line
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
	Coupon     *AppliedCoupon
}

// Price computes subtotal, discount and grand total for items at the current
// catalog prices. Intermediate arithmetic is kept at full precision and only
// the outputs are rounded.
func Price(items []Item, catalog map[string]product.Product, coupon *AppliedCoupon) (Pricing, error) {
	lines := make([]Line, 0, len(items))
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			return Pricing{}, ErrInvalidQuantity
		}
		p, ok := catalog[it.ProductID]
		if !ok || !p.Active {
			return Pricing{}, &ProductNotFoundError{ProductID: it.ProductID}
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		subtotal = subtotal.Add(total)
		lines = append(lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			LineTotal: total.Round(2),
		})
	}

	discount := decimal.Zero
	if coupon != nil {
		discount = subtotal.Mul(coupon.Percent).Div(hundred)
	}

	grand := subtotal.Sub(discount)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	return Pricing{
		Lines:      lines,
		Subtotal:   subtotal.Round(2),
		Discount:   discount.Round(2),
		GrandTotal: grand.Round(2),
		Coupon:     coupon,
	}, nil
}
