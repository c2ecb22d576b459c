// Package checkout orchestrates cart pricing with the staged coupon and
// order placement.
package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
)

// Summary is a priced view of the caller's cart.
type Summary struct {
	Cart    *cart.Cart
	Pricing cart.Pricing
	// CouponErr is set when a staged coupon no longer validates. The coupon
	// has been unstaged and is not part of Pricing.
	CouponErr error
}

// Service prices carts and places orders.
type Service struct {
	carts  *cart.Service
	ledger *coupon.Ledger
	orders *order.Service
}

// NewService creates a checkout Service.
func NewService(carts *cart.Service, ledger *coupon.Ledger, orders *order.Service) *Service {
	return &Service{carts: carts, ledger: ledger, orders: orders}
}

// resolve re-validates the staged coupon. The discount percent is taken
// from the ledger, never from the stage. A coupon that no longer validates
// is unstaged and its *coupon.Error returned.
func (s *Service) resolve(ctx context.Context, userID int64, stage coupon.Staging) (*cart.AppliedCoupon, error) {
	staged, ok := stage.StagedCoupon()
	if !ok {
		return nil, nil
	}
	c, err := s.ledger.Validate(ctx, userID, staged.CouponID)
	if err != nil {
		if errors.Is(err, coupon.ErrInvalid) {
			zctx.From(ctx).Info("Staged coupon dropped",
				zap.Int64("coupon_id", staged.CouponID),
				zap.Error(err),
			)
			stage.ClearCoupon()
			return nil, err
		}
		return nil, errors.Wrap(err, "validate staged coupon")
	}
	return &cart.AppliedCoupon{ID: c.ID, Code: c.Code, Percent: c.DiscountPercent}, nil
}

// Preview prices the caller's cart with the staged coupon, if it still
// validates.
func (s *Service) Preview(ctx context.Context, p auth.Principal, stage coupon.Staging) (*Summary, error) {
	if p.UserID == 0 {
		return nil, auth.ErrUnauthorized
	}
	c, err := s.carts.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	var couponErr error
	applied, err := s.resolve(ctx, p.UserID, stage)
	switch {
	case errors.Is(err, coupon.ErrInvalid):
		couponErr = err
	case err != nil:
		return nil, err
	}
	pricing, err := s.carts.Price(ctx, c, applied)
	if err != nil {
		return nil, err
	}
	return &Summary{Cart: c, Pricing: pricing, CouponErr: couponErr}, nil
}

// PlaceOrder turns the caller's cart into an unpaid order. A staged coupon
// that no longer validates aborts the order with the coupon error so the
// caller can review the new total.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, stage coupon.Staging) (*order.Order, error) {
	sum, err := s.Preview(ctx, p, stage)
	if err != nil {
		return nil, err
	}
	if sum.CouponErr != nil {
		return nil, sum.CouponErr
	}
	o, err := s.orders.CreateFromCart(ctx, p.UserID, sum.Cart, sum.Pricing)
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return o, nil
}
