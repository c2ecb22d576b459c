package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
)

// Carts locks and empties a cart inside the order transaction.
type Carts interface {
	GetForUpdate(ctx context.Context, cartID int64) (*cart.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}

// Service creates orders from carts and serves order reads.
type Service struct {
	tx     uow.Runner
	orders Repository
	carts  Carts
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(tx uow.Runner, orders Repository, carts Carts) *Service {
	return &Service{tx: tx, orders: orders, carts: carts, now: time.Now}
}

// CreateFromCart snapshots the priced cart into a new unpaid order and
// empties the cart, all in one transaction. The cart row is locked and
// re-read first: an emptied cart fails with ErrCartEmpty and a cart whose
// lines differ from pricing fails with ErrCartChanged. The staged coupon is
// referenced but not consumed.
func (s *Service) CreateFromCart(ctx context.Context, userID int64, c *cart.Cart, pricing cart.Pricing) (*Order, error) {
	if c == nil || c.Empty() {
		return nil, ErrCartEmpty
	}
	if !pricing.GrandTotal.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if len(pricing.Lines) != len(c.Items) {
		return nil, errors.Errorf("pricing has %d lines for %d cart items", len(pricing.Lines), len(c.Items))
	}

	items := make([]Item, len(pricing.Lines))
	for i, l := range pricing.Lines {
		items[i] = Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
		}
	}

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Items:         items,
		Subtotal:      pricing.Subtotal,
		Discount:      pricing.Discount,
		TotalAmount:   pricing.GrandTotal,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if pricing.Coupon != nil {
		id := pricing.Coupon.ID
		o.CouponID = &id
		o.CouponCode = pricing.Coupon.Code
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.carts.GetForUpdate(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "lock cart")
		}
		if locked.Empty() {
			return ErrCartEmpty
		}
		if !matches(locked.Items, pricing.Lines) {
			return ErrCartChanged
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.carts.Clear(ctx, c.ID); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func matches(items []cart.Item, lines []cart.Line) bool {
	if len(items) != len(lines) {
		return false
	}
	for i, it := range items {
		if it.ProductID != lines[i].ProductID || it.Quantity != lines[i].Quantity {
			return false
		}
	}
	return true
}

// Get returns an order visible to p: its owner, or any order for admins.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.Is(auth.RoleAdmin) {
		return nil, ErrNotFound
	}
	return o, nil
}

// ListForUser returns the caller's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, p auth.Principal) ([]Order, error) {
	return s.orders.ListByUser(ctx, p.UserID)
}

// ListAll returns every order, newest first.
func (s *Service) ListAll(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := auth.Require(p, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return s.orders.ListAll(ctx)
}
