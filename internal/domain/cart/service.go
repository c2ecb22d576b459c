package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/product"
)

// Service implements cart mutations and pricing for a single user.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// Get returns the user's cart, creating it on first access.
func (s *Service) Get(ctx context.Context, userID int64) (*Cart, error) {
	c, err := s.carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddItem adds qty of a product, summing with any existing line.
func (s *Service) AddItem(ctx context.Context, userID int64, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.AddItem(ctx, c.ID, productID, qty); err != nil {
		return nil, errors.Wrap(err, "add item")
	}
	return s.Get(ctx, userID)
}

// UpdateItem sets the quantity of an existing line.
func (s *Service) UpdateItem(ctx context.Context, userID int64, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.requireProduct(ctx, productID); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.SetItem(ctx, c.ID, productID, qty); err != nil {
		return nil, errors.Wrap(err, "update item")
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID int64, productID string) (*Cart, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.RemoveItem(ctx, c.ID, productID); err != nil {
		return nil, errors.Wrap(err, "remove item")
	}
	return s.Get(ctx, userID)
}

// Clear removes every line from the user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.carts.Clear(ctx, c.ID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Price prices c against current catalog prices.
func (s *Service) Price(ctx context.Context, c *Cart, coupon *AppliedCoupon) (Pricing, error) {
	if c.Empty() {
		return Price(nil, nil, coupon)
	}
	fetched, err := s.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return Pricing{}, errors.Wrap(err, "get products")
	}
	return Price(c.Items, product.Index(fetched), coupon)
}

func (s *Service) requireProduct(ctx context.Context, productID string) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return &ProductNotFoundError{ProductID: productID}
		}
		return errors.Wrap(err, "get product")
	}
	if !p.Active {
		return &ProductNotFoundError{ProductID: productID}
	}
	return nil
}
