// Package cart owns the per-user shopping cart and its pricing.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidQuantity is returned when a quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrItemNotFound is returned when a cart line does not exist.
	ErrItemNotFound = errors.New("cart item not found")
)

// ProductNotFoundError indicates a cart line references an unknown or
// inactive product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// Cart is the mutable, per-user set of items awaiting checkout.
type Cart struct {
	ID        int64
	UserID    int64
	Items     []Item
	UpdatedAt time.Time
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// ProductIDs returns the product IDs in insertion order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ProductID
	}
	return ids
}

// Item is a product reference with a quantity. Items keep insertion order.
type Item struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Repository persists carts. GetOrCreate creates the cart lazily; Items are
// returned in insertion order.
type Repository interface {
	GetOrCreate(ctx context.Context, userID int64) (*Cart, error)
	// GetForUpdate locks the cart row for the rest of the transaction and
	// returns it with its current items.
	GetForUpdate(ctx context.Context, cartID int64) (*Cart, error)
	// AddItem increments the quantity of an existing line or inserts a new one.
	AddItem(ctx context.Context, cartID int64, productID string, qty int) error
	// SetItem overwrites the quantity of an existing line. Returns ErrItemNotFound.
	SetItem(ctx context.Context, cartID int64, productID string, qty int) error
	// RemoveItem returns ErrItemNotFound when the line is absent.
	RemoveItem(ctx context.Context, cartID int64, productID string) error
	Clear(ctx context.Context, cartID int64) error
}
