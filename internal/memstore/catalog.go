package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
)

// Products implements product.Repository.
type Products struct{ s *Store }

// Products returns the product repository.
func (s *Store) Products() *Products { return &Products{s: s} }

// Put inserts or replaces p.
func (r *Products) Put(ctx context.Context, p product.Product) error {
	return r.s.write(ctx, func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// GetByID implements product.Repository.
func (r *Products) GetByID(_ context.Context, id string) (*product.Product, error) {
	var out product.Product
	err := r.s.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return product.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List implements product.Repository.
func (r *Products) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	err := r.s.read(func(st *state) error {
		for _, p := range st.products {
			if p.Active {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, err
}

// GetByIDs implements product.Repository. Unknown IDs are skipped.
func (r *Products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := r.s.read(func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// Carts implements cart.Repository.
type Carts struct{ s *Store }

// Carts returns the cart repository.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

// GetOrCreate implements cart.Repository.
func (r *Carts) GetOrCreate(ctx context.Context, userID int64) (*cart.Cart, error) {
	var out cart.Cart
	err := r.s.write(ctx, func(st *state) error {
		for _, c := range st.carts {
			if c.UserID == userID {
				out = cloneCart(c)
				return nil
			}
		}
		c := cart.Cart{ID: st.nextID(), UserID: userID, UpdatedAt: r.s.now()}
		st.carts[c.ID] = c
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate implements cart.Repository. Writes are serialized with
// transactions, so a read inside RunInTx is already exclusive.
func (r *Carts) GetForUpdate(ctx context.Context, cartID int64) (*cart.Cart, error) {
	var out cart.Cart
	err := r.s.write(ctx, func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return errors.Errorf("cart %d not found", cartID)
		}
		out = cloneCart(c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Carts) mutate(ctx context.Context, cartID int64, fn func(c *cart.Cart) error) error {
	return r.s.write(ctx, func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return cart.ErrItemNotFound
		}
		c = cloneCart(c)
		if err := fn(&c); err != nil {
			return err
		}
		c.UpdatedAt = r.s.now()
		st.carts[cartID] = c
		return nil
	})
}

func itemIndex(c *cart.Cart, productID string) int {
	return slices.IndexFunc(c.Items, func(it cart.Item) bool { return it.ProductID == productID })
}

// AddItem implements cart.Repository.
func (r *Carts) AddItem(ctx context.Context, cartID int64, productID string, qty int) error {
	return r.mutate(ctx, cartID, func(c *cart.Cart) error {
		if i := itemIndex(c, productID); i >= 0 {
			c.Items[i].Quantity += qty
			return nil
		}
		c.Items = append(c.Items, cart.Item{ProductID: productID, Quantity: qty, AddedAt: r.s.now()})
		return nil
	})
}

// SetItem implements cart.Repository.
func (r *Carts) SetItem(ctx context.Context, cartID int64, productID string, qty int) error {
	return r.mutate(ctx, cartID, func(c *cart.Cart) error {
		i := itemIndex(c, productID)
		if i < 0 {
			return cart.ErrItemNotFound
		}
		c.Items[i].Quantity = qty
		return nil
	})
}

// RemoveItem implements cart.Repository.
func (r *Carts) RemoveItem(ctx context.Context, cartID int64, productID string) error {
	return r.mutate(ctx, cartID, func(c *cart.Cart) error {
		i := itemIndex(c, productID)
		if i < 0 {
			return cart.ErrItemNotFound
		}
		c.Items = slices.Delete(c.Items, i, i+1)
		return nil
	})
}

// Clear implements cart.Repository.
func (r *Carts) Clear(ctx context.Context, cartID int64) error {
	return r.mutate(ctx, cartID, func(c *cart.Cart) error {
		c.Items = nil
		return nil
	})
}
