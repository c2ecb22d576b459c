package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
)

const (
	// The second branch does not see the row inserted by the first, so
	// exactly one row comes back.
	getOrCreateCartSQL = `WITH ins AS (
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id, user_id, updated_at
	)
	SELECT id, user_id, updated_at FROM ins
	UNION ALL
	SELECT id, user_id, updated_at FROM carts WHERE user_id = $1`

	lockCartSQL = `SELECT id, user_id, updated_at FROM carts WHERE id = $1 FOR UPDATE`

	listCartItemsSQL = `SELECT product_id, quantity, added_at
	FROM cart_items WHERE cart_id = $1 ORDER BY id`

	addCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity)
	VALUES ($1, $2, $3)
	ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	setCartItemSQL = `UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = NOW() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses db.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// GetOrCreate implements cart.Repository.
func (r *CartRepository) GetOrCreate(ctx context.Context, userID int64) (*cart.Cart, error) {
	q := r.db.q(ctx)
	var c cart.Cart
	if err := q.QueryRow(ctx, getOrCreateCartSQL, userID).Scan(&c.ID, &c.UserID, &c.UpdatedAt); err != nil {
		return nil, errors.Wrapf(err, "get or create cart for user %d", userID)
	}

	items, err := r.items(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

// GetForUpdate implements cart.Repository. Item writes lock the cart row
// first, so the items read here stay fixed until the transaction ends.
func (r *CartRepository) GetForUpdate(ctx context.Context, cartID int64) (*cart.Cart, error) {
	q := r.db.q(ctx)
	var c cart.Cart
	if err := q.QueryRow(ctx, lockCartSQL, cartID).Scan(&c.ID, &c.UserID, &c.UpdatedAt); err != nil {
		return nil, errors.Wrapf(err, "lock cart %d", cartID)
	}
	items, err := r.items(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

func (r *CartRepository) items(ctx context.Context, q querier, cartID int64) ([]cart.Item, error) {
	rows, err := q.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[cart.Item])
	if err != nil {
		return nil, errors.Wrap(err, "scan cart items")
	}
	return items, nil
}

// AddItem implements cart.Repository.
func (r *CartRepository) AddItem(ctx context.Context, cartID int64, productID string, qty int) error {
	return r.exec(ctx, cartID, false, addCartItemSQL, cartID, productID, qty)
}

// SetItem implements cart.Repository.
func (r *CartRepository) SetItem(ctx context.Context, cartID int64, productID string, qty int) error {
	return r.exec(ctx, cartID, true, setCartItemSQL, cartID, productID, qty)
}

// RemoveItem implements cart.Repository.
func (r *CartRepository) RemoveItem(ctx context.Context, cartID int64, productID string) error {
	return r.exec(ctx, cartID, true, removeCartItemSQL, cartID, productID)
}

// Clear implements cart.Repository.
func (r *CartRepository) Clear(ctx context.Context, cartID int64) error {
	return r.exec(ctx, cartID, false, clearCartSQL, cartID)
}

// exec touches the cart row before changing items so that item writes
// queue behind an order holding the cart lock.
func (r *CartRepository) exec(ctx context.Context, cartID int64, mustMatch bool, sql string, args ...any) error {
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if _, err := q.Exec(ctx, touchCartSQL, cartID); err != nil {
			return errors.Wrapf(err, "touch cart %d", cartID)
		}
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return errors.Wrapf(err, "update cart %d", cartID)
		}
		if mustMatch && tag.RowsAffected() == 0 {
			return cart.ErrItemNotFound
		}
		return nil
	})
}
