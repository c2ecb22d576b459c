package repository

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
)

const orderColumns = `id::text, user_id, subtotal, discount, total_amount, coupon_id, coupon_code,
	is_paid, payment_status, payment_id, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders
	(id, user_id, subtotal, discount, total_amount, coupon_id, coupon_code, is_paid, payment_status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1::uuid`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	listUnfulfilledSQL = `SELECT ` + orderColumns + ` FROM orders o
	WHERE o.is_paid AND o.created_at < $1
	AND (
		NOT EXISTS (SELECT 1 FROM shipments s WHERE s.order_id = o.id)
		OR (o.coupon_id IS NOT NULL AND NOT EXISTS (
			SELECT 1 FROM coupon_usages u WHERE u.coupon_id = o.coupon_id AND u.user_id = o.user_id
		))
	)
	ORDER BY o.created_at DESC, o.id DESC`

	listOrderItemsSQL = `SELECT order_id::text, product_id, name, quantity, price
	FROM order_items WHERE order_id::text = ANY($1) ORDER BY order_id, position`

	markPaidSQL = `UPDATE orders SET is_paid = TRUE, payment_status = 'paid', payment_id = $2, updated_at = NOW()
	WHERE id = $1::uuid`

	markPaymentFailedSQL = `UPDATE orders SET payment_status = 'failed', updated_at = NOW()
	WHERE id = $1::uuid`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Subtotal, &o.Discount, &o.TotalAmount, &o.CouponID, &o.CouponCode,
		&o.IsPaid, &status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	o.PaymentStatus = order.PaymentStatus(status)
	return o, err
}

// Create persists the order and copies its items in one round trip.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return errors.Wrapf(err, "order id %q", o.ID)
	}
	status := o.PaymentStatus
	if status == "" {
		status = order.PaymentPending
	}
	return r.db.RunInTx(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		_, err := q.Exec(ctx, createOrderSQL,
			id, o.UserID, o.Subtotal, o.Discount, o.TotalAmount, o.CouponID, o.CouponCode,
			o.IsPaid, string(status), o.CreatedAt, o.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "create order %q", o.ID)
		}

		_, err = q.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "position", "product_id", "name", "quantity", "price"},
			pgx.CopyFromSlice(len(o.Items), func(i int) ([]any, error) {
				it := o.Items[i]
				return []any{id, int32(i), it.ProductID, it.Name, int32(it.Quantity), it.Price}, nil
			}),
		)
		if err != nil {
			return errors.Wrapf(err, "copy items of order %q", o.ID)
		}
		return nil
	})
}

func (r *OrderRepository) one(ctx context.Context, sql, id string) (*order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan order %q", id)
	}
	out := []order.Order{o}
	if err := r.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

func (r *OrderRepository) many(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if err := r.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

type orderItemRow struct {
	OrderID string
	order.Item
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.db.q(ctx).Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "query order items")
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orderItemRow, error) {
		var it orderItemRow
		err := row.Scan(&it.OrderID, &it.ProductID, &it.Name, &it.Quantity, &it.Price)
		return it, err
	})
	if err != nil {
		return errors.Wrap(err, "scan order items")
	}
	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it.Item)
		}
	}
	return nil
}

// GetByID implements order.Repository.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// GetByIDForUpdate implements order.Repository.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderForUpdateSQL, id)
}

// ListByUser implements order.Repository.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return r.many(ctx, listOrdersByUserSQL, userID)
}

// ListAll implements order.Repository.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	return r.many(ctx, listOrdersSQL)
}

// ListUnfulfilled implements order.Repository.
func (r *OrderRepository) ListUnfulfilled(ctx context.Context, before time.Time) ([]order.Order, error) {
	return r.many(ctx, listUnfulfilledSQL, before)
}

func (r *OrderRepository) update(ctx context.Context, sql, id string, args ...any) error {
	tag, err := r.db.q(ctx).Exec(ctx, sql, append([]any{id}, args...)...)
	if isInvalidText(err) {
		return order.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "update order %q", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid implements order.Repository.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paymentID int64) error {
	return r.update(ctx, markPaidSQL, id, paymentID)
}

// MarkPaymentFailed implements order.Repository.
func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, id string) error {
	return r.update(ctx, markPaymentFailedSQL, id)
}
