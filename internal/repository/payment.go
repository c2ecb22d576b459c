package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
)

const paymentColumns = `id, order_id::text, user_id, amount, method, status,
	COALESCE(transaction_id, ''), meta, created_at, updated_at`

const (
	insertPaymentSQL = `INSERT INTO payments
	(order_id, user_id, amount, method, status, transaction_id, meta, created_at, updated_at)
	VALUES ($1::uuid, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	ON CONFLICT (order_id) DO NOTHING
	RETURNING ` + paymentColumns

	getPaymentByOrderSQL          = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1::uuid`
	getPaymentByOrderForUpdateSQL = getPaymentByOrderSQL + ` FOR UPDATE`

	listPaymentsByUserSQL = `SELECT ` + paymentColumns + ` FROM payments
	WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	updatePaymentSQL = `UPDATE payments SET amount = $2, method = $3, status = $4,
	transaction_id = NULLIF($5, ''), meta = $6, updated_at = NOW()
	WHERE id = $1`
)

var _ payment.Repository = (*PaymentRepository)(nil)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p    payment.Payment
		meta []byte
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &p.Status,
		&p.TransactionID, &meta, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if p.Meta, err = payment.DecodeMeta(meta); err != nil {
		return p, errors.Wrapf(err, "payment %d meta", p.ID)
	}
	return p, nil
}

func (r *PaymentRepository) one(ctx context.Context, sql string, args ...any) (*payment.Payment, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query payment")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, payment.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan payment")
	}
	return &p, nil
}

// GetOrCreate implements payment.Repository.
func (r *PaymentRepository) GetOrCreate(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	created, err := r.one(ctx, insertPaymentSQL,
		p.OrderID, p.UserID, p.Amount, int16(p.Method), int16(p.Status), p.TransactionID,
		payment.EncodeMeta(p.Meta), p.CreatedAt, p.CreatedAt,
	)
	switch {
	case err == nil:
		return created, true, nil
	case isForeignKey(err):
		return nil, false, order.ErrNotFound
	case !errors.Is(err, payment.ErrNotFound):
		return nil, false, errors.Wrapf(err, "create payment for order %q", p.OrderID)
	}

	existing, err := r.GetByOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByOrderID implements payment.Repository.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByOrderSQL, orderID)
}

// GetByOrderIDForUpdate implements payment.Repository.
func (r *PaymentRepository) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.one(ctx, getPaymentByOrderForUpdateSQL, orderID)
}

// Update implements payment.Repository.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.q(ctx).Exec(ctx, updatePaymentSQL,
		p.ID, p.Amount, int16(p.Method), int16(p.Status), p.TransactionID, payment.EncodeMeta(p.Meta),
	)
	if err != nil {
		return errors.Wrapf(err, "update payment %d", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// ListByUser implements payment.Repository.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64) ([]payment.Payment, error) {
	rows, err := r.db.q(ctx).Query(ctx, listPaymentsByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query payments")
	}
	out, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, errors.Wrap(err, "scan payments")
	}
	return out, nil
}
