package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
)

const couponColumns = `id, code, description, discount_percent, active, valid_from, valid_to,
	usage_limit, used_count, COALESCE(created_by, 0), created_at`

const (
	getCouponSQL          = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	getCouponForUpdateSQL = getCouponSQL + ` FOR UPDATE`
	listCouponsSQL        = `SELECT ` + couponColumns + ` FROM coupons ORDER BY id`

	listAssignedCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
	WHERE active AND id IN (SELECT coupon_id FROM coupon_assignments WHERE user_id = $1)
	ORDER BY id`

	createCouponSQL = `INSERT INTO coupons
	(code, description, discount_percent, active, valid_from, valid_to, usage_limit, used_count, created_by, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), $10)
	RETURNING id`

	updateCouponSQL = `UPDATE coupons SET code = $2, description = $3, discount_percent = $4,
	active = $5, valid_from = $6, valid_to = $7, usage_limit = $8
	WHERE id = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	assignCouponSQL = `INSERT INTO coupon_assignments (coupon_id, user_id, assigned_at)
	VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	// Unknown users are dropped by the join.
	assignCouponBulkSQL = `INSERT INTO coupon_assignments (coupon_id, user_id)
	SELECT $1, u.id FROM users u WHERE u.id = ANY($2) AND u.role = 'customer'
	ON CONFLICT DO NOTHING`

	isAssignedSQL = `SELECT EXISTS (SELECT 1 FROM coupon_assignments WHERE coupon_id = $1 AND user_id = $2)`
	hasUsageSQL   = `SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2)`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, used_at)
	VALUES ($1, $2, NULLIF($3, '')::uuid, $4)
	ON CONFLICT (coupon_id, user_id) DO NOTHING`

	recountUsageSQL = `UPDATE coupons
	SET used_count = (SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1)
	WHERE id = $1
	RETURNING used_count`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) one(ctx context.Context, sql string, id int64) (*coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query coupon %d", id)
	}
	c, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[coupon.Coupon])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan coupon %d", id)
	}
	return &c, nil
}

func (r *CouponRepository) many(ctx context.Context, sql string, args ...any) ([]coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query coupons")
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[coupon.Coupon])
	if err != nil {
		return nil, errors.Wrap(err, "scan coupons")
	}
	return out, nil
}

// GetByID implements coupon.Repository.
func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponSQL, id)
}

// GetByIDForUpdate implements coupon.Repository.
func (r *CouponRepository) GetByIDForUpdate(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponForUpdateSQL, id)
}

// List implements coupon.Repository.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	return r.many(ctx, listCouponsSQL)
}

// ListAssigned implements coupon.Repository.
func (r *CouponRepository) ListAssigned(ctx context.Context, userID int64) ([]coupon.Coupon, error) {
	return r.many(ctx, listAssignedCouponsSQL, userID)
}

// Create implements coupon.Repository.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.db.q(ctx).QueryRow(ctx, createCouponSQL,
		c.Code, c.Description, c.DiscountPercent, c.Active, c.ValidFrom, c.ValidTo,
		c.UsageLimit, c.UsedCount, c.CreatedBy, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		if isUnique(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "create coupon %q", c.Code)
	}
	return nil
}

// Update implements coupon.Repository. used_count is left to RecountUsage.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateCouponSQL,
		c.ID, c.Code, c.Description, c.DiscountPercent, c.Active, c.ValidFrom, c.ValidTo, c.UsageLimit,
	)
	if err != nil {
		if isUnique(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "update coupon %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete implements coupon.Repository. Assignments and usages cascade;
// orders keep the code and lose the reference.
func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete coupon %d", id)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Assign implements coupon.Repository.
func (r *CouponRepository) Assign(ctx context.Context, a coupon.Assignment) (bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, assignCouponSQL, a.CouponID, a.UserID, a.AssignedAt)
	if err != nil {
		if isForeignKey(err) {
			return false, coupon.ErrNotFound
		}
		return false, errors.Wrapf(err, "assign coupon %d to user %d", a.CouponID, a.UserID)
	}
	return tag.RowsAffected() == 1, nil
}

// AssignMany assigns the coupon to every existing customer in userIDs and
// returns the number of new assignments.
func (r *CouponRepository) AssignMany(ctx context.Context, couponID int64, userIDs []int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, assignCouponBulkSQL, couponID, userIDs)
	if err != nil {
		if isForeignKey(err) {
			return 0, coupon.ErrNotFound
		}
		return 0, errors.Wrapf(err, "assign coupon %d", couponID)
	}
	return tag.RowsAffected(), nil
}

func (r *CouponRepository) exists(ctx context.Context, sql string, couponID, userID int64) (bool, error) {
	var ok bool
	if err := r.db.q(ctx).QueryRow(ctx, sql, couponID, userID).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "query existence")
	}
	return ok, nil
}

// IsAssigned implements coupon.Repository.
func (r *CouponRepository) IsAssigned(ctx context.Context, couponID, userID int64) (bool, error) {
	return r.exists(ctx, isAssignedSQL, couponID, userID)
}

// HasUsage implements coupon.Repository.
func (r *CouponRepository) HasUsage(ctx context.Context, couponID, userID int64) (bool, error) {
	return r.exists(ctx, hasUsageSQL, couponID, userID)
}

// InsertUsage implements coupon.Repository.
func (r *CouponRepository) InsertUsage(ctx context.Context, u coupon.Usage) (bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, insertUsageSQL, u.CouponID, u.UserID, u.OrderID, u.UsedAt)
	if err != nil {
		if isForeignKey(err) {
			return false, coupon.ErrNotFound
		}
		return false, errors.Wrapf(err, "insert usage of coupon %d", u.CouponID)
	}
	return tag.RowsAffected() == 1, nil
}

// RecountUsage implements coupon.Repository.
func (r *CouponRepository) RecountUsage(ctx context.Context, couponID int64) (int, error) {
	var n int
	if err := r.db.q(ctx).QueryRow(ctx, recountUsageSQL, couponID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, coupon.ErrNotFound
		}
		return 0, errors.Wrapf(err, "recount usage of coupon %d", couponID)
	}
	return n, nil
}
