// Package coupon is the ledger of percent-off coupons: who may use them,
// whether they are currently valid, and who has already consumed them.
package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Coupon is an admin-managed percentage discount. UsedCount is a projection
// of the usage rows for the coupon and is only ever recomputed, never
// incremented in place.
type Coupon struct {
	ID              int64
	Code            string
	Description     string
	DiscountPercent decimal.Decimal
	Active          bool
	ValidFrom       time.Time
	ValidTo         time.Time
	UsageLimit      int
	UsedCount       int
	CreatedBy       int64
	CreatedAt       time.Time
}

// Usage records that a user consumed a coupon. At most one exists per
// (coupon, user) pair.
type Usage struct {
	CouponID int64
	UserID   int64
	OrderID  string
	UsedAt   time.Time
}

// Assignment grants a user permission to use a coupon.
type Assignment struct {
	CouponID   int64
	UserID     int64
	AssignedAt time.Time
}

// Repository persists coupons, assignments and usages.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	// GetByIDForUpdate locks the coupon row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	// Create returns ErrDuplicateCode when the code exists in any letter case.
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id int64) error

	// Assign is get-or-create; created is false when the assignment existed.
	Assign(ctx context.Context, a Assignment) (created bool, err error)
	IsAssigned(ctx context.Context, couponID, userID int64) (bool, error)
	// ListAssigned returns active coupons assigned to the user.
	ListAssigned(ctx context.Context, userID int64) ([]Coupon, error)

	HasUsage(ctx context.Context, couponID, userID int64) (bool, error)
	// InsertUsage inserts u unless a usage for the pair exists.
	InsertUsage(ctx context.Context, u Usage) (inserted bool, err error)
	// RecountUsage sets used_count to the number of usage rows and returns it.
	RecountUsage(ctx context.Context, couponID int64) (int, error)
}
