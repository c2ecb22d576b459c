package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// ErrNotCustomer is returned when assigning a coupon to a non-customer.
var ErrNotCustomer = errors.New("coupons can only be assigned to customers")

// Users resolves user accounts.
type Users interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// Ledger validates coupons for users and records their consumption.
type Ledger struct {
	tx    uow.Runner
	repo  Repository
	users Users
	now   func() time.Time
	loc   *time.Location
}

// NewLedger creates a Ledger.
func NewLedger(tx uow.Runner, repo Repository, users Users) *Ledger {
	return &Ledger{tx: tx, repo: repo, users: users, now: time.Now, loc: time.UTC}
}

// ValidateForUser checks, in order: active flag, validity window, global
// usage limit, assignment to the user and prior usage by the user.
func (l *Ledger) ValidateForUser(ctx context.Context, userID int64, c *Coupon) error {
	if !c.Active {
		return reject(ReasonInactive)
	}
	now := l.now()
	if now.Before(c.ValidFrom) || now.After(c.ValidTo) {
		return reject(ReasonExpired)
	}
	if c.UsedCount >= c.UsageLimit {
		return reject(ReasonLimitReached)
	}

	assigned, err := l.repo.IsAssigned(ctx, c.ID, userID)
	if err != nil {
		return errors.Wrap(err, "check assignment")
	}
	if !assigned {
		return reject(ReasonNotAssigned)
	}

	used, err := l.repo.HasUsage(ctx, c.ID, userID)
	if err != nil {
		return errors.Wrap(err, "check usage")
	}
	if used {
		return reject(ReasonAlreadyUsed)
	}
	return nil
}

// Validate loads an active coupon by ID and validates it for the user.
func (l *Ledger) Validate(ctx context.Context, userID, couponID int64) (*Coupon, error) {
	c, err := l.repo.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(ReasonNotFound)
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	if !c.Active {
		return nil, reject(ReasonNotFound)
	}
	if err := l.ValidateForUser(ctx, userID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply validates the coupon and stages it for the current checkout. Staging
// is advisory; the ledger re-validates at checkout and payment.
func (l *Ledger) Apply(ctx context.Context, userID, couponID int64, stage Staging) (*Staged, error) {
	c, err := l.Validate(ctx, userID, couponID)
	if err != nil {
		return nil, err
	}
	s := Staged{
		CouponID:        c.ID,
		Code:            c.Code,
		DiscountPercent: c.DiscountPercent,
		AppliedAt:       l.now(),
	}
	stage.StageCoupon(s)
	return &s, nil
}

// Unstage drops the staged coupon, if any.
func (l *Ledger) Unstage(stage Staging) {
	stage.ClearCoupon()
}

// MarkUsed records that userID consumed the coupon. It is idempotent: the
// coupon row is locked, a usage row is inserted only if none exists for the
// pair, and used_count is recomputed from the usage rows. The returned flag
// reports whether this call recorded the usage.
func (l *Ledger) MarkUsed(ctx context.Context, userID, couponID int64, orderID string) (bool, error) {
	var recorded bool
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := l.repo.GetByIDForUpdate(ctx, couponID); err != nil {
			return errors.Wrap(err, "lock coupon")
		}
		inserted, err := l.repo.InsertUsage(ctx, Usage{
			CouponID: couponID,
			UserID:   userID,
			OrderID:  orderID,
			UsedAt:   l.now(),
		})
		if err != nil {
			return errors.Wrap(err, "insert usage")
		}
		if !inserted {
			return nil
		}
		count, err := l.repo.RecountUsage(ctx, couponID)
		if err != nil {
			return errors.Wrap(err, "recount usage")
		}
		recorded = true
		zctx.From(ctx).Info("Coupon consumed",
			zap.Int64("coupon_id", couponID),
			zap.Int64("user_id", userID),
			zap.Int("used_count", count),
		)
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// Params is the administrator input for creating or updating a coupon.
// Dates are free-form strings accepted by ParseTime.
type Params struct {
	Code            string
	Description     string
	DiscountPercent string
	ValidFrom       string
	ValidTo         string
	UsageLimit      int
	Active          *bool
}

func (l *Ledger) build(p Params) (*Coupon, error) {
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "Coupon code is required."}
	}
	if strings.TrimSpace(p.DiscountPercent) == "" {
		return nil, &ValidationError{Field: "discount_percent", Message: "Discount percent is required."}
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(p.DiscountPercent))
	if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &ValidationError{Field: "discount_percent", Message: "Discount percent must be between 0 and 100."}
	}
	if strings.TrimSpace(p.ValidFrom) == "" || strings.TrimSpace(p.ValidTo) == "" {
		return nil, &ValidationError{Field: "valid_from", Message: "Validity dates are required."}
	}
	from, err := ParseTime(p.ValidFrom, l.loc)
	if err != nil {
		return nil, &ValidationError{Field: "valid_from", Message: err.Error()}
	}
	to, err := ParseTime(p.ValidTo, l.loc)
	if err != nil {
		return nil, &ValidationError{Field: "valid_to", Message: err.Error()}
	}
	if to.Before(from) {
		return nil, &ValidationError{Field: "valid_to", Message: "Coupon must end after it starts."}
	}
	if p.UsageLimit < 1 {
		return nil, &ValidationError{Field: "usage_limit", Message: "Usage limit must be at least 1."}
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return &Coupon{
		Code:            code,
		Description:     p.Description,
		DiscountPercent: pct,
		Active:          active,
		ValidFrom:       from,
		ValidTo:         to,
		UsageLimit:      p.UsageLimit,
	}, nil
}

// Create adds a new coupon. Codes are unique regardless of letter case.
func (l *Ledger) Create(ctx context.Context, admin auth.Principal, p Params) (*Coupon, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	c, err := l.build(p)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = admin.UserID
	c.CreatedAt = l.now()
	if err := l.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, &ValidationError{Field: "code", Message: "Coupon code already exists."}
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Update replaces the editable fields of a coupon. The usage counter is
// left untouched.
func (l *Ledger) Update(ctx context.Context, admin auth.Principal, id int64, p Params) (*Coupon, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	next, err := l.build(p)
	if err != nil {
		return nil, err
	}
	var out *Coupon
	err = l.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := l.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.Active == nil {
			next.Active = cur.Active
		}
		next.ID = cur.ID
		next.UsedCount = cur.UsedCount
		next.CreatedBy = cur.CreatedBy
		next.CreatedAt = cur.CreatedAt
		if err := l.repo.Update(ctx, next); err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				return &ValidationError{Field: "code", Message: "Coupon code already exists."}
			}
			return errors.Wrap(err, "update coupon")
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a coupon. Orders that referenced it keep a NULL coupon.
func (l *Ledger) Delete(ctx context.Context, admin auth.Principal, id int64) error {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return err
	}
	if err := l.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete coupon %d", id)
	}
	return nil
}

// List returns every coupon.
func (l *Ledger) List(ctx context.Context, admin auth.Principal) ([]Coupon, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return l.repo.List(ctx)
}

// Assign grants a customer the right to use a coupon. Repeated assignment
// is a no-op.
func (l *Ledger) Assign(ctx context.Context, admin auth.Principal, couponID, userID int64) (bool, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return false, err
	}
	if _, err := l.repo.GetByID(ctx, couponID); err != nil {
		return false, errors.Wrap(err, "get coupon")
	}
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return false, errors.Wrap(err, "get user")
	}
	if u.Role != auth.RoleCustomer {
		return false, ErrNotCustomer
	}
	return l.repo.Assign(ctx, Assignment{CouponID: couponID, UserID: userID, AssignedAt: l.now()})
}

// AssignedTo lists the active coupons assigned to userID.
func (l *Ledger) AssignedTo(ctx context.Context, userID int64) ([]Coupon, error) {
	return l.repo.ListAssigned(ctx, userID)
}
