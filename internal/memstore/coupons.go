package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
)

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

// Coupons returns the coupon repository.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

// GetByID implements coupon.Repository.
func (r *Coupons) GetByID(_ context.Context, id int64) (*coupon.Coupon, error) {
	var out coupon.Coupon
	err := r.s.read(func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return coupon.ErrNotFound
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate implements coupon.Repository.
func (r *Coupons) GetByIDForUpdate(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.GetByID(ctx, id)
}

func sortedCoupons(m map[int64]coupon.Coupon, keep func(coupon.Coupon) bool) []coupon.Coupon {
	var out []coupon.Coupon
	for _, c := range m {
		if keep(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b coupon.Coupon) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// List implements coupon.Repository.
func (r *Coupons) List(_ context.Context) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := r.s.read(func(st *state) error {
		out = sortedCoupons(st.coupons, func(coupon.Coupon) bool { return true })
		return nil
	})
	return out, err
}

func codeTaken(st *state, code string, except int64) bool {
	for id, c := range st.coupons {
		if id != except && strings.EqualFold(c.Code, code) {
			return true
		}
	}
	return false
}

// Create implements coupon.Repository.
func (r *Coupons) Create(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func(st *state) error {
		if codeTaken(st, c.Code, 0) {
			return coupon.ErrDuplicateCode
		}
		c.ID = st.nextID()
		st.coupons[c.ID] = *c
		return nil
	})
}

// Update implements coupon.Repository.
func (r *Coupons) Update(ctx context.Context, c *coupon.Coupon) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.coupons[c.ID]; !ok {
			return coupon.ErrNotFound
		}
		if codeTaken(st, c.Code, c.ID) {
			return coupon.ErrDuplicateCode
		}
		st.coupons[c.ID] = *c
		return nil
	})
}

// Delete implements coupon.Repository. Orders keep their coupon code but
// lose the reference.
func (r *Coupons) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.coupons[id]; !ok {
			return coupon.ErrNotFound
		}
		delete(st.coupons, id)
		for k := range st.assignments {
			if k.coupon == id {
				delete(st.assignments, k)
			}
		}
		for k := range st.usages {
			if k.coupon == id {
				delete(st.usages, k)
			}
		}
		for k, o := range st.orders {
			if o.CouponID != nil && *o.CouponID == id {
				o = cloneOrder(o)
				o.CouponID = nil
				st.orders[k] = o
			}
		}
		return nil
	})
}

// Assign implements coupon.Repository.
func (r *Coupons) Assign(ctx context.Context, a coupon.Assignment) (bool, error) {
	var created bool
	err := r.s.write(ctx, func(st *state) error {
		if _, ok := st.coupons[a.CouponID]; !ok {
			return coupon.ErrNotFound
		}
		k := pair{a.CouponID, a.UserID}
		if _, ok := st.assignments[k]; ok {
			return nil
		}
		st.assignments[k] = a
		created = true
		return nil
	})
	return created, err
}

// IsAssigned implements coupon.Repository.
func (r *Coupons) IsAssigned(_ context.Context, couponID, userID int64) (bool, error) {
	var ok bool
	err := r.s.read(func(st *state) error {
		_, ok = st.assignments[pair{couponID, userID}]
		return nil
	})
	return ok, err
}

// ListAssigned implements coupon.Repository.
func (r *Coupons) ListAssigned(_ context.Context, userID int64) ([]coupon.Coupon, error) {
	var out []coupon.Coupon
	err := r.s.read(func(st *state) error {
		out = sortedCoupons(st.coupons, func(c coupon.Coupon) bool {
			_, ok := st.assignments[pair{c.ID, userID}]
			return ok && c.Active
		})
		return nil
	})
	return out, err
}

// HasUsage implements coupon.Repository.
func (r *Coupons) HasUsage(_ context.Context, couponID, userID int64) (bool, error) {
	var ok bool
	err := r.s.read(func(st *state) error {
		_, ok = st.usages[pair{couponID, userID}]
		return nil
	})
	return ok, err
}

// InsertUsage implements coupon.Repository.
func (r *Coupons) InsertUsage(ctx context.Context, u coupon.Usage) (bool, error) {
	var inserted bool
	err := r.s.write(ctx, func(st *state) error {
		k := pair{u.CouponID, u.UserID}
		if _, ok := st.usages[k]; ok {
			return nil
		}
		st.usages[k] = u
		inserted = true
		return nil
	})
	return inserted, err
}

// RecountUsage implements coupon.Repository.
func (r *Coupons) RecountUsage(ctx context.Context, couponID int64) (int, error) {
	var n int
	err := r.s.write(ctx, func(st *state) error {
		c, ok := st.coupons[couponID]
		if !ok {
			return coupon.ErrNotFound
		}
		for k := range st.usages {
			if k.coupon == couponID {
				n++
			}
		}
		c.UsedCount = n
		st.coupons[couponID] = c
		return nil
	})
	return n, err
}
