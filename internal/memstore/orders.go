package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
)

// Orders implements order.Repository.
type Orders struct{ s *Store }

// Orders returns the order repository.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Create implements order.Repository.
func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	return r.s.write(ctx, func(st *state) error {
		st.orders[o.ID] = cloneOrder(*o)
		return nil
	})
}

// GetByID implements order.Repository.
func (r *Orders) GetByID(_ context.Context, id string) (*order.Order, error) {
	var out order.Order
	err := r.s.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate implements order.Repository.
func (r *Orders) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func newestOrders(st *state, keep func(order.Order) bool) []order.Order {
	var out []order.Order
	for _, o := range st.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// ListByUser implements order.Repository.
func (r *Orders) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(func(st *state) error {
		out = newestOrders(st, func(o order.Order) bool { return o.UserID == userID })
		return nil
	})
	return out, err
}

// ListAll implements order.Repository.
func (r *Orders) ListAll(_ context.Context) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(func(st *state) error {
		out = newestOrders(st, func(order.Order) bool { return true })
		return nil
	})
	return out, err
}

func (r *Orders) mutate(ctx context.Context, id string, fn func(o *order.Order)) error {
	return r.s.write(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		o = cloneOrder(o)
		fn(&o)
		o.UpdatedAt = r.s.now()
		st.orders[id] = o
		return nil
	})
}

// MarkPaid implements order.Repository.
func (r *Orders) MarkPaid(ctx context.Context, id string, paymentID int64) error {
	return r.mutate(ctx, id, func(o *order.Order) {
		o.IsPaid = true
		o.PaymentStatus = order.PaymentPaid
		o.PaymentID = &paymentID
	})
}

// MarkPaymentFailed implements order.Repository.
func (r *Orders) MarkPaymentFailed(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(o *order.Order) {
		o.PaymentStatus = order.PaymentFailed
	})
}

// ListUnfulfilled implements order.Repository.
func (r *Orders) ListUnfulfilled(_ context.Context, before time.Time) ([]order.Order, error) {
	var out []order.Order
	err := r.s.read(func(st *state) error {
		shipped := make(map[string]bool, len(st.shipments))
		for _, s := range st.shipments {
			shipped[s.OrderID] = true
		}
		out = newestOrders(st, func(o order.Order) bool {
			if !o.IsPaid || !o.CreatedAt.Before(before) {
				return false
			}
			if !shipped[o.ID] {
				return true
			}
			if o.CouponID == nil {
				return false
			}
			_, used := st.usages[pair{coupon: *o.CouponID, user: o.UserID}]
			return !used
		})
		return nil
	})
	return out, err
}

// Payments implements payment.Repository.
type Payments struct{ s *Store }

// Payments returns the payment repository.
func (s *Store) Payments() *Payments { return &Payments{s: s} }

func paymentFor(st *state, orderID string) (payment.Payment, bool) {
	for _, p := range st.payments {
		if p.OrderID == orderID {
			return p, true
		}
	}
	return payment.Payment{}, false
}

// GetOrCreate implements payment.Repository.
func (r *Payments) GetOrCreate(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	var (
		out     payment.Payment
		created bool
	)
	err := r.s.write(ctx, func(st *state) error {
		if _, ok := st.orders[p.OrderID]; !ok {
			return order.ErrNotFound
		}
		if cur, ok := paymentFor(st, p.OrderID); ok {
			out = clonePayment(cur)
			return nil
		}
		out = clonePayment(*p)
		out.ID = st.nextID()
		st.payments[out.ID] = clonePayment(out)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// GetByOrderID implements payment.Repository.
func (r *Payments) GetByOrderID(_ context.Context, orderID string) (*payment.Payment, error) {
	var out payment.Payment
	err := r.s.read(func(st *state) error {
		p, ok := paymentFor(st, orderID)
		if !ok {
			return payment.ErrNotFound
		}
		out = clonePayment(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByOrderIDForUpdate implements payment.Repository.
func (r *Payments) GetByOrderIDForUpdate(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.GetByOrderID(ctx, orderID)
}

// Update implements payment.Repository.
func (r *Payments) Update(ctx context.Context, p *payment.Payment) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.payments[p.ID]; !ok {
			return payment.ErrNotFound
		}
		st.payments[p.ID] = clonePayment(*p)
		return nil
	})
}

// ListByUser implements payment.Repository.
func (r *Payments) ListByUser(_ context.Context, userID int64) ([]payment.Payment, error) {
	var out []payment.Payment
	err := r.s.read(func(st *state) error {
		for _, p := range st.payments {
			if p.UserID == userID {
				out = append(out, clonePayment(p))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b payment.Payment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, err
}
