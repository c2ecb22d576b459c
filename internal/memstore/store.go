// Package memstore implements every repository in process memory.
//
// Transactions are serialized: at most one RunInTx body executes at a time,
// which makes every "for update" read trivially exclusive. Writes outside a
// transaction take the same lock, so a rollback never discards them.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

var (
	_ user.Repository     = (*Users)(nil)
	_ auth.Repository     = (*APIKeys)(nil)
	_ product.Repository  = (*Products)(nil)
	_ cart.Repository     = (*Carts)(nil)
	_ coupon.Repository   = (*Coupons)(nil)
	_ order.Repository    = (*Orders)(nil)
	_ payment.Repository  = (*Payments)(nil)
	_ shipment.Repository = (*Shipments)(nil)
	_ uow.Runner          = (*Store)(nil)
)

type pair struct{ coupon, user int64 }

type state struct {
	users     map[int64]user.User
	addresses map[int64]user.Address
	apiKeys   map[string]auth.APIKeyInfo
	products  map[string]product.Product

	carts map[int64]cart.Cart // by cart id

	coupons     map[int64]coupon.Coupon
	assignments map[pair]coupon.Assignment
	usages      map[pair]coupon.Usage

	orders    map[string]order.Order
	payments  map[int64]payment.Payment
	shipments map[int64]shipment.Shipment

	seq int64
}

func newState() *state {
	return &state{
		users:       make(map[int64]user.User),
		addresses:   make(map[int64]user.Address),
		apiKeys:     make(map[string]auth.APIKeyInfo),
		products:    make(map[string]product.Product),
		carts:       make(map[int64]cart.Cart),
		coupons:     make(map[int64]coupon.Coupon),
		assignments: make(map[pair]coupon.Assignment),
		usages:      make(map[pair]coupon.Usage),
		orders:      make(map[string]order.Order),
		payments:    make(map[int64]payment.Payment),
		shipments:   make(map[int64]shipment.Shipment),
	}
}

func (st *state) nextID() int64 {
	st.seq++
	return st.seq
}

func (st *state) clone() *state {
	out := &state{
		users:       maps.Clone(st.users),
		addresses:   maps.Clone(st.addresses),
		apiKeys:     make(map[string]auth.APIKeyInfo, len(st.apiKeys)),
		products:    maps.Clone(st.products),
		carts:       make(map[int64]cart.Cart, len(st.carts)),
		coupons:     maps.Clone(st.coupons),
		assignments: maps.Clone(st.assignments),
		usages:      maps.Clone(st.usages),
		orders:      make(map[string]order.Order, len(st.orders)),
		payments:    make(map[int64]payment.Payment, len(st.payments)),
		shipments:   make(map[int64]shipment.Shipment, len(st.shipments)),
		seq:         st.seq,
	}
	for k, v := range st.apiKeys {
		out.apiKeys[k] = cloneAPIKey(v)
	}
	for k, v := range st.carts {
		out.carts[k] = cloneCart(v)
	}
	for k, v := range st.orders {
		out.orders[k] = cloneOrder(v)
	}
	for k, v := range st.payments {
		out.payments[k] = clonePayment(v)
	}
	for k, v := range st.shipments {
		out.shipments[k] = cloneShipment(v)
	}
	return out
}

type txKey struct{}

// Store is an in-memory database.
type Store struct {
	txMu sync.Mutex // held for a whole transaction or a single write
	mu   sync.Mutex // guards st
	st   *state
	now  func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// RunInTx implements uow.Runner. Nested calls join the outer transaction; an
// error returned from the outermost fn restores the state it started from.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func cloneAPIKey(k auth.APIKeyInfo) auth.APIKeyInfo {
	k.Scopes = slices.Clone(k.Scopes)
	return k
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Items = slices.Clone(c.Items)
	return c
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	o.CouponID = clonePtr(o.CouponID)
	o.PaymentID = clonePtr(o.PaymentID)
	return o
}

func clonePayment(p payment.Payment) payment.Payment {
	p.Meta.Attempts = slices.Clone(p.Meta.Attempts)
	return p
}

func cloneShipment(s shipment.Shipment) shipment.Shipment {
	s.AssignedStaffID = clonePtr(s.AssignedStaffID)
	s.AssignedAt = clonePtr(s.AssignedAt)
	s.ShippedAt = clonePtr(s.ShippedAt)
	s.DeliveredAt = clonePtr(s.DeliveredAt)
	return s
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
