package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

func TestRunInTx_RollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Products().Put(ctx, product.Product{ID: "1", Name: "Waffle", Price: decimal.NewFromInt(5), Active: true}))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Products().Put(ctx, product.Product{ID: "2", Name: "Crepe"}))
		c, err := s.Carts().GetOrCreate(ctx, 7)
		require.NoError(t, err)
		require.NoError(t, s.Carts().AddItem(ctx, c.ID, "1", 2))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Products().GetByID(ctx, "2")
	assert.ErrorIs(t, err, product.ErrNotFound)

	c, err := s.Carts().GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestRunInTx_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context) error {
			return s.Products().Put(ctx, product.Product{ID: "1"})
		}))
		return errors.New("outer fails")
	})
	require.Error(t, err)

	_, err = s.Products().GetByID(ctx, "1")
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestRunInTx_Serializes(t *testing.T) {
	ctx := context.Background()
	s := New()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunInTx(ctx, func(context.Context) error {
				mu.Lock()
				active++
				maxSeen = max(maxSeen, active)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestCarts(t *testing.T) {
	ctx := context.Background()
	s := New()
	carts := s.Carts()

	c, err := carts.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	again, err := carts.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	require.NoError(t, carts.AddItem(ctx, c.ID, "b", 1))
	require.NoError(t, carts.AddItem(ctx, c.ID, "a", 2))
	require.NoError(t, carts.AddItem(ctx, c.ID, "b", 3))
	assert.ErrorIs(t, carts.SetItem(ctx, c.ID, "zzz", 1), cart.ErrItemNotFound)

	c, err = carts.GetOrCreate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, c.ProductIDs())
	assert.Equal(t, 4, c.Items[0].Quantity)

	require.NoError(t, carts.RemoveItem(ctx, c.ID, "b"))
	assert.ErrorIs(t, carts.RemoveItem(ctx, c.ID, "b"), cart.ErrItemNotFound)
}

func TestCoupons_CaseInsensitiveCodeAndCascade(t *testing.T) {
	ctx := context.Background()
	s := New()
	coupons := s.Coupons()

	c := &coupon.Coupon{Code: "SAVE10", Active: true, UsageLimit: 5}
	require.NoError(t, coupons.Create(ctx, c))
	assert.ErrorIs(t, coupons.Create(ctx, &coupon.Coupon{Code: "save10"}), coupon.ErrDuplicateCode)

	created, err := coupons.Assign(ctx, coupon.Assignment{CouponID: c.ID, UserID: 3})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = coupons.Assign(ctx, coupon.Assignment{CouponID: c.ID, UserID: 3})
	require.NoError(t, err)
	assert.False(t, created)

	inserted, err := coupons.InsertUsage(ctx, coupon.Usage{CouponID: c.ID, UserID: 3, OrderID: "o1"})
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = coupons.InsertUsage(ctx, coupon.Usage{CouponID: c.ID, UserID: 3, OrderID: "o2"})
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := coupons.RecountUsage(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cid := c.ID
	require.NoError(t, s.Orders().Create(ctx, &order.Order{ID: "o1", UserID: 3, CouponID: &cid, CouponCode: "SAVE10"}))
	require.NoError(t, coupons.Delete(ctx, c.ID))

	o, err := s.Orders().GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o.CouponID)
	assert.Equal(t, "SAVE10", o.CouponCode)
}

func TestOrders_ListUnfulfilled(t *testing.T) {
	ctx := context.Background()
	s := New()
	orders := s.Orders()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, orders.Create(ctx, &order.Order{ID: "paid", UserID: 1, IsPaid: true, CreatedAt: old}))
	require.NoError(t, orders.Create(ctx, &order.Order{ID: "shipped", UserID: 1, IsPaid: true, CreatedAt: old}))
	require.NoError(t, orders.Create(ctx, &order.Order{ID: "unpaid", UserID: 1, CreatedAt: old}))
	require.NoError(t, orders.Create(ctx, &order.Order{ID: "fresh", UserID: 1, IsPaid: true, CreatedAt: old.Add(time.Hour)}))
	couponID := int64(9)
	require.NoError(t, orders.Create(ctx, &order.Order{ID: "coupon-unused", UserID: 1, IsPaid: true, CouponID: &couponID, CreatedAt: old}))
	require.NoError(t, orders.Create(ctx, &order.Order{ID: "coupon-used", UserID: 2, IsPaid: true, CouponID: &couponID, CreatedAt: old}))
	for _, id := range []string{"shipped", "coupon-unused", "coupon-used"} {
		_, _, err := s.Shipments().CreateIfAbsent(ctx, &shipment.Shipment{OrderID: id, Status: shipment.StatusPendingAssignment})
		require.NoError(t, err)
	}
	_, err := s.Coupons().InsertUsage(ctx, coupon.Usage{CouponID: couponID, UserID: 2, OrderID: "coupon-used"})
	require.NoError(t, err)

	got, err := orders.ListUnfulfilled(ctx, old.Add(time.Minute))
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, o := range got {
		ids[i] = o.ID
	}
	assert.ElementsMatch(t, []string{"paid", "coupon-unused"}, ids)
}

func TestUsers_DefaultAddressReplaced(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &user.User{Email: "a@example.com", Role: auth.RoleCustomer}
	require.NoError(t, s.Users().Create(ctx, u))

	_, err := s.Users().DefaultAddress(ctx, u.ID)
	assert.ErrorIs(t, err, user.ErrNoDefaultAddress)

	require.NoError(t, s.Users().AddAddress(ctx, &user.Address{UserID: u.ID, Line1: "first", IsDefault: true}))
	require.NoError(t, s.Users().AddAddress(ctx, &user.Address{UserID: u.ID, Line1: "second", IsDefault: true}))

	a, err := s.Users().DefaultAddress(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", a.Line1)
}
