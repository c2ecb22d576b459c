package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	orders    map[string]*Order
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByIDForUpdate(ctx context.Context, id string) (*Order, error) {
	return m.GetByID(ctx, id)
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockOrderRepo) ListAll(_ context.Context) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) MarkPaid(context.Context, string, int64) error { return nil }

func (m *mockOrderRepo) MarkPaymentFailed(context.Context, string) error { return nil }

func (m *mockOrderRepo) ListUnfulfilled(context.Context, time.Time) ([]Order, error) { return nil, nil }

type mockCarts struct {
	carts   map[int64]*cart.Cart
	cleared []int64
	err     error
}

func newMockCarts(cs ...*cart.Cart) *mockCarts {
	m := &mockCarts{carts: make(map[int64]*cart.Cart)}
	for _, c := range cs {
		cp := *c
		cp.Items = append([]cart.Item(nil), c.Items...)
		m.carts[c.ID] = &cp
	}
	return m
}

func (m *mockCarts) GetForUpdate(_ context.Context, cartID int64) (*cart.Cart, error) {
	c, ok := m.carts[cartID]
	if !ok {
		return &cart.Cart{ID: cartID}, nil
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp, nil
}

func (m *mockCarts) Clear(_ context.Context, cartID int64) error {
	if m.err != nil {
		return m.err
	}
	if c, ok := m.carts[cartID]; ok {
		c.Items = nil
	}
	m.cleared = append(m.cleared, cartID)
	return nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pricedCart(t *testing.T, coupon *cart.AppliedCoupon) (*cart.Cart, cart.Pricing) {
	t.Helper()
	c := &cart.Cart{ID: 3, UserID: 10, Items: []cart.Item{
		{ProductID: "1", Quantity: 2},
		{ProductID: "2", Quantity: 1},
	}}
	catalog := product.Index([]product.Product{
		{ID: "1", Name: "Widget", Price: dec("25.00"), Active: true},
		{ID: "2", Name: "Gadget", Price: dec("50.00"), Active: true},
	})
	pricing, err := cart.Price(c.Items, catalog, coupon)
	require.NoError(t, err)
	return c, pricing
}

// --- Tests ---

func TestCreateFromCart_EmptyCart(t *testing.T) {
	repo := newMockOrderRepo()
	svc := NewService(uow.Passthrough{}, repo, newMockCarts())

	_, err := svc.CreateFromCart(context.Background(), 10, &cart.Cart{ID: 3}, cart.Pricing{})
	require.ErrorIs(t, err, ErrCartEmpty)
	assert.Equal(t, "Cart is empty.", err.Error())
	assert.Empty(t, repo.orders)
}

func TestCreateFromCart_InvalidAmount(t *testing.T) {
	repo := newMockOrderRepo()
	c, pricing := pricedCart(t, &cart.AppliedCoupon{ID: 1, Code: "FREE", Percent: dec("100")})
	svc := NewService(uow.Passthrough{}, repo, newMockCarts(c))

	_, err := svc.CreateFromCart(context.Background(), 10, c, pricing)
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, repo.orders)
}

func TestCreateFromCart_SnapshotsLines(t *testing.T) {
	repo := newMockOrderRepo()
	c, pricing := pricedCart(t, &cart.AppliedCoupon{ID: 4, Code: "TEN", Percent: dec("10")})
	carts := newMockCarts(c)
	svc := NewService(uow.Passthrough{}, repo, carts)

	o, err := svc.CreateFromCart(context.Background(), 10, c, pricing)
	require.NoError(t, err)

	assert.True(t, dec("90.00").Equal(o.TotalAmount))
	assert.True(t, dec("10.00").Equal(o.Discount))
	assert.False(t, o.IsPaid)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	require.NotNil(t, o.CouponID)
	assert.Equal(t, int64(4), *o.CouponID)

	require.Len(t, o.Items, 2)
	for i, it := range c.Items {
		assert.Equal(t, it.ProductID, o.Items[i].ProductID)
		assert.Equal(t, it.Quantity, o.Items[i].Quantity)
	}
	assert.True(t, dec("25.00").Equal(o.Items[0].Price))
	assert.Equal(t, []int64{3}, carts.cleared)

	// Later pricing changes do not reach the stored order.
	pricing.Lines[0].UnitPrice = dec("99.00")
	stored, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, dec("25.00").Equal(stored.Items[0].Price))
}

func TestCreateFromCart_CreateError(t *testing.T) {
	repo := newMockOrderRepo()
	repo.createErr = errors.New("db write failed")
	c, pricing := pricedCart(t, nil)
	carts := newMockCarts(c)
	svc := NewService(uow.Passthrough{}, repo, carts)

	_, err := svc.CreateFromCart(context.Background(), 10, c, pricing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, carts.cleared)
}

func TestCreateFromCart_StaleSnapshot(t *testing.T) {
	repo := newMockOrderRepo()
	c, pricing := pricedCart(t, nil)
	carts := newMockCarts(c)
	svc := NewService(uow.Passthrough{}, repo, carts)
	ctx := context.Background()

	_, err := svc.CreateFromCart(ctx, 10, c, pricing)
	require.NoError(t, err)

	// The same snapshot submitted again finds the stored cart emptied.
	_, err = svc.CreateFromCart(ctx, 10, c, pricing)
	require.ErrorIs(t, err, ErrCartEmpty)
	assert.Len(t, repo.orders, 1)
	assert.Equal(t, []int64{3}, carts.cleared)
}

func TestCreateFromCart_CartChanged(t *testing.T) {
	tests := []struct {
		name   string
		stored []cart.Item
	}{
		{
			name: "item added",
			stored: []cart.Item{
				{ProductID: "1", Quantity: 2},
				{ProductID: "2", Quantity: 1},
				{ProductID: "3", Quantity: 1},
			},
		},
		{
			name: "quantity changed",
			stored: []cart.Item{
				{ProductID: "1", Quantity: 5},
				{ProductID: "2", Quantity: 1},
			},
		},
		{
			name:   "item removed",
			stored: []cart.Item{{ProductID: "1", Quantity: 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockOrderRepo()
			c, pricing := pricedCart(t, nil)
			carts := newMockCarts(&cart.Cart{ID: c.ID, UserID: c.UserID, Items: tt.stored})
			svc := NewService(uow.Passthrough{}, repo, carts)

			_, err := svc.CreateFromCart(context.Background(), 10, c, pricing)
			require.ErrorIs(t, err, ErrCartChanged)
			assert.Empty(t, repo.orders)
			assert.Empty(t, carts.cleared)
			assert.Len(t, carts.carts[c.ID].Items, len(tt.stored))
		})
	}
}

func TestGet_Visibility(t *testing.T) {
	repo := newMockOrderRepo()
	c, pricing := pricedCart(t, nil)
	svc := NewService(uow.Passthrough{}, repo, newMockCarts(c))
	o, err := svc.CreateFromCart(context.Background(), 10, c, pricing)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Get(ctx, auth.Principal{UserID: 10, Role: auth.RoleCustomer}, o.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, auth.Principal{UserID: 1, Role: auth.RoleAdmin}, o.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, auth.Principal{UserID: 11, Role: auth.RoleCustomer}, o.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ListAll(ctx, auth.Principal{UserID: 10, Role: auth.RoleCustomer})
	require.ErrorIs(t, err, auth.ErrForbidden)
}
