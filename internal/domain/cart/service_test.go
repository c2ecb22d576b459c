package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/product"
)

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCartRepo struct {
	cart *Cart
}

func (m *mockCartRepo) GetOrCreate(_ context.Context, userID int64) (*Cart, error) {
	if m.cart == nil {
		m.cart = &Cart{ID: 1, UserID: userID}
	}
	c := *m.cart
	c.Items = append([]Item(nil), m.cart.Items...)
	return &c, nil
}

func (m *mockCartRepo) GetForUpdate(_ context.Context, _ int64) (*Cart, error) {
	c := *m.cart
	c.Items = append([]Item(nil), m.cart.Items...)
	return &c, nil
}

func (m *mockCartRepo) AddItem(_ context.Context, _ int64, productID string, qty int) error {
	for i := range m.cart.Items {
		if m.cart.Items[i].ProductID == productID {
			m.cart.Items[i].Quantity += qty
			return nil
		}
	}
	m.cart.Items = append(m.cart.Items, Item{ProductID: productID, Quantity: qty})
	return nil
}

func (m *mockCartRepo) SetItem(_ context.Context, _ int64, productID string, qty int) error {
	for i := range m.cart.Items {
		if m.cart.Items[i].ProductID == productID {
			m.cart.Items[i].Quantity = qty
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *mockCartRepo) RemoveItem(_ context.Context, _ int64, productID string) error {
	for i := range m.cart.Items {
		if m.cart.Items[i].ProductID == productID {
			m.cart.Items = append(m.cart.Items[:i], m.cart.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *mockCartRepo) Clear(_ context.Context, _ int64) error {
	m.cart.Items = nil
	return nil
}

func newTestService() (*Service, *mockCartRepo) {
	carts := &mockCartRepo{}
	products := &mockProductRepo{byID: map[string]product.Product{
		"1": {ID: "1", Name: "Widget", Price: dec("25.00"), Active: true},
		"2": {ID: "2", Name: "Gadget", Price: dec("50.00"), Active: true},
		"9": {ID: "9", Name: "Retired", Price: dec("5.00")},
	}}
	return NewService(carts, products), carts
}

func TestService_AddItemSumsQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.AddItem(ctx, 10, "1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 10, "2", 1)
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, 10, "1", 2)
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "1", c.Items[0].ProductID)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, "2", c.Items[1].ProductID)

	pricing, err := svc.Price(ctx, c, nil)
	require.NoError(t, err)
	assert.True(t, dec("125.00").Equal(pricing.GrandTotal))
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.AddItem(ctx, 10, "1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	var pnf *ProductNotFoundError
	_, err = svc.AddItem(ctx, 10, "404", 1)
	require.ErrorAs(t, err, &pnf)
	assert.Equal(t, "404", pnf.ProductID)

	_, err = svc.AddItem(ctx, 10, "9", 1)
	require.ErrorAs(t, err, &pnf)

	_, err = svc.UpdateItem(ctx, 10, "1", -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.UpdateItem(ctx, 10, "1", 4)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestService_UpdateRemoveClear(t *testing.T) {
	ctx := context.Background()
	svc, carts := newTestService()

	_, err := svc.AddItem(ctx, 10, "1", 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 10, "2", 1)
	require.NoError(t, err)

	c, err := svc.UpdateItem(ctx, 10, "1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[0].Quantity)

	c, err = svc.RemoveItem(ctx, 10, "2")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)

	require.NoError(t, svc.Clear(ctx, 10))
	assert.Empty(t, carts.cart.Items)
}
