package shipment_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
	"github.com/xenking/storefront-fulfillment/internal/memstore"
)

type fixture struct {
	store    *memstore.Store
	wf       *shipment.Workflow
	admin    auth.Principal
	staff    auth.Principal
	other    auth.Principal
	customer auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	mk := func(role auth.Role) auth.Principal {
		u := &user.User{Email: string(role) + "@example.com", Role: role}
		require.NoError(t, s.Users().Create(ctx, u))
		return auth.Principal{UserID: u.ID, Role: role}
	}
	f := &fixture{
		store:    s,
		admin:    mk(auth.RoleAdmin),
		staff:    mk(auth.RoleStaff),
		other:    mk(auth.RoleStaff),
		customer: mk(auth.RoleCustomer),
	}
	wf, err := shipment.NewWorkflow(s, s.Shipments(), s.Users())
	require.NoError(t, err)
	f.wf = wf
	return f
}

var addr = user.AddressSnapshot{FullName: "Ada", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}

func (f *fixture) order(t *testing.T, paid bool) *order.Order {
	t.Helper()
	o := &order.Order{
		ID:          uuid.NewString(),
		UserID:      f.customer.UserID,
		TotalAmount: decimal.NewFromInt(10),
		IsPaid:      paid,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, f.store.Orders().Create(context.Background(), o))
	return o
}

func (f *fixture) pending(t *testing.T) *shipment.Shipment {
	t.Helper()
	s, err := f.wf.CreateAfterPayment(context.Background(), f.order(t, true), addr)
	require.NoError(t, err)
	return s
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to shipment.Status
		want     bool
	}{
		{shipment.StatusPendingAssignment, shipment.StatusAssigned, true},
		{shipment.StatusAssigned, shipment.StatusShipped, true},
		{shipment.StatusShipped, shipment.StatusDelivered, true},
		{shipment.StatusPendingAssignment, shipment.StatusShipped, false},
		{shipment.StatusAssigned, shipment.StatusDelivered, false},
		{shipment.StatusDelivered, shipment.StatusShipped, false},
		{shipment.StatusShipped, shipment.StatusAssigned, false},
		{shipment.StatusFailed, shipment.StatusAssigned, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, shipment.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCreateAfterPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.wf.CreateAfterPayment(ctx, f.order(t, false), addr)
	var verr *shipment.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Order is not paid.", verr.Message)

	o := f.order(t, true)
	first, err := f.wf.CreateAfterPayment(ctx, o, addr)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusPendingAssignment, first.Status)
	assert.Equal(t, addr, first.Address)
	assert.Nil(t, first.AssignedStaffID)
	assert.Empty(t, first.TrackingNumber)

	second, err := f.wf.CreateAfterPayment(ctx, o, user.AddressSnapshot{Line1: "elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, addr, second.Address)
}

func TestAssignStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)

	_, err := f.wf.AssignStaff(ctx, f.staff, s.ID, f.staff.UserID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = f.wf.AssignStaff(ctx, f.admin, s.ID, f.customer.UserID)
	assert.ErrorIs(t, err, shipment.ErrNotStaff)

	got, err := f.wf.AssignStaff(ctx, f.admin, s.ID, f.staff.UserID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusAssigned, got.Status)
	assert.True(t, got.AssignedTo(f.staff.UserID))
	assert.True(t, strings.HasPrefix(got.TrackingNumber, "ZN"))
	assert.NotNil(t, got.AssignedAt)
	assert.Nil(t, got.ShippedAt)

	_, err = f.wf.AssignStaff(ctx, f.admin, s.ID, f.other.UserID)
	assert.ErrorIs(t, err, shipment.ErrAlreadyAssigned)

	stored, err := f.store.Shipments().GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, stored.AssignedTo(f.staff.UserID))
}

func TestAssignStaff_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, staff := range []auth.Principal{f.staff, f.other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.wf.AssignStaff(ctx, f.admin, s.ID, staff.UserID)
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shipment.ErrAlreadyAssigned):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
}

func TestShipAndDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)

	_, err := f.wf.MarkShipped(ctx, f.staff, s.ID)
	assert.ErrorIs(t, err, shipment.ErrPermission, "unassigned shipment")

	_, err = f.wf.AssignStaff(ctx, f.admin, s.ID, f.staff.UserID)
	require.NoError(t, err)

	_, err = f.wf.MarkShipped(ctx, f.other, s.ID)
	assert.ErrorIs(t, err, shipment.ErrPermission)

	_, err = f.wf.MarkDelivered(ctx, f.staff, s.ID)
	var serr *shipment.StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, shipment.StatusAssigned, serr.From)
	assert.Equal(t, shipment.StatusDelivered, serr.To)

	shipped, err := f.wf.MarkShipped(ctx, f.staff, s.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)

	_, err = f.wf.MarkShipped(ctx, f.staff, s.ID)
	assert.ErrorIs(t, err, shipment.ErrInvalidState)

	delivered, err := f.wf.MarkDelivered(ctx, f.staff, s.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	_, err = f.wf.UpdateCarrier(ctx, f.staff, s.ID, "UPS")
	assert.ErrorIs(t, err, shipment.ErrInvalidState)
}

func TestMarkShipped_ConcurrentSingleTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)
	_, err := f.wf.AssignStaff(ctx, f.admin, s.ID, f.staff.UserID)
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.wf.MarkShipped(ctx, f.staff, s.ID)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, shipment.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
}

func TestUpdateCarrier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)
	_, err := f.wf.AssignStaff(ctx, f.admin, s.ID, f.staff.UserID)
	require.NoError(t, err)

	_, err = f.wf.UpdateCarrier(ctx, f.other, s.ID, "DHL")
	assert.ErrorIs(t, err, shipment.ErrPermission)

	got, err := f.wf.UpdateCarrier(ctx, f.staff, s.ID, "DHL")
	require.NoError(t, err)
	assert.Equal(t, "DHL", got.Carrier)
	assert.Equal(t, shipment.StatusAssigned, got.Status)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.pending(t)
	_, err := f.wf.AssignStaff(ctx, f.admin, s.ID, f.staff.UserID)
	require.NoError(t, err)

	for _, p := range []auth.Principal{f.customer, f.staff, f.admin} {
		got, err := f.wf.ForOrder(ctx, p, s.OrderID)
		require.NoError(t, err, p.Role)
		assert.Equal(t, s.ID, got.ID)
	}
	_, err = f.wf.ForOrder(ctx, f.other, s.OrderID)
	assert.ErrorIs(t, err, shipment.ErrNotFound)

	assigned, err := f.wf.ListAssigned(ctx, f.staff)
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	none, err := f.wf.ListAssigned(ctx, f.other)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.wf.ListAll(ctx, f.customer)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	all, err := f.wf.ListAll(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	mine, err := f.wf.ListForCustomer(ctx, f.customer)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
