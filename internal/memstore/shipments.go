package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
)

// Shipments implements shipment.Repository.
type Shipments struct{ s *Store }

// Shipments returns the shipment repository.
func (s *Store) Shipments() *Shipments { return &Shipments{s: s} }

// CreateIfAbsent implements shipment.Repository.
func (r *Shipments) CreateIfAbsent(ctx context.Context, sh *shipment.Shipment) (*shipment.Shipment, bool, error) {
	var (
		out     shipment.Shipment
		created bool
	)
	err := r.s.write(ctx, func(st *state) error {
		if _, ok := st.orders[sh.OrderID]; !ok {
			return order.ErrNotFound
		}
		for _, cur := range st.shipments {
			if cur.OrderID == sh.OrderID {
				out = cloneShipment(cur)
				return nil
			}
		}
		out = cloneShipment(*sh)
		out.ID = st.nextID()
		st.shipments[out.ID] = cloneShipment(out)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

// GetByID implements shipment.Repository.
func (r *Shipments) GetByID(_ context.Context, id int64) (*shipment.Shipment, error) {
	var out shipment.Shipment
	err := r.s.read(func(st *state) error {
		sh, ok := st.shipments[id]
		if !ok {
			return shipment.ErrNotFound
		}
		out = cloneShipment(sh)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate implements shipment.Repository.
func (r *Shipments) GetByIDForUpdate(ctx context.Context, id int64) (*shipment.Shipment, error) {
	return r.GetByID(ctx, id)
}

// GetByOrderID implements shipment.Repository.
func (r *Shipments) GetByOrderID(_ context.Context, orderID string) (*shipment.Shipment, error) {
	var out shipment.Shipment
	err := r.s.read(func(st *state) error {
		for _, sh := range st.shipments {
			if sh.OrderID == orderID {
				out = cloneShipment(sh)
				return nil
			}
		}
		return shipment.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TrackingExists implements shipment.Repository.
func (r *Shipments) TrackingExists(_ context.Context, tracking string) (bool, error) {
	var found bool
	err := r.s.read(func(st *state) error {
		for _, sh := range st.shipments {
			if sh.TrackingNumber == tracking {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

// Update implements shipment.Repository.
func (r *Shipments) Update(ctx context.Context, sh *shipment.Shipment) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.shipments[sh.ID]; !ok {
			return shipment.ErrNotFound
		}
		if sh.TrackingNumber != "" {
			for id, cur := range st.shipments {
				if id != sh.ID && cur.TrackingNumber == sh.TrackingNumber {
					return shipment.ErrDuplicateTracking
				}
			}
		}
		st.shipments[sh.ID] = cloneShipment(*sh)
		return nil
	})
}

func (r *Shipments) list(keep func(shipment.Shipment) bool) ([]shipment.Shipment, error) {
	var out []shipment.Shipment
	err := r.s.read(func(st *state) error {
		for _, sh := range st.shipments {
			if keep(sh) {
				out = append(out, cloneShipment(sh))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b shipment.Shipment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, err
}

// ListAll implements shipment.Repository.
func (r *Shipments) ListAll(_ context.Context) ([]shipment.Shipment, error) {
	return r.list(func(shipment.Shipment) bool { return true })
}

// ListByStaff implements shipment.Repository.
func (r *Shipments) ListByStaff(_ context.Context, staffID int64) ([]shipment.Shipment, error) {
	return r.list(func(sh shipment.Shipment) bool { return sh.AssignedTo(staffID) })
}

// ListByCustomer implements shipment.Repository.
func (r *Shipments) ListByCustomer(_ context.Context, customerID int64) ([]shipment.Shipment, error) {
	return r.list(func(sh shipment.Shipment) bool { return sh.CustomerID == customerID })
}
