package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

const shipmentColumns = `id, order_id::text, customer_id, address, assigned_staff_id,
	COALESCE(tracking_number, ''), carrier, status, assigned_at, shipped_at, delivered_at,
	created_at, updated_at`

const (
	insertShipmentSQL = `INSERT INTO shipments
	(order_id, customer_id, address, status, carrier, created_at, updated_at)
	VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (order_id) DO NOTHING
	RETURNING ` + shipmentColumns

	getShipmentSQL          = `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`
	getShipmentForUpdateSQL = getShipmentSQL + ` FOR UPDATE`
	getShipmentByOrderSQL   = `SELECT ` + shipmentColumns + ` FROM shipments WHERE order_id = $1::uuid`

	trackingExistsSQL = `SELECT EXISTS (SELECT 1 FROM shipments WHERE tracking_number = $1)`

	updateShipmentSQL = `UPDATE shipments SET assigned_staff_id = $2, tracking_number = NULLIF($3, ''),
	carrier = $4, status = $5, assigned_at = $6, shipped_at = $7, delivered_at = $8, updated_at = $9
	WHERE id = $1`

	listShipmentsSQL        = `SELECT ` + shipmentColumns + ` FROM shipments ORDER BY created_at DESC, id DESC`
	listShipmentsByStaffSQL = `SELECT ` + shipmentColumns + ` FROM shipments
	WHERE assigned_staff_id = $1 ORDER BY created_at DESC, id DESC`
	listShipmentsByCustomerSQL = `SELECT ` + shipmentColumns + ` FROM shipments
	WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`
)

var _ shipment.Repository = (*ShipmentRepository)(nil)

// ShipmentRepository implements shipment.Repository backed by PostgreSQL.
type ShipmentRepository struct {
	db *DB
}

// NewShipmentRepository returns a ShipmentRepository that uses db.
func NewShipmentRepository(db *DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

func scanShipment(row pgx.CollectableRow) (shipment.Shipment, error) {
	var (
		s      shipment.Shipment
		addr   []byte
		status int16
	)
	err := row.Scan(
		&s.ID, &s.OrderID, &s.CustomerID, &addr, &s.AssignedStaffID,
		&s.TrackingNumber, &s.Carrier, &status, &s.AssignedAt, &s.ShippedAt, &s.DeliveredAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}
	s.Status = shipment.Status(status)
	if s.Address, err = decodeAddress(addr); err != nil {
		return s, errors.Wrapf(err, "shipment %d address", s.ID)
	}
	return s, nil
}

func (r *ShipmentRepository) one(ctx context.Context, sql string, arg any) (*shipment.Shipment, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query shipment")
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, shipment.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan shipment")
	}
	return &s, nil
}

func (r *ShipmentRepository) many(ctx context.Context, sql string, args ...any) ([]shipment.Shipment, error) {
	rows, err := r.db.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query shipments")
	}
	out, err := pgx.CollectRows(rows, scanShipment)
	if err != nil {
		return nil, errors.Wrap(err, "scan shipments")
	}
	return out, nil
}

// CreateIfAbsent implements shipment.Repository.
func (r *ShipmentRepository) CreateIfAbsent(ctx context.Context, s *shipment.Shipment) (*shipment.Shipment, bool, error) {
	rows, err := r.db.q(ctx).Query(ctx, insertShipmentSQL,
		s.OrderID, s.CustomerID, encodeAddress(s.Address), int16(s.Status), s.Carrier, s.CreatedAt, s.CreatedAt,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "insert shipment")
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanShipment)
	switch {
	case err == nil:
		return &created, true, nil
	case isForeignKey(err):
		return nil, false, order.ErrNotFound
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, errors.Wrapf(err, "create shipment for order %q", s.OrderID)
	}

	existing, err := r.GetByOrderID(ctx, s.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID implements shipment.Repository.
func (r *ShipmentRepository) GetByID(ctx context.Context, id int64) (*shipment.Shipment, error) {
	return r.one(ctx, getShipmentSQL, id)
}

// GetByIDForUpdate implements shipment.Repository.
func (r *ShipmentRepository) GetByIDForUpdate(ctx context.Context, id int64) (*shipment.Shipment, error) {
	return r.one(ctx, getShipmentForUpdateSQL, id)
}

// GetByOrderID implements shipment.Repository.
func (r *ShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*shipment.Shipment, error) {
	return r.one(ctx, getShipmentByOrderSQL, orderID)
}

// TrackingExists implements shipment.Repository.
func (r *ShipmentRepository) TrackingExists(ctx context.Context, tracking string) (bool, error) {
	var ok bool
	if err := r.db.q(ctx).QueryRow(ctx, trackingExistsSQL, tracking).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "query tracking number")
	}
	return ok, nil
}

// Update implements shipment.Repository.
func (r *ShipmentRepository) Update(ctx context.Context, s *shipment.Shipment) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateShipmentSQL,
		s.ID, s.AssignedStaffID, s.TrackingNumber, s.Carrier, int16(s.Status),
		s.AssignedAt, s.ShippedAt, s.DeliveredAt, s.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return shipment.ErrDuplicateTracking
		}
		return errors.Wrapf(err, "update shipment %d", s.ID)
	}
	if tag.RowsAffected() == 0 {
		return shipment.ErrNotFound
	}
	return nil
}

// ListAll implements shipment.Repository.
func (r *ShipmentRepository) ListAll(ctx context.Context) ([]shipment.Shipment, error) {
	return r.many(ctx, listShipmentsSQL)
}

// ListByStaff implements shipment.Repository.
func (r *ShipmentRepository) ListByStaff(ctx context.Context, staffID int64) ([]shipment.Shipment, error) {
	return r.many(ctx, listShipmentsByStaffSQL, staffID)
}

// ListByCustomer implements shipment.Repository.
func (r *ShipmentRepository) ListByCustomer(ctx context.Context, customerID int64) ([]shipment.Shipment, error) {
	return r.many(ctx, listShipmentsByCustomerSQL, customerID)
}

func encodeAddress(a user.AddressSnapshot) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		for _, f := range []struct{ k, v string }{
			{"full_name", a.FullName},
			{"line1", a.Line1},
			{"line2", a.Line2},
			{"city", a.City},
			{"state", a.State},
			{"postal_code", a.PostalCode},
			{"country", a.Country},
			{"phone", a.Phone},
		} {
			e.Field(f.k, func(e *jx.Encoder) { e.Str(f.v) })
		}
	})
	return e.Bytes()
}

func decodeAddress(b []byte) (user.AddressSnapshot, error) {
	var a user.AddressSnapshot
	fields := map[string]*string{
		"full_name":   &a.FullName,
		"line1":       &a.Line1,
		"line2":       &a.Line2,
		"city":        &a.City,
		"state":       &a.State,
		"postal_code": &a.PostalCode,
		"country":     &a.Country,
		"phone":       &a.Phone,
	}
	err := jx.DecodeBytes(b).Obj(func(d *jx.Decoder, key string) error {
		dst, ok := fields[key]
		if !ok {
			return d.Skip()
		}
		v, err := d.Str()
		*dst = v
		return err
	})
	if err != nil {
		return user.AddressSnapshot{}, errors.Wrap(err, "decode address")
	}
	return a, nil
}
