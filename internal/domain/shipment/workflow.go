package shipment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

const maxTrackingAttempts = 8

// Users resolves user accounts.
type Users interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// NewTrackingNumber returns a random, time-ordered tracking number.
func NewTrackingNumber() string {
	return "ZN" + ulid.Make().String()
}

// Workflow implements the shipment state machine. Each mutation runs in its
// own transaction holding a row lock on the shipment.
type Workflow struct {
	tx          uow.Runner
	repo        Repository
	users       Users
	now         func() time.Time
	newTracking func() string
	transitions metric.Int64Counter
}

// Option configures a Workflow.
type Option func(*Workflow) error

// WithMeterProvider sets the meter provider for transition metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(w *Workflow) error {
		c, err := mp.Meter("storefront/shipment").Int64Counter("storefront.shipment.transitions",
			metric.WithDescription("Shipment state transitions"),
		)
		if err != nil {
			return errors.Wrap(err, "create transitions counter")
		}
		w.transitions = c
		return nil
	}
}

// NewWorkflow creates a Workflow.
func NewWorkflow(tx uow.Runner, repo Repository, users Users, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		tx:          tx,
		repo:        repo,
		users:       users,
		now:         time.Now,
		newTracking: NewTrackingNumber,
	}
	opts = append([]Option{WithMeterProvider(otel.GetMeterProvider())}, opts...)
	for _, o := range opts {
		if err := o(w); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Workflow) record(ctx context.Context, to Status) {
	w.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", to.String())))
}

// CreateAfterPayment creates the PENDING_ASSIGNMENT shipment for a paid
// order. If the order already has a shipment it is returned unchanged.
func (w *Workflow) CreateAfterPayment(ctx context.Context, o *order.Order, addr user.AddressSnapshot) (*Shipment, error) {
	if !o.IsPaid {
		return nil, ErrOrderUnpaid
	}
	now := w.now()
	s, created, err := w.repo.CreateIfAbsent(ctx, &Shipment{
		OrderID:    o.ID,
		CustomerID: o.UserID,
		Address:    addr,
		Status:     StatusPendingAssignment,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create shipment")
	}
	if created {
		w.record(ctx, StatusPendingAssignment)
		zctx.From(ctx).Info("Shipment created",
			zap.Int64("shipment_id", s.ID),
			zap.String("order_id", o.ID),
		)
	}
	return s, nil
}

// AssignStaff assigns a staff member and a fresh tracking number. Assignment
// is one-shot.
func (w *Workflow) AssignStaff(ctx context.Context, admin auth.Principal, shipmentID, staffID int64) (*Shipment, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	staff, err := w.users.GetByID(ctx, staffID)
	if err != nil {
		return nil, errors.Wrap(err, "get staff user")
	}
	if staff.Role != auth.RoleStaff {
		return nil, ErrNotStaff
	}

	var out *Shipment
	err = w.tx.RunInTx(ctx, func(ctx context.Context) error {
		s, err := w.repo.GetByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if s.AssignedStaffID != nil {
			return ErrAlreadyAssigned
		}
		if !CanTransition(s.Status, StatusAssigned) {
			return &StateError{From: s.Status, To: StatusAssigned}
		}
		tracking, err := w.uniqueTracking(ctx)
		if err != nil {
			return err
		}
		now := w.now()
		s.AssignedStaffID = &staff.ID
		s.TrackingNumber = tracking
		s.Status = StatusAssigned
		s.AssignedAt = &now
		s.UpdatedAt = now
		if err := w.repo.Update(ctx, s); err != nil {
			return errors.Wrap(err, "update shipment")
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, StatusAssigned)
	return out, nil
}

func (w *Workflow) uniqueTracking(ctx context.Context) (string, error) {
	for range maxTrackingAttempts {
		t := w.newTracking()
		exists, err := w.repo.TrackingExists(ctx, t)
		if err != nil {
			return "", errors.Wrap(err, "check tracking number")
		}
		if !exists {
			return t, nil
		}
	}
	return "", errors.Wrapf(ErrDuplicateTracking, "after %d attempts", maxTrackingAttempts)
}

// MarkShipped moves an ASSIGNED shipment to SHIPPED.
func (w *Workflow) MarkShipped(ctx context.Context, staff auth.Principal, shipmentID int64) (*Shipment, error) {
	return w.advance(ctx, staff, shipmentID, StatusShipped, func(s *Shipment, now time.Time) {
		s.ShippedAt = &now
	})
}

// MarkDelivered moves a SHIPPED shipment to DELIVERED.
func (w *Workflow) MarkDelivered(ctx context.Context, staff auth.Principal, shipmentID int64) (*Shipment, error) {
	return w.advance(ctx, staff, shipmentID, StatusDelivered, func(s *Shipment, now time.Time) {
		s.DeliveredAt = &now
	})
}

func (w *Workflow) advance(
	ctx context.Context,
	staff auth.Principal,
	shipmentID int64,
	to Status,
	stamp func(s *Shipment, now time.Time),
) (*Shipment, error) {
	var out *Shipment
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		s, err := w.repo.GetByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !s.AssignedTo(staff.UserID) {
			return ErrPermission
		}
		if !CanTransition(s.Status, to) {
			return &StateError{From: s.Status, To: to}
		}
		now := w.now()
		s.Status = to
		s.UpdatedAt = now
		stamp(s, now)
		if err := w.repo.Update(ctx, s); err != nil {
			return errors.Wrap(err, "update shipment")
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.record(ctx, to)
	zctx.From(ctx).Info("Shipment advanced",
		zap.Int64("shipment_id", out.ID),
		zap.Stringer("status", to),
	)
	return out, nil
}

// UpdateCarrier sets the carrier name. Only the assigned staff member may
// change it, and only before delivery.
func (w *Workflow) UpdateCarrier(ctx context.Context, staff auth.Principal, shipmentID int64, carrier string) (*Shipment, error) {
	var out *Shipment
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		s, err := w.repo.GetByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if !s.AssignedTo(staff.UserID) {
			return ErrPermission
		}
		if s.Status == StatusDelivered || s.Status == StatusFailed {
			return &StateError{From: s.Status, To: s.Status}
		}
		s.Carrier = carrier
		s.UpdatedAt = w.now()
		if err := w.repo.Update(ctx, s); err != nil {
			return errors.Wrap(err, "update shipment")
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForOrder returns the shipment of an order visible to p: the customer,
// the assigned staff member, or any admin.
func (w *Workflow) ForOrder(ctx context.Context, p auth.Principal, orderID string) (*Shipment, error) {
	s, err := w.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.CustomerID == p.UserID || s.AssignedTo(p.UserID) || p.Is(auth.RoleAdmin) {
		return s, nil
	}
	return nil, ErrNotFound
}

// ListAll returns every shipment.
func (w *Workflow) ListAll(ctx context.Context, admin auth.Principal) ([]Shipment, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return w.repo.ListAll(ctx)
}

// ListAssigned returns the shipments assigned to the calling staff member.
func (w *Workflow) ListAssigned(ctx context.Context, staff auth.Principal) ([]Shipment, error) {
	if err := auth.Require(staff, auth.RoleStaff); err != nil {
		return nil, err
	}
	return w.repo.ListByStaff(ctx, staff.UserID)
}

// ListForCustomer returns the caller's shipments.
func (w *Workflow) ListForCustomer(ctx context.Context, p auth.Principal) ([]Shipment, error) {
	return w.repo.ListByCustomer(ctx, p.UserID)
}
