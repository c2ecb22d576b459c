// Package shipment drives fulfillment of a paid order from creation through
// staff assignment to delivery.
package shipment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// Status is the shipment state.
type Status int16

const (
	StatusPendingAssignment Status = 1
	StatusAssigned          Status = 2
	StatusShipped           Status = 3
	StatusDelivered         Status = 4
	// StatusFailed is a terminal alternative that no operation drives yet.
	StatusFailed Status = 5
)

var statusNames = map[Status]string{
	StatusPendingAssignment: "PENDING_ASSIGNMENT",
	StatusAssigned:          "ASSIGNED",
	StatusShipped:           "SHIPPED",
	StatusDelivered:         "DELIVERED",
	StatusFailed:            "FAILED",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int16(s))
}

var transitions = map[Status][]Status{
	StatusPendingAssignment: {StatusAssigned, StatusFailed},
	StatusAssigned:          {StatusShipped, StatusFailed},
	StatusShipped:           {StatusDelivered, StatusFailed},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

var (
	// ErrNotFound is returned when a shipment does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("shipment not found")
	// ErrPermission is returned when the caller is not the assigned staff member.
	ErrPermission = errors.New("shipment is not assigned to you")
	// ErrNotStaff is returned when the assignee does not hold the staff role.
	ErrNotStaff = errors.New("assignee is not a staff member")
	// ErrAlreadyAssigned is returned on any attempt to reassign a shipment.
	ErrAlreadyAssigned = errors.New("shipment already assigned")
	// ErrInvalidState matches every *StateError.
	ErrInvalidState = errors.New("invalid shipment state")
	// ErrDuplicateTracking is returned by repositories when a tracking
	// number collides.
	ErrDuplicateTracking = errors.New("tracking number already in use")
)

// ValidationError reports a precondition on the input that does not hold.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrOrderUnpaid is returned when creating a shipment for an unpaid order.
var ErrOrderUnpaid = &ValidationError{Message: "Order is not paid."}

// StateError reports an illegal transition.
type StateError struct {
	From Status
	To   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot move shipment from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidState) match.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Shipment is the 1:1 fulfillment record of a paid order.
type Shipment struct {
	ID              int64
	OrderID         string
	CustomerID      int64
	Address         user.AddressSnapshot
	AssignedStaffID *int64
	TrackingNumber  string
	Carrier         string
	Status          Status
	AssignedAt      *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AssignedTo reports whether staffID is the assigned staff member.
func (s *Shipment) AssignedTo(staffID int64) bool {
	return s.AssignedStaffID != nil && *s.AssignedStaffID == staffID
}

// Repository persists shipments.
type Repository interface {
	// CreateIfAbsent inserts s unless a shipment exists for s.OrderID, and
	// returns the stored row either way.
	CreateIfAbsent(ctx context.Context, s *Shipment) (*Shipment, bool, error)
	GetByID(ctx context.Context, id int64) (*Shipment, error)
	// GetByIDForUpdate locks the shipment row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id int64) (*Shipment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Shipment, error)
	TrackingExists(ctx context.Context, tracking string) (bool, error)
	// Update writes the mutable fields of s.
	Update(ctx context.Context, s *Shipment) error
	ListAll(ctx context.Context) ([]Shipment, error)
	ListByStaff(ctx context.Context, staffID int64) ([]Shipment, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Shipment, error)
}
