// Package payment drives a Payment from INITIATED to SUCCESS or FAILED
// through a gateway, and on success triggers coupon consumption and
// shipment creation.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is the payment method chosen at checkout.
type Method int16

const (
	MethodZPay Method = 1
	MethodCOD  Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodZPay:
		return "ZPAY"
	case MethodCOD:
		return "COD"
	default:
		return fmt.Sprintf("Method(%d)", int16(m))
	}
}

// ParseMethod parses "ZPAY" or "COD", ignoring case.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ZPAY", "":
		return MethodZPay, nil
	case "COD":
		return MethodCOD, nil
	default:
		return 0, errors.Errorf("unknown payment method %q", s)
	}
}

// Status is the payment state. SUCCESS and FAILED are terminal for an attempt.
type Status int16

const (
	StatusInitiated Status = 1
	StatusSuccess   Status = 2
	StatusFailed    Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusInitiated:
		return "INITIATED"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int16(s))
	}
}

var (
	// ErrNotFound is returned when no payment exists for an order.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyPaid is returned when the order has already been paid.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrFinalized is returned when processing a payment that is not INITIATED.
	ErrFinalized = errors.New("payment is not awaiting processing")
	// ErrMethodUnsupported is returned for payment methods without a gateway.
	ErrMethodUnsupported = errors.New("payment method not supported")
	// ErrAddressMissing is returned in a Result when a paid order has no
	// default shipping address.
	ErrAddressMissing = errors.New("no default shipping address")
)

// Payment is the single payment record of an order.
type Payment struct {
	ID            int64
	OrderID       string
	UserID        int64
	Amount        decimal.Decimal
	Method        Method
	Status        Status
	TransactionID string
	Meta          Meta
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Attempt is an earlier, finished gateway attempt on the same payment row.
type Attempt struct {
	TransactionID string
	Status        Status
	At            time.Time
}

// Meta is the gateway metadata stored with a payment.
type Meta struct {
	OrderID  string
	Method   string
	Gateway  string
	Attempts []Attempt
}

// Repository persists payments. At most one payment exists per order.
type Repository interface {
	// GetOrCreate inserts p unless a payment exists for p.OrderID, and
	// returns the stored row either way.
	GetOrCreate(ctx context.Context, p *Payment) (*Payment, bool, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// GetByOrderIDForUpdate locks the payment row for the rest of the transaction.
	GetByOrderIDForUpdate(ctx context.Context, orderID string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	ListByUser(ctx context.Context, userID int64) ([]Payment, error)
}
