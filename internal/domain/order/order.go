// Package order turns a priced cart into an immutable order snapshot.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the order-side view of its payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// CreationError is a user-facing reason an order could not be created.
type CreationError struct {
	Message string
}

func (e *CreationError) Error() string {
	return e.Message
}

var (
	ErrCartEmpty     = &CreationError{Message: "Cart is empty."}
	ErrInvalidAmount = &CreationError{Message: "Invalid order amount."}

	// ErrCartChanged is returned when the locked cart no longer matches the
	// priced lines.
	ErrCartChanged = errors.New("cart changed since it was priced")

	// ErrNotFound is returned when an order does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("order not found")
)

// Order is a priced snapshot of a cart. Items and TotalAmount never change
// after creation; only the payment fields move.
type Order struct {
	ID            string
	UserID        int64
	Items         []Item
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	TotalAmount   decimal.Decimal
	CouponID      *int64
	CouponCode    string
	IsPaid        bool
	PaymentStatus PaymentStatus
	PaymentID     *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is a frozen order line. Price is the unit price at checkout time.
type Item struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

// LineTotal returns Price times Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts the order and all of its items.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// GetByIDForUpdate locks the order row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	// MarkPaid sets is_paid, payment_status=paid and links the payment.
	MarkPaid(ctx context.Context, id string, paymentID int64) error
	// MarkPaymentFailed sets payment_status=failed; is_paid stays false.
	MarkPaymentFailed(ctx context.Context, id string) error
	// ListUnfulfilled returns paid orders created before the cutoff that
	// have no shipment or whose coupon has no usage recorded.
	ListUnfulfilled(ctx context.Context, before time.Time) ([]Order, error)
}
