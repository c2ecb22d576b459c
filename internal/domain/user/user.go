// Package user holds storefront accounts and their shipping addresses.
package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrNoDefaultAddress is returned when a user has no default shipping address.
	ErrNoDefaultAddress = errors.New("no default shipping address")
)

// User is a storefront account.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      auth.Role
	CreatedAt time.Time
}

// Address is an entry in a user's address book.
type Address struct {
	ID         int64
	UserID     int64
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	IsDefault  bool
}

// AddressSnapshot is an immutable copy of an address taken at fulfillment time.
type AddressSnapshot struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// Snapshot copies the shippable fields of a.
func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

// IsZero reports whether the snapshot carries no address at all.
func (s AddressSnapshot) IsZero() bool {
	return s == AddressSnapshot{}
}

// Repository provides user and address lookups.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	// DefaultAddress returns ErrNoDefaultAddress when the user has none.
	DefaultAddress(ctx context.Context, userID int64) (*Address, error)
}
