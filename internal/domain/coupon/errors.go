package coupon

import "github.com/go-faster/errors"

// Reason identifies why a coupon was rejected.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonExpired      Reason = "expired"
	ReasonLimitReached Reason = "limit_reached"
	ReasonNotAssigned  Reason = "not_assigned"
	ReasonAlreadyUsed  Reason = "already_used"
	ReasonNotFound     Reason = "not_found"
)

var reasonMessages = map[Reason]string{
	ReasonInactive:     "Coupon is inactive.",
	ReasonExpired:      "Coupon expired.",
	ReasonLimitReached: "Coupon usage limit reached.",
	ReasonNotAssigned:  "Coupon not assigned to user.",
	ReasonAlreadyUsed:  "Coupon already used.",
	ReasonNotFound:     "Invalid coupon.",
}

var (
	// ErrInvalid matches every *Error.
	ErrInvalid = errors.New("coupon invalid")
	// ErrNotFound is returned by repositories for a missing coupon.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a coupon code is already taken.
	ErrDuplicateCode = errors.New("coupon code already exists")
)

// Error is a coupon rejection with a structured reason.
type Error struct {
	Reason Reason
}

func (e *Error) Error() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return string(e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) true for every rejection.
func (e *Error) Is(target error) bool {
	return target == ErrInvalid
}

func reject(r Reason) error {
	return &Error{Reason: r}
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason, true
	}
	return "", false
}

// ValidationError reports malformed coupon input from administrators.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
