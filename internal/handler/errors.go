package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// badRequest marks malformed request bodies and parameters.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(msg string) error {
	return &badRequest{msg: msg}
}

// statusOf maps domain errors to an HTTP status and a client-facing message.
func statusOf(err error) (int, string) {
	var (
		bad        *badRequest
		rejected   *coupon.Error
		couponBad  *coupon.ValidationError
		creation   *order.CreationError
		shipBad    *shipment.ValidationError
		missing    *cart.ProductNotFoundError
		transition *shipment.StateError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shipment.ErrPermission):
		return http.StatusForbidden, err.Error()

	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity, rejected.Error()
	case errors.As(err, &couponBad):
		return http.StatusUnprocessableEntity, couponBad.Message
	case errors.As(err, &creation):
		return http.StatusUnprocessableEntity, creation.Message
	case errors.As(err, &shipBad):
		return http.StatusUnprocessableEntity, shipBad.Message
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, missing.Error()
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, shipment.ErrNotStaff),
		errors.Is(err, coupon.ErrNotCustomer),
		errors.Is(err, payment.ErrMethodUnsupported),
		errors.Is(err, payment.ErrAddressMissing),
		errors.Is(err, user.ErrNoDefaultAddress):
		return http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, shipment.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, err.Error()

	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, order.ErrCartChanged),
		errors.Is(err, payment.ErrFinalized),
		errors.Is(err, shipment.ErrAlreadyAssigned),
		errors.Is(err, shipment.ErrDuplicateTracking):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusOf(err)
	lg := zctx.From(r.Context())
	if code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", code), zap.Error(err))
	}
	body := errorBody(code, msg)
	var invalid *coupon.ValidationError
	if reason, ok := coupon.ReasonOf(err); ok {
		body = errorBody(code, msg, "reason", string(reason))
	} else if errors.As(err, &invalid) && invalid.Field != "" {
		body = errorBody(code, msg, "field", invalid.Field)
	}
	writeJSON(w, code, body)
}

// errorBody builds {"code","message"} plus optional string fields given as
// key, value pairs.
func errorBody(code int, msg string, extra ...string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			for i := 0; i+1 < len(extra); i += 2 {
				e.Field(extra[i], func(e *jx.Encoder) { e.Str(extra[i+1]) })
			}
		})
	}
}
