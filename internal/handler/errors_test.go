package handler

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"unauthorized", auth.ErrUnauthorized, http.StatusUnauthorized, "authentication required"},
		{"forbidden wrapped", errors.Wrap(auth.ErrForbidden, "role"), http.StatusForbidden, "forbidden"},
		{"coupon rejection", &coupon.Error{Reason: coupon.ReasonExpired}, http.StatusUnprocessableEntity, "Coupon expired."},
		{"order creation", order.ErrCartEmpty, http.StatusUnprocessableEntity, "Cart is empty."},
		{"unpaid shipment", shipment.ErrOrderUnpaid, http.StatusUnprocessableEntity, "Order is not paid."},
		{"not found wrapped", errors.Wrap(order.ErrNotFound, "get"), http.StatusNotFound, "get: order not found"},
		{"already paid", payment.ErrAlreadyPaid, http.StatusConflict, "order already paid"},
		{"cart changed", errors.Wrap(order.ErrCartChanged, "place order"), http.StatusConflict, "place order: cart changed since it was priced"},
		{"bad transition", &shipment.StateError{From: shipment.StatusAssigned, To: shipment.StatusDelivered}, http.StatusConflict, "cannot move shipment from ASSIGNED to DELIVERED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := statusOf(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, msg)
		})
	}
}
