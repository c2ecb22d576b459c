package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
)

func (h *Handler) previewCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := h.checkout.Preview(ctx, principal(ctx), stage(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, sum.Cart, sum.Pricing, sum.CouponErr) })
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.checkout.PlaceOrder(ctx, principal(ctx), stage(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func writeOrders(w http.ResponseWriter, orders []order.Order) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, orders, encodeOrder) })
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	orders, err := h.orders.ListForUser(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), p, r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context(), principal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOrders(w, orders)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := readObject(r, func(d *jx.Decoder, key string) error {
		if key != "method" {
			return d.Skip()
		}
		var err error
		raw, err = d.Str()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	method, err := payment.ParseMethod(raw)
	if err != nil {
		h.fail(w, r, badRequestf(err.Error()))
		return
	}
	ctx := r.Context()
	pay, err := h.payments.Create(ctx, principal(ctx), r.PathValue("orderID"), method)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePayment(e, pay) })
}

// processPayment answers 200 for a successful charge, including one whose
// follow-up needs reconciliation, and 402 for a declined one.
func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.payments.Process(ctx, principal(ctx), stage(ctx), r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Outcome == payment.OutcomeFailed {
		code = http.StatusPaymentRequired
	}
	writeJSON(w, code, func(e *jx.Encoder) { encodeResult(e, res) })
}

func (h *Handler) adminReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.payments.Reconcile(ctx, principal(ctx), r.PathValue("orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeResult(e, res) })
}

func (h *Handler) paymentHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := caller(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.payments.History(ctx, principal(ctx))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeList(e, payments, encodePayment) })
}

func encodeResult(e *jx.Encoder, res *payment.Result) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("outcome", func(e *jx.Encoder) { e.Str(string(res.Outcome)) })
		if res.Payment != nil {
			e.Field("payment", func(e *jx.Encoder) { encodePayment(e, res.Payment) })
		}
		if res.Order != nil {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, res.Order) })
		}
		e.Field("shipment", func(e *jx.Encoder) { encodeShipment(e, res.Shipment) })
		if res.FollowUpErr != nil {
			e.Field("follow_up_error", func(e *jx.Encoder) { e.Str(res.FollowUpErr.Error()) })
		}
	})
}
