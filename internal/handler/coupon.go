package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
)

func (h *Handler) listMyCoupons(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	coupons, err := h.ledger.AssignedTo(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCoupons(w, coupons)
}

func writeCoupons(w http.ResponseWriter, coupons []coupon.Coupon) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeList(e, coupons, func(e *jx.Encoder, c *coupon.Coupon) { encodeCoupon(e, *c) })
	})
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, ok := pathID(r, "couponID")
	if !ok {
		h.fail(w, r, &coupon.Error{Reason: coupon.ReasonNotFound})
		return
	}
	staged, err := h.ledger.Apply(r.Context(), p.UserID, id, stage(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeStaged(e, staged) })
}

func (h *Handler) unstageCoupon(w http.ResponseWriter, r *http.Request) {
	if _, err := caller(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ledger.Unstage(stage(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func readCouponParams(r *http.Request) (coupon.Params, error) {
	var p coupon.Params
	err := readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			p.Code, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "discount_percent":
			p.DiscountPercent, err = decodeText(d)
		case "valid_from":
			p.ValidFrom, err = d.Str()
		case "valid_to":
			p.ValidTo, err = d.Str()
		case "usage_limit":
			p.UsageLimit, err = d.Int()
		case "active":
			var v bool
			v, err = d.Bool()
			p.Active = &v
		default:
			err = d.Skip()
		}
		return err
	})
	return p, err
}

func (h *Handler) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.ledger.List(r.Context(), principal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeCoupons(w, coupons)
}

func (h *Handler) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	params, err := readCouponParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.ledger.Create(r.Context(), principal(r.Context()), params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

func (h *Handler) adminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "couponID")
	if !ok {
		h.fail(w, r, coupon.ErrNotFound)
		return
	}
	params, err := readCouponParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.ledger.Update(r.Context(), principal(r.Context()), id, params)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCoupon(e, *c) })
}

func (h *Handler) adminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "couponID")
	if !ok {
		h.fail(w, r, coupon.ErrNotFound)
		return
	}
	if err := h.ledger.Delete(r.Context(), principal(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminAssignCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "couponID")
	if !ok {
		h.fail(w, r, coupon.ErrNotFound)
		return
	}
	var userID int64
	err := readObject(r, func(d *jx.Decoder, key string) error {
		if key != "user_id" {
			return d.Skip()
		}
		var err error
		userID, err = d.Int64()
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if userID <= 0 {
		h.fail(w, r, badRequestf("user_id is required"))
		return
	}
	created, err := h.ledger.Assign(r.Context(), principal(r.Context()), id, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("user_id", func(e *jx.Encoder) { e.Int64(userID) })
			e.Field("created", func(e *jx.Encoder) { e.Bool(created) })
		})
	})
}
