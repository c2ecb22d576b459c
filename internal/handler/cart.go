package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Cart) {
	pricing, err := h.carts.Price(r.Context(), c, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, c, pricing, nil) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.Get(r.Context(), p.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err == nil {
		err = h.carts.Clear(r.Context(), p.UserID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readQuantity(r *http.Request, productID *string) (int, error) {
	qty := 0
	err := readObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			if productID == nil {
				return d.Skip()
			}
			*productID, err = decodeText(d)
		case "quantity":
			qty, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return qty, err
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var productID string
	qty, err := readQuantity(r, &productID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if productID == "" {
		h.fail(w, r, badRequestf("product_id is required"))
		return
	}
	c, err := h.carts.AddItem(r.Context(), p.UserID, productID, qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qty, err := readQuantity(r, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.UpdateItem(r.Context(), p.UserID, r.PathValue("productID"), qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	p, err := caller(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), p.UserID, r.PathValue("productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCart(w, r, c)
}
