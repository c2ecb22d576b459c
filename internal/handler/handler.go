// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/checkout"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/session"
	"github.com/xenking/storefront-fulfillment/pkg/httpmiddleware"
)

// Deps are the domain services behind the HTTP surface.
type Deps struct {
	Products  product.Repository
	Carts     *cart.Service
	Ledger    *coupon.Ledger
	Checkout  *checkout.Service
	Orders    *order.Service
	Payments  *payment.Processor
	Shipments *shipment.Workflow
}

// Handler serves the storefront API.
type Handler struct {
	products  product.Repository
	carts     *cart.Service
	ledger    *coupon.Ledger
	checkout  *checkout.Service
	orders    *order.Service
	payments  *payment.Processor
	shipments *shipment.Workflow
}

// New creates a Handler.
func New(d Deps) *Handler {
	return &Handler{
		products:  d.Products,
		carts:     d.Carts,
		ledger:    d.Ledger,
		checkout:  d.Checkout,
		orders:    d.Orders,
		payments:  d.Payments,
		shipments: d.Shipments,
	}
}

// Register adds the API routes to mux. payLimit guards payment processing.
func (h *Handler) Register(mux *http.ServeMux, payLimit httpmiddleware.Middleware) {
	handle := func(pattern string, fn http.HandlerFunc, mws ...httpmiddleware.Middleware) {
		mws = slices.DeleteFunc(mws, func(m httpmiddleware.Middleware) bool { return m == nil })
		mux.Handle(pattern, httpmiddleware.Wrap(fn, mws...))
	}

	handle("GET /api/products", h.listProducts)

	handle("GET /api/cart", h.getCart)
	handle("DELETE /api/cart", h.clearCart)
	handle("POST /api/cart/items", h.addCartItem)
	handle("PUT /api/cart/items/{productID}", h.updateCartItem)
	handle("DELETE /api/cart/items/{productID}", h.removeCartItem)

	handle("GET /api/coupons", h.listMyCoupons)
	handle("POST /api/coupons/{couponID}/apply", h.applyCoupon)
	handle("DELETE /api/coupons/applied", h.unstageCoupon)

	handle("GET /api/checkout", h.previewCheckout)
	handle("POST /api/orders", h.placeOrder)
	handle("GET /api/orders", h.listMyOrders)
	handle("GET /api/orders/{orderID}", h.getOrder)
	handle("POST /api/orders/{orderID}/payment", h.createPayment)
	handle("POST /api/orders/{orderID}/payment/process", h.processPayment, payLimit)
	handle("GET /api/orders/{orderID}/shipment", h.orderShipment)
	handle("GET /api/payments", h.paymentHistory)
	handle("GET /api/shipments", h.myShipments)

	handle("GET /api/admin/coupons", h.adminListCoupons)
	handle("POST /api/admin/coupons", h.adminCreateCoupon)
	handle("PUT /api/admin/coupons/{couponID}", h.adminUpdateCoupon)
	handle("DELETE /api/admin/coupons/{couponID}", h.adminDeleteCoupon)
	handle("POST /api/admin/coupons/{couponID}/assignments", h.adminAssignCoupon)
	handle("GET /api/admin/orders", h.adminListOrders)
	handle("POST /api/admin/orders/{orderID}/reconcile", h.adminReconcile)
	handle("GET /api/admin/shipments", h.adminListShipments)
	handle("POST /api/admin/shipments/{shipmentID}/assign", h.adminAssignShipment)

	handle("GET /api/staff/shipments", h.staffListShipments)
	handle("POST /api/staff/shipments/{shipmentID}/ship", h.staffShip)
	handle("POST /api/staff/shipments/{shipmentID}/deliver", h.staffDeliver)
	handle("PUT /api/staff/shipments/{shipmentID}/carrier", h.staffUpdateCarrier)
}

// principal returns the caller, or the zero principal for anonymous
// requests. Domain operations reject the zero principal.
func principal(ctx context.Context) auth.Principal {
	p, _ := auth.PrincipalFrom(ctx)
	return p
}

// caller is principal for operations that take a bare user id.
func caller(ctx context.Context) (auth.Principal, error) {
	p := principal(ctx)
	if p.UserID == 0 {
		return p, auth.ErrUnauthorized
	}
	return p, nil
}

// stage returns the caller's session staging.
func stage(ctx context.Context) coupon.Staging {
	if s := session.From(ctx); s != nil {
		return s
	}
	return &coupon.MemoryStaging{}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeList(e, products, func(e *jx.Encoder, p *product.Product) { encodeProduct(e, *p) })
	})
}
