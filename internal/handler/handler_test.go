package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/checkout"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
	"github.com/xenking/storefront-fulfillment/internal/handler"
	"github.com/xenking/storefront-fulfillment/internal/memstore"
	"github.com/xenking/storefront-fulfillment/internal/session"
	"github.com/xenking/storefront-fulfillment/pkg/httpmiddleware"
)

var pepper = []byte("test-pepper")

type server struct {
	*httptest.Server
	store    *memstore.Store
	couponID int64
	staffID  int64
}

// client is an API caller with its own cookie jar.
type client struct {
	t   *testing.T
	s   *server
	key string
	hc  *http.Client
}

func newServer(t *testing.T, gw payment.Gateway, payMax int) *server {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	mkUser := func(email string, role auth.Role, key string) int64 {
		u := &user.User{Email: email, Role: role}
		require.NoError(t, s.Users().Create(ctx, u))
		require.NoError(t, s.APIKeys().Put(ctx, auth.APIKeyInfo{
			ID: "key-" + key, KeyHash: handler.HashAPIKey(pepper, key), Name: key, UserID: u.ID, Role: role,
		}))
		return u.ID
	}
	mkUser("admin@example.com", auth.RoleAdmin, "admin-key")
	staffID := mkUser("staff@example.com", auth.RoleStaff, "staff-key")
	customerID := mkUser("ada@example.com", auth.RoleCustomer, "customer-key")
	mkUser("bob@example.com", auth.RoleCustomer, "other-key")

	require.NoError(t, s.Users().AddAddress(ctx, &user.Address{
		UserID: customerID, FullName: "Ada", Line1: "1 Main St", City: "Springfield", Country: "US", IsDefault: true,
	}))
	require.NoError(t, s.Products().Put(ctx, product.Product{ID: "1", Name: "Waffle", Price: decimal.RequireFromString("50.00"), Active: true}))
	require.NoError(t, s.Products().Put(ctx, product.Product{ID: "2", Name: "Tea", Price: decimal.RequireFromString("6.50"), Active: true}))

	c := &coupon.Coupon{
		Code:            "SAVE10",
		DiscountPercent: decimal.NewFromInt(10),
		Active:          true,
		ValidFrom:       time.Now().Add(-time.Hour),
		ValidTo:         time.Now().Add(time.Hour),
		UsageLimit:      10,
	}
	require.NoError(t, s.Coupons().Create(ctx, c))
	_, err := s.Coupons().Assign(ctx, coupon.Assignment{CouponID: c.ID, UserID: customerID})
	require.NoError(t, err)

	ledger := coupon.NewLedger(s, s.Coupons(), s.Users())
	carts := cart.NewService(s.Carts(), s.Products())
	orders := order.NewService(s, s.Orders(), s.Carts())
	wf, err := shipment.NewWorkflow(s, s.Shipments(), s.Users())
	require.NoError(t, err)
	proc, err := payment.NewProcessor(payment.Deps{
		Tx:        s,
		Payments:  s.Payments(),
		Orders:    s.Orders(),
		Coupons:   ledger,
		Addresses: s.Users(),
		Shipments: wf,
		Gateway:   gw,
	})
	require.NoError(t, err)

	h := handler.New(handler.Deps{
		Products:  s.Products(),
		Carts:     carts,
		Ledger:    ledger,
		Checkout:  checkout.NewService(carts, ledger, orders),
		Orders:    orders,
		Payments:  proc,
		Shipments: wf,
	})
	sessions, err := session.NewManager(session.Config{Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux, httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Max:     payMax,
		Window:  time.Minute,
		KeyFunc: handler.PrincipalKey(httpmiddleware.ClientIP),
	}))
	authn := handler.NewAuthenticator(s.APIKeys(), pepper)
	srv := httptest.NewServer(httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		authn.Middleware,
		sessions.Middleware,
	))
	t.Cleanup(srv.Close)
	return &server{Server: srv, store: s, couponID: c.ID, staffID: staffID}
}

func (s *server) client(t *testing.T, key string) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, s: s, key: key, hc: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.s.URL+path, rd)
	require.NoError(c.t, err)
	if c.key != "" {
		req.Header.Set(handler.APIKeyHeader, c.key)
	}
	resp, err := c.hc.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	} else if len(raw) > 0 {
		var list []any
		require.NoError(c.t, json.Unmarshal(raw, &list))
		out["items"] = list
	}
	return resp.StatusCode, out
}

func TestAuthentication(t *testing.T) {
	s := newServer(t, payment.AlwaysApprove(0), 10)

	code, body := s.client(t, "").do(http.MethodGet, "/api/cart", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "authentication required", body["message"])

	code, body = s.client(t, "wrong").do(http.MethodGet, "/api/cart", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid api key", body["message"])

	code, body = s.client(t, "").do(http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 2)

	anon := s.client(t, "")
	for _, path := range []string{"/api/orders/x/payment", "/api/orders/x/payment/process"} {
		code, body = anon.do(http.MethodPost, path, `{"method":"ZPAY"}`)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "authentication required", body["message"], path)
	}
	code, _ = anon.do(http.MethodGet, "/api/payments", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCheckoutToDelivery(t *testing.T) {
	s := newServer(t, payment.AlwaysApprove(0), 10)
	customer := s.client(t, "customer-key")
	admin := s.client(t, "admin-key")
	staff := s.client(t, "staff-key")

	code, body := customer.do(http.MethodPost, "/api/cart/items", `{"product_id":"1","quantity":2}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "100.00", body["grand_total"])

	code, body = customer.do(http.MethodPost, "/api/coupons/"+itoa(s.couponID)+"/apply", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "SAVE10", body["code"])

	code, body = customer.do(http.MethodGet, "/api/checkout", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "10.00", body["discount"])
	assert.Equal(t, "90.00", body["grand_total"])

	code, body = customer.do(http.MethodPost, "/api/orders", "")
	require.Equal(t, http.StatusCreated, code, body)
	orderID := body["id"].(string)
	assert.Equal(t, "90.00", body["total_amount"])
	assert.Equal(t, "SAVE10", body["coupon_code"])

	code, body = customer.do(http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["items"])

	code, body = customer.do(http.MethodPost, "/api/orders/"+orderID+"/payment", `{"method":"ZPAY"}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "INITIATED", body["status"])

	code, body = customer.do(http.MethodPost, "/api/orders/"+orderID+"/payment/process", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "paid", body["outcome"])
	ship := body["shipment"].(map[string]any)
	assert.Equal(t, "PENDING_ASSIGNMENT", ship["status"])
	shipmentID := itoa(int64(ship["id"].(float64)))

	code, body = customer.do(http.MethodPost, "/api/orders/"+orderID+"/payment/process", "")
	assert.Equal(t, http.StatusConflict, code, body)

	code, body = customer.do(http.MethodGet, "/api/payments", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = staff.do(http.MethodPost, "/api/staff/shipments/"+shipmentID+"/ship", "")
	assert.Equal(t, http.StatusForbidden, code, body)

	code, body = admin.do(http.MethodPost, "/api/admin/shipments/"+shipmentID+"/assign", `{"staff_id":`+itoa(s.staffID)+`}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ASSIGNED", body["status"])
	assert.True(t, strings.HasPrefix(body["tracking_number"].(string), "ZN"))

	code, body = staff.do(http.MethodPut, "/api/staff/shipments/"+shipmentID+"/carrier", `{"carrier":"DHL"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "DHL", body["carrier"])

	code, body = staff.do(http.MethodPost, "/api/staff/shipments/"+shipmentID+"/deliver", "")
	assert.Equal(t, http.StatusConflict, code, body)

	for _, step := range []string{"ship", "deliver"} {
		code, body = staff.do(http.MethodPost, "/api/staff/shipments/"+shipmentID+"/"+step, "")
		require.Equal(t, http.StatusOK, code, body)
	}

	code, body = customer.do(http.MethodGet, "/api/orders/"+orderID+"/shipment", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "DELIVERED", body["status"])

	code, _ = s.client(t, "other-key").do(http.MethodGet, "/api/orders/"+orderID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProcess_Declined(t *testing.T) {
	s := newServer(t, payment.Weighted(0, 0, 1, nil), 10)
	customer := s.client(t, "customer-key")

	code, _ := customer.do(http.MethodPost, "/api/cart/items", `{"product_id":"2","quantity":1}`)
	require.Equal(t, http.StatusOK, code)
	code, body := customer.do(http.MethodPost, "/api/orders", "")
	require.Equal(t, http.StatusCreated, code)
	orderID := body["id"].(string)

	code, _ = customer.do(http.MethodPost, "/api/orders/"+orderID+"/payment", "")
	require.Equal(t, http.StatusCreated, code)
	code, body = customer.do(http.MethodPost, "/api/orders/"+orderID+"/payment/process", "")
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "failed", body["outcome"])
	assert.Nil(t, body["shipment"])

	code, body = customer.do(http.MethodGet, "/api/orders/"+orderID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_paid"])
	assert.Equal(t, "failed", body["payment_status"])
}

func TestPaymentRateLimit(t *testing.T) {
	s := newServer(t, payment.AlwaysApprove(0), 1)
	customer := s.client(t, "customer-key")

	code, _ := customer.do(http.MethodPost, "/api/orders/missing/payment/process", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = customer.do(http.MethodPost, "/api/orders/missing/payment/process", "")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Limits are per principal.
	code, _ = s.client(t, "other-key").do(http.MethodPost, "/api/orders/missing/payment/process", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRejections(t *testing.T) {
	s := newServer(t, payment.AlwaysApprove(0), 10)
	customer := s.client(t, "customer-key")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
		field  string
		want   string
	}{
		{name: "admin only", method: http.MethodGet, path: "/api/admin/orders", code: http.StatusForbidden},
		{name: "empty cart", method: http.MethodPost, path: "/api/orders", code: http.StatusUnprocessableEntity, field: "message", want: "Cart is empty."},
		{name: "zero quantity", method: http.MethodPost, path: "/api/cart/items", body: `{"product_id":"1","quantity":0}`, code: http.StatusUnprocessableEntity},
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/items", body: `{"product_id":"nope","quantity":1}`, code: http.StatusUnprocessableEntity},
		{name: "malformed body", method: http.MethodPost, path: "/api/cart/items", body: `{"product_id":`, code: http.StatusBadRequest},
		{name: "unknown coupon", method: http.MethodPost, path: "/api/coupons/999/apply", code: http.StatusUnprocessableEntity, field: "reason", want: "not_found"},
		{name: "missing line", method: http.MethodDelete, path: "/api/cart/items/1", code: http.StatusNotFound},
		{name: "cod unsupported", method: http.MethodPost, path: "/api/orders/x/payment", body: `{"method":"COD"}`, code: http.StatusUnprocessableEntity},
		{name: "unknown method", method: http.MethodPost, path: "/api/orders/x/payment", body: `{"method":"CASH"}`, code: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := customer.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, code, body)
			if tt.field != "" {
				assert.Equal(t, tt.want, body[tt.field])
			}
		})
	}
}

func TestAdminCoupons(t *testing.T) {
	s := newServer(t, payment.AlwaysApprove(0), 10)
	admin := s.client(t, "admin-key")

	code, body := admin.do(http.MethodPost, "/api/admin/coupons",
		`{"code":"SPRING","discount_percent":12.5,"valid_from":"2026-03-01 09:00","valid_to":"2026-03-31 5PM","usage_limit":3}`)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "12.5", body["discount_percent"])
	assert.Equal(t, true, body["active"])
	id := itoa(int64(body["id"].(float64)))

	code, body = admin.do(http.MethodPost, "/api/admin/coupons",
		`{"code":"spring","discount_percent":"5","valid_from":"2026-03-01 00:00","valid_to":"2026-03-02 00:00","usage_limit":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "code", body["field"])

	code, body = admin.do(http.MethodPost, "/api/admin/coupons/"+id+"/assignments", `{"user_id":`+itoa(s.staffID)+`}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code, body)

	code, body = admin.do(http.MethodGet, "/api/admin/coupons", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 2)

	code, _ = admin.do(http.MethodDelete, "/api/admin/coupons/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = admin.do(http.MethodDelete, "/api/admin/coupons/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
