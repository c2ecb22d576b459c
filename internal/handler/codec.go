package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, code int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// readObject decodes a JSON object body field by field. An empty body is
// treated as an empty object.
func readObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(body) > maxBodyBytes {
		return badRequestf("request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var bad *badRequest
		if errors.As(err, &bad) {
			return bad
		}
		return badRequestf("malformed JSON body")
	}
	return nil
}

// decodeText reads a string or a number as text.
func decodeText(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	case jx.Null:
		return "", d.Null()
	default:
		return "", badRequestf("expected string or number")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func optTimestamp(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	timestamp(e, *t)
}

func optInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
	})
}

func encodeApplied(e *jx.Encoder, c *cart.AppliedCoupon) {
	if c == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_percent", func(e *jx.Encoder) { e.Str(c.Percent.String()) })
	})
}

// encodeCart writes the cart with its pricing. couponErr, when set, is the
// reason a staged coupon was dropped.
func encodeCart(e *jx.Encoder, c *cart.Cart, p cart.Pricing, couponErr error) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range p.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unit_price", func(e *jx.Encoder) { money(e, l.UnitPrice) })
						e.Field("line_total", func(e *jx.Encoder) { money(e, l.LineTotal) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, p.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, p.Discount) })
		e.Field("grand_total", func(e *jx.Encoder) { money(e, p.GrandTotal) })
		e.Field("coupon", func(e *jx.Encoder) { encodeApplied(e, p.Coupon) })
		if couponErr != nil {
			e.Field("coupon_error", func(e *jx.Encoder) { e.Str(couponErr.Error()) })
		}
	})
}

func encodeCoupon(e *jx.Encoder, c coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
		e.Field("discount_percent", func(e *jx.Encoder) { e.Str(c.DiscountPercent.String()) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("valid_from", func(e *jx.Encoder) { timestamp(e, c.ValidFrom) })
		e.Field("valid_to", func(e *jx.Encoder) { timestamp(e, c.ValidTo) })
		e.Field("usage_limit", func(e *jx.Encoder) { e.Int(c.UsageLimit) })
		e.Field("used_count", func(e *jx.Encoder) { e.Int(c.UsedCount) })
	})
}

func encodeStaged(e *jx.Encoder, s *coupon.Staged) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(s.CouponID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(s.Code) })
		e.Field("discount_percent", func(e *jx.Encoder) { e.Str(s.DiscountPercent.String()) })
		e.Field("applied_at", func(e *jx.Encoder) { timestamp(e, s.AppliedAt) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { money(e, it.Price) })
						e.Field("line_total", func(e *jx.Encoder) { money(e, it.LineTotal()) })
					})
				}
			})
		})
		e.Field("subtotal", func(e *jx.Encoder) { money(e, o.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount) })
		e.Field("total_amount", func(e *jx.Encoder) { money(e, o.TotalAmount) })
		e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		e.Field("is_paid", func(e *jx.Encoder) { e.Bool(o.IsPaid) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(p.OrderID) })
		e.Field("amount", func(e *jx.Encoder) { money(e, p.Amount) })
		e.Field("method", func(e *jx.Encoder) { e.Str(p.Method.String()) })
		e.Field("status", func(e *jx.Encoder) { e.Str(p.Status.String()) })
		e.Field("transaction_id", func(e *jx.Encoder) {
			if p.TransactionID == "" {
				e.Null()
				return
			}
			e.Str(p.TransactionID)
		})
		e.Field("gateway", func(e *jx.Encoder) { e.Str(p.Meta.Gateway) })
		e.Field("attempts", func(e *jx.Encoder) { e.Int(len(p.Meta.Attempts) + 1) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, p.CreatedAt) })
	})
}

func encodeAddress(e *jx.Encoder, a user.AddressSnapshot) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("full_name", func(e *jx.Encoder) { e.Str(a.FullName) })
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
	})
}

func encodeShipment(e *jx.Encoder, s *shipment.Shipment) {
	if s == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(s.ID) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(s.OrderID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Int64(s.CustomerID) })
		e.Field("address", func(e *jx.Encoder) { encodeAddress(e, s.Address) })
		e.Field("assigned_staff_id", func(e *jx.Encoder) { optInt64(e, s.AssignedStaffID) })
		e.Field("tracking_number", func(e *jx.Encoder) { e.Str(s.TrackingNumber) })
		e.Field("carrier", func(e *jx.Encoder) { e.Str(s.Carrier) })
		e.Field("status", func(e *jx.Encoder) { e.Str(s.Status.String()) })
		e.Field("assigned_at", func(e *jx.Encoder) { optTimestamp(e, s.AssignedAt) })
		e.Field("shipped_at", func(e *jx.Encoder) { optTimestamp(e, s.ShippedAt) })
		e.Field("delivered_at", func(e *jx.Encoder) { optTimestamp(e, s.DeliveredAt) })
		e.Field("created_at", func(e *jx.Encoder) { timestamp(e, s.CreatedAt) })
	})
}

func encodeList[T any](e *jx.Encoder, items []T, fn func(e *jx.Encoder, v *T)) {
	e.Arr(func(e *jx.Encoder) {
		for i := range items {
			fn(e, &items[i])
		}
	})
}
