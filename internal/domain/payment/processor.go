package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// Outcome summarizes a Process call.
type Outcome string

const (
	// OutcomeFailed means the gateway declined; the order stays unpaid.
	OutcomeFailed Outcome = "failed"
	// OutcomePaid means the payment succeeded and every follow-up step
	// (coupon consumption, shipment creation) completed.
	OutcomePaid Outcome = "paid"
	// OutcomeNeedsReconciliation means the payment succeeded and is durable
	// but a follow-up step failed; FollowUpErr says which.
	OutcomeNeedsReconciliation Outcome = "paid_needs_reconciliation"
)

// Result is the two-phase outcome of processing a payment.
type Result struct {
	Outcome     Outcome
	Payment     *Payment
	Order       *order.Order
	Shipment    *shipment.Shipment
	FollowUpErr error
}

// CouponConsumer records coupon usage.
type CouponConsumer interface {
	MarkUsed(ctx context.Context, userID, couponID int64, orderID string) (bool, error)
}

// AddressBook resolves default shipping addresses.
type AddressBook interface {
	DefaultAddress(ctx context.Context, userID int64) (*user.Address, error)
}

// ShipmentCreator creates the shipment of a paid order.
type ShipmentCreator interface {
	CreateAfterPayment(ctx context.Context, o *order.Order, addr user.AddressSnapshot) (*shipment.Shipment, error)
}

// Processor runs checkout payments.
type Processor struct {
	tx        uow.Runner
	payments  Repository
	orders    order.Repository
	coupons   CouponConsumer
	addresses AddressBook
	shipments ShipmentCreator
	gateway   Gateway
	now       func() time.Time

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// Option configures a Processor.
type Option func(*Processor) error

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Processor) error {
		p.tracer = tp.Tracer("storefront/payment")
		return nil
	}
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) error {
		c, err := mp.Meter("storefront/payment").Int64Counter("storefront.payment.outcomes",
			metric.WithDescription("Processed payments by outcome"),
		)
		if err != nil {
			return errors.Wrap(err, "create outcomes counter")
		}
		p.outcomes = c
		return nil
	}
}

// Deps groups the collaborators of a Processor.
type Deps struct {
	Tx        uow.Runner
	Payments  Repository
	Orders    order.Repository
	Coupons   CouponConsumer
	Addresses AddressBook
	Shipments ShipmentCreator
	Gateway   Gateway
}

// NewProcessor creates a Processor.
func NewProcessor(d Deps, opts ...Option) (*Processor, error) {
	p := &Processor{
		tx:        d.Tx,
		payments:  d.Payments,
		orders:    d.Orders,
		coupons:   d.Coupons,
		addresses: d.Addresses,
		shipments: d.Shipments,
		gateway:   d.Gateway,
		now:       time.Now,
	}
	opts = append([]Option{
		WithTracerProvider(otel.GetTracerProvider()),
		WithMeterProvider(otel.GetMeterProvider()),
	}, opts...)
	for _, o := range opts {
		if err := o(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Processor) ownedOrder(ctx context.Context, caller auth.Principal, orderID string, lock bool) (*order.Order, error) {
	get := p.orders.GetByID
	if lock {
		get = p.orders.GetByIDForUpdate
	}
	o, err := get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != caller.UserID {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// Create returns the order's payment, creating it INITIATED on first call.
// A FAILED payment is re-armed to INITIATED with the finished attempt kept in
// its metadata, so the order keeps a single payment row.
func (p *Processor) Create(ctx context.Context, caller auth.Principal, orderID string, method Method) (*Payment, error) {
	if caller.UserID == 0 {
		return nil, auth.ErrUnauthorized
	}
	if method != MethodZPay {
		return nil, errors.Wrapf(ErrMethodUnsupported, "%s", method)
	}

	var out *Payment
	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		o, err := p.ownedOrder(ctx, caller, orderID, true)
		if err != nil {
			return err
		}
		if o.IsPaid {
			return ErrAlreadyPaid
		}
		now := p.now()
		pay, created, err := p.payments.GetOrCreate(ctx, &Payment{
			OrderID: o.ID,
			UserID:  o.UserID,
			Amount:  o.TotalAmount,
			Method:  method,
			Status:  StatusInitiated,
			Meta: Meta{
				OrderID: o.ID,
				Method:  method.String(),
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "get or create payment")
		}
		out = pay
		if created {
			return nil
		}
		switch pay.Status {
		case StatusSuccess:
			return ErrAlreadyPaid
		case StatusFailed:
			pay.Meta.Attempts = append(pay.Meta.Attempts, Attempt{
				TransactionID: pay.TransactionID,
				Status:        pay.Status,
				At:            pay.UpdatedAt,
			})
			pay.Status = StatusInitiated
			pay.TransactionID = ""
			pay.Method = method
			pay.Meta.Method = method.String()
			pay.Amount = o.TotalAmount
			pay.UpdatedAt = now
			if err := p.payments.Update(ctx, pay); err != nil {
				return errors.Wrap(err, "rearm payment")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Process charges the order's INITIATED payment.
//
// The payment and order are settled in one transaction holding row locks on
// both, so concurrent calls for the same order serialize and only the first
// reaches the gateway. Coupon consumption and shipment creation then run as
// independent transactions; their failure leaves the payment SUCCESS and is
// reported as OutcomeNeedsReconciliation. The staged coupon is cleared on
// both success and decline.
func (p *Processor) Process(ctx context.Context, caller auth.Principal, stage coupon.Staging, orderID string) (_ *Result, rerr error) {
	ctx, span := p.tracer.Start(ctx, "payment.Process",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	if caller.UserID == 0 {
		return nil, auth.ErrUnauthorized
	}

	var (
		pay *Payment
		o   *order.Order
	)
	err := p.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = p.ownedOrder(ctx, caller, orderID, true)
		if err != nil {
			return err
		}
		if o.IsPaid {
			return ErrAlreadyPaid
		}
		pay, err = p.payments.GetByOrderIDForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if pay.Status != StatusInitiated {
			return errors.Wrapf(ErrFinalized, "status %s", pay.Status)
		}

		decision, err := p.gateway.Authorize(ctx, Charge{OrderID: o.ID, Amount: pay.Amount, Method: pay.Method})
		if err != nil {
			return errors.Wrap(err, "gateway")
		}

		now := p.now()
		pay.TransactionID = decision.TransactionID
		pay.Meta.OrderID = o.ID
		pay.Meta.Method = pay.Method.String()
		pay.Meta.Gateway = decision.Gateway
		pay.UpdatedAt = now
		if decision.Approved {
			pay.Status = StatusSuccess
		} else {
			pay.Status = StatusFailed
		}
		if err := p.payments.Update(ctx, pay); err != nil {
			return errors.Wrap(err, "update payment")
		}

		if decision.Approved {
			if err := p.orders.MarkPaid(ctx, o.ID, pay.ID); err != nil {
				return errors.Wrap(err, "mark order paid")
			}
			o.IsPaid = true
			o.PaymentStatus = order.PaymentPaid
			o.PaymentID = &pay.ID
		} else {
			if err := p.orders.MarkPaymentFailed(ctx, o.ID); err != nil {
				return errors.Wrap(err, "mark order payment failed")
			}
			o.PaymentStatus = order.PaymentFailed
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("order_id", o.ID),
		zap.String("transaction_id", pay.TransactionID),
	)

	if pay.Status == StatusFailed {
		stage.ClearCoupon()
		lg.Info("Payment declined")
		res := &Result{Outcome: OutcomeFailed, Payment: pay, Order: o}
		p.record(ctx, span, res)
		return res, nil
	}

	lg.Info("Payment succeeded", zap.String("amount", pay.Amount.StringFixed(2)))
	res := p.fulfill(ctx, o, pay)
	stage.ClearCoupon()
	p.record(ctx, span, res)
	return res, nil
}

// fulfill runs the follow-up steps of a paid order. Each step commits on its
// own and both are idempotent, so fulfill may be re-run for reconciliation.
func (p *Processor) fulfill(ctx context.Context, o *order.Order, pay *Payment) *Result {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	res := &Result{Outcome: OutcomePaid, Payment: pay, Order: o}

	if o.CouponID != nil {
		if _, err := p.coupons.MarkUsed(ctx, o.UserID, *o.CouponID, o.ID); err != nil {
			lg.Error("Coupon consumption failed", zap.Int64("coupon_id", *o.CouponID), zap.Error(err))
			res.Outcome = OutcomeNeedsReconciliation
			res.FollowUpErr = errors.Wrap(err, "mark coupon used")
		}
	}

	addr, err := p.addresses.DefaultAddress(ctx, o.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNoDefaultAddress) {
			err = ErrAddressMissing
		}
		lg.Warn("Shipment not created", zap.Error(err))
		res.Outcome = OutcomeNeedsReconciliation
		res.FollowUpErr = err
		return res
	}

	s, err := p.shipments.CreateAfterPayment(ctx, o, addr.Snapshot())
	if err != nil {
		lg.Error("Shipment creation failed", zap.Error(err))
		res.Outcome = OutcomeNeedsReconciliation
		res.FollowUpErr = errors.Wrap(err, "create shipment")
		return res
	}
	res.Shipment = s
	return res
}

func (p *Processor) record(ctx context.Context, span trace.Span, res *Result) {
	span.SetAttributes(attribute.String("payment.outcome", string(res.Outcome)))
	p.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
}

// Reconcile re-runs the follow-up steps of a paid order on behalf of an admin.
func (p *Processor) Reconcile(ctx context.Context, admin auth.Principal, orderID string) (*Result, error) {
	if err := auth.Require(admin, auth.RoleAdmin); err != nil {
		return nil, err
	}
	return p.ReconcileOrder(ctx, orderID)
}

// ReconcileOrder re-runs the follow-up steps of a paid order.
func (p *Processor) ReconcileOrder(ctx context.Context, orderID string) (*Result, error) {
	o, err := p.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsPaid {
		return nil, shipment.ErrOrderUnpaid
	}
	pay, err := p.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	res := p.fulfill(ctx, o, pay)
	p.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Bool("reconcile", true),
	))
	return res, nil
}

// History lists the caller's payments, newest first.
func (p *Processor) History(ctx context.Context, caller auth.Principal) ([]Payment, error) {
	if caller.UserID == 0 {
		return nil, auth.ErrUnauthorized
	}
	return p.payments.ListByUser(ctx, caller.UserID)
}
