package app

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
)

// unfulfilledLister finds paid orders without a shipment.
type unfulfilledLister interface {
	ListUnfulfilled(ctx context.Context, before time.Time) ([]order.Order, error)
}

// orderReconciler re-runs the follow-up of a paid order.
type orderReconciler interface {
	ReconcileOrder(ctx context.Context, orderID string) (*payment.Result, error)
}

// reconciler periodically completes paid orders whose follow-up failed.
type reconciler struct {
	orders unfulfilledLister
	proc   orderReconciler
	grace  time.Duration
	now    func() time.Time
}

// sweep reconciles every unfulfilled order older than the grace period and
// returns how many reached the paid outcome.
func (r *reconciler) sweep(ctx context.Context) (int, error) {
	lg := zctx.From(ctx)
	orders, err := r.orders.ListUnfulfilled(ctx, r.now().Add(-r.grace))
	if err != nil {
		return 0, err
	}
	done := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		res, err := r.proc.ReconcileOrder(ctx, o.ID)
		if err != nil {
			lg.Warn("Reconcile order", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		if res.Outcome != payment.OutcomePaid {
			lg.Warn("Order still needs reconciliation",
				zap.String("order_id", o.ID),
				zap.NamedError("follow_up", res.FollowUpErr),
			)
			continue
		}
		done++
	}
	if len(orders) > 0 {
		lg.Info("Reconciliation sweep", zap.Int("pending", len(orders)), zap.Int("reconciled", done))
	}
	return done, nil
}

// run sweeps every interval until ctx is done.
func (r *reconciler) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.sweep(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
