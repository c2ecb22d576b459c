package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is anything with a connectivity probe, such as *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// BacklogCheck fails when count reports any items older than age.
func BacklogCheck(what string, age time.Duration, count func(ctx context.Context, before time.Time) (int, error)) CheckFunc {
	return func(ctx context.Context) error {
		n, err := count(ctx, time.Now().Add(-age))
		if err != nil {
			return errors.Wrapf(err, "count %s", what)
		}
		if n > 0 {
			return errors.Errorf("%d %s older than %s", n, what, age)
		}
		return nil
	}
}
