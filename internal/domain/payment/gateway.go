package payment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SimulatedGatewayName is recorded in payment metadata for simulated charges.
const SimulatedGatewayName = "Z-PAY-DUMMY"

// Charge is a request to the gateway.
type Charge struct {
	OrderID string
	Amount  decimal.Decimal
	Method  Method
}

// Decision is the gateway's answer to a Charge.
type Decision struct {
	Approved      bool
	TransactionID string
	Gateway       string
}

// Gateway authorizes charges.
type Gateway interface {
	Authorize(ctx context.Context, c Charge) (Decision, error)
}

// NewTransactionID returns a globally unique gateway transaction id.
func NewTransactionID() string {
	return "ZPAY-" + uuid.New().String()
}

// Simulated is a stand-in gateway that waits for a fixed delay and then
// draws an outcome.
type Simulated struct {
	delay time.Duration
	draw  func() bool
}

// AlwaysApprove returns a gateway that approves every charge after delay.
func AlwaysApprove(delay time.Duration) *Simulated {
	return &Simulated{delay: delay, draw: func() bool { return true }}
}

// Weighted returns a gateway that approves a charge with probability
// success/(success+failure). A nil rng uses a process-wide random source.
func Weighted(delay time.Duration, success, failure int, rng *rand.Rand) *Simulated {
	total := success + failure
	if total <= 0 {
		success, total = 1, 1
	}
	if rng == nil {
		return &Simulated{delay: delay, draw: func() bool { return rand.IntN(total) < success }}
	}
	var mu sync.Mutex
	return &Simulated{delay: delay, draw: func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.IntN(total) < success
	}}
}

// Authorize implements Gateway. It blocks for the configured delay or until
// ctx is done.
func (g *Simulated) Authorize(ctx context.Context, _ Charge) (Decision, error) {
	if g.delay > 0 {
		t := time.NewTimer(g.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-t.C:
		}
	}
	return Decision{
		Approved:      g.draw(),
		TransactionID: NewTransactionID(),
		Gateway:       SimulatedGatewayName,
	}, nil
}
