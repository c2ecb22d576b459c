package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Staged is a coupon tentatively selected for the caller's next checkout.
type Staged struct {
	CouponID        int64
	Code            string
	DiscountPercent decimal.Decimal
	AppliedAt       time.Time
}

// Staging is the caller-owned, non-authoritative store for the staged coupon.
type Staging interface {
	StagedCoupon() (Staged, bool)
	StageCoupon(s Staged)
	ClearCoupon()
}

// MemoryStaging is a Staging held in a plain value.
type MemoryStaging struct {
	staged *Staged
}

// StagedCoupon implements Staging.
func (m *MemoryStaging) StagedCoupon() (Staged, bool) {
	if m.staged == nil {
		return Staged{}, false
	}
	return *m.staged, true
}

// StageCoupon implements Staging.
func (m *MemoryStaging) StageCoupon(s Staged) {
	m.staged = &s
}

// ClearCoupon implements Staging.
func (m *MemoryStaging) ClearCoupon() {
	m.staged = nil
}
