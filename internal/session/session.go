// Package session keeps the staged coupon in a signed cookie.
//
// The cookie holds an HS256 token bound to the authenticated user. A token
// that fails verification, has expired, or belongs to another user is
// treated as an empty session.
package session

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
)

// Config configures a Manager.
type Config struct {
	Secret     []byte
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager loads and stores sessions.
type Manager struct {
	cfg Config
	now func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "storefront_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Manager{cfg: cfg, now: time.Now}, nil
}

type stagedClaim struct {
	CouponID  int64  `json:"coupon_id"`
	Code      string `json:"code"`
	Percent   string `json:"discount_percent"`
	AppliedAt int64  `json:"applied_at"`
}

type claims struct {
	jwt.RegisteredClaims
	Coupon *stagedClaim `json:"coupon,omitempty"`
}

// Session is the per-request session state. It implements coupon.Staging.
type Session struct {
	userID   int64
	staged   *coupon.Staged
	modified bool
}

var _ coupon.Staging = (*Session)(nil)

// StagedCoupon implements coupon.Staging.
func (s *Session) StagedCoupon() (coupon.Staged, bool) {
	if s.staged == nil {
		return coupon.Staged{}, false
	}
	return *s.staged, true
}

// StageCoupon implements coupon.Staging.
func (s *Session) StageCoupon(c coupon.Staged) {
	s.staged = &c
	s.modified = true
}

// ClearCoupon implements coupon.Staging.
func (s *Session) ClearCoupon() {
	if s.staged != nil {
		s.staged = nil
		s.modified = true
	}
}

// Modified reports whether the session must be written back.
func (s *Session) Modified() bool {
	return s.modified
}

// Load reads the session of userID from r.
func (m *Manager) Load(r *http.Request, userID int64) *Session {
	s := &Session{userID: userID}
	ck, err := r.Cookie(m.cfg.CookieName)
	if err != nil || ck.Value == "" {
		return s
	}
	staged, err := m.parse(ck.Value, userID)
	if err != nil {
		// An unreadable cookie is replaced on the next write.
		s.modified = true
		return s
	}
	s.staged = staged
	return s
}

func (m *Manager) parse(token string, userID int64) (*coupon.Staged, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(strconv.FormatInt(userID, 10)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, errors.Wrap(err, "parse session token")
	}
	if c.Coupon == nil {
		return nil, nil
	}
	pct, err := decimal.NewFromString(c.Coupon.Percent)
	if err != nil {
		return nil, errors.Wrap(err, "parse discount percent")
	}
	return &coupon.Staged{
		CouponID:        c.Coupon.CouponID,
		Code:            c.Coupon.Code,
		DiscountPercent: pct,
		AppliedAt:       time.Unix(c.Coupon.AppliedAt, 0).UTC(),
	}, nil
}

// Token signs the session state.
func (m *Manager) Token(s *Session) (string, error) {
	now := m.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(s.userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
		},
	}
	if s.staged != nil {
		c.Coupon = &stagedClaim{
			CouponID:  s.staged.CouponID,
			Code:      s.staged.Code,
			Percent:   s.staged.DiscountPercent.String(),
			AppliedAt: s.staged.AppliedAt.Unix(),
		}
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.cfg.Secret)
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}
	return token, nil
}

// Save writes the session cookie if the session was modified. A session
// without a staged coupon expires the cookie.
func (m *Manager) Save(w http.ResponseWriter, s *Session) error {
	if !s.modified {
		return nil
	}
	ck := &http.Cookie{
		Name:     m.cfg.CookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.staged == nil {
		ck.MaxAge = -1
	} else {
		token, err := m.Token(s)
		if err != nil {
			return err
		}
		ck.Value = token
		ck.MaxAge = int(m.cfg.TTL.Seconds())
	}
	http.SetCookie(w, ck)
	s.modified = false
	return nil
}

type sessionKey struct{}

// With stores s in ctx.
func With(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// From returns the session stored in ctx, or an empty detached session.
func From(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKey{}).(*Session); ok {
		return s
	}
	return &Session{}
}
