// Package seed loads a demo catalog, accounts and coupons into a store.
package seed

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
)

// Users is the account storage the seeder writes to.
type Users interface {
	Create(ctx context.Context, u *user.User) error
	AddAddress(ctx context.Context, a *user.Address) error
	DefaultAddress(ctx context.Context, userID int64) (*user.Address, error)
}

// APIKeys stores hashed API keys.
type APIKeys interface {
	Put(ctx context.Context, k auth.APIKeyInfo) error
}

// Products stores catalog entries.
type Products interface {
	Put(ctx context.Context, p product.Product) error
}

// Coupons is the subset of coupon storage the seeder needs.
type Coupons interface {
	List(ctx context.Context) ([]coupon.Coupon, error)
	Create(ctx context.Context, c *coupon.Coupon) error
	Assign(ctx context.Context, a coupon.Assignment) (bool, error)
}

// Store groups the seeded repositories.
type Store struct {
	Users    Users
	APIKeys  APIKeys
	Products Products
	Coupons  Coupons
}

// Account is a demo user and the plaintext API key issued to it. Accounts
// with an empty Key get no API key.
type Account struct {
	Email string
	Name  string
	Role  auth.Role
	Key   string
}

// Options controls what Demo writes.
type Options struct {
	Accounts []Account
	// Products replaces the built-in catalog when non-empty.
	Products []product.Product
	// Hash derives the stored hash of an API key.
	Hash func(key string) string
	Now  func() time.Time
}

// Result reports the IDs of seeded records.
type Result struct {
	Users   map[string]int64
	Coupons map[string]int64
}

// Catalog is the built-in demo product list.
var Catalog = []product.Product{
	{ID: "1", Name: "Waffle with Berries", Price: decimal.RequireFromString("6.50"), Category: "Waffle", Active: true},
	{ID: "2", Name: "Vanilla Bean Crème Brûlée", Price: decimal.RequireFromString("7.00"), Category: "Crème Brûlée", Active: true},
	{ID: "3", Name: "Macaron Mix of Five", Price: decimal.RequireFromString("8.00"), Category: "Macaron", Active: true},
	{ID: "4", Name: "Classic Tiramisu", Price: decimal.RequireFromString("5.50"), Category: "Tiramisu", Active: true},
	{ID: "5", Name: "Pistachio Baklava", Price: decimal.RequireFromString("4.00"), Category: "Baklava", Active: true},
	{ID: "6", Name: "Lemon Meringue Pie", Price: decimal.RequireFromString("5.00"), Category: "Pie", Active: true},
}

type demoCoupon struct {
	code        string
	description string
	percent     int64
	limit       int
	validFor    time.Duration
}

var demoCoupons = []demoCoupon{
	{code: "WELCOME10", description: "Welcome: 10% off your order", percent: 10, limit: 1000, validFor: 90 * 24 * time.Hour},
	{code: "FLASH25", description: "Flash sale: 25% off", percent: 25, limit: 5, validFor: 7 * 24 * time.Hour},
}

// DefaultAccounts returns the demo admin, staff and customer accounts with
// the given API keys.
func DefaultAccounts(adminKey, staffKey, customerKey string) []Account {
	return []Account{
		{Email: "admin@example.com", Name: "Admin", Role: auth.RoleAdmin, Key: adminKey},
		{Email: "staff@example.com", Name: "Warehouse Staff", Role: auth.RoleStaff, Key: staffKey},
		{Email: "customer@example.com", Name: "Demo Customer", Role: auth.RoleCustomer, Key: customerKey},
	}
}

// Demo writes products, accounts with API keys, a default address for every
// customer and demo coupons assigned to every customer. It is safe to run
// repeatedly against the same store.
func Demo(ctx context.Context, st Store, opts Options) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	catalog := opts.Products
	if len(catalog) == 0 {
		catalog = Catalog
	}
	for _, p := range catalog {
		if err := st.Products.Put(ctx, p); err != nil {
			return nil, errors.Wrapf(err, "put product %s", p.ID)
		}
	}

	res := &Result{Users: map[string]int64{}, Coupons: map[string]int64{}}
	var customers []int64
	for _, a := range opts.Accounts {
		id, err := seedAccount(ctx, st, opts, a)
		if err != nil {
			return nil, err
		}
		res.Users[a.Email] = id
		if a.Role == auth.RoleCustomer {
			customers = append(customers, id)
		}
	}

	existing, err := st.Coupons.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	byCode := make(map[string]int64, len(existing))
	for _, c := range existing {
		byCode[strings.ToUpper(c.Code)] = c.ID
	}
	now := opts.Now()
	for _, dc := range demoCoupons {
		id, ok := byCode[dc.code]
		if !ok {
			c := &coupon.Coupon{
				Code:            dc.code,
				Description:     dc.description,
				DiscountPercent: decimal.NewFromInt(dc.percent),
				Active:          true,
				ValidFrom:       now.Add(-time.Hour),
				ValidTo:         now.Add(dc.validFor),
				UsageLimit:      dc.limit,
				CreatedAt:       now,
			}
			if err := st.Coupons.Create(ctx, c); err != nil {
				return nil, errors.Wrapf(err, "create coupon %s", dc.code)
			}
			id = c.ID
		}
		res.Coupons[dc.code] = id
		for _, uid := range customers {
			if _, err := st.Coupons.Assign(ctx, coupon.Assignment{CouponID: id, UserID: uid, AssignedAt: now}); err != nil {
				return nil, errors.Wrapf(err, "assign coupon %s", dc.code)
			}
		}
	}
	return res, nil
}

func seedAccount(ctx context.Context, st Store, opts Options, a Account) (int64, error) {
	u := &user.User{Email: a.Email, Name: a.Name, Role: a.Role}
	if err := st.Users.Create(ctx, u); err != nil {
		return 0, errors.Wrapf(err, "create user %s", a.Email)
	}
	if a.Key != "" && opts.Hash != nil {
		if err := st.APIKeys.Put(ctx, auth.APIKeyInfo{
			ID:      string(a.Role) + "-demo",
			KeyHash: opts.Hash(a.Key),
			Name:    a.Name + " key",
			UserID:  u.ID,
			Role:    a.Role,
		}); err != nil {
			return 0, errors.Wrapf(err, "put api key for %s", a.Email)
		}
	}
	if a.Role != auth.RoleCustomer {
		return u.ID, nil
	}

	_, err := st.Users.DefaultAddress(ctx, u.ID)
	switch {
	case err == nil:
		return u.ID, nil
	case !errors.Is(err, user.ErrNoDefaultAddress):
		return 0, errors.Wrapf(err, "get address of %s", a.Email)
	}
	if err := st.Users.AddAddress(ctx, &user.Address{
		UserID:     u.ID,
		FullName:   a.Name,
		Line1:      "221B Baker Street",
		City:       "London",
		PostalCode: "NW1 6XE",
		Country:    "GB",
		IsDefault:  true,
	}); err != nil {
		return 0, errors.Wrapf(err, "add address for %s", a.Email)
	}
	return u.ID, nil
}

// LoadProducts decodes a JSON array of {"id","name","price","category"}
// objects. Prices may be strings or numbers.
func LoadProducts(r io.Reader) ([]product.Product, error) {
	d := jx.Decode(r, 4096)
	var out []product.Product
	err := d.Arr(func(d *jx.Decoder) error {
		p := product.Product{Active: true}
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				v, err := d.Str()
				p.ID = v
				return err
			case "name":
				v, err := d.Str()
				p.Name = v
				return err
			case "category":
				v, err := d.Str()
				p.Category = v
				return err
			case "price":
				raw, err := d.Raw()
				if err != nil {
					return err
				}
				price, err := decimal.NewFromString(strings.Trim(raw.String(), `"`))
				if err != nil {
					return errors.Wrapf(err, "parse price of %q", p.ID)
				}
				p.Price = price
				return nil
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		if p.ID == "" {
			return errors.New("product without id")
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}
