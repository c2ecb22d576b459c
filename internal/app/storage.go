package app

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/auth"
	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/domain/uow"
	"github.com/xenking/storefront-fulfillment/internal/domain/user"
	"github.com/xenking/storefront-fulfillment/internal/memstore"
	"github.com/xenking/storefront-fulfillment/internal/repository"
	"github.com/xenking/storefront-fulfillment/internal/seed"
	"github.com/xenking/storefront-fulfillment/pkg/health"
)

type userStore interface {
	user.Repository
	seed.Users
}

type apiKeyStore interface {
	auth.Repository
	seed.APIKeys
}

type productStore interface {
	product.Repository
	seed.Products
}

// storage is one persistence backend behind the domain interfaces.
type storage struct {
	tx        uow.Runner
	users     userStore
	apiKeys   apiKeyStore
	products  productStore
	carts     cart.Repository
	coupons   coupon.Repository
	orders    order.Repository
	payments  payment.Repository
	shipments shipment.Repository

	// ping is nil for backends without a connection to probe.
	ping  health.Pinger
	close func()
}

func (s *storage) seedStore() seed.Store {
	return seed.Store{Users: s.users, APIKeys: s.apiKeys, Products: s.products, Coupons: s.coupons}
}

func openPostgres(ctx context.Context, url string) (*storage, error) {
	pool, err := repository.NewPool(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	db := repository.NewDB(pool)
	return &storage{
		tx:        db,
		users:     repository.NewUserRepository(db),
		apiKeys:   repository.NewAPIKeyRepository(db),
		products:  repository.NewProductRepository(db),
		carts:     repository.NewCartRepository(db),
		coupons:   repository.NewCouponRepository(db),
		orders:    repository.NewOrderRepository(db),
		payments:  repository.NewPaymentRepository(db),
		shipments: repository.NewShipmentRepository(db),
		ping:      pool,
		close:     pool.Close,
	}, nil
}

func openMemory() *storage {
	s := memstore.New()
	return &storage{
		tx:        s,
		users:     s.Users(),
		apiKeys:   s.APIKeys(),
		products:  s.Products(),
		carts:     s.Carts(),
		coupons:   s.Coupons(),
		orders:    s.Orders(),
		payments:  s.Payments(),
		shipments: s.Shipments(),
		close:     func() {},
	}
}
