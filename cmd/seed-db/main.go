package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/domain/product"
	"github.com/xenking/storefront-fulfillment/internal/handler"
	"github.com/xenking/storefront-fulfillment/internal/repository"
	"github.com/xenking/storefront-fulfillment/internal/seed"
)

type options struct {
	databaseURL  string
	productsFile string
	pepper       string
	adminKey     string
	staffKey     string
	customerKey  string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "optional path to a products JSON file replacing the demo catalog")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.StringVar(&opts.adminKey, "admin-key", "", "API key of the demo admin (or STORE_SEED_ADMIN_KEY env)")
	flag.StringVar(&opts.staffKey, "staff-key", "", "API key of the demo staff member (or STORE_SEED_STAFF_KEY env)")
	flag.StringVar(&opts.customerKey, "customer-key", "", "API key of the demo customer (or STORE_SEED_CUSTOMER_KEY env)")
	flag.Parse()

	fromEnv(&opts.databaseURL, "STORE_DATABASE_URL")
	fromEnv(&opts.databaseURL, "DATABASE_URL")
	fromEnv(&opts.pepper, "STORE_API_KEY_PEPPER")
	fromEnv(&opts.adminKey, "STORE_SEED_ADMIN_KEY")
	fromEnv(&opts.staffKey, "STORE_SEED_STAFF_KEY")
	fromEnv(&opts.customerKey, "STORE_SEED_CUSTOMER_KEY")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.pepper == "" && (opts.adminKey != "" || opts.staffKey != "" || opts.customerKey != "") {
		slog.Error("API key pepper is required to seed keys: set --api-key-pepper or STORE_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func fromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	var catalog []product.Product
	if opts.productsFile != "" {
		slog.Info("reading products file", slog.String("path", opts.productsFile))
		f, err := os.Open(opts.productsFile)
		if err != nil {
			return errors.Wrap(err, "open products file")
		}
		defer func() { _ = f.Close() }()
		if catalog, err = seed.LoadProducts(f); err != nil {
			return err
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := repository.NewDB(pool)
	pepper := []byte(opts.pepper)
	res, err := seed.Demo(ctx, seed.Store{
		Users:    repository.NewUserRepository(db),
		APIKeys:  repository.NewAPIKeyRepository(db),
		Products: repository.NewProductRepository(db),
		Coupons:  repository.NewCouponRepository(db),
	}, seed.Options{
		Accounts: seed.DefaultAccounts(opts.adminKey, opts.staffKey, opts.customerKey),
		Products: catalog,
		Hash:     func(key string) string { return handler.HashAPIKey(pepper, key) },
	})
	if err != nil {
		return err
	}

	for email, id := range res.Users {
		slog.Info("seeded user", slog.String("email", email), slog.Int64("id", id))
	}
	for code, id := range res.Coupons {
		slog.Info("seeded coupon", slog.String("code", code), slog.Int64("id", id))
	}
	return nil
}
