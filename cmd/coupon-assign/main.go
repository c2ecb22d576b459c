package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-fulfillment/internal/repository"
)

func main() {
	var (
		databaseURL string
		couponID    int64
		cfg         config
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&couponID, "coupon-id", 0, "coupon to assign")
	flag.IntVar(&cfg.batchSize, "batch-size", 5000, "user ids per INSERT")
	flag.UintVar(&cfg.expected, "expected", 10_000_000, "expected number of distinct user ids (bloom filter capacity)")
	flag.Float64Var(&cfg.fpr, "fpr", 0.001, "bloom filter false positive rate")
	flag.Usage = func() {
		slog.Info("usage: coupon-assign -coupon-id ID [flags] users1.gz [users2.gz ...]")
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.files = flag.Args()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if couponID <= 0 {
		slog.Error("coupon id is required: set --coupon-id")
		os.Exit(1)
	}
	if len(cfg.files) == 0 {
		slog.Error("at least one gzip'd user id file is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponID, cfg); err != nil {
		slog.Error("coupon assign failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon assign completed successfully")
}

func run(ctx context.Context, databaseURL string, couponID int64, cfg config) error {
	for _, f := range cfg.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := repository.NewCouponRepository(repository.NewDB(pool))
	c, err := coupons.GetByID(ctx, couponID)
	if err != nil {
		return errors.Wrapf(err, "get coupon %d", couponID)
	}
	slog.Info("assigning coupon",
		slog.String("code", c.Code),
		slog.Int64("coupon_id", couponID),
		slog.Int("files", len(cfg.files)),
	)

	st, err := assign(ctx, cfg, func(ctx context.Context, ids []int64) (int64, error) {
		return coupons.AssignMany(ctx, couponID, ids)
	})
	if err != nil {
		return err
	}

	slog.Info("assignment summary",
		slog.Uint64("read", st.read),
		slog.Uint64("unique", st.unique),
		slog.Uint64("rechecked", st.rechecked),
		slog.Int64("assigned", st.assigned),
	)
	return nil
}
