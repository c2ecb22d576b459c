package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-fulfillment/internal/domain/cart"
	"github.com/xenking/storefront-fulfillment/internal/domain/checkout"
	"github.com/xenking/storefront-fulfillment/internal/domain/coupon"
	"github.com/xenking/storefront-fulfillment/internal/domain/order"
	"github.com/xenking/storefront-fulfillment/internal/domain/payment"
	"github.com/xenking/storefront-fulfillment/internal/domain/shipment"
	"github.com/xenking/storefront-fulfillment/internal/handler"
	"github.com/xenking/storefront-fulfillment/internal/seed"
	"github.com/xenking/storefront-fulfillment/internal/session"
	"github.com/xenking/storefront-fulfillment/pkg/health"
	"github.com/xenking/storefront-fulfillment/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("payment_mode", cfg.Payment.Mode),
	)
	pepper := []byte(cfg.APIKeyPepper)

	var st *storage
	switch cfg.Storage.Driver {
	case DriverMemory:
		st = openMemory()
		if _, err := seed.Demo(ctx, st.seedStore(), seed.Options{
			Accounts: seed.DefaultAccounts(cfg.Demo.AdminKey, cfg.Demo.StaffKey, cfg.Demo.CustomerKey),
			Hash:     func(key string) string { return handler.HashAPIKey(pepper, key) },
		}); err != nil {
			return errors.Wrap(err, "seed demo data")
		}
		lg.Warn("Using in-memory storage, data is lost on exit")
	default:
		var err error
		if st, err = openPostgres(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	}
	defer st.close()

	// Domain services.
	carts := cart.NewService(st.carts, st.products)
	ledger := coupon.NewLedger(st.tx, st.coupons, st.users)
	orders := order.NewService(st.tx, st.orders, st.carts)
	workflow, err := shipment.NewWorkflow(st.tx, st.shipments, st.users,
		shipment.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create shipment workflow")
	}
	processor, err := payment.NewProcessor(payment.Deps{
		Tx:        st.tx,
		Payments:  st.payments,
		Orders:    st.orders,
		Coupons:   ledger,
		Addresses: st.users,
		Shipments: workflow,
		Gateway:   newGateway(cfg.Payment),
	},
		payment.WithTracerProvider(m.TracerProvider()),
		payment.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create payment processor")
	}

	// Health check service.
	healthSvc := health.New()
	if st.ping != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(st.ping))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddInfoCheck("unreconciled_orders", 5*time.Second, health.BacklogCheck(
		"unreconciled paid orders", cfg.Reconcile.Grace,
		func(ctx context.Context, before time.Time) (int, error) {
			list, err := st.orders.ListUnfulfilled(ctx, before)
			return len(list), err
		},
	))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	if cfg.Reconcile.Interval > 0 {
		r := &reconciler{orders: st.orders, proc: processor, grace: cfg.Reconcile.Grace, now: time.Now}
		go r.run(zctx.Base(ctx, lg.Named("reconciler")), cfg.Reconcile.Interval)
	}

	// HTTP handlers.
	sessions, err := session.NewManager(session.Config{
		Secret:     []byte(cfg.Session.Secret),
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	})
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}
	authn := handler.NewAuthenticator(st.apiKeys, pepper)
	h := handler.New(handler.Deps{
		Products:  st.products,
		Carts:     carts,
		Ledger:    ledger,
		Checkout:  checkout.NewService(carts, ledger, orders),
		Orders:    orders,
		Payments:  processor,
		Shipments: workflow,
	})

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.PaymentMax,
		Window:  cfg.RateLimit.Window,
		KeyFunc: handler.PrincipalKey(httpmiddleware.ClientIP),
	}))
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10*time.Second + cfg.Payment.Delay,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
			authn.Middleware,
			sessions.Middleware,
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newGateway(cfg PaymentConfig) payment.Gateway {
	if cfg.Mode == PaymentDeterministic {
		return payment.AlwaysApprove(cfg.Delay)
	}
	return payment.Weighted(cfg.Delay, cfg.SuccessWeight, cfg.FailureWeight, nil)
}
