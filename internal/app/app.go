// Package app wires the coupon engine API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
	"github.com/xenking/coupon-engine/internal/handler"
	"github.com/xenking/coupon-engine/internal/storage/postgres"
	"github.com/xenking/coupon-engine/internal/storage/rediscache"
	"github.com/xenking/coupon-engine/pkg/health"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed out by go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PostgresCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis url")
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	}

	// Repositories.
	couponRepo := postgres.NewCouponRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	var coupons coupon.Repository = couponRepo
	if rdb != nil {
		coupons = rediscache.New(couponRepo, rdb, cfg.CacheTTL)
		lg.Info("Coupon cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}

	// Domain services.
	ledger, err := coupon.NewLedger(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create ledger")
	}
	couponSvc := coupon.NewService(coupons, customerRepo, m.TracerProvider())
	cartSvc := cart.NewService(cartRepo, productRepo, couponSvc)
	orderSvc := order.NewService(productRepo, cartRepo, couponSvc, coupons, ledger, postgres.NewStore(pool))

	apiLimit := newLimiter(ctx, rdb, "ratelimit:api:", cfg.RateLimit.Max, cfg.RateLimit.Window)
	validateLimit := newLimiter(ctx, rdb, "ratelimit:validate:", cfg.RateLimit.ValidateMax, cfg.RateLimit.ValidateWindow)

	h := handler.New(handler.Config{
		Coupons:  couponSvc,
		Carts:    cartSvc,
		Orders:   orderSvc,
		Usage:    couponRepo,
		Products: productRepo,
		APIKeys:  apikeyRepo,
		Pepper:   []byte(cfg.APIKeyPepper),
		ValidateLimit: httpmiddleware.RateLimit(validateLimit, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.ValidateMax,
			Window: cfg.RateLimit.ValidateWindow,
		}),
	})
	api := httpmiddleware.Wrap(h.Router(httpmiddleware.LogRequests()),
		httpmiddleware.RateLimit(apiLimit, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", api)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("coupon-api", m),
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

// newLimiter returns a Redis token bucket shared by all replicas when Redis
// is configured, and an in-process sliding window otherwise.
func newLimiter(ctx context.Context, rdb *redis.Client, prefix string, limit int, window time.Duration) httpmiddleware.Limiter {
	if rdb != nil {
		return httpmiddleware.NewRedisTokenBucket(rdb, prefix, limit, window)
	}
	sw := httpmiddleware.NewSlidingWindow(limit, window)
	go sw.RunCleanup(ctx)
	return sw
}
