// Command seed-db loads products, coupons, customer groups, carts and an API
// key from a YAML fixture file.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/storage/postgres"
	"github.com/xenking/coupon-engine/internal/storage/rediscache"
)

type options struct {
	databaseURL  string
	redisURL     string
	fixturesFile string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.redisURL, "redis-url", "", "Redis URL; cached coupons are invalidated after saving (or REDIS_URL env)")
	flag.StringVar(&opts.fixturesFile, "fixtures", "db/seed/fixtures.yaml", "path to the YAML fixture file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed with all scopes (or COUPON_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or COUPON_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.redisURL == "" {
		opts.redisURL = os.Getenv("REDIS_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("COUPON_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("COUPON_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	f, err := os.Open(opts.fixturesFile)
	if err != nil {
		return errors.Wrap(err, "open fixtures")
	}
	fx, err := loadFixtures(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed products")
	}
	saved, err := seedCoupons(ctx, pool, fx)
	if err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedGroups(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed customer groups")
	}
	if err := seedCarts(ctx, pool, fx); err != nil {
		return errors.Wrap(err, "seed carts")
	}
	if opts.apiKey != "" {
		if err := seedAPIKey(ctx, pool, opts.apiKey, opts.apiKeyPepper); err != nil {
			return errors.Wrap(err, "seed api key")
		}
	}
	if opts.redisURL != "" {
		if err := invalidate(ctx, pool, opts.redisURL, saved); err != nil {
			return errors.Wrap(err, "invalidate cache")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, fx *fixtures) error {
	repo := postgres.NewProductRepository(pool)

	slog.Info("upserting products", slog.Int("count", len(fx.Products)))

	for _, p := range fx.Products {
		if err := repo.Upsert(ctx, p.product()); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

// seedCoupons saves every fixture coupon. Automatic discounts have no code to
// upsert on, so one whose description already exists is skipped.
func seedCoupons(ctx context.Context, pool *pgxpool.Pool, fx *fixtures) ([]*coupon.Coupon, error) {
	repo := postgres.NewCouponRepository(pool)

	existing, err := repo.ListAutomatic(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list automatic discounts")
	}
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Description] = true
	}

	var saved []*coupon.Coupon
	for i, cf := range fx.Coupons {
		c, err := cf.coupon()
		if err != nil {
			return nil, errors.Wrapf(err, "coupon #%d", i+1)
		}
		if c.IsAutomatic && seen[c.Description] {
			slog.Info("automatic discount exists, skipping", slog.String("description", c.Description))
			continue
		}
		if err := repo.Save(ctx, c); err != nil {
			return nil, err
		}
		saved = append(saved, c)
		slog.Info("saved coupon",
			slog.Int64("id", c.ID),
			slog.String("code", c.Code),
			slog.String("rule", string(c.RuleType())),
		)
	}
	return saved, nil
}

func seedGroups(ctx context.Context, pool *pgxpool.Pool, fx *fixtures) error {
	repo := postgres.NewCustomerRepository(pool)
	for group, customers := range fx.Groups {
		for _, customerID := range customers {
			if err := repo.AddToGroup(ctx, customerID, group); err != nil {
				return errors.Wrapf(err, "add %s to %s", customerID, group)
			}
		}
		slog.Info("seeded customer group", slog.String("group", group), slog.Int("members", len(customers)))
	}
	return nil
}

func seedCarts(ctx context.Context, pool *pgxpool.Pool, fx *fixtures) error {
	repo := postgres.NewCartRepository(pool)
	for _, cf := range fx.Carts {
		if err := repo.Put(ctx, cf.cart()); err != nil {
			return errors.Wrapf(err, "put cart %s", cf.ID)
		}
		slog.Info("seeded cart", slog.String("id", cf.ID), slog.Int("items", len(cf.Items)))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "Default operations key",
		Scopes:  []string{auth.ScopeCommitUsage, auth.ScopeReadUsage},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", info.ID), slog.String("name", info.Name))
	return nil
}

// invalidate drops cached copies of the saved coupons so running servers pick
// up the new definitions before their TTL expires.
func invalidate(ctx context.Context, pool *pgxpool.Pool, redisURL string, saved []*coupon.Coupon) error {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(ropts)
	defer func() { _ = rdb.Close() }()

	cache := rediscache.New(postgres.NewCouponRepository(pool), rdb, time.Minute)
	for _, c := range saved {
		if err := cache.Invalidate(ctx, c); err != nil {
			return err
		}
	}
	slog.Info("invalidated cached coupons", slog.Int("count", len(saved)))
	return nil
}
