package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PostgresCheck pings the pool.
func PostgresCheck(pool *pgxpool.Pool) CheckFunc {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping postgres")
		}
		return nil
	}
}

// Pinger is implemented by *redis.Client and redis.UniversalClient.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisCheck pings Redis.
func RedisCheck(client Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		return nil
	}
}
