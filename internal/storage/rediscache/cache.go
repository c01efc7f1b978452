// Package rediscache provides a read-through Redis cache for coupon
// definitions.
package rediscache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	keyPrefix    = "coupon:v1:"
	automaticKey = keyPrefix + "automatic"
)

// Client is the subset of redis.Cmdable the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ coupon.Repository = (*Repository)(nil)

// Repository caches coupon definitions in front of another coupon.Repository.
// Usage counters always go to the underlying repository; they change on
// every commit and must be read fresh. Redis failures degrade to the
// underlying repository.
type Repository struct {
	next   coupon.Repository
	client Client
	ttl    time.Duration
}

// New wraps next with a cache whose entries expire after ttl.
func New(next coupon.Repository, client Client, ttl time.Duration) *Repository {
	return &Repository{next: next, client: client, ttl: ttl}
}

// FindByCode implements coupon.Repository.
func (r *Repository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	key := keyPrefix + "code:" + coupon.NormalizeCode(code)
	return r.one(ctx, key, func() (*coupon.Coupon, error) {
		return r.next.FindByCode(ctx, code)
	})
}

// FindByID implements coupon.Repository.
func (r *Repository) FindByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	key := keyPrefix + "id:" + strconv.FormatInt(id, 10)
	return r.one(ctx, key, func() (*coupon.Coupon, error) {
		return r.next.FindByID(ctx, id)
	})
}

// ListAutomatic implements coupon.Repository.
func (r *Repository) ListAutomatic(ctx context.Context) ([]coupon.Coupon, error) {
	if data, ok := r.get(ctx, automaticKey); ok {
		list, err := decodeList(data)
		if err == nil {
			return list, nil
		}
		r.warn(ctx, "Decode cached automatic discounts", automaticKey, err)
	}

	list, err := r.next.ListAutomatic(ctx)
	if err != nil {
		return nil, err
	}
	r.set(ctx, automaticKey, encodeList(list))
	return list, nil
}

// CountUsage implements coupon.Repository. It is never cached.
func (r *Repository) CountUsage(ctx context.Context, couponID int64) (int, error) {
	return r.next.CountUsage(ctx, couponID)
}

// CountUsageByCustomer implements coupon.Repository. It is never cached.
func (r *Repository) CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error) {
	return r.next.CountUsageByCustomer(ctx, couponID, customerID)
}

// Invalidate drops the cached definitions of c and the automatic discount
// list.
func (r *Repository) Invalidate(ctx context.Context, c *coupon.Coupon) error {
	keys := []string{automaticKey, keyPrefix + "id:" + strconv.FormatInt(c.ID, 10)}
	if c.Code != "" {
		keys = append(keys, keyPrefix+"code:"+coupon.NormalizeCode(c.Code))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate coupon")
	}
	return nil
}

func (r *Repository) one(ctx context.Context, key string, load func() (*coupon.Coupon, error)) (*coupon.Coupon, error) {
	if data, ok := r.get(ctx, key); ok {
		c, err := codec.DecodeCoupon(data)
		if err == nil {
			return c, nil
		}
		r.warn(ctx, "Decode cached coupon", key, err)
	}

	c, err := load()
	if err != nil {
		// Misses are not cached so a newly created code is visible at once.
		return nil, err
	}
	r.set(ctx, key, codec.EncodeCoupon(c))
	return c, nil
}

func (r *Repository) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, redis.Nil):
		return nil, false
	default:
		r.warn(ctx, "Read coupon cache", key, err)
		return nil, false
	}
}

func (r *Repository) set(ctx context.Context, key string, data []byte) {
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.warn(ctx, "Write coupon cache", key, err)
	}
}

func (r *Repository) warn(ctx context.Context, msg, key string, err error) {
	zctx.From(ctx).Warn(msg, zap.String("key", key), zap.Error(err))
}

func encodeList(list []coupon.Coupon) []byte {
	var e jx.Encoder
	e.ArrStart()
	for i := range list {
		e.Raw(codec.EncodeCoupon(&list[i]))
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeList(data []byte) ([]coupon.Coupon, error) {
	list := []coupon.Coupon{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		c, err := codec.DecodeCoupon(raw)
		if err != nil {
			return err
		}
		list = append(list, *c)
		return nil
	})
	return list, err
}
