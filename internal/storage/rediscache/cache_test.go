package rediscache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = value.([]byte)
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

type countingRepo struct {
	coupons   map[string]*coupon.Coupon
	automatic []coupon.Coupon
	usage     int
	calls     map[string]int
}

func (r *countingRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	r.calls["code"]++
	c, ok := r.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (r *countingRepo) FindByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	r.calls["id"]++
	for _, c := range r.coupons {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *countingRepo) ListAutomatic(ctx context.Context) ([]coupon.Coupon, error) {
	r.calls["automatic"]++
	return r.automatic, nil
}

func (r *countingRepo) CountUsage(ctx context.Context, couponID int64) (int, error) {
	r.calls["usage"]++
	return r.usage, nil
}

func (r *countingRepo) CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error) {
	r.calls["usage"]++
	return r.usage, nil
}

func newRepo() *countingRepo {
	return &countingRepo{
		coupons: map[string]*coupon.Coupon{
			"SAVE10": {
				ID:       1,
				Code:     "SAVE10",
				IsActive: true,
				Kind:     coupon.KindPercentage,
				Rule:     coupon.SimpleRule{Value: decimal.NewFromInt(10)},
			},
		},
		automatic: []coupon.Coupon{
			{ID: 2, IsActive: true, IsAutomatic: true, Kind: coupon.KindFreeShipping, Rule: coupon.SimpleRule{}},
			{ID: 3, IsActive: true, IsAutomatic: true, Kind: coupon.KindFixed, Rule: coupon.SimpleRule{Value: decimal.NewFromInt(5)}},
		},
		calls: map[string]int{},
	}
}

func TestFindByCode_ReadThrough(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	first, err := cache.FindByCode(ctx, " save10 ")
	require.NoError(t, err)
	second, err := cache.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls["code"])
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, decimal.NewFromInt(10).Equal(second.Rule.(coupon.SimpleRule).Value))
	assert.Equal(t, time.Minute, rdb.ttl[keyPrefix+"code:SAVE10"])
}

func TestFindByCode_MissIsNotCached(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	_, err := cache.FindByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	next.coupons["NOPE"] = &coupon.Coupon{ID: 9, Code: "NOPE", Rule: coupon.SimpleRule{}}
	c, err := cache.FindByCode(ctx, "NOPE")
	require.NoError(t, err)
	assert.Equal(t, int64(9), c.ID)
	assert.Equal(t, 2, next.calls["code"])
}

func TestFindByID_ReadThrough(t *testing.T) {
	ctx := context.Background()
	next := newRepo()
	cache := New(next, newFakeRedis(), time.Minute)

	for range 3 {
		c, err := cache.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", c.Code)
	}
	assert.Equal(t, 1, next.calls["id"])
}

func TestListAutomatic_ReadThrough(t *testing.T) {
	ctx := context.Background()
	next := newRepo()
	cache := New(next, newFakeRedis(), time.Minute)

	_, err := cache.ListAutomatic(ctx)
	require.NoError(t, err)
	list, err := cache.ListAutomatic(ctx)
	require.NoError(t, err)

	require.Len(t, list, 2)
	assert.Equal(t, coupon.KindFreeShipping, list[0].Kind)
	assert.True(t, decimal.NewFromInt(5).Equal(list[1].Rule.(coupon.SimpleRule).Value))
	assert.Equal(t, 1, next.calls["automatic"])
}

func TestUsageCountsBypassCache(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	next.usage = 1
	n, err := cache.CountUsage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	next.usage = 2
	n, err = cache.CountUsageByCustomer(ctx, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 2, next.calls["usage"])
	assert.Empty(t, rdb.data)
}

func TestRedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	c, err := cache.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)

	list, err := cache.ListAutomatic(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCorruptEntryIsReloaded(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	rdb.data[keyPrefix+"code:SAVE10"] = []byte(`{"id":`)
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	c, err := cache.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, 1, next.calls["code"])
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := newRepo()
	cache := New(next, rdb, time.Minute)

	_, err := cache.FindByCode(ctx, "SAVE10")
	require.NoError(t, err)
	_, err = cache.FindByID(ctx, 1)
	require.NoError(t, err)
	_, err = cache.ListAutomatic(ctx)
	require.NoError(t, err)
	require.Len(t, rdb.data, 3)

	require.NoError(t, cache.Invalidate(ctx, next.coupons["SAVE10"]))
	assert.Empty(t, rdb.data)
}
