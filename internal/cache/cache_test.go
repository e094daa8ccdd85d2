package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// setupRedisCache creates a cache backed by a miniredis server.
func setupRedisCache(t *testing.T, config Config) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(RedisOptions{Addr: mr.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)

	rc := NewRedisCache(client, config, observability.NewNoopLogger(), nil)
	t.Cleanup(func() { _ = rc.Close() })

	return mr, rc
}

type rankedSlate struct {
	CandidateID string  `json:"candidate_id"`
	Score       float64 `json:"score"`
}

func TestRedisCacheGetSet(t *testing.T) {
	mr, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", "jd123", []byte(`{"v":1}`)))

	t.Run("Hit For Same Tenant", func(t *testing.T) {
		val, err := rc.Get(ctx, SearchResults, "tenant-a", "jd123")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), val)
	})

	t.Run("Miss For Other Tenant", func(t *testing.T) {
		_, err := rc.Get(ctx, SearchResults, "tenant-b", "jd123")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("Miss For Other Layer", func(t *testing.T) {
		_, err := rc.Get(ctx, RerankScores, "tenant-a", "jd123")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("Key Shape Is Tenant Scoped", func(t *testing.T) {
		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Equal(t, "hh:search:tenant-a:jd123", keys[0])
	})
}

func TestRedisCacheTTLJitter(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("Jittered Layer Spreads Within Twenty Percent", func(t *testing.T) {
		mr, rc := setupRedisCache(t, cfg)
		ctx := context.Background()

		rc.rng = func() float64 { return 0.0 } // factor 0.8
		require.NoError(t, rc.Set(ctx, SearchResults, "t1", "low", []byte("x")))
		assert.Equal(t, 480*time.Second, mr.TTL("hh:search:t1:low"))

		rc.rng = func() float64 { return 0.999999 } // factor just under 1.2
		require.NoError(t, rc.Set(ctx, SearchResults, "t1", "high", []byte("x")))
		ttl := mr.TTL("hh:search:t1:high")
		assert.GreaterOrEqual(t, ttl, 600*time.Second)
		assert.LessOrEqual(t, ttl, 720*time.Second)
	})

	t.Run("Specialty Layer Has Exact TTL", func(t *testing.T) {
		mr, rc := setupRedisCache(t, cfg)
		ctx := context.Background()

		rc.rng = func() float64 { return 0.999999 }
		require.NoError(t, rc.Set(ctx, SpecialtyLookup, "t1", "surgery", []byte("x")))
		assert.Equal(t, 86400*time.Second, mr.TTL("hh:specialty:t1:surgery"))
	})
}

func TestRedisCacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	mr, rc := setupRedisCache(t, cfg)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", "jd123", []byte("x")))
	assert.Empty(t, mr.Keys())

	_, err := rc.Get(ctx, SearchResults, "tenant-a", "jd123")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Equal(t, StatusDisabled, rc.Status(ctx))
}

func TestRedisCacheBackendFailureIsAbsorbed(t *testing.T) {
	mr, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", "jd123", []byte("x")))
	mr.Close()

	_, err := rc.Get(ctx, SearchResults, "tenant-a", "jd123")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", "jd456", []byte("y")))
	assert.NoError(t, rc.Delete(ctx, SearchResults, "tenant-a", "jd123"))
}

func TestRedisCacheCorruptEntryEvicted(t *testing.T) {
	mr, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, mr.Set("hh:rerank:tenant-a:deadbeef", "{not json"))

	var dest rankedSlate
	err := rc.GetJSON(ctx, RerankScores, "tenant-a", "deadbeef", &dest)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists("hh:rerank:tenant-a:deadbeef"))
}

func TestRedisCacheJSONRoundTrip(t *testing.T) {
	_, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	in := rankedSlate{CandidateID: "cand-1", Score: 0.92}
	require.NoError(t, rc.SetJSON(ctx, RerankScores, "tenant-a", "jd:docset", in))

	var out rankedSlate
	require.NoError(t, rc.GetJSON(ctx, RerankScores, "tenant-a", "jd:docset", &out))
	assert.Equal(t, in, out)
}

func TestInvalidateTenantLayer(t *testing.T) {
	mr, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", fmt.Sprintf("jd%d", i), []byte("x")))
	}
	require.NoError(t, rc.Set(ctx, RerankScores, "tenant-a", "jd0", []byte("x")))
	require.NoError(t, rc.Set(ctx, SearchResults, "tenant-b", "jd0", []byte("x")))

	count, err := rc.InvalidateTenantLayer(ctx, SearchResults, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Other tenants and other layers survive.
	assert.True(t, mr.Exists("hh:rerank:tenant-a:jd0"))
	assert.True(t, mr.Exists("hh:search:tenant-b:jd0"))
	for i := 0; i < 5; i++ {
		assert.False(t, mr.Exists(fmt.Sprintf("hh:search:tenant-a:jd%d", i)))
	}
}

func TestRedisCacheStats(t *testing.T) {
	_, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, SearchResults, "tenant-a", "jd123", []byte("x")))
	_, _ = rc.Get(ctx, SearchResults, "tenant-a", "jd123")
	_, _ = rc.Get(ctx, SearchResults, "tenant-a", "missing")
	_, _ = rc.Get(ctx, SearchResults, "tenant-a", "missing")

	stats := rc.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
}

func TestGetOrCompute(t *testing.T) {
	_, rc := setupRedisCache(t, DefaultConfig())
	ctx := context.Background()
	flight := NewFlight()

	var computes atomic.Int64
	compute := func(ctx context.Context) (rankedSlate, error) {
		computes.Add(1)
		return rankedSlate{CandidateID: "cand-9", Score: 0.5}, nil
	}

	t.Run("First Call Computes", func(t *testing.T) {
		val, hit, err := GetOrCompute(ctx, rc, flight, SearchResults, "tenant-a", "jd9", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "cand-9", val.CandidateID)
		assert.Equal(t, int64(1), computes.Load())
	})

	t.Run("Second Call Hits Cache", func(t *testing.T) {
		val, hit, err := GetOrCompute(ctx, rc, flight, SearchResults, "tenant-a", "jd9", compute)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "cand-9", val.CandidateID)
		assert.Equal(t, int64(1), computes.Load())
	})

	t.Run("Concurrent Callers Share One Compute", func(t *testing.T) {
		var slowComputes atomic.Int64
		slow := func(ctx context.Context) (rankedSlate, error) {
			slowComputes.Add(1)
			time.Sleep(50 * time.Millisecond)
			return rankedSlate{CandidateID: "cand-10"}, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := GetOrCompute(ctx, rc, flight, SearchResults, "tenant-a", "jd10", slow)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), slowComputes.Load())
	})

	t.Run("Compute Error Is Not Cached", func(t *testing.T) {
		boom := errors.New("backend down")
		_, _, err := GetOrCompute(ctx, rc, flight, SearchResults, "tenant-a", "jd11",
			func(ctx context.Context) (rankedSlate, error) { return rankedSlate{}, boom })
		assert.ErrorIs(t, err, boom)

		_, err = rc.Get(ctx, SearchResults, "tenant-a", "jd11")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestMultiLevelCache(t *testing.T) {
	mr, rc := setupRedisCache(t, DefaultConfig())
	mlc := NewMultiLevelCache(rc, DefaultConfig(), observability.NewNoopLogger())
	ctx := context.Background()

	t.Run("Local Tier Serves Specialty After Remote Loss", func(t *testing.T) {
		require.NoError(t, mlc.Set(ctx, SpecialtyLookup, "tenant-a", "cardio", []byte("cardiology")))

		mr.Del("hh:specialty:tenant-a:cardio")

		val, err := mlc.Get(ctx, SpecialtyLookup, "tenant-a", "cardio")
		require.NoError(t, err)
		assert.Equal(t, []byte("cardiology"), val)
	})

	t.Run("Non Local Layer Goes To Remote", func(t *testing.T) {
		require.NoError(t, mlc.Set(ctx, SearchResults, "tenant-a", "jd1", []byte("x")))

		mr.Del("hh:search:tenant-a:jd1")

		_, err := mlc.Get(ctx, SearchResults, "tenant-a", "jd1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("Invalidate Purges Local Tier", func(t *testing.T) {
		require.NoError(t, mlc.Set(ctx, SpecialtyLookup, "tenant-b", "ortho", []byte("orthopedics")))

		_, err := mlc.InvalidateTenantLayer(ctx, SpecialtyLookup, "tenant-b")
		require.NoError(t, err)

		_, err = mlc.Get(ctx, SpecialtyLookup, "tenant-b", "ortho")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("Remote Hit Backfills Local Tier", func(t *testing.T) {
		require.NoError(t, rc.Set(ctx, SpecialtyLookup, "tenant-c", "derm", []byte("dermatology")))

		val, err := mlc.Get(ctx, SpecialtyLookup, "tenant-c", "derm")
		require.NoError(t, err)
		assert.Equal(t, []byte("dermatology"), val)

		mr.Del("hh:specialty:tenant-c:derm")

		val, err = mlc.Get(ctx, SpecialtyLookup, "tenant-c", "derm")
		require.NoError(t, err)
		assert.Equal(t, []byte("dermatology"), val)
	})
}

func TestNoopCache(t *testing.T) {
	n := NewNoopCache()
	ctx := context.Background()

	require.NoError(t, n.Set(ctx, SearchResults, "tenant-a", "jd1", []byte("x")))

	_, err := n.Get(ctx, SearchResults, "tenant-a", "jd1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	count, err := n.InvalidateTenantLayer(ctx, SearchResults, "tenant-a")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, StatusDisabled, n.Status(ctx))
	assert.NoError(t, n.Close())
}
