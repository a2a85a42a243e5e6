package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/config"
	"github.com/use-agent/strata/models"
)

func testEntry(path string) *Entry {
	return &Entry{
		Path: path,
		Result: &models.NormalizedResult{
			Metadata: models.ResultMetadata{SourceURL: "https://pluang.com", TechniqueUsed: models.TechniqueSSRInline, Timestamp: 1},
			Data:     map[string]any{"AAPL": map[string]any{"symbol": "AAPL"}},
		},
	}
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", testEntry("a.json"), time.Minute))
	e, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a.json", e.Path)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok, "entry expires at its ttl")
	assert.Equal(t, 0, m.Len())
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0, 0)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "short", testEntry("s"), time.Second))
	require.NoError(t, m.Set(ctx, "long", testEntry("l"), time.Hour))
	now = now.Add(time.Minute)
	m.sweep()
	assert.Equal(t, 1, m.Len())
}

func TestMemoryCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2, 0)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, m.Set(ctx, k, testEntry(k), time.Hour))
	}
	assert.Equal(t, 2, m.Len())
	_, ok, _ := m.Get(ctx, "c")
	assert.True(t, ok, "newest entry survives eviction")

	// Overwriting an existing key does not evict.
	require.NoError(t, m.Set(ctx, "c", testEntry("c2"), time.Hour))
	assert.Equal(t, 2, m.Len())
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	m := NewMemory(1, time.Hour)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(0, 0), time.Minute)

	calls := 0
	load := func(_ context.Context, pattern string) (string, *models.NormalizedResult, error) {
		calls++
		e := testEntry(pattern + ".json")
		return e.Path, e.Result, nil
	}

	e, err := c.GetOrLoad(ctx, "pluang_all_stocks_*.json", load)
	require.NoError(t, err)
	assert.Equal(t, "pluang_all_stocks_*.json.json", e.Path)
	_, err = c.GetOrLoad(ctx, "pluang_all_stocks_*.json", load)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second read is served from cache")

	c.InvalidateAll(ctx)
	_, err = c.GetOrLoad(ctx, "pluang_all_stocks_*.json", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "invalidation forces a reload")

	c.Invalidate(ctx, "pluang_all_stocks_*.json")
	_, ok := c.Get(ctx, "pluang_all_stocks_*.json")
	assert.False(t, ok)
}

func TestGetOrLoadError(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(0, 0), time.Minute)
	notFound := models.NewScrapeError(models.ErrCodeNotFound, "none", nil)

	_, err := c.GetOrLoad(ctx, "x", func(context.Context, string) (string, *models.NormalizedResult, error) {
		return "", nil, notFound
	})
	assert.ErrorIs(t, err, notFound)
	_, ok := c.Get(ctx, "x")
	assert.False(t, ok, "failures are not cached")
}

func TestDisabledCache(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemory(0, 0), 0)
	c.Set(ctx, "x", testEntry("x"))
	_, ok := c.Get(ctx, "x")
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	c, closer, err := FromConfig(config.CacheConfig{TTL: time.Minute, MaxEntries: 4})
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, time.Minute, c.TTL())
	assert.IsType(t, &Memory{}, c.backend)

	_, _, err = FromConfig(config.CacheConfig{RedisURL: "::bad"})
	assert.Error(t, err)
}

func TestRedisGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := &Redis{client: db, prefix: KeyPrefix}
	ctx := context.TODO()

	data, err := json.Marshal(testEntry("p.json"))
	require.NoError(t, err)

	mock.ExpectGet(KeyPrefix + "hit").SetVal(string(data))
	e, ok, err := r.Get(ctx, "hit")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p.json", e.Path)
	assert.Equal(t, models.TechniqueSSRInline, e.Result.Metadata.TechniqueUsed)

	mock.ExpectGet(KeyPrefix + "miss").RedisNil()
	_, ok, err = r.Get(ctx, "miss")
	assert.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet(KeyPrefix + "err").SetErr(errors.New("redis error"))
	_, _, err = r.Get(ctx, "err")
	assert.ErrorContains(t, err, "redis get failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisSetAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := &Redis{client: db, prefix: KeyPrefix}
	ctx := context.TODO()

	e := testEntry("p.json")
	data, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectSet(KeyPrefix+"k", string(data), time.Minute).SetVal("OK")
	assert.NoError(t, r.Set(ctx, "k", e, time.Minute))

	mock.ExpectDel(KeyPrefix + "k").SetVal(1)
	assert.NoError(t, r.Delete(ctx, "k"))

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedisClear(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := &Redis{client: db, prefix: KeyPrefix}
	ctx := context.TODO()

	mock.ExpectScan(0, KeyPrefix+"*", scanCount).SetVal([]string{KeyPrefix + "a", KeyPrefix + "b"}, 7)
	mock.ExpectDel(KeyPrefix+"a", KeyPrefix+"b").SetVal(2)
	mock.ExpectScan(7, KeyPrefix+"*", scanCount).SetVal([]string{}, 0)
	assert.NoError(t, r.Clear(ctx))

	mock.ExpectScan(0, KeyPrefix+"*", scanCount).SetErr(errors.New("down"))
	assert.ErrorContains(t, r.Clear(ctx), "redis scan failure")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
