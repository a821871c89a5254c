package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"shop-svc/config"
	"shop-svc/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupCacheTest(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	return New(rdb, time.Minute, logger), mr
}

func TestProductRoundTrip(t *testing.T) {
	c, mr := setupCacheTest(t)
	ctx := context.Background()

	_, ok := c.GetProduct(ctx, 1)
	assert.False(t, ok)

	c.SetProduct(ctx, &models.Product{ID: 1, Title: "Mug", Price: decimal.RequireFromString("9.99"), Stock: 4})

	got, ok := c.GetProduct(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "Mug", got.Title)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, 4, got.Stock)

	ttl := mr.TTL("product:1")
	assert.Equal(t, time.Minute, ttl)
}

func TestInvalidateProducts_DropsEntriesAndListing(t *testing.T) {
	c, mr := setupCacheTest(t)
	ctx := context.Background()

	c.SetProduct(ctx, &models.Product{ID: 1, Title: "Mug"})
	c.SetProduct(ctx, &models.Product{ID: 2, Title: "Spoon"})
	c.SetProductList(ctx, []models.Product{{ID: 1}, {ID: 2}})

	c.InvalidateProducts(ctx, 1, 1)

	assert.False(t, mr.Exists("product:1"))
	assert.True(t, mr.Exists("product:2"))
	assert.False(t, mr.Exists(productListKey))
}

func TestGetProduct_CorruptEntryIsAMiss(t *testing.T) {
	c, mr := setupCacheTest(t)
	require.NoError(t, mr.Set("product:3", "{not json"))

	_, ok := c.GetProduct(context.Background(), 3)

	assert.False(t, ok)
	assert.False(t, mr.Exists("product:3"))
}

func TestGetProduct_RedisDownIsAMiss(t *testing.T) {
	c, mr := setupCacheTest(t)
	mr.Close()

	_, ok := c.GetProduct(context.Background(), 1)
	assert.False(t, ok)
}

func TestMarkEventProcessed(t *testing.T) {
	c, mr := setupCacheTest(t)
	ctx := context.Background()

	first, err := c.MarkEventProcessed(ctx, "stripe", "evt_1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.MarkEventProcessed(ctx, "stripe", "evt_1", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, 24*time.Hour, mr.TTL("stripe:event:evt_1"))

	require.NoError(t, c.ForgetEvent(ctx, "stripe", "evt_1"))
	retried, err := c.MarkEventProcessed(ctx, "stripe", "evt_1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, retried)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	rdb, err := InitRedis(config.Config{RedisHost: host, RedisPort: port}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rdb.Close()

	_, err = InitRedis(config.Config{RedisHost: "127.0.0.1", RedisPort: "1"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
