package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-svc/config"
	"shop-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const productListKey = "products:all"

func InitRedis(cfg config.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr()))
	return rdb, nil
}

// Cache is a read-through product cache plus a short-lived registry of
// processed webhook events. Cache errors are logged and treated as misses.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

func productKey(id int) string {
	return fmt.Sprintf("product:%d", id)
}

func (c *Cache) GetProduct(ctx context.Context, id int) (*models.Product, bool) {
	var p models.Product
	if !c.get(ctx, productKey(id), &p) {
		return nil, false
	}
	return &p, true
}

func (c *Cache) SetProduct(ctx context.Context, p *models.Product) {
	c.set(ctx, productKey(p.ID), p)
}

func (c *Cache) GetProductList(ctx context.Context) ([]models.Product, bool) {
	var products []models.Product
	if !c.get(ctx, productListKey, &products) {
		return nil, false
	}
	return products, true
}

func (c *Cache) SetProductList(ctx context.Context, products []models.Product) {
	c.set(ctx, productListKey, products)
}

// InvalidateProducts drops the cached entries of the given products and the
// cached listing.
func (c *Cache) InvalidateProducts(ctx context.Context, ids ...int) {
	keys := make([]string, 0, len(ids)+1)
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, productKey(id))
	}
	keys = append(keys, productListKey)

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Failed to invalidate product cache", zap.Ints("product_ids", ids), zap.Error(err))
	}
}

func eventKey(source, eventID string) string {
	return fmt.Sprintf("%s:event:%s", source, eventID)
}

// MarkEventProcessed records eventID for ttl. It reports false when the
// event was already recorded.
func (c *Cache) MarkEventProcessed(ctx context.Context, source, eventID string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, eventKey(source, eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event %s: %w", eventID, err)
	}
	return ok, nil
}

// ForgetEvent removes the marker so a redelivery is processed again.
func (c *Cache) ForgetEvent(ctx context.Context, source, eventID string) error {
	return c.rdb.Del(ctx, eventKey(source, eventID)).Err()
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}
