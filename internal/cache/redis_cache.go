package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gudangpos/backend/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// Keys carry a warehouse prefix so InvalidateWarehouse can drop a single
// warehouse's cached reports. The empty scope ("all warehouses") uses "all".
func DailySalesKey(warehouseID string, date string) string {
	return "report:daily:" + warehouseScope(warehouseID) + ":" + date
}

func LowStockKey(warehouseID string) string {
	return "report:lowstock:" + warehouseScope(warehouseID)
}

func warehouseScope(warehouseID string) string {
	if warehouseID == "" {
		return "all"
	}
	return warehouseID
}

func (c *RedisReportCache) GetDailySales(ctx context.Context, key string) (*domain.DailySalesReport, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.DailySalesReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) SetDailySales(ctx context.Context, key string, value *domain.DailySalesReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisReportCache) GetLowStock(ctx context.Context, key string) (*domain.LowStockResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.LowStockResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisReportCache) SetLowStock(ctx context.Context, key string, value *domain.LowStockResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisReportCache) InvalidateWarehouse(ctx context.Context, warehouseID string) error {
	scopes := []string{warehouseScope(warehouseID)}
	if warehouseID != "" {
		scopes = append(scopes, "all")
	}
	for _, scope := range scopes {
		iter := c.client.Scan(ctx, 0, "report:*:"+scope+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	return nil
}
