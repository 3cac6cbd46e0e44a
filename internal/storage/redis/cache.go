package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ezac101/chainmail/internal/domain"
)

// Cache Redis 缓存实现。
//
// 邮件记录是不可变的，缓存永不失效也不会读到陈旧数据，
// 因此记录缓存使用较长 TTL；公钥可被覆盖登记，TTL 较短，
// 且覆盖写入时主动失效。
type Cache struct {
	client *goredis.Client
	ctx    context.Context
}

const (
	recordTTL = 24 * time.Hour
	keyTTL    = 5 * time.Minute
)

// NewCache 创建 Redis 缓存实例。
func NewCache(addr, password string, db int) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client: client,
		ctx:    ctx,
	}, nil
}

// CacheEmail 缓存一条邮件记录。
func (c *Cache) CacheEmail(record *domain.EmailRecord) error {
	key := fmt.Sprintf("email:%d", record.ID)
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(c.ctx, key, data, recordTTL).Err()
}

// GetCachedEmail 读取缓存的邮件记录，未命中返回 nil。
func (c *Cache) GetCachedEmail(id uint64) (*domain.EmailRecord, error) {
	key := fmt.Sprintf("email:%d", id)
	data, err := c.client.Get(c.ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var record domain.EmailRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CachePublicKey 缓存账户公钥。
func (c *Cache) CachePublicKey(account domain.Address, pubKey string) error {
	return c.client.Set(c.ctx, "pubkey:"+account.String(), pubKey, keyTTL).Err()
}

// GetCachedPublicKey 读取缓存的公钥，未命中时 found 为 false。
func (c *Cache) GetCachedPublicKey(account domain.Address) (pubKey string, found bool, err error) {
	data, err := c.client.Get(c.ctx, "pubkey:"+account.String()).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return data, true, nil
}

// InvalidatePublicKey 使账户公钥缓存失效（覆盖登记时调用）。
func (c *Cache) InvalidatePublicKey(account domain.Address) error {
	return c.client.Del(c.ctx, "pubkey:"+account.String()).Err()
}

// IncrementRateLimit 递增限流计数，首次递增时设置窗口过期。
func (c *Cache) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	rkey := "ratelimit:" + key
	count, err := c.client.Incr(c.ctx, rkey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(c.ctx, rkey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// GetRateLimit 返回当前限流计数。
func (c *Cache) GetRateLimit(key string) (int64, error) {
	count, err := c.client.Get(c.ctx, "ratelimit:"+key).Int64()
	if err != nil {
		if err == goredis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// Health 检查 Redis 连接。
func (c *Cache) Health() error {
	return c.client.Ping(c.ctx).Err()
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	return c.client.Close()
}
