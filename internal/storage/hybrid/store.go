package hybrid

import (
	"fmt"
	"time"

	"github.com/ezac101/chainmail/internal/domain"
	"github.com/ezac101/chainmail/internal/storage/postgres"
	"github.com/ezac101/chainmail/internal/storage/redis"
)

// Store 组合 PostgreSQL 持久化与 Redis 缓存。
//
// PostgreSQL 是唯一的事实来源；Redis 只承担读缓存与限流计数。
// 缓存操作失败不影响账本正确性，降级为直读数据库。
type Store struct {
	*postgres.Store
	cache *redis.Cache
}

// NewStore 创建混合存储。
func NewStore(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration,
	redisAddr, redisPassword string, redisDB int) (*Store, error) {

	pg, err := postgres.NewStore(dsn, maxOpenConns, maxIdleConns, connMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres store: %w", err)
	}

	cache, err := redis.NewCache(redisAddr, redisPassword, redisDB)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	return &Store{
		Store: pg,
		cache: cache,
	}, nil
}

// AppendEmail 写入数据库后回填缓存。
func (s *Store) AppendEmail(record *domain.EmailRecord) (*domain.EmailRecord, error) {
	stored, err := s.Store.AppendEmail(record)
	if err != nil {
		return nil, err
	}
	// 缓存失败不影响写入结果
	_ = s.cache.CacheEmail(stored)
	return stored, nil
}

// GetEmail 优先读缓存，未命中时回源并回填。
func (s *Store) GetEmail(id uint64) (*domain.EmailRecord, error) {
	if cached, err := s.cache.GetCachedEmail(id); err == nil && cached != nil {
		return cached, nil
	}

	record, err := s.Store.GetEmail(id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.CacheEmail(record)
	return record, nil
}

// SavePublicKey 写入数据库并使旧缓存失效。
func (s *Store) SavePublicKey(reg *domain.PublicKeyRegistration) error {
	if err := s.Store.SavePublicKey(reg); err != nil {
		return err
	}
	_ = s.cache.InvalidatePublicKey(reg.Account)
	return nil
}

// GetPublicKey 优先读缓存。
func (s *Store) GetPublicKey(account domain.Address) (string, error) {
	if pubKey, found, err := s.cache.GetCachedPublicKey(account); err == nil && found {
		return pubKey, nil
	}

	pubKey, err := s.Store.GetPublicKey(account)
	if err != nil {
		return "", err
	}
	if pubKey != "" {
		_ = s.cache.CachePublicKey(account, pubKey)
	}
	return pubKey, nil
}

// IncrementRateLimit 限流计数使用 Redis，支持多节点共享窗口。
func (s *Store) IncrementRateLimit(key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(key, window)
}

// GetRateLimit 返回 Redis 中的限流计数。
func (s *Store) GetRateLimit(key string) (int64, error) {
	return s.cache.GetRateLimit(key)
}

// Health 同时检查数据库与缓存。
func (s *Store) Health() error {
	if err := s.Store.Health(); err != nil {
		return err
	}
	return s.cache.Health()
}

// Close 关闭数据库与缓存连接。
func (s *Store) Close() error {
	if err := s.cache.Close(); err != nil {
		s.Store.Close()
		return err
	}
	return s.Store.Close()
}
