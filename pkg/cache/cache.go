// Package cache 提供带 TTL 的键值缓存服务。
// 调用方只依赖 Service 接口，Redis 实现用于线上，内存实现用于单测。
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss 键不存在或已过期
var ErrMiss = errors.New("cache: miss")

type Service interface {
	// Get 返回原始字节，未命中返回 ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
