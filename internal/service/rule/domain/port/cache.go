// internal/service/rule/domain/port/cache.go
package port

import (
	"context"
	"time"
)

// Cache 是带 TTL 的键值缓存，用于购物车规则快照、折扣结果和变更前状态的暂存。
type Cache interface {
	// Get 在键不存在时返回 ok=false 且 err=nil。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
