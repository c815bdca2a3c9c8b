package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// DefaultDedupTTL 记住一次投递的时长，覆盖中继的重投窗口
	DefaultDedupTTL = 24 * time.Hour

	dedupKeyPrefix = "tempmail:inbound:seen:"
)

// kv 去重所需的最小 Redis 命令集
type kv interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// DedupFilter 基于 SETNX 的入站投递幂等过滤器
type DedupFilter struct {
	rdb kv
	ttl time.Duration
}

// NewDedupFilter 创建去重过滤器，ttl <= 0 时使用默认值
func NewDedupFilter(rdb kv, ttl time.Duration) *DedupFilter {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &DedupFilter{rdb: rdb, ttl: ttl}
}

// Claim 原子地占用幂等键，返回 true 表示首次出现
func (f *DedupFilter) Claim(ctx context.Context, key string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, dedupKeyPrefix+key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Release 释放幂等键，使上游重投可以再次被处理
func (f *DedupFilter) Release(ctx context.Context, key string) error {
	if err := f.rdb.Del(ctx, dedupKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}
