package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fixit-rag-api/internal/infrastructure/embedding"
	"fixit-rag-api/pkg/tracer"
)

// Cache 字节缓存，供向量缓存使用
type Cache struct {
	client *Client
}

var _ embedding.Cache = (*Cache)(nil)

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get 获取缓存值，未命中返回 ok=false
func (c *Cache) Get(ctx context.Context, key string) (val []byte, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer func() {
		span.SetAttributes(attribute.Bool("cache.hit", ok))
		tracer.End(span, err)
	}()

	val, err = c.client.rdb.Get(ctx, key).Bytes()
	if IsNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set 设置缓存值，ttl <= 0 表示不过期
func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) (err error) {
	ctx, span := tracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer func() { tracer.End(span, err) }()

	if ttl < 0 {
		ttl = 0
	}
	return c.client.rdb.Set(ctx, key, val, ttl).Err()
}
