package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/singleflight"

	"fixit-rag-api/pkg/logger"
	"fixit-rag-api/pkg/metrics"
)

// Cache 向量缓存的最小依赖，由 redis.Cache 实现
type Cache interface {
	// Get 未命中时 ok=false 且 err=nil
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// CachedEmbedder 以文本哈希为键缓存向量。缓存故障只降级为未命中，不影响向量化。
type CachedEmbedder struct {
	inner     embedding.Embedder
	cache     Cache
	namespace string
	ttl       time.Duration
	group     singleflight.Group
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder namespace 通常为 provider:model:dimension，避免不同模型串用
func NewCachedEmbedder(inner embedding.Embedder, cache Cache, namespace string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		inner:     inner,
		cache:     cache,
		namespace: namespace,
		ttl:       ttl,
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.namespace + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float64, bool) {
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logger.Debug(ctx, "embedding cache get failed", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *CachedEmbedder) store(ctx context.Context, key string, v []float64) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		logger.Debug(ctx, "embedding cache set failed", "error", err.Error())
	}
}

// EmbedStrings 命中缓存的直接返回，其余一次性交给底层 Embedder
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var (
		missIdx  []int
		missText []string
	)
	for i, t := range texts {
		if v, ok := c.lookup(ctx, c.key(t)); ok {
			metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
			out[i] = v
			continue
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		missIdx = append(missIdx, i)
		missText = append(missText, t)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	// 单条（查询路径）合并并发请求
	if len(missText) == 1 {
		key := c.key(missText[0])
		v, err, _ := c.group.Do(key, func() (any, error) {
			vecs, err := c.inner.EmbedStrings(ctx, missText, opts...)
			if err != nil {
				return nil, err
			}
			if len(vecs) == 1 {
				c.store(ctx, key, vecs[0])
			}
			return vecs, nil
		})
		if err != nil {
			return nil, err
		}
		vecs := v.([][]float64)
		if len(vecs) != 1 {
			return vecs, nil
		}
		out[missIdx[0]] = vecs[0]
		return out, nil
	}

	vecs, err := c.inner.EmbedStrings(ctx, missText, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missText) {
		// 数量不符交给调用方校验
		return vecs, nil
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.store(ctx, c.key(missText[j]), vecs[j])
	}
	return out, nil
}
