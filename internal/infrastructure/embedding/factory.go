package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"fixit-rag-api/internal/config"
	"fixit-rag-api/pkg/metrics"
)

const (
	ProviderHash   = "hash"
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// New 按配置创建 Embedder；cache 非 nil 且 TTL > 0 时包一层缓存
func New(ctx context.Context, cfg *config.EmbeddingConfig, cache Cache) (embedding.Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var (
		inner embedding.Embedder
		err   error
	)
	switch provider {
	case "", ProviderHash:
		provider = ProviderHash
		inner = NewHashEmbedder(cfg.Dimension)
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding endpoint is required for provider http")
		}
		inner = NewClient(cfg)
	case ProviderOpenAI:
		inner, err = NewEinoEmbedder(ctx, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	var e embedding.Embedder = &instrumented{inner: inner, provider: provider}
	// 哈希向量本身无需缓存
	if cache != nil && cfg.CacheTTL > 0 && provider != ProviderHash {
		ns := fmt.Sprintf("%s:%s:%d", provider, cfg.Model, cfg.Dimension)
		e = NewCachedEmbedder(e, cache, ns, cfg.CacheTTL)
	}
	return e, nil
}

// instrumented 记录向量化耗时
type instrumented struct {
	inner    embedding.Embedder
	provider string
}

func (i *instrumented) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	start := time.Now()
	defer func() {
		metrics.EmbeddingDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	}()
	return i.inner.EmbedStrings(ctx, texts, opts...)
}
