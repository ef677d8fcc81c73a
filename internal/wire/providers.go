package wire

import (
	"context"
	"fmt"
	"strings"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/config"
	infraembedding "fixit-rag-api/internal/infrastructure/embedding"
	"fixit-rag-api/internal/infrastructure/extractor"
	"fixit-rag-api/internal/infrastructure/persistence/memory"
	"fixit-rag-api/internal/infrastructure/persistence/milvus"
	"fixit-rag-api/internal/infrastructure/persistence/postgres"
	"fixit-rag-api/internal/infrastructure/persistence/redis"
	"fixit-rag-api/internal/interfaces/http/handler"
	"fixit-rag-api/internal/interfaces/http/middleware"
	"fixit-rag-api/pkg/logger"
	"fixit-rag-api/pkg/metrics"
)

const (
	BackendAuto   = "auto"
	BackendMemory = "memory"
	BackendMilvus = "milvus"
)

// VectorBackend 选定的向量存储。Milvus 仅在远端后端被选中时非 nil。
type VectorBackend struct {
	Name   string
	Store  retrieval.VectorStore
	Milvus *milvus.Store
}

// ProvideRedisClient 提供可选 Redis 客户端，未启用或不可达时返回 nil
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(ctx, cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, embedding cache and rate limit disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideEmbeddingCache Redis 不可用时返回 nil
func ProvideEmbeddingCache(client *redis.Client) infraembedding.Cache {
	if client == nil {
		return nil
	}
	return redis.NewCache(client)
}

// ProvideRateLimiter Redis 不可用时返回 nil（不限流）
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideEmbedder 按配置创建 Embedder
func ProvideEmbedder(ctx context.Context, cfg *config.Config, cache infraembedding.Cache) (einoembedding.Embedder, error) {
	return infraembedding.New(ctx, &cfg.Embedding, cache)
}

// ProvideVectorBackend 选择向量存储后端。
// auto：远端配置完整且索引可用时使用 Milvus，否则回退到进程内存储；
// milvus：配置缺失时仍返回不可用状态的 Milvus 存储，调用方得到 ServiceUnavailable。
func ProvideVectorBackend(ctx context.Context, cfg *config.Config) (*VectorBackend, func(), error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Vector.Backend))
	if mode == "" {
		mode = BackendAuto
	}
	dim := cfg.Embedding.Dimension

	switch mode {
	case BackendMemory:
		return memoryBackend(dim)
	case BackendAuto, BackendMilvus:
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	mcfg := cfg.Vector.Milvus
	if missing := mcfg.Missing(); len(missing) > 0 {
		logger.Warn(ctx, "remote vector store config missing", "missing", missing, "backend", mode)
		if mode == BackendAuto {
			return memoryBackend(dim)
		}
	} else if mcfg.Dimension != dim {
		return nil, nil, fmt.Errorf("vector dimension %d does not match embedding dimension %d", mcfg.Dimension, dim)
	}

	store := milvus.NewStore(mcfg)
	cleanup := func() {
		_ = store.Close()
	}
	if store.Disabled() == nil {
		if err := store.EnsureIndex(ctx, mcfg.IndexName, mcfg.Dimension, mcfg.Metric); err != nil {
			logger.Warn(ctx, "failed to ensure remote vector index", "index", mcfg.IndexName, "error", err.Error())
			if mode == BackendAuto {
				cleanup()
				return memoryBackend(dim)
			}
		}
	}

	metrics.SetVectorStoreAvailable(BackendMilvus, store.Disabled() == nil)
	logger.Info(ctx, "vector store ready", "backend", BackendMilvus, "index", mcfg.IndexName, "dimension", mcfg.Dimension)
	return &VectorBackend{Name: BackendMilvus, Store: store, Milvus: store}, cleanup, nil
}

func memoryBackend(dim int) (*VectorBackend, func(), error) {
	store, err := memory.NewStore(dim)
	if err != nil {
		return nil, nil, err
	}
	metrics.SetVectorStoreAvailable(BackendMemory, true)
	logger.Info(context.Background(), "vector store ready", "backend", BackendMemory, "dimension", dim)
	return &VectorBackend{Name: BackendMemory, Store: store}, func() {}, nil
}

// ProvidePostgresClient 提供可选 PostgreSQL 客户端。显式启用但连接失败时返回错误。
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(ctx, cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideDocumentCatalog 有 PostgreSQL 时使用持久化目录，否则使用内存目录
func ProvideDocumentCatalog(ctx context.Context, client *postgres.Client) (retrieval.DocumentCatalog, error) {
	if client == nil {
		return memory.NewCatalog(), nil
	}
	catalog := postgres.NewCatalog(client)
	if err := catalog.Migrate(ctx); err != nil {
		return nil, err
	}
	return catalog, nil
}

// ProvideRetrievalService 创建检索服务
func ProvideRetrievalService(
	cfg *config.Config,
	backend *VectorBackend,
	embedder einoembedding.Embedder,
	catalog retrieval.DocumentCatalog,
	registry *extractor.Registry,
) *retrieval.Service {
	rc := cfg.Retrieval
	return retrieval.NewService(backend.Store, embedder, catalog, registry, retrieval.Options{
		MaxChunkSize:         rc.MaxChunkSize,
		OverlapSize:          rc.OverlapSize,
		Dimension:            cfg.Embedding.Dimension,
		EmbeddingBatchSize:   cfg.Embedding.BatchSize,
		DefaultTopK:          rc.DefaultTopK,
		MaxTopK:              rc.MaxTopK,
		DegradeOnUnavailable: rc.DegradeOnUnavailable,
		Retry: retrieval.RetryPolicy{
			Initial:    rc.Retry.Initial,
			Max:        rc.Retry.Max,
			Multiplier: rc.Retry.Multiplier,
			MaxTries:   rc.Retry.MaxTries,
		},
		IndexName: cfg.Vector.Milvus.IndexName,
		Metric:    cfg.Vector.Milvus.Metric,
	})
}

// ProvideHealthHandler Milvus 与 PostgreSQL 为必需依赖，Redis 为可选依赖
func ProvideHealthHandler(cfg *config.Config, backend *VectorBackend, pg *postgres.Client, rdb *redis.Client) *handler.HealthHandler {
	var deps []handler.Dependency
	if backend.Milvus != nil {
		deps = append(deps, handler.Dependency{Name: "milvus", Checker: backend.Milvus, Required: true})
	}
	if pg != nil {
		deps = append(deps, handler.Dependency{Name: "postgres", Checker: pg, Required: true})
	}
	if rdb != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: rdb})
	}
	return handler.NewHealthHandler(cfg.App.Version, deps...)
}

// ProvideDocumentHandler 上传限制取自服务器配置
func ProvideDocumentHandler(cfg *config.Config, svc *retrieval.Service, registry *extractor.Registry) *handler.DocumentHandler {
	return handler.NewDocumentHandler(svc, handler.UploadConfig{
		Dir:      cfg.Server.HTTP.UploadDir,
		MaxSize:  cfg.Server.HTTP.MaxUploadSize,
		Supports: registry.Supports,
	})
}
