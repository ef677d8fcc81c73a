//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/config"
	"fixit-rag-api/internal/infrastructure/extractor"
	"fixit-rag-api/internal/interfaces/http/handler"
	"fixit-rag-api/internal/interfaces/http/router"
)

// InitializeApp 初始化 HTTP 服务（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		RedisSet,
		RetrievalSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeService 仅初始化检索服务（用于批量入库）
func InitializeService(ctx context.Context, cfg *config.Config) (*retrieval.Service, func(), error) {
	wire.Build(
		RedisSet,
		RetrievalSet,
	)
	return nil, nil, nil
}

// RedisSet Redis 提供者集合（可选）
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	ProvideEmbeddingCache,
	ProvideRateLimiter,
)

// RetrievalSet 向量存储、向量化、文档目录与检索服务
var RetrievalSet = wire.NewSet(
	ProvideVectorBackend,
	ProvideEmbedder,
	ProvidePostgresClient,
	ProvideDocumentCatalog,
	extractor.NewRegistry,
	ProvideRetrievalService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideDocumentHandler,
	handler.NewRetrievalHandler,
	handler.NewChatHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
