package milvus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"fixit-rag-api/internal/config"
	"fixit-rag-api/pkg/tracer"
)

// api Store 用到的 Milvus SDK 方法子集
type api interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	DescribeIndex(ctx context.Context, collName string, fieldName string, opts ...client.IndexOption) ([]entity.Index, error)
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Upsert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Query(ctx context.Context, collectionName string, partitionNames []string, expr string, outputFields []string,
		opts ...client.SearchQueryOptionFunc) (client.ResultSet, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
	DeleteByPks(ctx context.Context, collName string, partitionName string, ids entity.Column) error
	Close() error
}

type dialFunc func(ctx context.Context, cfg config.MilvusConfig) (api, error)

// Client Milvus 连接，首次使用时建立
type Client struct {
	cfg  config.MilvusConfig
	dial dialFunc

	mu   sync.Mutex
	conn api
}

// NewClient 创建 Milvus 客户端（不立即连接）
func NewClient(cfg config.MilvusConfig) *Client {
	return &Client{cfg: cfg, dial: dialSDK}
}

func dialSDK(ctx context.Context, cfg config.MilvusConfig) (api, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:       cfg.Address,
		APIKey:        cfg.APIKey,
		Username:      cfg.User,
		Password:      cfg.Password,
		DBName:        cfg.DBName,
		EnableTLSAuth: strings.HasPrefix(cfg.Address, "https://"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	return c, nil
}

// connect 返回已建立的连接，必要时拨号。拨号失败不缓存，下次调用重试。
func (c *Client) connect(ctx context.Context) (api, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	ctx, span := tracer.Start(ctx, "milvus.Connect")
	conn, err := c.dial(ctx, c.cfg)
	tracer.End(span, err)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.HasCollection(ctx, c.cfg.IndexName); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
