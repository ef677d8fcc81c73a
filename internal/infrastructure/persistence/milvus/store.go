package milvus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/config"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/metrics"
	"fixit-rag-api/pkg/tracer"
)

const (
	backendName = "milvus"

	defaultTimeout      = 10 * time.Second
	defaultHNSWM        = 16
	defaultHNSWEfConstr = 200
	defaultHNSWEf       = 128
	maxQueryLimit       = 16384
	countField          = "count(*)"
	matchAllExpr        = fieldID + ` != ""`
)

var errExtraTooLarge = errors.New("extra metadata is too large")

// Store 基于 Milvus 的向量存储。
// 每次远端调用都有超时，失败统一返回 ServiceUnavailable；Store 自身不重试。
type Store struct {
	client     *Client
	collection string
	dim        int
	timeout    time.Duration
	hnswM      int
	hnswEfc    int
	hnswEf     int

	// disabled 非空时所有操作直接返回该错误
	disabled error
	ready    atomic.Bool
}

var (
	_ retrieval.VectorStore   = (*Store)(nil)
	_ retrieval.FilterDeleter = (*Store)(nil)
	_ retrieval.IndexEnsurer  = (*Store)(nil)
)

// NewStore 创建 Milvus 向量存储。必填配置缺失时返回处于不可用状态的 Store。
func NewStore(cfg config.MilvusConfig) *Store {
	return newStore(cfg, NewClient(cfg))
}

func newStore(cfg config.MilvusConfig, c *Client) *Store {
	s := &Store{
		client:     c,
		collection: cfg.IndexName,
		dim:        cfg.Dimension,
		timeout:    cfg.Timeout,
		hnswM:      cfg.HNSWM,
		hnswEfc:    cfg.HNSWEfConstruction,
		hnswEf:     cfg.HNSWEf,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.hnswM <= 0 {
		s.hnswM = defaultHNSWM
	}
	if s.hnswEfc <= 0 {
		s.hnswEfc = defaultHNSWEfConstr
	}
	if s.hnswEf <= 0 {
		s.hnswEf = defaultHNSWEf
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		s.disabled = apperrors.ServiceUnavailable(
			"milvus config missing: "+strings.Join(missing, ", "), retrieval.ErrVectorDisabled)
		metrics.SetVectorStoreAvailable(backendName, false)
	}
	return s
}

// Disabled 配置缺失时返回原因
func (s *Store) Disabled() error {
	return s.disabled
}

// Close 关闭底层连接
func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck 连通性检查
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.disabled != nil {
		return s.disabled
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.client.HealthCheck(ctx); err != nil {
		return s.unavailable(ctx, "health_check", err)
	}
	return nil
}

// EnsureIndex 确保集合、向量索引存在并已加载。重复调用幂等，不做删除或重建。
func (s *Store) EnsureIndex(ctx context.Context, name string, dimension int, metric string) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.EnsureIndex",
		trace.WithAttributes(attribute.String("collection", name), attribute.Int("dimension", dimension)))
	defer func() {
		s.observe("ensure_index", start, err)
		tracer.End(span, err)
	}()

	if s.disabled != nil {
		return s.disabled
	}
	if name != s.collection {
		return apperrors.InvalidArgument("store is bound to index %q, got %q", s.collection, name)
	}
	if dimension != s.dim {
		return apperrors.InvalidArgument("index dimension %d does not match configured %d", dimension, s.dim)
	}
	if !strings.EqualFold(metric, "cosine") {
		return apperrors.InvalidArgument("unsupported metric %q", metric)
	}

	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := conn.HasCollection(ctx, s.collection)
	if err != nil {
		return s.unavailable(ctx, "has_collection", err)
	}
	if !exists {
		if err := conn.CreateCollection(ctx, RecordsSchema(s.collection, s.dim), entity.DefaultShardNumber); err != nil {
			return s.unavailable(ctx, "create_collection", err)
		}
	}

	if idx, err := conn.DescribeIndex(ctx, s.collection, fieldVector); err != nil || len(idx) == 0 {
		hnsw, err := entity.NewIndexHNSW(entity.COSINE, s.hnswM, s.hnswEfc)
		if err != nil {
			return apperrors.InvalidArgument("invalid hnsw params: %v", err)
		}
		if err := conn.CreateIndex(ctx, s.collection, fieldVector, hnsw, false); err != nil {
			return s.unavailable(ctx, "create_index", err)
		}
	}

	if err := conn.LoadCollection(ctx, s.collection, false); err != nil {
		return s.unavailable(ctx, "load_collection", err)
	}
	s.ready.Store(true)
	return nil
}

// Upsert 按 ID 幂等写入
func (s *Store) Upsert(ctx context.Context, records []retrieval.VectorRecord) (n int, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(attribute.String("collection", s.collection), attribute.Int("count", len(records))))
	defer func() {
		s.observe("upsert", start, err)
		tracer.End(span, err)
	}()

	if s.disabled != nil {
		return 0, s.disabled
	}
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		if r.ID == "" {
			return 0, apperrors.InvalidArgument("record id is required")
		}
		if len(r.Embedding) != s.dim {
			return 0, apperrors.InvalidArgument("record %s has dimension %d, want %d", r.ID, len(r.Embedding), s.dim)
		}
	}
	cols, err := toColumns(records, s.dim)
	if err != nil {
		return 0, apperrors.InvalidArgument("encode records: %v", err)
	}

	conn, err := s.prepare(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := conn.Upsert(ctx, s.collection, "", cols...); err != nil {
		return 0, s.unavailable(ctx, "upsert", err)
	}
	return len(records), nil
}

// Query 余弦相似度检索。全零查询向量不走 ANN，匹配记录得分均为 0。
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter retrieval.Filter) (out []retrieval.SearchResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Query",
		trace.WithAttributes(
			attribute.String("collection", s.collection),
			attribute.String("owner_id", filter.OwnerID),
			attribute.Int("top_k", topK),
		))
	defer func() {
		s.observe("query", start, err)
		span.SetAttributes(attribute.Int("result_count", len(out)))
		tracer.End(span, err)
	}()

	if s.disabled != nil {
		return nil, s.disabled
	}
	if topK <= 0 {
		return nil, apperrors.InvalidArgument("topK must be positive, got %d", topK)
	}
	if len(vector) != s.dim {
		return nil, apperrors.InvalidArgument("query dimension %d, want %d", len(vector), s.dim)
	}

	conn, err := s.prepare(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expr := filterExpr(filter)
	if retrieval.IsZeroVector(vector) {
		return s.scan(ctx, conn, expr, topK)
	}

	sp, err := entity.NewIndexHNSWSearchParam(max(s.hnswEf, topK))
	if err != nil {
		return nil, apperrors.InvalidArgument("invalid search params: %v", err)
	}
	results, err := conn.Search(ctx, s.collection, nil, expr, outputFields,
		[]entity.Vector{entity.FloatVector(vector)}, fieldVector, entity.COSINE, topK, sp)
	if err != nil {
		return nil, s.unavailable(ctx, "search", err)
	}

	for _, result := range results {
		if result.Err != nil {
			return nil, s.unavailable(ctx, "search", result.Err)
		}
		rows := newRowReader(result.Fields)
		for i := 0; i < result.ResultCount; i++ {
			out = append(out, retrieval.SearchResult{
				RecordID: rows.id(i),
				Score:    clampScore(float64(at(result.Scores, i))),
				Metadata: rows.metadata(i),
			})
		}
	}
	return retrieval.RankResults(out, topK), nil
}

// scan 标量查询匹配记录，得分为 0，按 ID 排序
func (s *Store) scan(ctx context.Context, conn api, expr string, topK int) ([]retrieval.SearchResult, error) {
	if expr == "" {
		expr = matchAllExpr
	}
	rs, err := conn.Query(ctx, s.collection, nil, expr, outputFields, client.WithLimit(maxQueryLimit))
	if err != nil {
		return nil, s.unavailable(ctx, "scan", err)
	}
	rows := newRowReader(rs)
	out := make([]retrieval.SearchResult, 0, len(rows.ids))
	for i := range rows.ids {
		out = append(out, retrieval.SearchResult{RecordID: rows.id(i), Metadata: rows.metadata(i)})
	}
	return retrieval.RankResults(out, topK), nil
}

// Delete 按 ID 删除，返回实际存在并被删除的条数
func (s *Store) Delete(ctx context.Context, ids []string) (n int, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Delete",
		trace.WithAttributes(attribute.String("collection", s.collection), attribute.Int("count", len(ids))))
	defer func() {
		s.observe("delete", start, err)
		tracer.End(span, err)
	}()

	if len(ids) == 0 {
		return 0, nil
	}
	conn, err := s.prepare(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	existing, err := s.matchingIDs(ctx, conn, idsExpr(ids))
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := conn.DeleteByPks(ctx, s.collection, "", entity.NewColumnVarChar(fieldID, existing)); err != nil {
		return 0, s.unavailable(ctx, "delete", err)
	}
	return len(existing), nil
}

// DeleteByFilter 按元数据原生删除。拒绝空条件，避免清空整个集合。
func (s *Store) DeleteByFilter(ctx context.Context, filter retrieval.Filter) (n int, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.DeleteByFilter",
		trace.WithAttributes(
			attribute.String("collection", s.collection),
			attribute.String("owner_id", filter.OwnerID),
			attribute.String("source_name", filter.SourceName),
		))
	defer func() {
		s.observe("delete_by_filter", start, err)
		tracer.End(span, err)
	}()

	if filter.IsEmpty() {
		return 0, apperrors.InvalidArgument("delete filter must not be empty")
	}
	conn, err := s.prepare(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expr := filterExpr(filter)
	matched, err := s.matchingIDs(ctx, conn, expr)
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		return 0, nil
	}
	if err := conn.Delete(ctx, s.collection, "", expr); err != nil {
		return 0, s.unavailable(ctx, "delete_by_filter", err)
	}
	return len(matched), nil
}

// Stats 集合统计。远端无法按类型计数，ByRecordType 为 nil。
func (s *Store) Stats(ctx context.Context) (st retrieval.Stats, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "milvus.Stats",
		trace.WithAttributes(attribute.String("collection", s.collection)))
	defer func() {
		s.observe("stats", start, err)
		tracer.End(span, err)
	}()

	st = retrieval.Stats{Backend: backendName, Dimension: s.dim}
	conn, err := s.prepare(ctx)
	if err != nil {
		return st, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rs, err := conn.Query(ctx, s.collection, nil, "", []string{countField})
	if err != nil {
		return st, s.unavailable(ctx, "stats", err)
	}
	if c, ok := rs.GetColumn(countField).(*entity.ColumnInt64); ok && len(c.Data()) > 0 {
		st.TotalVectors = int(c.Data()[0])
	}
	return st, nil
}

func (s *Store) matchingIDs(ctx context.Context, conn api, expr string) ([]string, error) {
	rs, err := conn.Query(ctx, s.collection, nil, expr, []string{fieldID}, client.WithLimit(maxQueryLimit))
	if err != nil {
		return nil, s.unavailable(ctx, "query_ids", err)
	}
	return varchars(rs, fieldID), nil
}

// connect 建立连接（带超时）
func (s *Store) connect(ctx context.Context) (api, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	conn, err := s.client.connect(dialCtx)
	if err != nil {
		return nil, s.unavailable(ctx, "connect", err)
	}
	return conn, nil
}

// prepare 校验配置、建立连接并确认集合存在
func (s *Store) prepare(ctx context.Context) (api, error) {
	if s.disabled != nil {
		return nil, s.disabled
	}
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	if s.ready.Load() {
		return conn, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	exists, err := conn.HasCollection(checkCtx, s.collection)
	if err != nil {
		return nil, s.unavailable(checkCtx, "has_collection", err)
	}
	if !exists {
		return nil, apperrors.ServiceUnavailable(fmt.Sprintf("index %q does not exist", s.collection), nil)
	}
	s.ready.Store(true)
	return conn, nil
}

// unavailable 远端错误统一转为 ServiceUnavailable；调用方主动取消时原样返回取消错误
func (s *Store) unavailable(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	if apperrors.IsCode(err, apperrors.CodeServiceUnavailable) {
		return err
	}
	metrics.SetVectorStoreAvailable(backendName, false)
	return apperrors.ServiceUnavailable(fmt.Sprintf("milvus %s failed", op), err)
}

func (s *Store) observe(op string, start time.Time, err error) {
	metrics.RecordVectorStoreOp(backendName, op, err, time.Since(start).Seconds())
	if err == nil {
		metrics.SetVectorStoreAvailable(backendName, true)
	}
}

func clampScore(v float64) float64 {
	return max(-1, min(1, v))
}
