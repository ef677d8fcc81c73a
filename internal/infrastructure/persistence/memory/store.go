// Package memory 提供进程内向量存储与文档目录
package memory

import (
	"context"
	"sync"
	"time"

	"fixit-rag-api/internal/application/retrieval"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/metrics"
)

const backendName = "memory"

// Store 进程内向量存储：按 ID 保存记录，查询时对全部匹配记录计算余弦相似度后排序截断。
// 无持久化，生命周期与进程相同。
type Store struct {
	mu      sync.RWMutex
	dim     int
	records map[string]retrieval.VectorRecord
}

var _ retrieval.VectorStore = (*Store)(nil)

// NewStore 创建 dim 维存储
func NewStore(dim int) (*Store, error) {
	if dim <= 0 {
		return nil, apperrors.InvalidArgument("dimension must be positive, got %d", dim)
	}
	return &Store{
		dim:     dim,
		records: make(map[string]retrieval.VectorRecord),
	}, nil
}

// Upsert 按 ID 覆盖写入。任一记录非法时整批拒绝。
func (s *Store) Upsert(ctx context.Context, records []retrieval.VectorRecord) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordVectorStoreOp(backendName, "upsert", err, time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, r := range records {
		if r.ID == "" {
			return 0, apperrors.InvalidArgument("record id is required")
		}
		if len(r.Embedding) != s.dim {
			return 0, apperrors.InvalidArgument("record %s has dimension %d, store dimension is %d", r.ID, len(r.Embedding), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = retrieval.VectorRecord{
			ID:        r.ID,
			Embedding: append([]float32(nil), r.Embedding...),
			Metadata:  r.Metadata.Clone(),
		}
	}
	return len(records), nil
}

// Query 暴力检索。全零查询向量合法，所有分数为 0，按 ID 排序。
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter retrieval.Filter) (out []retrieval.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.RecordVectorStoreOp(backendName, "query", err, time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != s.dim {
		return nil, apperrors.InvalidArgument("query dimension %d does not match store dimension %d", len(vector), s.dim)
	}
	if topK <= 0 {
		return nil, apperrors.InvalidArgument("topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	results := make([]retrieval.SearchResult, 0, len(s.records))
	for id, r := range s.records {
		if !filter.Match(r.Metadata) {
			continue
		}
		results = append(results, retrieval.SearchResult{
			RecordID: id,
			Score:    retrieval.CosineSimilarity(vector, r.Embedding),
			Metadata: r.Metadata.Clone(),
		})
	}
	s.mu.RUnlock()

	return retrieval.RankResults(results, topK), nil
}

// Delete 不存在的 ID 忽略
func (s *Store) Delete(ctx context.Context, ids []string) (n int, err error) {
	start := time.Now()
	defer func() { metrics.RecordVectorStoreOp(backendName, "delete", err, time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Stats 总数、维度与按类型计数
func (s *Store) Stats(ctx context.Context) (retrieval.Stats, error) {
	if err := ctx.Err(); err != nil {
		return retrieval.Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	byType := make(map[retrieval.RecordType]int)
	for _, r := range s.records {
		byType[r.Metadata.RecordType]++
	}
	return retrieval.Stats{
		Backend:      backendName,
		TotalVectors: len(s.records),
		Dimension:    s.dim,
		ByRecordType: byType,
	}, nil
}
