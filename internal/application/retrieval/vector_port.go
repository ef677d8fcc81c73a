package retrieval

import "context"

// VectorStore 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（内存 / Milvus），实现必须并发安全，且不自行重试。
type VectorStore interface {
	// Upsert 按 ID 幂等写入，返回写入条数
	Upsert(ctx context.Context, records []VectorRecord) (int, error)
	// Query 返回至多 topK 条结果，按分数降序，分数相同按 ID 升序
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)
	// Delete 删除不存在的 ID 不报错，返回实际删除条数
	Delete(ctx context.Context, ids []string) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// FilterDeleter 支持按元数据原生删除的后端
type FilterDeleter interface {
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)
}

// IndexEnsurer 需要显式建索引的后端，重复调用幂等
type IndexEnsurer interface {
	EnsureIndex(ctx context.Context, name string, dimension int, metric string) error
}

// DocumentCatalog 文档目录（每个已入库文档一条）
type DocumentCatalog interface {
	Record(ctx context.Context, entry DocumentEntry) error
	Get(ctx context.Context, ownerID, sourceName string) (*DocumentEntry, error)
	List(ctx context.Context, ownerID string) ([]DocumentEntry, error)
	Remove(ctx context.Context, ownerID, sourceName string) error
}

// Extractor 文档解析器，失败返回 ExtractionFailed
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}
