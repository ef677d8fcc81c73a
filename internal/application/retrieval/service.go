package retrieval

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
	"fixit-rag-api/pkg/metrics"
	"fixit-rag-api/pkg/tracer"
)

// Options 检索服务参数
type Options struct {
	MaxChunkSize         int
	OverlapSize          int
	Dimension            int
	EmbeddingBatchSize   int
	DefaultTopK          int
	MaxTopK              int
	DegradeOnUnavailable bool
	Retry                RetryPolicy
	// IndexName / Metric 传给需要显式建索引的后端
	IndexName            string
	Metric               string
}

func (o Options) withDefaults() Options {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
		o.OverlapSize = DefaultOverlapSize
	}
	if o.DefaultTopK <= 0 {
		o.DefaultTopK = 5
	}
	if o.MaxTopK <= 0 {
		o.MaxTopK = 100
	}
	if o.MaxTopK < o.DefaultTopK {
		o.MaxTopK = o.DefaultTopK
	}
	if o.Retry.MaxTries == 0 {
		o.Retry.MaxTries = 1
	}
	if o.Metric == "" {
		o.Metric = "cosine"
	}
	return o
}

// Service 编排 切分 -> 向量化 -> 存储 / 向量化 -> 检索。
type Service struct {
	store     VectorStore
	embedder  embedding.Embedder
	catalog   DocumentCatalog
	extractor Extractor
	opts      Options
	now       func() time.Time
}

// NewService 创建检索服务。catalog 与 extractor 可为 nil。
func NewService(store VectorStore, embedder embedding.Embedder, catalog DocumentCatalog, extractor Extractor, opts Options) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		catalog:   catalog,
		extractor: extractor,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Options 返回生效的参数
func (s *Service) Options() Options {
	return s.opts
}

// IngestDocument 切分文本、逐片向量化并一次性写入。
// 向量化失败的分片记录在 Failed 中，其余照常写入；写入失败时全部分片视为失败并返回错误。
// 取消在分片批次之间检查，取消后不写入任何记录。
func (s *Service) IngestDocument(ctx context.Context, ownerID, sourceName, text string, opts IngestOptions) (res *IngestResult, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.IngestDocument")
	defer func() { tracer.End(span, err) }()

	ownerID, sourceName = strings.TrimSpace(ownerID), strings.TrimSpace(sourceName)
	if ownerID == "" || sourceName == "" {
		return nil, apperrors.InvalidArgument("ownerId and sourceName are required")
	}
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, ownerID)
	ctx = logger.WithContext(ctx, logger.SourceNameKey, sourceName)

	return s.ingestText(ctx, RecordSpec{
		OwnerID:    ownerID,
		SourceName: sourceName,
		RecordType: RecordTypeDocumentChunk,
		Extra:      opts.Extra,
	}, text, opts, 0)
}

// IngestFile 解析文件后入库。解析失败返回 ExtractionFailed，不切分、不写入。
func (s *Service) IngestFile(ctx context.Context, ownerID, sourceName, path string, opts IngestOptions) (res *IngestResult, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.IngestFile")
	defer func() { tracer.End(span, err) }()

	ownerID, sourceName = strings.TrimSpace(ownerID), strings.TrimSpace(sourceName)
	if ownerID == "" || sourceName == "" || strings.TrimSpace(path) == "" {
		return nil, apperrors.InvalidArgument("ownerId, sourceName and path are required")
	}
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, ownerID)
	ctx = logger.WithContext(ctx, logger.SourceNameKey, sourceName)

	if s.extractor == nil {
		return nil, apperrors.ExtractionFailed(path, errors.New("no extractor configured"))
	}
	ext, err := s.extractor.Extract(ctx, path)
	if err != nil {
		if !apperrors.IsCode(err, apperrors.CodeExtractionFailed) {
			err = apperrors.ExtractionFailed(path, err)
		}
		logger.Error(ctx, "document extraction failed", err, "path", path)
		return nil, err
	}

	extra := make(map[string]any, len(opts.Extra)+2)
	maps.Copy(extra, opts.Extra)
	extra["pageCount"] = ext.PageCount
	if len(ext.Info) > 0 {
		extra["info"] = ext.Info
	}

	return s.ingestText(ctx, RecordSpec{
		OwnerID:    ownerID,
		SourceName: sourceName,
		RecordType: RecordTypeDocumentChunk,
		Extra:      extra,
	}, ext.Text, opts, ext.PageCount)
}

func (s *Service) ingestText(ctx context.Context, spec RecordSpec, text string, opts IngestOptions, pageCount int) (*IngestResult, error) {
	maxSize, overlap := s.opts.MaxChunkSize, s.opts.OverlapSize
	switch {
	case opts.MaxChunkSize != 0:
		maxSize, overlap = opts.MaxChunkSize, opts.OverlapSize
	case opts.OverlapSize != 0:
		// 只给 overlap 时沿用默认 maxChunkSize
		overlap = opts.OverlapSize
	}

	chunks, err := Chunk(text, maxSize, overlap)
	if err != nil {
		return nil, err
	}

	res := &IngestResult{SourceName: spec.SourceName, ChunkCount: len(chunks), PageCount: pageCount}
	if len(chunks) == 0 {
		logger.Info(ctx, "document has no text, nothing to ingest")
		return res, nil
	}

	specFor := func(int) RecordSpec { return spec }
	if err := s.commit(ctx, specFor, chunks, res); err != nil {
		return res, err
	}

	if s.catalog != nil && len(res.RecordIDs) > 0 {
		entry := DocumentEntry{
			OwnerID:    spec.OwnerID,
			SourceName: spec.SourceName,
			RecordType: spec.RecordType,
			RecordIDs:  res.RecordIDs,
			ChunkCount: res.ChunkCount,
			PageCount:  pageCount,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.catalog.Record(ctx, entry); err != nil {
			// 向量已写入，目录失败不回滚
			logger.Error(ctx, "failed to record document in catalog", err)
		}
	}

	logger.Info(ctx, "document ingested",
		"chunks", res.ChunkCount,
		"stored", res.Committed(),
		"failed", len(res.Failed),
	)
	return res, nil
}

// commit 向量化并一次性写入 chunks，结果写入 res
func (s *Service) commit(ctx context.Context, specFor func(i int) RecordSpec, chunks []TextChunk, res *IngestResult) error {
	recordType := string(specFor(0).RecordType)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedded, err := s.embedTexts(ctx, texts)
	if err != nil {
		logger.Warn(ctx, "ingest cancelled before commit", "error", err.Error())
		return err
	}

	now := s.now()
	records := make([]VectorRecord, 0, len(chunks))
	for i, er := range embedded {
		if er.err != nil {
			res.Failed = append(res.Failed, ChunkFailure{Index: chunks[i].Index, Err: er.err})
			logger.Warn(ctx, "chunk embedding failed", "chunk_index", chunks[i].Index, "error", er.err.Error())
			continue
		}
		records = append(records, BuildRecord(specFor(i), chunks[i], er.vector, now))
	}

	if len(records) == 0 {
		metrics.RecordIngest(recordType, len(chunks), len(res.Failed))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = withRetry(ctx, s.opts.Retry, "upsert", func() (int, error) {
		return s.store.Upsert(ctx, records)
	})
	if err != nil {
		for _, r := range records {
			res.Failed = append(res.Failed, ChunkFailure{Index: r.Metadata.ChunkIndex, Err: err})
		}
		metrics.RecordIngest(recordType, len(chunks), len(res.Failed))
		logger.Error(ctx, "vector upsert failed", err, "records", len(records))
		return err
	}

	res.RecordIDs = make([]string, len(records))
	for i, r := range records {
		res.RecordIDs[i] = r.ID
	}
	metrics.RecordIngest(recordType, len(chunks), len(res.Failed))
	return nil
}

// Search 向量化查询并在 owner 范围内检索。空结果不是错误。
func (s *Service) Search(ctx context.Context, in SearchInput) (out *SearchOutput, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.Search")
	defer func() { tracer.End(span, err) }()
	start := time.Now()

	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Query = strings.TrimSpace(in.Query)
	if in.OwnerID == "" {
		return nil, apperrors.InvalidArgument("ownerId is required")
	}
	if in.Query == "" {
		return nil, apperrors.InvalidArgument("query is required")
	}
	if in.RecordType != "" && !in.RecordType.Valid() {
		return nil, apperrors.InvalidArgument("unknown recordType %q", in.RecordType)
	}
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID != "" {
		if in.RecordType != "" && in.RecordType != RecordTypeChatMessage {
			return nil, apperrors.InvalidArgument("sessionId only applies to recordType %q", RecordTypeChatMessage)
		}
		in.RecordType = RecordTypeChatMessage
	}
	if in.TopK <= 0 {
		in.TopK = s.opts.DefaultTopK
	}
	if in.TopK > s.opts.MaxTopK {
		in.TopK = s.opts.MaxTopK
	}
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, in.OwnerID)

	vec, err := s.embedOne(ctx, in.Query)
	if err != nil {
		metrics.RecordSearch("error", time.Since(start).Seconds())
		return nil, err
	}

	filter := Filter{OwnerID: in.OwnerID, RecordType: in.RecordType}
	if in.SessionID != "" {
		filter.SourceName = ChatSourceName(in.SessionID)
	}
	results, err := withRetry(ctx, s.opts.Retry, "query", func() ([]SearchResult, error) {
		return s.store.Query(ctx, vec, in.TopK, filter)
	})
	if err != nil {
		if s.opts.DegradeOnUnavailable && apperrors.IsCode(err, apperrors.CodeServiceUnavailable) {
			logger.Warn(ctx, "vector store unavailable, search degraded to empty result", "error", err.Error())
			metrics.RecordSearch("degraded", time.Since(start).Seconds())
			return &SearchOutput{Results: []SearchResult{}, DisabledReason: err.Error()}, nil
		}
		metrics.RecordSearch("error", time.Since(start).Seconds())
		return nil, err
	}

	if results == nil {
		results = []SearchResult{}
	}
	metrics.RecordSearch("ok", time.Since(start).Seconds())
	return &SearchOutput{Results: results}, nil
}

// DeleteDocument 删除 (ownerID, sourceName) 下的全部记录
func (s *Service) DeleteDocument(ctx context.Context, ownerID, sourceName string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.DeleteDocument")
	defer func() { tracer.End(span, err) }()

	ownerID, sourceName = strings.TrimSpace(ownerID), strings.TrimSpace(sourceName)
	if ownerID == "" || sourceName == "" {
		return 0, apperrors.InvalidArgument("ownerId and sourceName are required")
	}
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, ownerID)
	ctx = logger.WithContext(ctx, logger.SourceNameKey, sourceName)

	n, err = s.deleteByFilter(ctx, Filter{OwnerID: ownerID, SourceName: sourceName, RecordType: RecordTypeDocumentChunk})
	if err != nil {
		return 0, err
	}
	if s.catalog != nil {
		if err := s.catalog.Remove(ctx, ownerID, sourceName); err != nil {
			logger.Error(ctx, "failed to remove document from catalog", err)
		}
	}
	logger.Info(ctx, "document deleted", "deleted", n)
	return n, nil
}

// IngestChatMessages 每条非空消息写入一条 chat_message 记录
func (s *Service) IngestChatMessages(ctx context.Context, ownerID, sessionID string, messages []ChatMessage) (res *IngestResult, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.IngestChatMessages")
	defer func() { tracer.End(span, err) }()

	ownerID, sessionID = strings.TrimSpace(ownerID), strings.TrimSpace(sessionID)
	if ownerID == "" || sessionID == "" {
		return nil, apperrors.InvalidArgument("ownerId and sessionId are required")
	}
	sourceName := ChatSourceName(sessionID)
	ctx = logger.WithContext(ctx, logger.OwnerIDKey, ownerID)
	ctx = logger.WithContext(ctx, logger.SourceNameKey, sourceName)

	res = &IngestResult{SourceName: sourceName}
	var (
		chunks []TextChunk
		kept   []ChatMessage
	)
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		chunks = append(chunks, TextChunk{Index: len(chunks), Text: content, SourceSpan: Span{End: len(content)}})
		kept = append(kept, m)
	}
	res.ChunkCount = len(chunks)
	if len(chunks) == 0 {
		return res, nil
	}

	// 每条消息的展示字段不同
	specFor := func(i int) RecordSpec {
		return RecordSpec{
			OwnerID:    ownerID,
			SourceName: sourceName,
			RecordType: RecordTypeChatMessage,
			Extra: map[string]any{
				"sessionId": sessionID,
				"messageId": kept[i].ID,
				"role":      kept[i].Role,
			},
		}
	}
	if err := s.commit(ctx, specFor, chunks, res); err != nil {
		return res, err
	}
	logger.Info(ctx, "chat messages indexed", "messages", len(chunks), "stored", res.Committed())
	return res, nil
}

// DeleteChatSession 删除会话的全部消息向量
func (s *Service) DeleteChatSession(ctx context.Context, ownerID, sessionID string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.DeleteChatSession")
	defer func() { tracer.End(span, err) }()

	ownerID, sessionID = strings.TrimSpace(ownerID), strings.TrimSpace(sessionID)
	if ownerID == "" || sessionID == "" {
		return 0, apperrors.InvalidArgument("ownerId and sessionId are required")
	}
	return s.deleteByFilter(ctx, Filter{OwnerID: ownerID, SourceName: ChatSourceName(sessionID), RecordType: RecordTypeChatMessage})
}

// ListDocuments 列出 owner 已入库的文档
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]DocumentEntry, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.InvalidArgument("ownerId is required")
	}
	if s.catalog == nil {
		return []DocumentEntry{}, nil
	}
	entries, err := s.catalog.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []DocumentEntry{}
	}
	return entries, nil
}

// GetDocument 查询单个文档的目录条目，不存在时返回 DocumentNotFound
func (s *Service) GetDocument(ctx context.Context, ownerID, sourceName string) (*DocumentEntry, error) {
	ownerID, sourceName = strings.TrimSpace(ownerID), strings.TrimSpace(sourceName)
	if ownerID == "" || sourceName == "" {
		return nil, apperrors.InvalidArgument("ownerId and sourceName are required")
	}
	if s.catalog == nil {
		return nil, apperrors.ErrDocumentNotFound.WithDetail(sourceName)
	}
	entry, err := s.catalog.Get(ctx, ownerID, sourceName)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, apperrors.ErrDocumentNotFound.WithDetail(sourceName)
	}
	return entry, nil
}

// EnsureIndex 创建或确认远端索引，可在后端恢复后重复调用。
// 不需要建索引的后端直接返回 false。
func (s *Service) EnsureIndex(ctx context.Context) (ensured bool, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.EnsureIndex")
	defer func() { tracer.End(span, err) }()

	ie, ok := s.store.(IndexEnsurer)
	if !ok {
		return false, nil
	}
	_, err = withRetry(ctx, s.opts.Retry, "ensure_index", func() (struct{}, error) {
		return struct{}{}, ie.EnsureIndex(ctx, s.opts.IndexName, s.opts.Dimension, s.opts.Metric)
	})
	if err != nil {
		logger.Error(ctx, "failed to ensure vector index", err, "index", s.opts.IndexName)
		return false, err
	}
	logger.Info(ctx, "vector index ready", "index", s.opts.IndexName, "dimension", s.opts.Dimension)
	return true, nil
}

// Stats 存储统计
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return withRetry(ctx, s.opts.Retry, "stats", func() (Stats, error) {
		return s.store.Stats(ctx)
	})
}

// deleteByFilter 优先使用后端原生过滤删除，否则全量扫描：
// 以全零向量、topK = 总数查询匹配记录，再按 ID 删除。
func (s *Service) deleteByFilter(ctx context.Context, filter Filter) (int, error) {
	if fd, ok := s.store.(FilterDeleter); ok {
		return withRetry(ctx, s.opts.Retry, "delete_by_filter", func() (int, error) {
			return fd.DeleteByFilter(ctx, filter)
		})
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, err
	}
	if stats.TotalVectors == 0 {
		return 0, nil
	}
	if stats.Dimension <= 0 {
		return 0, fmt.Errorf("vector store reports invalid dimension %d", stats.Dimension)
	}

	zero := make([]float32, stats.Dimension)
	matches, err := withRetry(ctx, s.opts.Retry, "scan", func() ([]SearchResult, error) {
		return s.store.Query(ctx, zero, stats.TotalVectors, filter)
	})
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.RecordID
	}
	return withRetry(ctx, s.opts.Retry, "delete", func() (int, error) {
		return s.store.Delete(ctx, ids)
	})
}
