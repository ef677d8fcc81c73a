package dto

import (
	"time"

	"fixit-rag-api/internal/application/retrieval"
)

// IngestTextRequest 文本入库请求
type IngestTextRequest struct {
	SourceName   string         `json:"sourceName" binding:"required,max=512"`
	Text         string         `json:"text" binding:"required"`
	MaxChunkSize int            `json:"maxChunkSize,omitempty" binding:"omitempty,min=1"`
	OverlapSize  int            `json:"overlapSize,omitempty" binding:"omitempty,min=0"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Options 转换为切分参数
func (r *IngestTextRequest) Options() retrieval.IngestOptions {
	return retrieval.IngestOptions{
		MaxChunkSize: r.MaxChunkSize,
		OverlapSize:  r.OverlapSize,
		Extra:        r.Metadata,
	}
}

// ChunkFailure 单个分片的失败原因
type ChunkFailure struct {
	ChunkIndex int    `json:"chunkIndex"`
	Error      string `json:"error"`
}

// IngestResponse 入库响应
type IngestResponse struct {
	SourceName  string         `json:"sourceName"`
	ChunkCount  int            `json:"chunkCount"`
	StoredCount int            `json:"storedCount"`
	PageCount   int            `json:"pageCount,omitempty"`
	RecordIDs   []string       `json:"recordIds"`
	Failed      []ChunkFailure `json:"failed,omitempty"`
}

// NewIngestResponse 从入库结果构造响应
func NewIngestResponse(res *retrieval.IngestResult) *IngestResponse {
	out := &IngestResponse{
		SourceName:  res.SourceName,
		ChunkCount:  res.ChunkCount,
		StoredCount: res.Committed(),
		PageCount:   res.PageCount,
		RecordIDs:   res.RecordIDs,
	}
	if out.RecordIDs == nil {
		out.RecordIDs = []string{}
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, ChunkFailure{ChunkIndex: f.Index, Error: f.Err.Error()})
	}
	return out
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query      string `json:"query" binding:"required,max=5000"`
	TopK       int    `json:"topK,omitempty" binding:"omitempty,min=1"`
	RecordType string `json:"recordType,omitempty"`
	SessionID  string `json:"sessionId,omitempty" binding:"omitempty,max=128"`
}

// SearchHit 单条命中
type SearchHit struct {
	RecordID   string         `json:"recordId"`
	Score      float64        `json:"score"`
	SourceName string         `json:"sourceName"`
	RecordType string         `json:"recordType"`
	ChunkIndex int            `json:"chunkIndex"`
	Text       string         `json:"text,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchResponse 检索响应
type SearchResponse struct {
	Results        []SearchHit `json:"results"`
	DisabledReason string      `json:"disabledReason,omitempty"`
}

// NewSearchResponse 从检索输出构造响应
func NewSearchResponse(out *retrieval.SearchOutput) *SearchResponse {
	resp := &SearchResponse{
		Results:        make([]SearchHit, 0, len(out.Results)),
		DisabledReason: out.DisabledReason,
	}
	for _, r := range out.Results {
		resp.Results = append(resp.Results, SearchHit{
			RecordID:   r.RecordID,
			Score:      r.Score,
			SourceName: r.Metadata.SourceName,
			RecordType: string(r.Metadata.RecordType),
			ChunkIndex: r.Metadata.ChunkIndex,
			Text:       r.Metadata.Text,
			CreatedAt:  r.Metadata.CreatedAt,
			Metadata:   r.Metadata.Extra,
		})
	}
	return resp
}

// DocumentResponse 文档目录条目
type DocumentResponse struct {
	SourceName string    `json:"sourceName"`
	RecordType string    `json:"recordType"`
	ChunkCount int       `json:"chunkCount"`
	PageCount  int       `json:"pageCount,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DocumentListResponse 文档列表
type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

// DocumentDetailResponse 单个文档详情
type DocumentDetailResponse struct {
	DocumentResponse
	RecordIDs []string `json:"recordIds"`
}

func newDocumentResponse(e retrieval.DocumentEntry) DocumentResponse {
	return DocumentResponse{
		SourceName: e.SourceName,
		RecordType: string(e.RecordType),
		ChunkCount: e.ChunkCount,
		PageCount:  e.PageCount,
		CreatedAt:  e.CreatedAt,
	}
}

// NewDocumentListResponse 从目录条目构造响应
func NewDocumentListResponse(entries []retrieval.DocumentEntry) *DocumentListResponse {
	out := &DocumentListResponse{Documents: make([]DocumentResponse, 0, len(entries))}
	for _, e := range entries {
		out.Documents = append(out.Documents, newDocumentResponse(e))
	}
	return out
}

// NewDocumentDetailResponse 包含记录 ID 的文档详情
func NewDocumentDetailResponse(e *retrieval.DocumentEntry) *DocumentDetailResponse {
	ids := e.RecordIDs
	if ids == nil {
		ids = []string{}
	}
	return &DocumentDetailResponse{DocumentResponse: newDocumentResponse(*e), RecordIDs: ids}
}

// IndexResponse 建索引结果。Ensured 为 false 表示当前后端无需建索引。
type IndexResponse struct {
	Ensured   bool   `json:"ensured"`
	IndexName string `json:"indexName,omitempty"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// DeleteResponse 删除响应
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
}

// ChatMessagesRequest 聊天消息入库请求
type ChatMessagesRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

// ToMessages 转换为服务层消息
func (r *ChatMessagesRequest) ToMessages() []retrieval.ChatMessage {
	out := make([]retrieval.ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = retrieval.ChatMessage{ID: m.ID, Role: m.Role, Content: m.Content}
	}
	return out
}

// StatsResponse 存储统计
type StatsResponse struct {
	Backend      string         `json:"backend"`
	TotalVectors int            `json:"totalVectors"`
	Dimension    int            `json:"dimension"`
	ByRecordType map[string]int `json:"byRecordType,omitempty"`
}

// NewStatsResponse 从统计构造响应
func NewStatsResponse(st retrieval.Stats) *StatsResponse {
	out := &StatsResponse{
		Backend:      st.Backend,
		TotalVectors: st.TotalVectors,
		Dimension:    st.Dimension,
	}
	if st.ByRecordType != nil {
		out.ByRecordType = make(map[string]int, len(st.ByRecordType))
		for k, v := range st.ByRecordType {
			out.ByRecordType[string(k)] = v
		}
	}
	return out
}
