package retrieval

import (
	"maps"
	"time"
)

// RecordType 向量记录类型，用于过滤
type RecordType string

const (
	RecordTypeDocumentChunk RecordType = "document_chunk"
	RecordTypeChatMessage   RecordType = "chat_message"
)

// Valid 是否为已知类型
func (t RecordType) Valid() bool {
	return t == RecordTypeDocumentChunk || t == RecordTypeChatMessage
}

// Span 分片在原文中的近似字节区间 [Start, End)
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// TextChunk 切分结果
type TextChunk struct {
	Index      int
	Text       string
	SourceSpan Span
}

// Metadata 向量元数据。
// OwnerID/SourceName/RecordType 参与过滤，Extra 仅用于展示，存储层不解释。
type Metadata struct {
	OwnerID    string         `json:"ownerId"`
	SourceName string         `json:"sourceName"`
	RecordType RecordType     `json:"recordType"`
	ChunkIndex int            `json:"chunkIndex"`
	CreatedAt  time.Time      `json:"createdAt"`
	Text       string         `json:"text,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Clone 返回副本（Extra 浅拷贝）
func (m Metadata) Clone() Metadata {
	cp := m
	if m.Extra != nil {
		cp.Extra = maps.Clone(m.Extra)
	}
	return cp
}

// VectorRecord 一条可存储的向量
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  Metadata
}

// Filter 元数据精确匹配条件，空字段不参与过滤
type Filter struct {
	OwnerID    string
	SourceName string
	RecordType RecordType
}

// Match 判断元数据是否满足全部条件
func (f Filter) Match(m Metadata) bool {
	if f.OwnerID != "" && m.OwnerID != f.OwnerID {
		return false
	}
	if f.SourceName != "" && m.SourceName != f.SourceName {
		return false
	}
	if f.RecordType != "" && m.RecordType != f.RecordType {
		return false
	}
	return true
}

// IsEmpty 没有任何条件
func (f Filter) IsEmpty() bool {
	return f.OwnerID == "" && f.SourceName == "" && f.RecordType == ""
}

// SearchResult 检索结果，Score 越大越相似
type SearchResult struct {
	RecordID string   `json:"recordId"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Stats 存储统计
type Stats struct {
	Backend      string
	TotalVectors int
	Dimension    int
	// ByRecordType 后端无法统计时为 nil
	ByRecordType map[RecordType]int
}

// ChunkFailure 单个分片失败
type ChunkFailure struct {
	Index int
	Err   error
}

// IngestResult 入库结果。
// RecordIDs 只包含已提交的记录；Failed 非空表示部分失败。
type IngestResult struct {
	SourceName string
	ChunkCount int
	PageCount  int
	RecordIDs  []string
	Failed     []ChunkFailure
}

// Committed 已写入的记录数
func (r *IngestResult) Committed() int {
	return len(r.RecordIDs)
}

// IngestOptions 切分参数。
// MaxChunkSize 为 0 时两项均使用服务默认值，否则按原值使用（OverlapSize 可为 0）。
type IngestOptions struct {
	MaxChunkSize int
	OverlapSize  int
	// Extra 附加到每条记录的展示字段
	Extra map[string]any
}

// SearchInput 检索输入
type SearchInput struct {
	OwnerID    string
	Query      string
	TopK       int
	RecordType RecordType
	// SessionID 非空时只检索该聊天会话的消息
	SessionID  string
}

// SearchOutput 检索输出
type SearchOutput struct {
	Results []SearchResult
	// DisabledReason 非空表示检索被降级（后端不可用），Results 为空
	DisabledReason string
}

// ChatMessage 需要索引的聊天消息
type ChatMessage struct {
	ID      string
	Role    string
	Content string
}

// DocumentEntry 文档目录条目
type DocumentEntry struct {
	OwnerID    string
	SourceName string
	RecordType RecordType
	RecordIDs  []string
	ChunkCount int
	PageCount  int
	CreatedAt  time.Time
}

// Extraction 文档解析结果
type Extraction struct {
	Text      string
	PageCount int
	Info      map[string]string
}
