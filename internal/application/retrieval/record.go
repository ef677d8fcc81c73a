package retrieval

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatSourceName 聊天会话在向量库中的 sourceName
func ChatSourceName(sessionID string) string {
	return "chat_session:" + strings.TrimSpace(sessionID)
}

// RecordSpec 构建记录所需信息
type RecordSpec struct {
	OwnerID    string
	SourceName string
	RecordType RecordType
	Extra      map[string]any
}

// BuildRecord 由分片与向量组装 VectorRecord，生成新 ID
func BuildRecord(spec RecordSpec, chunk TextChunk, embedding []float32, now time.Time) VectorRecord {
	extra := make(map[string]any, len(spec.Extra)+2)
	maps.Copy(extra, spec.Extra)
	extra["startChar"] = chunk.SourceSpan.Start
	extra["endChar"] = chunk.SourceSpan.End

	return VectorRecord{
		ID:        uuid.NewString(),
		Embedding: embedding,
		Metadata: Metadata{
			OwnerID:    spec.OwnerID,
			SourceName: spec.SourceName,
			RecordType: spec.RecordType,
			ChunkIndex: chunk.Index,
			CreatedAt:  now.UTC(),
			Text:       chunk.Text,
			Extra:      extra,
		},
	}
}
