// Package milvus 提供 Milvus / Zilliz Cloud 向量存储实现
package milvus

import (
	"encoding/json"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"fixit-rag-api/internal/application/retrieval"
)

// 字段名
const (
	fieldID         = "id"
	fieldVector     = "vector"
	fieldOwnerID    = "owner_id"
	fieldSourceName = "source_name"
	fieldRecordType = "record_type"
	fieldChunkIndex = "chunk_index"
	fieldCreatedAt  = "created_at"
	fieldText       = "text"
	fieldExtra      = "extra"

	maxTextLength  = 65535
	maxExtraLength = 65535
)

// outputFields 检索时返回的标量字段
var outputFields = []string{
	fieldID, fieldOwnerID, fieldSourceName, fieldRecordType,
	fieldChunkIndex, fieldCreatedAt, fieldText, fieldExtra,
}

// RecordsSchema 向量记录 Collection Schema
func RecordsSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "Document chunk and chat message embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldOwnerID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldSourceName,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     fieldRecordType,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldChunkIndex,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldCreatedAt,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldText,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": strconv.Itoa(maxTextLength),
				},
			},
			{
				Name:     fieldExtra,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": strconv.Itoa(maxExtraLength),
				},
			},
		},
	}
}

// toColumns 将记录转为列式数据
func toColumns(records []retrieval.VectorRecord, dim int) ([]entity.Column, error) {
	n := len(records)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	owners := make([]string, n)
	sources := make([]string, n)
	types := make([]string, n)
	indexes := make([]int64, n)
	created := make([]int64, n)
	texts := make([]string, n)
	extras := make([]string, n)

	for i, r := range records {
		extra, err := encodeExtra(r.Metadata.Extra)
		if err != nil {
			return nil, err
		}
		ids[i] = r.ID
		vectors[i] = r.Embedding
		owners[i] = r.Metadata.OwnerID
		sources[i] = r.Metadata.SourceName
		types[i] = string(r.Metadata.RecordType)
		indexes[i] = int64(r.Metadata.ChunkIndex)
		created[i] = r.Metadata.CreatedAt.UnixMilli()
		texts[i] = truncateBytes(r.Metadata.Text, maxTextLength)
		extras[i] = extra
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldVector, dim, vectors),
		entity.NewColumnVarChar(fieldOwnerID, owners),
		entity.NewColumnVarChar(fieldSourceName, sources),
		entity.NewColumnVarChar(fieldRecordType, types),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldCreatedAt, created),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldExtra, extras),
	}, nil
}

// rowReader 按行读取结果列
type rowReader struct {
	ids, owners, sources, types, texts, extras []string
	indexes, created                           []int64
}

type columnSet interface {
	GetColumn(name string) entity.Column
}

func newRowReader(cols columnSet) rowReader {
	var r rowReader
	r.ids = varchars(cols, fieldID)
	r.owners = varchars(cols, fieldOwnerID)
	r.sources = varchars(cols, fieldSourceName)
	r.types = varchars(cols, fieldRecordType)
	r.texts = varchars(cols, fieldText)
	r.extras = varchars(cols, fieldExtra)
	r.indexes = int64s(cols, fieldChunkIndex)
	r.created = int64s(cols, fieldCreatedAt)
	return r
}

func (r rowReader) id(i int) string {
	return at(r.ids, i)
}

func (r rowReader) metadata(i int) retrieval.Metadata {
	m := retrieval.Metadata{
		OwnerID:    at(r.owners, i),
		SourceName: at(r.sources, i),
		RecordType: retrieval.RecordType(at(r.types, i)),
		ChunkIndex: int(at(r.indexes, i)),
		Text:       at(r.texts, i),
	}
	if ms := at(r.created, i); ms != 0 {
		m.CreatedAt = time.UnixMilli(ms).UTC()
	}
	// extra 损坏时只丢弃展示字段
	m.Extra, _ = decodeExtra(at(r.extras, i))
	return m
}

func varchars(cols columnSet, name string) []string {
	if c, ok := cols.GetColumn(name).(*entity.ColumnVarChar); ok {
		return c.Data()
	}
	return nil
}

func int64s(cols columnSet, name string) []int64 {
	if c, ok := cols.GetColumn(name).(*entity.ColumnInt64); ok {
		return c.Data()
	}
	return nil
}

func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}

func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	if len(b) > maxExtraLength {
		return "", errExtraTooLarge
	}
	return string(b), nil
}

func decodeExtra(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// truncateBytes 按字节上限截断，不切断 UTF-8 字符
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
