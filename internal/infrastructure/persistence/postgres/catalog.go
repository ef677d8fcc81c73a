package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fixit-rag-api/internal/application/retrieval"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/tracer"
)

// documentRow 文档目录表
type documentRow struct {
	OwnerID    string         `gorm:"column:owner_id;primaryKey;size:128"`
	SourceName string         `gorm:"column:source_name;primaryKey;size:512"`
	RecordType string         `gorm:"column:record_type;size:32;not null"`
	RecordIDs  pq.StringArray `gorm:"column:record_ids;type:text[]"`
	ChunkCount int            `gorm:"column:chunk_count;not null;default:0"`
	PageCount  int            `gorm:"column:page_count;not null;default:0"`
	CreatedAt  time.Time      `gorm:"column:created_at;index"`
}

func (documentRow) TableName() string {
	return "vector_documents"
}

func rowFromEntry(e retrieval.DocumentEntry) documentRow {
	return documentRow{
		OwnerID:    e.OwnerID,
		SourceName: e.SourceName,
		RecordType: string(e.RecordType),
		RecordIDs:  pq.StringArray(e.RecordIDs),
		ChunkCount: e.ChunkCount,
		PageCount:  e.PageCount,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}

func (r documentRow) entry() retrieval.DocumentEntry {
	ids := []string(r.RecordIDs)
	if ids == nil {
		ids = []string{}
	}
	return retrieval.DocumentEntry{
		OwnerID:    r.OwnerID,
		SourceName: r.SourceName,
		RecordType: retrieval.RecordType(r.RecordType),
		RecordIDs:  ids,
		ChunkCount: r.ChunkCount,
		PageCount:  r.PageCount,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// Catalog PostgreSQL 文档目录
type Catalog struct {
	client *Client
}

var _ retrieval.DocumentCatalog = (*Catalog)(nil)

// NewCatalog 创建文档目录
func NewCatalog(client *Client) *Catalog {
	return &Catalog{client: client}
}

// Migrate 建表（幂等）
func (c *Catalog) Migrate(ctx context.Context) error {
	if err := c.client.db.WithContext(ctx).AutoMigrate(&documentRow{}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to migrate document catalog")
	}
	return nil
}

// Record 同一 (owner, source) 重复入库时覆盖
func (c *Catalog) Record(ctx context.Context, entry retrieval.DocumentEntry) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.Catalog.Record")
	defer func() { tracer.End(span, err) }()

	row := rowFromEntry(entry)
	err = c.client.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: "source_name"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to record document")
	}
	return nil
}

// Get 不存在时返回 nil, nil
func (c *Catalog) Get(ctx context.Context, ownerID, sourceName string) (_ *retrieval.DocumentEntry, err error) {
	ctx, span := tracer.Start(ctx, "postgres.Catalog.Get")
	defer func() { tracer.End(span, err) }()

	var row documentRow
	err = c.client.db.WithContext(ctx).
		Where("owner_id = ? AND source_name = ?", ownerID, sourceName).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to get document")
	}
	e := row.entry()
	return &e, nil
}

// List 按创建时间倒序
func (c *Catalog) List(ctx context.Context, ownerID string) (_ []retrieval.DocumentEntry, err error) {
	ctx, span := tracer.Start(ctx, "postgres.Catalog.List")
	defer func() { tracer.End(span, err) }()

	var rows []documentRow
	err = c.client.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, source_name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list documents")
	}

	out := make([]retrieval.DocumentEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out, nil
}

// Remove 不存在时为空操作
func (c *Catalog) Remove(ctx context.Context, ownerID, sourceName string) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.Catalog.Remove")
	defer func() { tracer.End(span, err) }()

	err = c.client.db.WithContext(ctx).
		Where("owner_id = ? AND source_name = ?", ownerID, sourceName).
		Delete(&documentRow{}).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to remove document")
	}
	return nil
}
