package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"fixit-rag-api/internal/application/retrieval"
)

type catalogKey struct {
	owner, source string
}

// Catalog 进程内文档目录
type Catalog struct {
	mu      sync.RWMutex
	entries map[catalogKey]retrieval.DocumentEntry
}

var _ retrieval.DocumentCatalog = (*Catalog)(nil)

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[catalogKey]retrieval.DocumentEntry)}
}

// Record 同一 (owner, source) 重复入库时覆盖
func (c *Catalog) Record(_ context.Context, entry retrieval.DocumentEntry) error {
	entry.RecordIDs = slices.Clone(entry.RecordIDs)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[catalogKey{entry.OwnerID, entry.SourceName}] = entry
	return nil
}

// Get 不存在时返回 nil, nil
func (c *Catalog) Get(_ context.Context, ownerID, sourceName string) (*retrieval.DocumentEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[catalogKey{ownerID, sourceName}]
	if !ok {
		return nil, nil
	}
	e.RecordIDs = slices.Clone(e.RecordIDs)
	return &e, nil
}

// List 按创建时间倒序
func (c *Catalog) List(_ context.Context, ownerID string) ([]retrieval.DocumentEntry, error) {
	c.mu.RLock()
	out := make([]retrieval.DocumentEntry, 0)
	for k, e := range c.entries {
		if k.owner == ownerID {
			e.RecordIDs = slices.Clone(e.RecordIDs)
			out = append(out, e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SourceName < out[j].SourceName
	})
	return out, nil
}

// Remove 不存在时为空操作
func (c *Catalog) Remove(_ context.Context, ownerID, sourceName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, catalogKey{ownerID, sourceName})
	return nil
}
