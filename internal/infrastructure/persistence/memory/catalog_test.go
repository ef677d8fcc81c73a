package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit-rag-api/internal/application/retrieval"
)

func TestCatalog_RecordListRemove(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, c.Record(ctx, retrieval.DocumentEntry{OwnerID: "u1", SourceName: "a.pdf", RecordIDs: []string{"1"}, CreatedAt: t0}))
	require.NoError(t, c.Record(ctx, retrieval.DocumentEntry{OwnerID: "u1", SourceName: "b.pdf", RecordIDs: []string{"2"}, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, c.Record(ctx, retrieval.DocumentEntry{OwnerID: "u2", SourceName: "c.pdf", CreatedAt: t0}))

	list, err := c.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.pdf", list[0].SourceName)

	got, err := c.Get(ctx, "u1", "a.pdf")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"1"}, got.RecordIDs)

	require.NoError(t, c.Remove(ctx, "u1", "a.pdf"))
	require.NoError(t, c.Remove(ctx, "u1", "missing.pdf"))

	got, err = c.Get(ctx, "u1", "a.pdf")
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err = c.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
