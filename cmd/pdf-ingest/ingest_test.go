package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit-rag-api/internal/application/retrieval"
	apperrors "fixit-rag-api/pkg/errors"
)

type fakeIngester struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeIngester) IngestFile(_ context.Context, ownerID, sourceName, _ string, _ retrieval.IngestOptions) (*retrieval.IngestResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ownerID+"/"+sourceName)
	f.mu.Unlock()

	if err, ok := f.fail[sourceName]; ok {
		return nil, err
	}
	return &retrieval.IngestResult{
		SourceName: sourceName,
		ChunkCount: 3,
		PageCount:  2,
		RecordIDs:  []string{"a", "b", "c"},
	}, nil
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf", "b.PDF", "broken.pdf", "notes.txt")

	ing := &fakeIngester{fail: map[string]error{
		"broken.pdf": apperrors.ExtractionFailed("broken.pdf", nil),
	}}
	reports, err := runBatch(context.Background(), ing, batchOptions{
		Dir:          dir,
		ProcessedDir: "processed",
		OwnerID:      "system",
		Concurrency:  2,
		Ext:          ".pdf",
	})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.ElementsMatch(t, []string{"system/a.pdf", "system/b.PDF", "system/broken.pdf"}, ing.calls)

	byName := map[string]fileReport{}
	for _, r := range reports {
		byName[r.Name] = r
	}
	assert.True(t, byName["a.pdf"].Moved)
	assert.Equal(t, 3, byName["a.pdf"].Stored)
	assert.Equal(t, 2, byName["a.pdf"].Pages)
	assert.False(t, byName["broken.pdf"].Moved)
	assert.Error(t, byName["broken.pdf"].Err)

	assert.FileExists(t, filepath.Join(dir, "processed", "a.pdf"))
	assert.FileExists(t, filepath.Join(dir, "processed", "b.PDF"))
	assert.FileExists(t, filepath.Join(dir, "broken.pdf"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "a.pdf"))

	var buf bytes.Buffer
	printSummary(&buf, reports)
	assert.Contains(t, buf.String(), "2 file(s) processed, 1 failed")
}

func TestRunBatch_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	reports, err := runBatch(context.Background(), &fakeIngester{}, batchOptions{Dir: dir, ProcessedDir: "processed", OwnerID: "system", Ext: ".pdf"})
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.NoDirExists(t, filepath.Join(dir, "processed"))
}

func TestRunBatch_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.pdf", "b.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ing := &fakeIngester{}
	_, err := runBatch(ctx, ing, batchOptions{Dir: dir, ProcessedDir: "processed", OwnerID: "system", Concurrency: 1, Ext: ".pdf"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ing.calls)
}

func TestRunBatch_MissingDir(t *testing.T) {
	_, err := runBatch(context.Background(), &fakeIngester{}, batchOptions{Dir: filepath.Join(t.TempDir(), "nope"), Ext: ".pdf"})
	assert.Error(t, err)
}
