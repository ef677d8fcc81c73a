package milvus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/config"
	apperrors "fixit-rag-api/pkg/errors"
)

// fakeAPI 内存中的 Milvus SDK 替身，只记录调用并返回预设结果
type fakeAPI struct {
	mu sync.Mutex

	hasCollection bool
	index         entity.Index
	created       int
	indexed       int
	loaded        int

	upserted   [][]entity.Column
	searchExpr string
	search     []client.SearchResult
	searchErr  error
	block      bool

	queryFn     func(expr string, fields []string) (client.ResultSet, error)
	deletedPks  []string
	deletedExpr string
}

func (f *fakeAPI) HasCollection(ctx context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasCollection, nil
}

func (f *fakeAPI) CreateCollection(_ context.Context, _ *entity.Schema, _ int32, _ ...client.CreateCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.hasCollection = true
	return nil
}

func (f *fakeAPI) DescribeIndex(_ context.Context, _ string, _ string, _ ...client.IndexOption) ([]entity.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index == nil {
		return nil, errors.New("index not found")
	}
	return []entity.Index{f.index}, nil
}

func (f *fakeAPI) CreateIndex(_ context.Context, _ string, _ string, idx entity.Index, _ bool, _ ...client.IndexOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed++
	f.index = idx
	return nil
}

func (f *fakeAPI) LoadCollection(_ context.Context, _ string, _ bool, _ ...client.LoadCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded++
	return nil
}

func (f *fakeAPI) Upsert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, columns)
	return nil, nil
}

func (f *fakeAPI) Search(ctx context.Context, _ string, _ []string, expr string, _ []string,
	_ []entity.Vector, _ string, _ entity.MetricType, _ int, _ entity.SearchParam,
	_ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchExpr = expr
	return f.search, f.searchErr
}

func (f *fakeAPI) Query(_ context.Context, _ string, _ []string, expr string, fields []string,
	_ ...client.SearchQueryOptionFunc) (client.ResultSet, error) {
	if f.queryFn == nil {
		return client.ResultSet{}, nil
	}
	return f.queryFn(expr, fields)
}

func (f *fakeAPI) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedExpr = expr
	return nil
}

func (f *fakeAPI) DeleteByPks(_ context.Context, _ string, _ string, ids entity.Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := ids.(*entity.ColumnVarChar); ok {
		f.deletedPks = append(f.deletedPks, c.Data()...)
	}
	return nil
}

func (f *fakeAPI) Close() error { return nil }

func testConfig() config.MilvusConfig {
	return config.MilvusConfig{
		Address:   "localhost:19530",
		IndexName: "fixit_vectors",
		Dimension: 3,
		Metric:    "cosine",
		Timeout:   time.Second,
	}
}

func newTestStore(cfg config.MilvusConfig, f *fakeAPI) *Store {
	c := &Client{cfg: cfg, dial: func(context.Context, config.MilvusConfig) (api, error) { return f, nil }}
	return newStore(cfg, c)
}

func resultSet(ids, owners []string, types []string) client.ResultSet {
	n := len(ids)
	sources := make([]string, n)
	texts := make([]string, n)
	extras := make([]string, n)
	indexes := make([]int64, n)
	created := make([]int64, n)
	for i := range ids {
		sources[i] = "manual.pdf"
		texts[i] = "text " + ids[i]
		extras[i] = `{"pageCount":2}`
		indexes[i] = int64(i)
		created[i] = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	}
	return client.ResultSet{
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldOwnerID, owners),
		entity.NewColumnVarChar(fieldSourceName, sources),
		entity.NewColumnVarChar(fieldRecordType, types),
		entity.NewColumnInt64(fieldChunkIndex, indexes),
		entity.NewColumnInt64(fieldCreatedAt, created),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldExtra, extras),
	}
}

func TestStore_MissingConfigIsUnavailable(t *testing.T) {
	dialed := false
	cfg := config.MilvusConfig{Address: "localhost:19530"}
	s := newStore(cfg, &Client{cfg: cfg, dial: func(context.Context, config.MilvusConfig) (api, error) {
		dialed = true
		return nil, errors.New("unexpected dial")
	}})
	ctx := context.Background()

	require.Error(t, s.Disabled())
	assert.Contains(t, s.Disabled().Error(), "index_name")
	assert.Contains(t, s.Disabled().Error(), "dimension")

	_, err := s.Query(ctx, []float32{1}, 1, retrieval.Filter{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	_, err = s.Upsert(ctx, []retrieval.VectorRecord{{ID: "a", Embedding: []float32{1}}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	_, err = s.Stats(ctx)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	err = s.EnsureIndex(ctx, "x", 3, "cosine")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	assert.False(t, dialed)
}

func TestStore_DialFailureRetriedOnNextCall(t *testing.T) {
	cfg := testConfig()
	dials := 0
	s := newStore(cfg, &Client{cfg: cfg, dial: func(context.Context, config.MilvusConfig) (api, error) {
		dials++
		return nil, errors.New("connection refused")
	}})

	for i := 0; i < 2; i++ {
		_, err := s.Stats(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	}
	assert.Equal(t, 2, dials)
}

func TestStore_EnsureIndex(t *testing.T) {
	f := &fakeAPI{}
	s := newTestStore(testConfig(), f)
	ctx := context.Background()

	_, err := s.Query(ctx, []float32{1, 0, 0}, 1, retrieval.Filter{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	assert.Contains(t, err.Error(), "does not exist")

	require.NoError(t, s.EnsureIndex(ctx, "fixit_vectors", 3, "cosine"))
	require.NoError(t, s.EnsureIndex(ctx, "fixit_vectors", 3, "COSINE"))
	assert.Equal(t, 1, f.created)
	assert.Equal(t, 1, f.indexed)
	assert.Equal(t, 2, f.loaded)

	_, err = s.Query(ctx, []float32{1, 0, 0}, 1, retrieval.Filter{})
	require.NoError(t, err)

	assert.True(t, apperrors.IsCode(s.EnsureIndex(ctx, "other", 3, "cosine"), apperrors.CodeInvalidParam))
	assert.True(t, apperrors.IsCode(s.EnsureIndex(ctx, "fixit_vectors", 4, "cosine"), apperrors.CodeInvalidParam))
	assert.True(t, apperrors.IsCode(s.EnsureIndex(ctx, "fixit_vectors", 3, "l2"), apperrors.CodeInvalidParam))
}

func TestStore_UpsertColumns(t *testing.T) {
	f := &fakeAPI{hasCollection: true}
	s := newTestStore(testConfig(), f)

	n, err := s.Upsert(context.Background(), []retrieval.VectorRecord{{
		ID:        "r1",
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata: retrieval.Metadata{
			OwnerID:    "u1",
			SourceName: "manual.pdf",
			RecordType: retrieval.RecordTypeDocumentChunk,
			ChunkIndex: 4,
			Text:       "Replace the fuse.",
			Extra:      map[string]any{"pageCount": 2},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.upserted, 1)

	cols := map[string]entity.Column{}
	for _, c := range f.upserted[0] {
		cols[c.Name()] = c
	}
	assert.Len(t, cols, 9)
	assert.Equal(t, []string{"u1"}, cols[fieldOwnerID].(*entity.ColumnVarChar).Data())
	assert.Equal(t, []int64{4}, cols[fieldChunkIndex].(*entity.ColumnInt64).Data())

	var extra map[string]any
	require.NoError(t, json.Unmarshal([]byte(cols[fieldExtra].(*entity.ColumnVarChar).Data()[0]), &extra))
	assert.Equal(t, 2.0, extra["pageCount"])
}

func TestStore_UpsertValidatesBeforeCalling(t *testing.T) {
	f := &fakeAPI{hasCollection: true}
	s := newTestStore(testConfig(), f)

	_, err := s.Upsert(context.Background(), []retrieval.VectorRecord{{ID: "r1", Embedding: []float32{1, 2}}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
	_, err = s.Upsert(context.Background(), []retrieval.VectorRecord{{Embedding: []float32{1, 2, 3}}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))
	assert.Empty(t, f.upserted)
}

func TestStore_QueryRanksAndFilters(t *testing.T) {
	f := &fakeAPI{
		hasCollection: true,
		search: []client.SearchResult{{
			ResultCount: 3,
			Scores:      []float32{0.5, 0.5, 0.9},
			Fields: resultSet([]string{"b", "a", "c"}, []string{"u1", "u1", "u1"},
				[]string{"document_chunk", "document_chunk", "document_chunk"}),
		}},
	}
	s := newTestStore(testConfig(), f)

	res, err := s.Query(context.Background(), []float32{1, 0, 0}, 2,
		retrieval.Filter{OwnerID: "u1", RecordType: retrieval.RecordTypeDocumentChunk})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "c", res[0].RecordID)
	assert.Equal(t, "a", res[1].RecordID)
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
	assert.Equal(t, `owner_id == "u1" && record_type == "document_chunk"`, f.searchExpr)

	md := res[0].Metadata
	assert.Equal(t, "u1", md.OwnerID)
	assert.Equal(t, "manual.pdf", md.SourceName)
	assert.Equal(t, "text c", md.Text)
	assert.Equal(t, 2, md.ChunkIndex)
	assert.Equal(t, 2.0, md.Extra["pageCount"])
	assert.Equal(t, 2026, md.CreatedAt.Year())
}

func TestStore_ZeroVectorScansWithZeroScores(t *testing.T) {
	var gotExpr string
	f := &fakeAPI{
		hasCollection: true,
		queryFn: func(expr string, _ []string) (client.ResultSet, error) {
			gotExpr = expr
			return resultSet([]string{"z", "m", "a"}, []string{"u1", "u1", "u1"},
				[]string{"chat_message", "chat_message", "chat_message"}), nil
		},
	}
	s := newTestStore(testConfig(), f)

	res, err := s.Query(context.Background(), []float32{0, 0, 0}, 10, retrieval.Filter{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{"a", "m", "z"}, []string{res[0].RecordID, res[1].RecordID, res[2].RecordID})
	for _, r := range res {
		assert.Equal(t, 0.0, r.Score)
	}
	assert.Equal(t, `owner_id == "u1"`, gotExpr)
	assert.Empty(t, f.searchExpr)
}

func TestStore_TimeoutIsServiceUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	f := &fakeAPI{hasCollection: true, block: true}
	s := newTestStore(cfg, f)

	_, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, retrieval.Filter{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_CallerCancellationPassesThrough(t *testing.T) {
	f := &fakeAPI{hasCollection: true}
	s := newTestStore(testConfig(), f)
	_, err := s.Stats(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Query(ctx, []float32{1, 0, 0}, 1, retrieval.Filter{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
}

func TestStore_DeleteCountsExisting(t *testing.T) {
	var gotExpr string
	f := &fakeAPI{
		hasCollection: true,
		queryFn: func(expr string, _ []string) (client.ResultSet, error) {
			gotExpr = expr
			if strings.Contains(expr, `"a"`) {
				return client.ResultSet{entity.NewColumnVarChar(fieldID, []string{"a"})}, nil
			}
			return client.ResultSet{entity.NewColumnVarChar(fieldID, []string{})}, nil
		},
	}
	s := newTestStore(testConfig(), f)
	ctx := context.Background()

	n, err := s.Delete(ctx, []string{"a", "zz"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, `id in ["a", "zz"]`, gotExpr)
	assert.Equal(t, []string{"a"}, f.deletedPks)

	n, err = s.Delete(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"a"}, f.deletedPks)

	n, err = s.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStore_DeleteByFilter(t *testing.T) {
	f := &fakeAPI{
		hasCollection: true,
		queryFn: func(string, []string) (client.ResultSet, error) {
			return client.ResultSet{entity.NewColumnVarChar(fieldID, []string{"a", "b"})}, nil
		},
	}
	s := newTestStore(testConfig(), f)
	ctx := context.Background()

	_, err := s.DeleteByFilter(ctx, retrieval.Filter{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParam))

	n, err := s.DeleteByFilter(ctx, retrieval.Filter{OwnerID: "u1", SourceName: "chat_session:s1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, `owner_id == "u1" && source_name == "chat_session:s1"`, f.deletedExpr)
}

func TestStore_Stats(t *testing.T) {
	f := &fakeAPI{
		hasCollection: true,
		queryFn: func(_ string, fields []string) (client.ResultSet, error) {
			if len(fields) == 1 && fields[0] == countField {
				return client.ResultSet{entity.NewColumnInt64(countField, []int64{7})}, nil
			}
			return nil, errors.New("unexpected query")
		},
	}
	s := newTestStore(testConfig(), f)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "milvus", st.Backend)
	assert.Equal(t, 7, st.TotalVectors)
	assert.Equal(t, 3, st.Dimension)
	assert.Nil(t, st.ByRecordType)
}

func TestFilterExpr(t *testing.T) {
	tests := []struct {
		name   string
		filter retrieval.Filter
		want   string
	}{
		{"empty", retrieval.Filter{}, ""},
		{"owner", retrieval.Filter{OwnerID: "u1"}, `owner_id == "u1"`},
		{"all", retrieval.Filter{OwnerID: "u1", SourceName: "a.pdf", RecordType: retrieval.RecordTypeChatMessage},
			`owner_id == "u1" && source_name == "a.pdf" && record_type == "chat_message"`},
		{"escaped", retrieval.Filter{OwnerID: `a"b\c`}, `owner_id == "a\"b\\c"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterExpr(tt.filter))
		})
	}
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 10))
	// "螺" 占 3 字节，不能被截断
	assert.Equal(t, "ab", truncateBytes("ab螺", 4))
	assert.Equal(t, "ab螺", truncateBytes("ab螺", 5))
}
