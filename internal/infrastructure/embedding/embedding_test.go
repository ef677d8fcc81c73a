package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit-rag-api/internal/config"
	apperrors "fixit-rag-api/pkg/errors"
)

func TestTextHash_KnownValues(t *testing.T) {
	assert.Equal(t, int64(0), TextHash(""))
	assert.Equal(t, int64(97), TextHash("a"))
	assert.Equal(t, int64(3105), TextHash("ab"))
	// 溢出后取绝对值，始终非负
	assert.GreaterOrEqual(t, TextHash("a fairly long sentence that overflows thirty two bits"), int64(0))
}

func TestHashVector_Formula(t *testing.T) {
	v := HashVector("a", 3)
	require.Len(t, v, 3)
	for i := range v {
		assert.InDelta(t, math.Sin(float64(97+i))*0.1, v[i], 1e-12)
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(16)
	ctx := context.Background()

	first, err := e.EmbedStrings(ctx, []string{"Setup is easy.", "Troubleshooting is rare."})
	require.NoError(t, err)
	second, err := e.EmbedStrings(ctx, []string{"Setup is easy.", "Troubleshooting is rare."})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first[0], first[1])
	assert.Len(t, first[0], 16)
}

func TestClient_EmbedStrings(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float32{0.5, 0.25})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(&config.EmbeddingConfig{Endpoint: srv.URL, BatchSize: 2})
	vecs, err := c.EmbedStrings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, []float64{0.5, 0.25}, vecs[2])
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ServerErrorIsEmbeddingFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(&config.EmbeddingConfig{Endpoint: srv.URL})
	_, err := c.EmbedStrings(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmbeddingFailed))
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
	return nil
}

type countingEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = HashVector(t, 4)
	}
	return out, nil
}

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newMemCache()
	e := NewCachedEmbedder(inner, cache, "test:model:4", time.Hour)
	ctx := context.Background()

	first, err := e.EmbedStrings(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.texts.Load())

	// "one" 已缓存，只有 "three" 需要计算
	second, err := e.EmbedStrings(ctx, []string{"one", "three"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.texts.Load())
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, HashVector("three", 4), second[1])

	_, err = e.EmbedStrings(ctx, []string{"two"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.texts.Load())
}

func TestCachedEmbedder_CacheFailureFallsThrough(t *testing.T) {
	inner := &countingEmbedder{}
	cache := newMemCache()
	cache.failGet = true
	e := NewCachedEmbedder(inner, cache, "ns", time.Hour)

	vecs, err := e.EmbedStrings(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, HashVector("x", 4), vecs[0])
}

func TestNew_Providers(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, &config.EmbeddingConfig{Provider: "hash", Dimension: 8}, nil)
	require.NoError(t, err)
	vecs, err := e.EmbedStrings(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 8)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "http", Dimension: 8}, nil)
	assert.Error(t, err)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "openai", Dimension: 8}, nil)
	assert.Error(t, err)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "bogus", Dimension: 8}, nil)
	assert.Error(t, err)

	_, err = New(ctx, &config.EmbeddingConfig{Provider: "hash"}, nil)
	assert.Error(t, err)
}
