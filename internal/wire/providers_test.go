package wire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/internal/config"
	"fixit-rag-api/internal/infrastructure/persistence/memory"
	"fixit-rag-api/internal/infrastructure/persistence/milvus"
	apperrors "fixit-rag-api/pkg/errors"
)

func testConfig(backend string) *config.Config {
	cfg := &config.Config{}
	cfg.Vector.Backend = backend
	cfg.Embedding.Dimension = 8
	return cfg
}

func TestProvideVectorBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, cleanup, err := ProvideVectorBackend(ctx, testConfig("memory"))
		require.NoError(t, err)
		defer cleanup()
		assert.Equal(t, BackendMemory, b.Name)
		assert.IsType(t, &memory.Store{}, b.Store)
		assert.Nil(t, b.Milvus)
	})

	t.Run("auto falls back when remote config is missing", func(t *testing.T) {
		b, cleanup, err := ProvideVectorBackend(ctx, testConfig(""))
		require.NoError(t, err)
		defer cleanup()
		assert.Equal(t, BackendMemory, b.Name)
	})

	t.Run("milvus without config stays unavailable", func(t *testing.T) {
		b, cleanup, err := ProvideVectorBackend(ctx, testConfig("milvus"))
		require.NoError(t, err)
		defer cleanup()
		assert.Equal(t, BackendMilvus, b.Name)
		require.IsType(t, &milvus.Store{}, b.Store)
		err = b.Milvus.Disabled()
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeServiceUnavailable))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cfg := testConfig("milvus")
		cfg.Vector.Milvus = config.MilvusConfig{
			Address:   "localhost:19530",
			IndexName: "manuals",
			Dimension: 16,
			Metric:    "cosine",
		}
		_, _, err := ProvideVectorBackend(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := ProvideVectorBackend(ctx, testConfig("pinecone"))
		assert.Error(t, err)
	})
}

func TestOptionalClients(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("memory")

	rdb, cleanup, err := ProvideRedisClient(ctx, cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, rdb)
	assert.Nil(t, ProvideEmbeddingCache(rdb))
	assert.Nil(t, ProvideRateLimiter(rdb))

	pg, cleanup, err := ProvidePostgresClient(ctx, cfg)
	require.NoError(t, err)
	cleanup()
	assert.Nil(t, pg)

	catalog, err := ProvideDocumentCatalog(ctx, pg)
	require.NoError(t, err)
	assert.IsType(t, &memory.Catalog{}, catalog)
}

func TestInitializeService_InMemory(t *testing.T) {
	cfg := testConfig("memory")
	cfg.Embedding.Provider = "hash"
	cfg.Retrieval.MaxChunkSize = 200
	cfg.Retrieval.OverlapSize = 20

	svc, cleanup, err := InitializeService(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	res, err := svc.IngestDocument(context.Background(), "owner-1", "guide.txt", "Replace the filter every six months.", retrieval.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Committed())
}
