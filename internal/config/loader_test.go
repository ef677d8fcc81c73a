package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("FIXIT_TEST_HOST", "milvus.internal")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "address: ${FIXIT_TEST_HOST}", "address: milvus.internal"},
		{"set variable ignores default", "address: ${FIXIT_TEST_HOST:localhost}", "address: milvus.internal"},
		{"unset with default", "port: ${FIXIT_TEST_UNSET:19530}", "port: 19530"},
		{"unset with empty default", "key: ${FIXIT_TEST_UNSET:}", "key: "},
		{"unset without default kept", "key: ${FIXIT_TEST_UNSET}", "key: ${FIXIT_TEST_UNSET}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	dir := t.TempDir()

	base := `
retrieval:
  max_chunk_size: 800
vector:
  backend: memory
  milvus:
    address: ${FIXIT_TEST_MILVUS:}
`
	override := `
retrieval:
  overlap_size: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.test.yaml"), []byte(override), 0o644))

	cfg, err := LoadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Retrieval.MaxChunkSize)
	assert.Equal(t, 50, cfg.Retrieval.OverlapSize)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, "memory", cfg.Vector.Backend)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 10*time.Second, cfg.Vector.Milvus.Timeout)
	assert.Equal(t, "COSINE", cfg.Vector.Milvus.Metric)
	assert.Equal(t, "X-Owner-ID", cfg.Security.OwnerHeader)
	assert.Empty(t, cfg.Vector.Milvus.Address)
}

func TestLoadFile_MissingBaseFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMilvusConfig_Missing(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"address", "index_name", "dimension", "metric"},
		MilvusConfig{}.Missing())

	complete := MilvusConfig{Address: "localhost:19530", IndexName: "docs", Dimension: 8, Metric: "COSINE"}
	assert.Empty(t, complete.Missing())

	assert.Equal(t, []string{"dimension"},
		MilvusConfig{Address: "a", IndexName: "docs", Metric: "COSINE"}.Missing())
}
