package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fixit-rag-api/pkg/errors"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestText_Extract(t *testing.T) {
	p := writeFile(t, "notes.md", []byte("# Dryer\nClean the lint trap. Check the vent."))
	ext, err := Text{}.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, ext.PageCount)
	assert.Contains(t, ext.Text, "Clean the lint trap.")
}

func TestText_InvalidUTF8(t *testing.T) {
	p := writeFile(t, "bad.txt", []byte{0xff, 0xfe, 0xfd})
	_, err := Text{}.Extract(context.Background(), p)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}

func TestText_MissingFile(t *testing.T) {
	_, err := Text{}.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}

func TestPDF_CorruptFile(t *testing.T) {
	p := writeFile(t, "broken.pdf", []byte("this is not a pdf at all"))
	_, err := PDF{}.Extract(context.Background(), p)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Supports("Manual.PDF"))
	assert.True(t, r.Supports("readme.md"))
	assert.False(t, r.Supports("image.png"))
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".txt"}, r.Extensions())

	p := writeFile(t, "guide.TXT", []byte("Setup is easy."))
	ext, err := r.Extract(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Setup is easy.", ext.Text)

	_, err = r.Extract(context.Background(), writeFile(t, "photo.png", []byte{1, 2, 3}))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}
