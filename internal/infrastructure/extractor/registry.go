package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"fixit-rag-api/internal/application/retrieval"
	apperrors "fixit-rag-api/pkg/errors"
)

// Text 纯文本 / Markdown 解析，整份文件视为一页
type Text struct{}

var _ retrieval.Extractor = Text{}

// Extract 读取 UTF-8 文本，非法编码返回 ExtractionFailed
func (Text) Extract(_ context.Context, path string) (*retrieval.Extraction, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ExtractionFailed(path, err)
	}
	if !utf8.Valid(b) {
		return nil, apperrors.ExtractionFailed(path, errors.New("file is not valid UTF-8"))
	}
	return &retrieval.Extraction{Text: string(b), PageCount: 1}, nil
}

// Registry 按扩展名选择解析器
type Registry struct {
	byExt map[string]retrieval.Extractor
}

var _ retrieval.Extractor = (*Registry)(nil)

// NewRegistry 默认支持 .pdf .txt .md
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]retrieval.Extractor)}
	r.Register(PDF{}, ".pdf")
	r.Register(Text{}, ".txt", ".md", ".markdown")
	return r
}

// Register 为扩展名注册解析器，扩展名不区分大小写
func (r *Registry) Register(e retrieval.Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[normalizeExt(ext)] = e
	}
}

// Supports 是否支持该文件名
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[normalizeExt(filepath.Ext(name))]
	return ok
}

// Extensions 已注册的扩展名（排序）
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract 分派到对应解析器
func (r *Registry) Extract(ctx context.Context, path string) (*retrieval.Extraction, error) {
	ext := normalizeExt(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, apperrors.ExtractionFailed(path, fmt.Errorf("unsupported file type %q", ext))
	}
	return e.Extract(ctx, path)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
