// Package extractor 提供文档文本解析
package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"fixit-rag-api/internal/application/retrieval"
	apperrors "fixit-rag-api/pkg/errors"
	"fixit-rag-api/pkg/logger"
)

// infoKeys 从 PDF Info 字典中提取的字段
var infoKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"}

// PDF 基于 ledongthuc/pdf 的文本解析
type PDF struct{}

var _ retrieval.Extractor = PDF{}

// Extract 逐页提取纯文本，页之间以换行分隔。
// 单页解析失败只跳过该页；整份文件无法打开或解析库 panic 时返回 ExtractionFailed。
func (PDF) Extract(ctx context.Context, path string) (ext *retrieval.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, apperrors.ExtractionFailed(path, fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperrors.ExtractionFailed(path, err)
	}
	defer f.Close()

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			logger.Warn(ctx, "pdf page extraction failed", "path", path, "page", i, "error", err.Error())
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	}

	return &retrieval.Extraction{
		Text:      sb.String(),
		PageCount: pages,
		Info:      pdfInfo(r),
	}, nil
}

func pdfInfo(r *pdf.Reader) map[string]string {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}
	out := make(map[string]string)
	for _, k := range infoKeys {
		if v := strings.TrimSpace(info.Key(k).Text()); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
