package retrieval

import (
	"context"
	"fmt"

	apperrors "fixit-rag-api/pkg/errors"
)

const defaultEmbeddingBatch = 16

type embedResult struct {
	vector []float32
	err    error
}

// embedTexts 分批向量化；某批失败时逐条重试，以定位具体失败的分片。
// 每批开始前检查 ctx，取消时返回 ctx 错误。
func (s *Service) embedTexts(ctx context.Context, texts []string) ([]embedResult, error) {
	out := make([]embedResult, len(texts))
	bs := s.opts.EmbeddingBatchSize
	if bs <= 0 {
		bs = defaultEmbeddingBatch
	}

	for start := 0; start < len(texts); start += bs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+bs, len(texts))

		vecs, err := s.embedder.EmbedStrings(ctx, texts[start:end])
		if err == nil && len(vecs) == end-start {
			for i, v := range vecs {
				out[start+i] = s.checkVector(v)
			}
			continue
		}

		// 整批失败：逐条定位
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vec, err := s.embedOne(ctx, texts[i])
			out[i] = embedResult{vector: vec, err: err}
		}
	}
	return out, nil
}

// embedOne 单条向量化
func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeEmbeddingFailed) {
			return nil, err
		}
		return nil, apperrors.EmbeddingFailed(err)
	}
	if len(vecs) != 1 {
		return nil, apperrors.EmbeddingFailed(fmt.Errorf("expected 1 embedding, got %d", len(vecs)))
	}
	r := s.checkVector(vecs[0])
	return r.vector, r.err
}

// checkVector 转换为 float32 并校验维度
func (s *Service) checkVector(v []float64) embedResult {
	if len(v) == 0 {
		return embedResult{err: apperrors.EmbeddingFailed(fmt.Errorf("empty embedding"))}
	}
	if s.opts.Dimension > 0 && len(v) != s.opts.Dimension {
		return embedResult{err: apperrors.EmbeddingFailed(
			fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), s.opts.Dimension))}
	}
	return embedResult{vector: Float64To32(v)}
}

// Float64To32 向量精度转换
func Float64To32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
