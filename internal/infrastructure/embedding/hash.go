package embedding

import (
	"context"
	"math"
	"unicode/utf16"

	"github.com/cloudwego/eino/components/embedding"
)

// HashEmbedder 确定性伪向量：32 位多项式滚动哈希 + sin 展开。
// 无语义，仅用于在没有真实模型时跑通存储与检索流程。
type HashEmbedder struct {
	dim int
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder 创建 dim 维哈希向量器
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Dimension 向量维度
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// EmbedStrings 实现 eino embedding.Embedder
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = HashVector(t, h.dim)
	}
	return out, nil
}

// TextHash 按 UTF-16 码元计算 hash = hash*31 + c（int32 溢出回绕），返回绝对值
func TextHash(s string) int64 {
	var hash int32
	for _, c := range utf16.Encode([]rune(s)) {
		hash = (hash << 5) - hash + int32(c)
	}
	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return h
}

// HashVector v[i] = sin(hash + i) * 0.1
func HashVector(s string, dim int) []float64 {
	hash := TextHash(s)
	v := make([]float64, dim)
	for i := range v {
		v[i] = math.Sin(float64(hash+int64(i))) * 0.1
	}
	return v
}
