package retrieval

import (
	"math"
	"sort"
)

// CosineSimilarity 计算余弦相似度，结果在 [-1, 1]。
// 长度不一致或任一向量范数为 0 时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// 浮点误差可能略微越界
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// RankResults 按分数降序、ID 升序排序并截断到 topK
func RankResults(results []SearchResult, topK int) []SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RecordID < results[j].RecordID
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// IsZeroVector 全零向量
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
