package retrieval

import apperrors "fixit-rag-api/pkg/errors"

var (
	// ErrVectorDisabled 表示向量存储未配置或必填项缺失。
	ErrVectorDisabled = apperrors.ServiceUnavailable("vector store is not configured", nil)
)
