package milvus

import (
	"strings"

	"fixit-rag-api/internal/application/retrieval"
)

var exprEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote 生成 Milvus 布尔表达式中的字符串字面量
func quote(s string) string {
	return `"` + exprEscaper.Replace(s) + `"`
}

// filterExpr 将元数据过滤条件转为布尔表达式，空条件返回空串
func filterExpr(f retrieval.Filter) string {
	var parts []string
	if f.OwnerID != "" {
		parts = append(parts, fieldOwnerID+" == "+quote(f.OwnerID))
	}
	if f.SourceName != "" {
		parts = append(parts, fieldSourceName+" == "+quote(f.SourceName))
	}
	if f.RecordType != "" {
		parts = append(parts, fieldRecordType+" == "+quote(string(f.RecordType)))
	}
	return strings.Join(parts, " && ")
}

// idsExpr id in [...]
func idsExpr(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	return fieldID + " in [" + strings.Join(quoted, ", ") + "]"
}
