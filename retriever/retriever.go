// Package retriever 实现混合检索核心：向量检索、图谱检索、
// 编排合并与交叉编码器重排。
//
// 所有检索器遵循同一契约：空查询返回空列表；输出经过 schema 校验、
// (doc_id, chunk_id) 去重、按分数降序排序并截断到 top_k。后端故障
// 在 fail-soft 模式下降级为零候选，严格模式下透传错误。
package retriever

import (
	"context"

	"github.com/BaSui01/medirag/types"
)

// Filters 检索过滤条件：对候选元数据的等值过滤。
// 键 "doc_id" 作用于候选归属文档，其余键匹配元数据字段。
type Filters map[string]string

// DocID 返回文档过滤值，未指定时为空串。
func (f Filters) DocID() string {
	if f == nil {
		return ""
	}
	return f["doc_id"]
}

// Retriever 检索器统一契约。
type Retriever interface {
	// Retrieve 返回至多 topK 个候选，按分数降序。空查询返回 nil。
	Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error)

	// Name 检索器名称，用于日志与指标。
	Name() string
}
