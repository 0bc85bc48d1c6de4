// Package vectorstore 提供向量库抽象及其实现（内存 / Chroma REST）。
package vectorstore

import "context"

// DistanceMetric 距离度量。
type DistanceMetric string

const (
	MetricCosine DistanceMetric = "cosine"
	MetricL2     DistanceMetric = "l2"
	MetricIP     DistanceMetric = "ip"
)

// QueryResult 相似度查询结果（平行数组，逐候选对齐）。
type QueryResult struct {
	IDs       []string            `json:"ids"`
	Documents []string            `json:"documents"`
	Distances []float64           `json:"distances"`
	Metadatas []map[string]string `json:"metadatas"`
}

// Len 返回命中条数。
func (r *QueryResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// Store 向量库接口。
type Store interface {
	// Upsert 按 chunk_id 幂等写入 (embedding, text, metadata) 三元组。
	Upsert(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]string) error

	// Query 返回 topK 个最近邻。
	Query(ctx context.Context, queryEmbedding []float64, topK int) (*QueryResult, error)

	// DeleteDocument 删除某文档的全部向量。
	DeleteDocument(ctx context.Context, docID string) error

	// Metric 返回库配置的距离度量。
	Metric() DistanceMetric
}
