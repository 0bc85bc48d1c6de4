// Package embedding 提供查询/文档向量化的提供者抽象。
package embedding

import (
	"context"
)

// Provider 嵌入提供者接口。
type Provider interface {
	// EmbedQuery 嵌入单个查询串。
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 批量嵌入文档。返回顺序与输入一致。
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Dimensions 向量维度。
	Dimensions() int

	// Name 提供者名称。
	Name() string
}
