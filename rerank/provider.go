// Package rerank 提供交叉编码器打分的提供者抽象。
package rerank

import "context"

// QueryDocPair 一条 query-document 打分对。
type QueryDocPair struct {
	Query    string `json:"query"`
	Document string `json:"document"`
}

// Provider 交叉编码器提供者接口。返回值与输入 pairs 一一对应。
type Provider interface {
	Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error)
	Name() string
}
