package rerank

import (
	"context"
	"strings"
)

// LexicalProvider 词项重合度打分的降级提供者。
// 无交叉编码器服务可用时作为兜底，分值落在 [0,1]。
type LexicalProvider struct{}

// NewLexicalProvider 创建词法重排提供者。
func NewLexicalProvider() *LexicalProvider { return &LexicalProvider{} }

func (p *LexicalProvider) Name() string { return "lexical-reranker" }

// Score 计算查询词项在文档中的覆盖比例。
func (p *LexicalProvider) Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for i, pair := range pairs {
		scores[i] = overlapScore(pair.Query, pair.Document)
	}
	return scores, nil
}

func overlapScore(query, document string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0.0
	}
	doc := strings.ToLower(document)
	hits := 0
	for _, term := range terms {
		if strings.Contains(doc, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
