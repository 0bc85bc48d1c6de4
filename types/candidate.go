package types

import "math"

// Source 标识候选块的检索来源。
type Source string

const (
	SourceVector        Source = "vector"
	SourceGraphKeyword  Source = "graph_keyword"
	SourceGraphFulltext Source = "graph_fulltext"
	SourceGraphMultihop Source = "graph_multihop"
)

// Metadata 候选块的结构化元数据。
type Metadata struct {
	Chapter      string `json:"chapter,omitempty"`
	Subheading   string `json:"subheading,omitempty"`
	Emotion      string `json:"emotion,omitempty"`
	PageLabel    string `json:"page_label,omitempty"`
	PagePhysical int    `json:"page_physical,omitempty"`
}

// Candidate 检索期的瞬态结果：Chunk + 检索出处。
// Score 的量纲由检索后端决定，仅保证有限且越大越相关。
type Candidate struct {
	ChunkID  string   `json:"chunk_id"`
	DocID    string   `json:"doc_id"`
	Score    float64  `json:"score"`
	Source   Source   `json:"source"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Valid 报告候选是否满足输出 schema：必填字段齐全且分数有限。
func (c Candidate) Valid() bool {
	if c.ChunkID == "" || c.DocID == "" || c.Text == "" {
		return false
	}
	if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
		return false
	}
	return true
}

// Key 返回 (doc_id, chunk_id) 去重键。
func (c Candidate) Key() [2]string { return [2]string{c.DocID, c.ChunkID} }

// RankedResult 重排后的最终结果。返回给调用方的列表保证
// RerankScore 非递增。
type RankedResult struct {
	Candidate
	RerankScore float64 `json:"rerank_score"`
}
