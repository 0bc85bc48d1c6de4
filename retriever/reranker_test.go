package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/medirag/rerank"
	"github.com/BaSui01/medirag/types"
)

// stubScorer 按文档内容打分。
type stubScorer struct {
	scoreFn func(pair rerank.QueryDocPair) float64
	err     error
	batches [][]rerank.QueryDocPair
}

func (s *stubScorer) Name() string { return "stub-scorer" }

func (s *stubScorer) Score(ctx context.Context, pairs []rerank.QueryDocPair) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, pairs)
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = s.scoreFn(p)
	}
	return scores, nil
}

func TestCrossEncoderReranker_Reorders(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{scoreFn: func(p rerank.QueryDocPair) float64 {
		if p.Document == "B" {
			return 2.0
		}
		return 1.0
	}}
	r := NewCrossEncoderReranker(DefaultRerankConfig(), scorer, nil)

	out := r.Rerank(context.Background(), "q", []types.Candidate{
		cand2("1", "A"),
		cand2("2", "B"),
	}, 5)

	require.Len(t, out, 2)
	assert.Equal(t, "2", out[0].ChunkID)
	assert.Equal(t, 2.0, out[0].RerankScore)
	assert.Equal(t, "1", out[1].ChunkID)
	assert.Equal(t, 1.0, out[1].RerankScore)
}

func TestCrossEncoderReranker_FiltersEmptyText(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{scoreFn: func(p rerank.QueryDocPair) float64 { return 1.0 }}
	r := NewCrossEncoderReranker(DefaultRerankConfig(), scorer, nil)

	out := r.Rerank(context.Background(), "q", []types.Candidate{
		{ChunkID: "1", DocID: "d1", Text: ""},
		cand2("2", "kept"),
	}, 5)

	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ChunkID)
}

func TestCrossEncoderReranker_TruncatesBeforeScoring(t *testing.T) {
	t.Parallel()

	var seen string
	scorer := &stubScorer{scoreFn: func(p rerank.QueryDocPair) float64 {
		seen = p.Document
		return 1.0
	}}
	cfg := DefaultRerankConfig()
	cfg.MaxTextLen = 10
	r := NewCrossEncoderReranker(cfg, scorer, nil)

	long := strings.Repeat("x", 100)
	out := r.Rerank(context.Background(), "q", []types.Candidate{cand2("1", long)}, 5)

	require.Len(t, out, 1)
	assert.Len(t, seen, 10, "text truncated before scoring")
	assert.Equal(t, long, out[0].Text, "candidate text itself untouched")
}

func TestCrossEncoderReranker_Batching(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{scoreFn: func(p rerank.QueryDocPair) float64 { return 1.0 }}
	cfg := DefaultRerankConfig()
	cfg.BatchSize = 2
	r := NewCrossEncoderReranker(cfg, scorer, nil)

	candidates := []types.Candidate{
		cand2("1", "a"), cand2("2", "b"), cand2("3", "c"),
		cand2("4", "d"), cand2("5", "e"),
	}
	out := r.Rerank(context.Background(), "q", candidates, 10)

	require.Len(t, out, 5)
	require.Len(t, scorer.batches, 3, "5 pairs at batch size 2 gives 3 batches")
	assert.Len(t, scorer.batches[0], 2)
	assert.Len(t, scorer.batches[2], 1)
}

func TestCrossEncoderReranker_FallbackOnFailure(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{err: errors.New("model serving down")}
	r := NewCrossEncoderReranker(DefaultRerankConfig(), scorer, nil)

	input := []types.Candidate{
		{ChunkID: "1", DocID: "d1", Score: 0.9, Text: "a"},
		{ChunkID: "2", DocID: "d1", Score: 0.5, Text: "b"},
		{ChunkID: "3", DocID: "d1", Score: 0.3, Text: "c"},
	}
	out := r.Rerank(context.Background(), "q", input, 2)

	require.Len(t, out, 2, "degrades to first top_k of original order")
	assert.Equal(t, "1", out[0].ChunkID)
	assert.Equal(t, "2", out[1].ChunkID)
	assert.Equal(t, 0.9, out[0].RerankScore, "retrieval score stands in for rerank score")
}

func TestCrossEncoderReranker_TopKBound(t *testing.T) {
	t.Parallel()

	scorer := &stubScorer{scoreFn: func(p rerank.QueryDocPair) float64 { return 1.0 }}
	r := NewCrossEncoderReranker(DefaultRerankConfig(), scorer, nil)

	out := r.Rerank(context.Background(), "q", []types.Candidate{cand2("1", "a")}, 5)
	assert.Len(t, out, 1, "fewer candidates than top_k returns all")

	assert.Empty(t, r.Rerank(context.Background(), "q", nil, 5))
	assert.Empty(t, r.Rerank(context.Background(), "q", []types.Candidate{cand2("1", "a")}, 0))
}

func cand2(chunkID, text string) types.Candidate {
	return types.Candidate{
		ChunkID: chunkID,
		DocID:   "d1",
		Score:   0.5,
		Source:  types.SourceVector,
		Text:    text,
	}
}
