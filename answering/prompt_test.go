package answering

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/medirag/types"
)

func ranked(chunkID, text string) types.RankedResult {
	return types.RankedResult{
		Candidate: types.Candidate{
			ChunkID: chunkID,
			DocID:   "d1",
			Text:    text,
			Score:   0.5,
			Source:  types.SourceVector,
		},
		RerankScore: 0.5,
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	t.Parallel()

	b := NewPromptBuilder(DefaultPromptConfig(), nil)

	r1 := ranked("c1", "The heart pumps blood.")
	r1.Metadata = types.Metadata{Chapter: "Circulation", Subheading: "Heart", PageLabel: "42"}
	r2 := ranked("c2", "Vessels carry oxygen.")

	system, user, included := b.Build("how does the heart work", []types.RankedResult{r1, r2})

	assert.NotEmpty(t, system)
	require.Len(t, included, 2)
	assert.Contains(t, user, "[1] (Circulation, Heart, p. 42)")
	assert.Contains(t, user, "[2] Vessels", "excerpts numbered in rank order")
	assert.Contains(t, user, "Question: how does the heart work")
}

func TestPromptBuilder_EmptyResults(t *testing.T) {
	t.Parallel()

	b := NewPromptBuilder(DefaultPromptConfig(), nil)
	_, user, included := b.Build("anything", nil)
	assert.Empty(t, user)
	assert.Empty(t, included)
}

func TestPromptBuilder_TokenBudget(t *testing.T) {
	t.Parallel()

	cfg := DefaultPromptConfig()
	cfg.MaxContextTokens = 40
	b := NewPromptBuilder(cfg, nil)

	small := ranked("c1", "short excerpt")
	big := ranked("c2", strings.Repeat("oxygen transport physiology ", 200))

	_, _, included := b.Build("q", []types.RankedResult{small, big})
	require.Len(t, included, 1, "oversized later excerpt dropped")
	assert.Equal(t, "c1", included[0].ChunkID)
}

func TestFormatExcerpt(t *testing.T) {
	t.Parallel()

	r := ranked("c1", "  text body  ")
	assert.Equal(t, "[1] text body\n\n", formatExcerpt(1, r))

	r.Metadata = types.Metadata{Chapter: "Respiration", PageLabel: "7"}
	assert.Equal(t, "[2] (Respiration, p. 7) text body\n\n", formatExcerpt(2, r))
}
