package graphstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/medirag/types"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.BatchIngest(ctx, "d1", []types.Chunk{
		{ChunkID: "c1", Text: "the heart pumps blood", Chapter: "Circulation", Subheading: "Heart", Emotion: "Joy"},
		{ChunkID: "c2", Text: "blood vessels carry oxygen", Chapter: "Circulation", Subheading: "Vessels"},
		{ChunkID: "c3", Text: "the lungs exchange gases", Chapter: "Respiration", Subheading: "Lungs"},
		{ChunkID: "c4", Text: "gas exchange in alveoli", Chapter: "Respiration", Subheading: "Alveoli"},
	}))
	require.NoError(t, store.BatchLink(ctx, [][2]string{
		{"c1", "c2"}, {"c2", "c3"}, {"c3", "c4"},
	}))
	return store
}

func TestMemoryStore_FulltextQueryChunks(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	out, err := store.FulltextQueryChunks(ctx, `"blood" OR "lungs"`, 10, "", "")
	require.NoError(t, err)
	require.Len(t, out, 3)

	// c1 与 c2 各命中一词，分值 1
	for _, rec := range out {
		require.NotNil(t, rec.Score)
		assert.Equal(t, 1.0, *rec.Score)
	}

	// 多词命中累加分值
	out, err = store.FulltextQueryChunks(ctx, `"blood" OR "heart"`, 10, "", "")
	require.NoError(t, err)
	scores := map[string]float64{}
	for _, rec := range out {
		scores[rec.ChunkID] = *rec.Score
	}
	assert.Equal(t, 2.0, scores["c1"], "both terms hit")
	assert.Equal(t, 1.0, scores["c2"])
}

func TestMemoryStore_FulltextFilters(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	out, err := store.FulltextQueryChunks(ctx, `"blood"`, 10, "", "Joy")
	require.NoError(t, err)
	require.Len(t, out, 1, "emotion filter keeps only the Joy chunk")
	assert.Equal(t, "c1", out[0].ChunkID)

	out, err = store.FulltextQueryChunks(ctx, `"blood"`, 10, "other-doc", "")
	require.NoError(t, err)
	assert.Empty(t, out, "doc filter excludes everything")

	out, err = store.FulltextQueryChunks(ctx, "", 10, "", "")
	require.NoError(t, err)
	assert.Empty(t, out, "empty query yields nothing")
}

func TestMemoryStore_KeywordScanChunks(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	out, err := store.KeywordScanChunks(ctx, []string{"OXYGEN"}, 10, "", "")
	require.NoError(t, err)
	require.Len(t, out, 1, "substring match is case-insensitive")
	assert.Equal(t, "c2", out[0].ChunkID)
	assert.Nil(t, out[0].Score, "scan path carries no relevance score")

	out, err = store.KeywordScanChunks(ctx, []string{"exchange"}, 1, "", "")
	require.NoError(t, err)
	assert.Len(t, out, 1, "limit respected")
}

func TestMemoryStore_ExpandNext(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	// c2 的一跳邻居：c1（入边）与 c3（出边）
	out, err := store.ExpandNext(ctx, []string{"c2"}, "", 1, 10)
	require.NoError(t, err)
	ids := recordIDs(out)
	assert.ElementsMatch(t, []string{"c1", "c3"}, ids)

	// 两跳再带上 c4
	out, err = store.ExpandNext(ctx, []string{"c2"}, "", 2, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c3", "c4"}, recordIDs(out))

	// seed 自身不返回
	for _, rec := range out {
		assert.NotEqual(t, "c2", rec.ChunkID)
	}
}

func TestMemoryStore_ExpandNextBounds(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	out, err := store.ExpandNext(ctx, nil, "", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = store.ExpandNext(ctx, []string{"c1"}, "", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, out, "zero hops expands nothing")

	out, err = store.ExpandNext(ctx, []string{"c1"}, "", 3, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1, "limit caps expansion")

	out, err = store.ExpandNext(ctx, []string{"missing"}, "", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, out, "unknown seed expands nothing")
}

func TestMemoryStore_StructureAndResolve(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	s, err := store.GetStructure(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Circulation", s.Chapter)
	assert.Equal(t, "Heart", s.Subheading)

	s, err = store.GetStructure(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, s)

	doc, err := store.ResolveDoc(ctx, "c3")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc)

	doc, err = store.ResolveDoc(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestMemoryStore_IngestDefaultsAndIdempotency(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(nil)
	ctx := context.Background()

	require.NoError(t, store.BatchIngest(ctx, "d1", []types.Chunk{
		{ChunkID: "c1", Text: "bare chunk"},
	}))

	s, err := store.GetStructure(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", s.Chapter)
	assert.Equal(t, "Unknown", s.Subheading)

	out, err := store.FulltextQueryChunks(ctx, `"bare"`, 10, "", "Neutral")
	require.NoError(t, err)
	require.Len(t, out, 1, "missing emotion defaults to Neutral")

	// 重复摄取覆盖而非重复
	require.NoError(t, store.BatchIngest(ctx, "d1", []types.Chunk{
		{ChunkID: "c1", Text: "updated chunk"},
	}))
	out, err = store.KeywordScanChunks(ctx, []string{"updated"}, 10, "", "")
	require.NoError(t, err)
	require.Len(t, out, 1)

	exists, err := store.DocumentExists(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.DocumentExists(ctx, "d2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_BatchLinkRules(t *testing.T) {
	t.Parallel()

	store := seedStore(t)
	ctx := context.Background()

	err := store.BatchLink(ctx, [][2]string{{"c1", "c1"}})
	assert.Error(t, err, "self link rejected")

	// 悬空端点静默跳过
	require.NoError(t, store.BatchLink(ctx, [][2]string{{"c1", "ghost"}, {"ghost", "c2"}}))

	// 重复边幂等
	require.NoError(t, store.BatchLink(ctx, [][2]string{{"c1", "c2"}, {"c1", "c2"}}))
	out, err := store.ExpandNext(ctx, []string{"c1"}, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, recordIDs(out), 1)
}

func TestParseFulltextTerms(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"heart", "blood"}, parseFulltextTerms(`"heart" OR "blood"`))
	assert.Equal(t, []string{"heart"}, parseFulltextTerms(`"Heart"`))
	assert.Nil(t, parseFulltextTerms(""))
}

func recordIDs(records []ChunkRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ChunkID)
	}
	return ids
}
