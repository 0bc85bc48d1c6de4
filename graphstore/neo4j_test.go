package graphstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Cypher 子句绑定语义：紧跟 OPTIONAL MATCH 的 WHERE 只约束可选模式，
// 谓词不成立时把 e 置空而不是过滤掉 c 行。行级过滤必须出现在
// OPTIONAL MATCH 之前（doc/concepts）或 WITH 之后（emotion）。
// 这里对生成的查询文本做断言，替代需要真实 Neo4j 的集成测试。

func TestFulltextQueryCypherFilterPlacement(t *testing.T) {
	t.Parallel()

	cypher := fulltextQueryCypher()
	optionalMatch := strings.Index(cypher, "OPTIONAL MATCH")
	require.Positive(t, optionalMatch)

	docFilter := strings.Index(cypher, "$doc_id = '' OR c.doc_id = $doc_id")
	require.Positive(t, docFilter)
	assert.Less(t, docFilter, optionalMatch,
		"doc filter must bind to the fulltext rows, not the optional emotion pattern")

	withClause := strings.Index(cypher, "WITH c, score, e")
	require.Positive(t, withClause)
	emotionFilter := strings.Index(cypher, "$emotion = '' OR e.name = $emotion")
	require.Positive(t, emotionFilter)
	assert.Greater(t, emotionFilter, withClause,
		"emotion filter must apply after WITH so it drops rows instead of nulling e")
	assert.Greater(t, withClause, optionalMatch)

	assert.Contains(t, cypher, "db.index.fulltext.queryNodes('"+fulltextIndexName+"', $query)")
	assert.Contains(t, cypher, "score")
	assert.Contains(t, cypher, "LIMIT $limit")
}

func TestKeywordScanCypherFilterPlacement(t *testing.T) {
	t.Parallel()

	cypher := keywordScanCypher()
	optionalMatch := strings.Index(cypher, "OPTIONAL MATCH")
	require.Positive(t, optionalMatch)

	docFilter := strings.Index(cypher, "$doc_id = '' OR c.doc_id = $doc_id")
	require.Positive(t, docFilter)
	assert.Less(t, docFilter, optionalMatch,
		"doc filter binds to MATCH (c:Chunk), before the optional emotion pattern")

	conceptFilter := strings.Index(cypher, "any(term IN $concepts WHERE toLower(c.text) CONTAINS term)")
	require.Positive(t, conceptFilter)
	assert.Less(t, conceptFilter, optionalMatch,
		"concepts predicate binds to MATCH (c:Chunk), before the optional emotion pattern")

	withClause := strings.Index(cypher, "WITH c, e")
	require.Positive(t, withClause)
	emotionFilter := strings.Index(cypher, "$emotion = '' OR e.name = $emotion")
	require.Positive(t, emotionFilter)
	assert.Greater(t, emotionFilter, withClause)
	assert.Greater(t, withClause, optionalMatch)

	assert.Contains(t, cypher, "MATCH (c:"+labelChunk+")")
	assert.Contains(t, cypher, "LIMIT $limit")
}

func TestChunkRecordsFrom(t *testing.T) {
	t.Parallel()

	records := []Record{
		{"chunk_id": "c1", "doc_id": "d1", "text": "hello", "emotion": "Joy", "score": 2.5},
		{"chunk_id": "c2", "doc_id": "d1", "text": "world", "emotion": nil, "score": int64(3)},
	}

	withScore := chunkRecordsFrom(records, true)
	require.Len(t, withScore, 2)
	assert.Equal(t, "c1", withScore[0].ChunkID)
	assert.Equal(t, "Joy", withScore[0].Emotion)
	require.NotNil(t, withScore[0].Score)
	assert.Equal(t, 2.5, *withScore[0].Score)
	assert.Empty(t, withScore[1].Emotion, "null emotion maps to empty string")
	require.NotNil(t, withScore[1].Score)
	assert.Equal(t, 3.0, *withScore[1].Score, "integer scores coerced to float")

	withoutScore := chunkRecordsFrom(records, false)
	assert.Nil(t, withoutScore[0].Score)
}
