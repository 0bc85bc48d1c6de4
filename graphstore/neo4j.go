package graphstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/BaSui01/medirag/types"
)

// 图 schema 命名。
const (
	labelDocument   = "Document"
	labelChapter    = "Chapter"
	labelSubheading = "Subheading"
	labelChunk      = "Chunk"
	labelEmotion    = "Emotion"

	relHasChapter    = "HAS_CHAPTER"
	relHasSubheading = "HAS_SUBHEADING"
	relHasChunk      = "HAS_CHUNK"
	relHasEmotion    = "HAS_EMOTION"
	relNext          = "NEXT"

	fulltextIndexName = "chunk_text_index"
)

var schemaStatements = []string{
	"CREATE CONSTRAINT doc_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.doc_id IS UNIQUE",
	"CREATE CONSTRAINT chunk_id_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.chunk_id IS UNIQUE",
	"CREATE CONSTRAINT emotion_name_unique IF NOT EXISTS FOR (e:Emotion) REQUIRE e.name IS UNIQUE",
	"CREATE FULLTEXT INDEX chunk_text_index IF NOT EXISTS FOR (c:Chunk) ON EACH [c.text]",
}

// Neo4jConfig configures the Neo4j Store implementation.
type Neo4jConfig struct {
	URI      string        `json:"uri" yaml:"uri"`
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password"`
	Database string        `json:"database" yaml:"database"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// Neo4jStore implements Store using the official Neo4j driver.
type Neo4jStore struct {
	cfg    Neo4jConfig
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore 连接 Neo4j 并保证 schema 约束与全文索引就绪。
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URI == "" {
		cfg.URI = "neo4j://localhost:7687"
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(connectCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, types.NewError(types.ErrBackendUnavailable, "neo4j unreachable").
			WithBackend("neo4j").WithRetryable(true).WithCause(err)
	}

	s := &Neo4jStore{
		cfg:    cfg,
		driver: driver,
		logger: logger.With(zap.String("component", "neo4j_store")),
	}

	for _, stmt := range schemaStatements {
		if _, err := s.RunQuery(ctx, stmt, nil); err != nil {
			_ = driver.Close(ctx)
			return nil, fmt.Errorf("ensure graph schema: %w", err)
		}
	}

	s.logger.Info("neo4j store ready",
		zap.String("uri", cfg.URI),
		zap.String("database", cfg.Database))
	return s, nil
}

// RunQuery 执行 Cypher 并按行返回结果。
func (s *Neo4jStore) RunQuery(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.cfg.Database))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "neo4j query failed").
			WithBackend("neo4j").WithRetryable(true).WithCause(err)
	}

	records := make([]Record, 0, len(result.Records))
	for _, rec := range result.Records {
		records = append(records, Record(rec.AsMap()))
	}
	return records, nil
}

// fulltextQueryCypher 构建全文查询语句。doc 过滤必须挂在 YIELD 之后、
// emotion 过滤必须放在 WITH 之后：紧跟 OPTIONAL MATCH 的 WHERE 只约束
// 可选模式本身，谓词不成立时仅把 e 置空，不会过滤掉 c 行。
func fulltextQueryCypher() string {
	return fmt.Sprintf(`
	CALL db.index.fulltext.queryNodes('%s', $query) YIELD node AS c, score
	WHERE ($doc_id = '' OR c.doc_id = $doc_id)
	OPTIONAL MATCH (c)-[:%s]->(e:%s)
	WITH c, score, e
	WHERE ($emotion = '' OR e.name = $emotion)
	RETURN
		c.chunk_id AS chunk_id,
		c.doc_id AS doc_id,
		c.text AS text,
		e.name AS emotion,
		score
	LIMIT $limit`, fulltextIndexName, relHasEmotion, labelEmotion)
}

// FulltextQueryChunks 全文索引查询。
func (s *Neo4jStore) FulltextQueryChunks(ctx context.Context, query string, limit int, docID, emotion string) ([]ChunkRecord, error) {
	records, err := s.RunQuery(ctx, fulltextQueryCypher(), map[string]any{
		"query":   query,
		"doc_id":  docID,
		"emotion": emotion,
		"limit":   limit,
	})
	if err != nil {
		return nil, err
	}
	return chunkRecordsFrom(records, true), nil
}

// keywordScanCypher 构建兜底扫描语句。doc 与 concepts 谓词挂在
// MATCH (c:Chunk) 上，emotion 过滤同样留到 WITH 之后。
func keywordScanCypher() string {
	return fmt.Sprintf(`
	MATCH (c:%s)
	WHERE ($doc_id = '' OR c.doc_id = $doc_id)
	  AND any(term IN $concepts WHERE toLower(c.text) CONTAINS term)
	OPTIONAL MATCH (c)-[:%s]->(e:%s)
	WITH c, e
	WHERE ($emotion = '' OR e.name = $emotion)
	RETURN
		c.chunk_id AS chunk_id,
		c.doc_id AS doc_id,
		c.text AS text,
		e.name AS emotion
	LIMIT $limit`, labelChunk, relHasEmotion, labelEmotion)
}

// KeywordScanChunks 子串匹配兜底扫描。
func (s *Neo4jStore) KeywordScanChunks(ctx context.Context, concepts []string, limit int, docID, emotion string) ([]ChunkRecord, error) {
	lowered := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if c != "" {
			lowered = append(lowered, strings.ToLower(c))
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	records, err := s.RunQuery(ctx, keywordScanCypher(), map[string]any{
		"doc_id":   docID,
		"concepts": lowered,
		"emotion":  emotion,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}
	return chunkRecordsFrom(records, false), nil
}

// ExpandNext 沿 NEXT 边双向展开。跳数是模式的一部分，无法参数化。
func (s *Neo4jStore) ExpandNext(ctx context.Context, seedIDs []string, docID string, maxHops, limit int) ([]ChunkRecord, error) {
	if len(seedIDs) == 0 || maxHops <= 0 {
		return nil, nil
	}

	cypher := fmt.Sprintf(`
	UNWIND $seed_ids AS seed_id
	MATCH (c:%s {chunk_id: seed_id})
	WHERE ($doc_id = '' OR c.doc_id = $doc_id)
	OPTIONAL MATCH (c)-[:%s*1..%d]-(neighbor:%s)
	WITH neighbor
	WHERE neighbor IS NOT NULL
	  AND NOT neighbor.chunk_id IN $seed_ids
	  AND ($doc_id = '' OR neighbor.doc_id = $doc_id)
	RETURN DISTINCT
		neighbor.chunk_id AS chunk_id,
		neighbor.doc_id AS doc_id,
		neighbor.text AS text
	LIMIT $limit`, labelChunk, relNext, maxHops, labelChunk)

	records, err := s.RunQuery(ctx, cypher, map[string]any{
		"seed_ids": seedIDs,
		"doc_id":   docID,
		"limit":    limit,
	})
	if err != nil {
		return nil, err
	}
	return chunkRecordsFrom(records, false), nil
}

// GetStructure 查询块的 chapter/subheading 归属。
func (s *Neo4jStore) GetStructure(ctx context.Context, chunkID string) (*Structure, error) {
	cypher := fmt.Sprintf(`
	MATCH (ch:%s)-[:%s]->(s:%s)-[:%s]->(c:%s {chunk_id: $chunk_id})
	RETURN ch.name AS chapter, s.name AS subheading
	LIMIT 1`, labelChapter, relHasSubheading, labelSubheading, relHasChunk, labelChunk)

	records, err := s.RunQuery(ctx, cypher, map[string]any{"chunk_id": chunkID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &Structure{
		Chapter:    stringValue(records[0]["chapter"]),
		Subheading: stringValue(records[0]["subheading"]),
	}, nil
}

// ResolveDoc 返回块所属文档。
func (s *Neo4jStore) ResolveDoc(ctx context.Context, chunkID string) (string, error) {
	cypher := fmt.Sprintf(`
	MATCH (c:%s {chunk_id: $chunk_id})
	RETURN c.doc_id AS doc_id
	LIMIT 1`, labelChunk)

	records, err := s.RunQuery(ctx, cypher, map[string]any{"chunk_id": chunkID})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return stringValue(records[0]["doc_id"]), nil
}

// DocumentExists 判断文档节点是否存在。
func (s *Neo4jStore) DocumentExists(ctx context.Context, docID string) (bool, error) {
	cypher := fmt.Sprintf(`
	MATCH (d:%s {doc_id: $doc_id})
	RETURN d.doc_id AS doc_id
	LIMIT 1`, labelDocument)

	records, err := s.RunQuery(ctx, cypher, map[string]any{"doc_id": docID})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

// BatchIngest UNWIND 批量摄取，MERGE 保证幂等。
func (s *Neo4jStore) BatchIngest(ctx context.Context, docID string, chunks []types.Chunk) error {
	payload := make([]map[string]any, 0, len(chunks))
	for _, chunk := range chunks {
		payload = append(payload, map[string]any{
			"chunk_id":      chunk.ChunkID,
			"text":          chunk.Text,
			"chapter":       chunk.Chapter,
			"subheading":    chunk.Subheading,
			"emotion":       chunk.Emotion,
			"page_label":    chunk.PageLabel,
			"page_physical": chunk.PagePhysical,
		})
	}

	cypher := fmt.Sprintf(`
	MERGE (d:%s {doc_id: $doc_id})
	WITH d
	UNWIND $chunks AS chunk
	WITH d,
		chunk,
		COALESCE(NULLIF(chunk.chapter, ''), 'Unknown') AS chapter_name,
		COALESCE(NULLIF(chunk.subheading, ''), 'Unknown') AS subheading_name,
		COALESCE(NULLIF(chunk.emotion, ''), 'Neutral') AS emotion_name
	MERGE (ch:%s {doc_id: $doc_id, name: chapter_name})
	MERGE (sub:%s {doc_id: $doc_id, name: subheading_name})
	MERGE (c:%s {chunk_id: chunk.chunk_id})
	SET c.doc_id = $doc_id,
		c.text = chunk.text,
		c.page_label = chunk.page_label,
		c.page_physical = chunk.page_physical
	MERGE (e:%s {name: emotion_name})
	MERGE (d)-[:%s]->(ch)
	MERGE (ch)-[:%s]->(sub)
	MERGE (sub)-[:%s]->(c)
	MERGE (c)-[:%s]->(e)`,
		labelDocument, labelChapter, labelSubheading, labelChunk, labelEmotion,
		relHasChapter, relHasSubheading, relHasChunk, relHasEmotion)

	if _, err := s.RunQuery(ctx, cypher, map[string]any{
		"doc_id": docID,
		"chunks": payload,
	}); err != nil {
		return fmt.Errorf("graph batch ingest doc_id=%s: %w", docID, err)
	}

	s.logger.Info("graph batch ingest completed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// BatchLink 批量建立 NEXT 边。
func (s *Neo4jStore) BatchLink(ctx context.Context, pairs [][2]string) error {
	links := make([][]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair[0] == pair[1] {
			return fmt.Errorf("self NEXT link rejected: %s", pair[0])
		}
		links = append(links, []string{pair[0], pair[1]})
	}

	cypher := fmt.Sprintf(`
	UNWIND $links AS pair
	MATCH (a:%s {chunk_id: pair[0]})
	MATCH (b:%s {chunk_id: pair[1]})
	MERGE (a)-[:%s]->(b)`, labelChunk, labelChunk, relNext)

	if _, err := s.RunQuery(ctx, cypher, map[string]any{"links": links}); err != nil {
		return fmt.Errorf("graph batch link: %w", err)
	}

	s.logger.Debug("sequential links created", zap.Int("links", len(links)))
	return nil
}

// Close 关闭驱动连接。
func (s *Neo4jStore) Close(ctx context.Context) error {
	s.logger.Info("closing neo4j store")
	return s.driver.Close(ctx)
}

func chunkRecordsFrom(records []Record, withScore bool) []ChunkRecord {
	out := make([]ChunkRecord, 0, len(records))
	for _, rec := range records {
		cr := ChunkRecord{
			ChunkID: stringValue(rec["chunk_id"]),
			DocID:   stringValue(rec["doc_id"]),
			Text:    stringValue(rec["text"]),
			Emotion: stringValue(rec["emotion"]),
		}
		if withScore {
			if f, ok := floatValue(rec["score"]); ok {
				cr.Score = &f
			}
		}
		out = append(out, cr)
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int64:
		return float64(f), true
	}
	return 0, false
}
