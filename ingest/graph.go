// Package ingest 实现文档块向图库与向量库的摄取。
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/emotion"
	"github.com/BaSui01/medirag/graphstore"
	"github.com/BaSui01/medirag/internal/metrics"
	"github.com/BaSui01/medirag/types"
)

// GraphIngestorConfig 图谱摄取配置。
type GraphIngestorConfig struct {
	// EnrichEmotion 是否在摄取前做情绪标注。
	EnrichEmotion bool `json:"enrich_emotion" yaml:"enrich_emotion"`
	// ParallelThreshold 块数达到阈值才启用并发标注，小批量串行更省。
	ParallelThreshold int `json:"parallel_threshold" yaml:"parallel_threshold"`
}

// DefaultGraphIngestorConfig 返回默认配置。
func DefaultGraphIngestorConfig() GraphIngestorConfig {
	return GraphIngestorConfig{
		EnrichEmotion:     true,
		ParallelThreshold: 4,
	}
}

// GraphIngestor 将块批量写入图库：情绪标注 → 批量摄取 → NEXT 顺序边。
type GraphIngestor struct {
	cfg       GraphIngestorConfig
	store     graphstore.Store
	extractor *emotion.LLMExtractor
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewGraphIngestor 创建图谱摄取器。extractor 与 collector 可为 nil。
func NewGraphIngestor(cfg GraphIngestorConfig, store graphstore.Store, extractor *emotion.LLMExtractor, collector *metrics.Collector, logger *zap.Logger) *GraphIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = 4
	}
	return &GraphIngestor{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "graph_ingestor")),
	}
}

// Ingest 摄取一个文档的全部块，并按输入顺序建立 NEXT 边。幂等。
func (g *GraphIngestor) Ingest(ctx context.Context, docID string, chunks []types.Chunk) error {
	start := time.Now()

	if docID == "" {
		return fmt.Errorf("ingest: empty doc_id")
	}
	if err := validateChunks(chunks); err != nil {
		return err
	}

	if g.cfg.EnrichEmotion && g.extractor != nil {
		g.annotateEmotions(ctx, chunks)
	}

	if err := g.store.BatchIngest(ctx, docID, chunks); err != nil {
		g.record("error", len(chunks), start)
		return fmt.Errorf("graph ingest doc_id=%s: %w", docID, err)
	}

	pairs := sequentialPairs(chunks)
	if len(pairs) > 0 {
		if err := g.store.BatchLink(ctx, pairs); err != nil {
			g.record("error", len(chunks), start)
			return fmt.Errorf("graph link doc_id=%s: %w", docID, err)
		}
	}

	g.logger.Info("document ingested into graph",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Int("links", len(pairs)),
		zap.Duration("elapsed", time.Since(start)))
	g.record("ok", len(chunks), start)
	return nil
}

// annotateEmotions 填充缺失的情绪标签。小批量走串行快路径。
func (g *GraphIngestor) annotateEmotions(ctx context.Context, chunks []types.Chunk) {
	missing := make([]int, 0, len(chunks))
	for i := range chunks {
		if chunks[i].Emotion == "" {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}

	if len(missing) < g.cfg.ParallelThreshold {
		for _, idx := range missing {
			tag, err := g.extractor.Extract(ctx, chunks[idx].Text)
			if err != nil {
				g.logger.Debug("emotion extraction failed",
					zap.String("chunk_id", chunks[idx].ChunkID),
					zap.Error(err))
				tag = emotion.DefaultTag
			}
			chunks[idx].Emotion = tag
		}
		return
	}

	texts := make([]string, len(missing))
	for j, idx := range missing {
		texts[j] = chunks[idx].Text
	}
	tags := g.extractor.ExtractBatch(ctx, texts)
	for j, idx := range missing {
		chunks[idx].Emotion = tags[j]
	}
}

func (g *GraphIngestor) record(status string, chunks int, start time.Time) {
	if g.metrics != nil {
		g.metrics.RecordIngest("graph", status, chunks, time.Since(start))
	}
}

// validateChunks 校验 chunk_id 非空且批内唯一，文本非空。
func validateChunks(chunks []types.Chunk) error {
	seen := make(map[string]bool, len(chunks))
	for i, chunk := range chunks {
		if chunk.ChunkID == "" {
			return fmt.Errorf("ingest: chunk %d has empty chunk_id", i)
		}
		if chunk.Text == "" {
			return fmt.Errorf("ingest: chunk %s has empty text", chunk.ChunkID)
		}
		if seen[chunk.ChunkID] {
			return fmt.Errorf("ingest: duplicate chunk_id %s", chunk.ChunkID)
		}
		seen[chunk.ChunkID] = true
	}
	return nil
}

// sequentialPairs 按输入顺序产出严格向前的 NEXT 边对。
func sequentialPairs(chunks []types.Chunk) [][2]string {
	if len(chunks) < 2 {
		return nil
	}
	pairs := make([][2]string, 0, len(chunks)-1)
	for i := 0; i < len(chunks)-1; i++ {
		pairs = append(pairs, [2]string{chunks[i].ChunkID, chunks[i+1].ChunkID})
	}
	return pairs
}
