package retriever

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/emotion"
	"github.com/BaSui01/medirag/graphstore"
	"github.com/BaSui01/medirag/types"
)

// GraphConfig 图谱检索器配置。分值常量是启发式调参值，可按场景覆盖。
type GraphConfig struct {
	// BaseScore 无后端相关性分值时的主检索基础分。
	BaseScore float64 `json:"base_score" yaml:"base_score"`
	// FulltextBase / FulltextDiv：有全文分值 s 时取 min(1.0, base + s/div)。
	FulltextBase float64 `json:"fulltext_base" yaml:"fulltext_base"`
	FulltextDiv  float64 `json:"fulltext_div" yaml:"fulltext_div"`
	// MultihopScore 多跳扩展块的固定分值。
	MultihopScore float64 `json:"multihop_score" yaml:"multihop_score"`
	// PhraseBoost 查询串整体命中候选文本时的加分。
	PhraseBoost float64 `json:"phrase_boost" yaml:"phrase_boost"`
	// EmotionBoost 候选情绪与查询情绪一致时的加分。
	EmotionBoost float64 `json:"emotion_boost" yaml:"emotion_boost"`
	// OverfetchFactor 主检索超额拉取倍数，给重排留余量。
	OverfetchFactor int `json:"overfetch_factor" yaml:"overfetch_factor"`
	// SeedCount 参与多跳扩展的主检索命中数。
	SeedCount int `json:"seed_count" yaml:"seed_count"`
	// MaxHops 沿 NEXT 边的最大跳数。
	MaxHops int `json:"max_hops" yaml:"max_hops"`
	// ExpandLimit 多跳扩展总量上限。
	ExpandLimit int `json:"expand_limit" yaml:"expand_limit"`
	// MinConceptLen 概念 token 最小长度。
	MinConceptLen int `json:"min_concept_len" yaml:"min_concept_len"`
	// FailSoft 图库失败时降级为空结果。
	FailSoft bool `json:"fail_soft" yaml:"fail_soft"`
	// CacheSize 查询结果缓存容量，0 关闭缓存。
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// DefaultGraphConfig 返回默认配置。
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		BaseScore:       0.6,
		FulltextBase:    0.4,
		FulltextDiv:     10.0,
		MultihopScore:   0.7,
		PhraseBoost:     0.5,
		EmotionBoost:    0.6,
		OverfetchFactor: 3,
		SeedCount:       5,
		MaxHops:         2,
		ExpandLimit:     50,
		MinConceptLen:   3,
		FailSoft:        true,
		CacheSize:       128,
	}
}

// GraphRetriever 图谱检索：概念抽取 → 全文/关键词检索 → 多跳扩展 →
// 短语与情绪加权。
type GraphRetriever struct {
	base       *baseRetriever
	cfg        GraphConfig
	store      graphstore.Store
	classifier emotion.Extractor
	concepts   *conceptExtractor
	logger     *zap.Logger
}

// NewGraphRetriever 创建图谱检索器。classifier 可为 nil（不做情绪加权）。
func NewGraphRetriever(cfg GraphConfig, store graphstore.Store, classifier emotion.Extractor, logger *zap.Logger) *GraphRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 3
	}
	if cfg.SeedCount <= 0 {
		cfg.SeedCount = 5
	}
	return &GraphRetriever{
		base:       newBaseRetriever("graph", cfg.FailSoft, cfg.CacheSize, logger),
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		concepts:   newConceptExtractor(cfg.MinConceptLen, 256),
		logger:     logger.With(zap.String("component", "graph_retriever")),
	}
}

func (r *GraphRetriever) Name() string { return "graph" }

// Retrieve 实现 Retriever。
func (r *GraphRetriever) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error) {
	return r.base.run(ctx, query, topK, filters, r.fetch)
}

func (r *GraphRetriever) fetch(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error) {
	concepts := r.concepts.extract(query)
	if len(concepts) == 0 {
		return nil, nil
	}
	docID := filters.DocID()
	queryEmotion := r.detectQueryEmotion(ctx, query)
	limit := topK * r.cfg.OverfetchFactor

	primary, err := r.primarySearch(ctx, concepts, limit, docID, queryEmotion)
	if err != nil {
		return nil, err
	}

	expanded := r.expandSeeds(ctx, primary, docID)

	// 主检索先入，多跳扩展按 chunk_id 去重时让位于主命中。
	merged := mergeByChunkID(primary, expanded)
	r.applyBoosts(merged, query, queryEmotion)

	r.logger.Debug("graph retrieval completed",
		zap.String("query", query),
		zap.Strings("concepts", concepts),
		zap.String("query_emotion", queryEmotion),
		zap.Int("primary", len(primary)),
		zap.Int("expanded", len(expanded)),
		zap.Int("merged", len(merged)))
	return merged, nil
}

// detectQueryEmotion 分类查询情绪；Neutral 视为不过滤。
func (r *GraphRetriever) detectQueryEmotion(ctx context.Context, query string) string {
	if r.classifier == nil {
		return ""
	}
	tag, err := r.classifier.Extract(ctx, query)
	if err != nil {
		r.logger.Debug("query emotion detection failed", zap.Error(err))
		return ""
	}
	if tag == emotion.DefaultTag {
		return ""
	}
	return tag
}

// primarySearch 全文索引优先，无命中或出错时回退关键词扫描。
func (r *GraphRetriever) primarySearch(ctx context.Context, concepts []string, limit int, docID, queryEmotion string) ([]types.Candidate, error) {
	records, err := r.store.FulltextQueryChunks(ctx, buildFulltextQuery(concepts), limit, docID, queryEmotion)
	source := types.SourceGraphFulltext
	if err != nil || len(records) == 0 {
		if err != nil {
			r.logger.Debug("fulltext query failed, falling back to keyword scan", zap.Error(err))
		}
		records, err = r.store.KeywordScanChunks(ctx, concepts, limit, docID, queryEmotion)
		if err != nil {
			return nil, fmt.Errorf("graph keyword scan: %w", err)
		}
		source = types.SourceGraphKeyword
	}

	candidates := make([]types.Candidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, types.Candidate{
			ChunkID:  rec.ChunkID,
			DocID:    rec.DocID,
			Score:    r.primaryScore(rec.Score),
			Source:   source,
			Text:     rec.Text,
			Metadata: types.Metadata{Emotion: rec.Emotion},
		})
	}
	return candidates, nil
}

// primaryScore 把后端全文分值压到与向量分值可比的 [0,1] 区间。
func (r *GraphRetriever) primaryScore(fulltextScore *float64) float64 {
	if fulltextScore == nil {
		return r.cfg.BaseScore
	}
	return math.Min(1.0, r.cfg.FulltextBase+*fulltextScore/r.cfg.FulltextDiv)
}

// expandSeeds 取主命中前 SeedCount 个做多跳扩展。扩展失败不致命。
func (r *GraphRetriever) expandSeeds(ctx context.Context, primary []types.Candidate, docID string) []types.Candidate {
	if len(primary) == 0 || r.cfg.MaxHops <= 0 {
		return nil
	}
	seedCount := r.cfg.SeedCount
	if seedCount > len(primary) {
		seedCount = len(primary)
	}
	seeds := make([]string, 0, seedCount)
	for _, c := range primary[:seedCount] {
		seeds = append(seeds, c.ChunkID)
	}

	records, err := r.store.ExpandNext(ctx, seeds, docID, r.cfg.MaxHops, r.cfg.ExpandLimit)
	if err != nil {
		r.logger.Warn("multihop expansion failed", zap.Error(err))
		return nil
	}
	return r.multihopCandidates(records)
}

func (r *GraphRetriever) multihopCandidates(records []graphstore.ChunkRecord) []types.Candidate {
	out := make([]types.Candidate, 0, len(records))
	for _, rec := range records {
		out = append(out, types.Candidate{
			ChunkID:  rec.ChunkID,
			DocID:    rec.DocID,
			Score:    r.cfg.MultihopScore,
			Source:   types.SourceGraphMultihop,
			Text:     rec.Text,
			Metadata: types.Metadata{Emotion: rec.Emotion},
		})
	}
	return out
}

// applyBoosts 短语命中 +PhraseBoost，情绪一致 +EmotionBoost。
func (r *GraphRetriever) applyBoosts(candidates []types.Candidate, query, queryEmotion string) {
	loweredQuery := strings.ToLower(strings.TrimSpace(query))
	for i := range candidates {
		c := &candidates[i]
		if c.Text == "" {
			continue
		}
		if loweredQuery != "" && strings.Contains(strings.ToLower(c.Text), loweredQuery) {
			c.Score += r.cfg.PhraseBoost
		}
		if queryEmotion != "" && c.Metadata.Emotion == queryEmotion {
			c.Score += r.cfg.EmotionBoost
		}
	}
}

// ExpandChunkContext 编排器的混合扩展入口：对单个块做多跳扩展。
// docID 为空时先解析块的归属文档，解析不到返回空。
func (r *GraphRetriever) ExpandChunkContext(ctx context.Context, chunkID, docID string) []types.Candidate {
	if chunkID == "" {
		return nil
	}
	if docID == "" {
		resolved, err := r.store.ResolveDoc(ctx, chunkID)
		if err != nil || resolved == "" {
			if err != nil {
				r.logger.Debug("resolve doc for chunk failed",
					zap.String("chunk_id", chunkID),
					zap.Error(err))
			}
			return nil
		}
		docID = resolved
	}

	records, err := r.store.ExpandNext(ctx, []string{chunkID}, docID, r.cfg.MaxHops, r.cfg.ExpandLimit)
	if err != nil {
		r.logger.Debug("chunk context expansion failed",
			zap.String("chunk_id", chunkID),
			zap.Error(err))
		return nil
	}
	return r.multihopCandidates(records)
}

// mergeByChunkID 按 chunk_id 去重合并，先入者优先。
func mergeByChunkID(lists ...[]types.Candidate) []types.Candidate {
	seen := make(map[string]bool)
	var out []types.Candidate
	for _, list := range lists {
		for _, c := range list {
			if seen[c.ChunkID] {
				continue
			}
			seen[c.ChunkID] = true
			out = append(out, c)
		}
	}
	return out
}
