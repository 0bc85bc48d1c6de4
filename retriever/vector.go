package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/embedding"
	"github.com/BaSui01/medirag/types"
	"github.com/BaSui01/medirag/vectorstore"
)

// VectorConfig 向量检索器配置。
type VectorConfig struct {
	// MinScore 相似度下限，低于则丢弃。0 表示不过滤。
	MinScore float64 `json:"min_score" yaml:"min_score"`
	// FailSoft 后端失败时降级为空结果。
	FailSoft bool `json:"fail_soft" yaml:"fail_soft"`
	// CacheSize 查询结果缓存容量，0 关闭缓存。
	CacheSize int `json:"cache_size" yaml:"cache_size"`
}

// DefaultVectorConfig 返回默认配置。
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		MinScore:  0.0,
		FailSoft:  true,
		CacheSize: 128,
	}
}

// VectorRetriever 稠密语义检索：嵌入查询 → 最近邻 → 距离转相似度。
type VectorRetriever struct {
	base     *baseRetriever
	cfg      VectorConfig
	store    vectorstore.Store
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewVectorRetriever 创建向量检索器。
func NewVectorRetriever(cfg VectorConfig, store vectorstore.Store, embedder embedding.Provider, logger *zap.Logger) *VectorRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorRetriever{
		base:     newBaseRetriever("vector", cfg.FailSoft, cfg.CacheSize, logger),
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "vector_retriever")),
	}
}

func (r *VectorRetriever) Name() string { return "vector" }

// Retrieve 实现 Retriever。
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error) {
	return r.base.run(ctx, query, topK, filters, r.fetch)
}

func (r *VectorRetriever) fetch(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	result, err := r.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector store query: %w", err)
	}
	if result.Len() == 0 {
		return nil, nil
	}

	metric := r.store.Metric()
	candidates := make([]types.Candidate, 0, result.Len())
	for i := 0; i < result.Len(); i++ {
		meta := result.Metadatas[i]
		score := DistanceToSimilarity(metric, result.Distances[i])
		if score < r.cfg.MinScore {
			continue
		}
		if !matchesMetadata(meta, filters) {
			continue
		}
		candidates = append(candidates, types.Candidate{
			ChunkID:  result.IDs[i],
			DocID:    meta["doc_id"],
			Score:    score,
			Source:   types.SourceVector,
			Text:     result.Documents[i],
			Metadata: metadataFromMap(meta),
		})
	}

	r.logger.Debug("vector retrieval completed",
		zap.String("query", query),
		zap.Int("hits", result.Len()),
		zap.Int("kept", len(candidates)))
	return candidates, nil
}

// DistanceToSimilarity 按度量将后端距离转为相似度。
// cosine: 1-d；l2: 1/(1+d)；ip: d（本身即相似度）。
func DistanceToSimilarity(metric vectorstore.DistanceMetric, distance float64) float64 {
	switch metric {
	case vectorstore.MetricL2:
		return 1.0 / (1.0 + distance)
	case vectorstore.MetricIP:
		return distance
	default:
		return 1.0 - distance
	}
}

// matchesMetadata 等值过滤。过滤键在元数据中缺失视为不匹配。
func matchesMetadata(meta map[string]string, filters Filters) bool {
	for k, want := range filters {
		if meta[k] != want {
			return false
		}
	}
	return true
}

func metadataFromMap(meta map[string]string) types.Metadata {
	m := types.Metadata{
		Chapter:    meta["chapter"],
		Subheading: meta["subheading"],
		Emotion:    meta["emotion"],
		PageLabel:  meta["page_label"],
	}
	if v := meta["page_physical"]; v != "" {
		var page int
		if _, err := fmt.Sscanf(v, "%d", &page); err == nil {
			m.PagePhysical = page
		}
	}
	return m
}
