package retriever

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/graphstore"
	"github.com/BaSui01/medirag/internal/cache"
	"github.com/BaSui01/medirag/internal/metrics"
	"github.com/BaSui01/medirag/types"
)

// Mode 检索模式。
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// Request 一次检索请求。零值字段取配置默认。
type Request struct {
	Query    string  `json:"query"`
	Mode     Mode    `json:"mode,omitempty"`
	TopK     int     `json:"top_k,omitempty"`
	InitialK int     `json:"initial_k,omitempty"`
	Filters  Filters `json:"filters,omitempty"`
}

// OrchestratorConfig 编排器配置。
type OrchestratorConfig struct {
	// DefaultTopK 最终返回条数默认值。
	DefaultTopK int `json:"default_top_k" yaml:"default_top_k"`
	// DefaultInitialK 各检索源的初始拉取条数默认值。
	DefaultInitialK int `json:"default_initial_k" yaml:"default_initial_k"`
	// ExpandTopVector 参与图谱上下文扩展的向量命中数。
	ExpandTopVector int `json:"expand_top_vector" yaml:"expand_top_vector"`
	// FailSoft 任一检索源失败时降级为零候选；关闭则透传错误。
	FailSoft bool `json:"fail_soft" yaml:"fail_soft"`
}

// DefaultOrchestratorConfig 返回默认配置。
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DefaultTopK:     5,
		DefaultInitialK: 15,
		ExpandTopVector: 10,
		FailSoft:        true,
	}
}

// ContextExpander 图谱上下文扩展能力，混合模式下对向量命中做多跳扩展。
type ContextExpander interface {
	ExpandChunkContext(ctx context.Context, chunkID, docID string) []types.Candidate
}

// GraphSource 图谱检索源：检索 + 上下文扩展。
type GraphSource interface {
	Retriever
	ContextExpander
}

// structureLookup 结构化元数据补全所需的最小图库能力。
type structureLookup interface {
	GetStructure(ctx context.Context, chunkID string) (*graphstore.Structure, error)
}

// Orchestrator 混合检索编排器：组合向量与图谱检索源，合并、去重、
// 补全结构化元数据后交给交叉编码器重排。唯一的检索入口。
type Orchestrator struct {
	cfg       OrchestratorConfig
	vector    Retriever
	graph     GraphSource
	structure structureLookup
	reranker  *CrossEncoderReranker
	cache     *cache.Manager
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewOrchestrator 创建编排器。cacheManager 与 collector 可为 nil。
func NewOrchestrator(
	cfg OrchestratorConfig,
	vector Retriever,
	graph GraphSource,
	structure structureLookup,
	reranker *CrossEncoderReranker,
	cacheManager *cache.Manager,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.DefaultInitialK <= 0 {
		cfg.DefaultInitialK = 15
	}
	if cfg.ExpandTopVector <= 0 {
		cfg.ExpandTopVector = 10
	}
	return &Orchestrator{
		cfg:       cfg,
		vector:    vector,
		graph:     graph,
		structure: structure,
		reranker:  reranker,
		cache:     cacheManager,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "retriever_orchestrator")),
	}
}

// Retrieve 执行检索并返回按 rerank_score 降序的最终结果。
// 空查询不触碰任何后端，直接返回空。
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) ([]types.RankedResult, error) {
	start := time.Now()

	if isBlank(req.Query) {
		return nil, nil
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.DefaultTopK
	}
	initialK := req.InitialK
	if initialK <= 0 {
		initialK = o.cfg.DefaultInitialK
	}

	// 无过滤条件的请求走跨进程结果缓存。
	cacheable := o.cache != nil && len(req.Filters) == 0
	cacheKey := ""
	if cacheable {
		cacheKey = cache.ResultKey(req.Query, string(mode), topK)
		if cached, err := o.cache.GetResults(ctx, cacheKey); err == nil {
			o.recordMetrics(string(mode), "cache_hit", start)
			if o.metrics != nil {
				o.metrics.RecordCacheHit("retrieval_result")
			}
			return cached, nil
		} else if o.metrics != nil && cache.IsCacheMiss(err) {
			o.metrics.RecordCacheMiss("retrieval_result")
		}
	}

	candidates, err := o.gather(ctx, req.Query, mode, topK, initialK, req.Filters)
	if err != nil {
		if o.cfg.FailSoft {
			o.logger.Error("retrieval failed, degrading to empty result",
				zap.String("query", req.Query),
				zap.String("mode", string(mode)),
				zap.Error(err))
			o.recordMetrics(string(mode), "degraded", start)
			return nil, nil
		}
		o.recordMetrics(string(mode), "error", start)
		return nil, err
	}

	merged := dedupeKeepMax(validate(candidates))
	sortByScore(merged)
	o.enrich(ctx, merged)
	if o.metrics != nil {
		o.metrics.RecordCandidates("merged", len(merged))
	}

	results := o.reranker.Rerank(ctx, req.Query, merged, topK)

	if cacheable && len(results) > 0 {
		if err := o.cache.SetResults(ctx, cacheKey, results); err != nil {
			o.logger.Debug("result cache write failed", zap.Error(err))
		}
	}

	o.logger.Info("retrieval completed",
		zap.String("query", req.Query),
		zap.String("mode", string(mode)),
		zap.Int("merged", len(merged)),
		zap.Int("returned", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	if o.metrics != nil {
		o.metrics.RecordCandidates("final", len(results))
	}
	o.recordMetrics(string(mode), "ok", start)
	return results, nil
}

// gather 按模式收集候选。混合模式取三路信号的并集：向量召回语义
// 相似，图谱关键词召回精确词匹配，多跳扩展找回与强命中相邻的上下文。
func (o *Orchestrator) gather(ctx context.Context, query string, mode Mode, topK, initialK int, filters Filters) ([]types.Candidate, error) {
	switch mode {
	case ModeVector:
		return o.fromSource(ctx, o.vector, query, initialK, filters)
	case ModeGraph:
		return o.fromSource(ctx, o.graph, query, initialK, filters)
	default:
		vectorHits, vectorErr := o.fromSource(ctx, o.vector, query, initialK, filters)
		graphHits, graphErr := o.fromSource(ctx, o.graph, query, initialK, filters)
		if vectorErr != nil && graphErr != nil {
			return nil, vectorErr
		}

		expanded := o.expandVectorHits(ctx, vectorHits, filters.DocID())

		o.logger.Debug("hybrid sources gathered",
			zap.Int("vector", len(vectorHits)),
			zap.Int("graph", len(graphHits)),
			zap.Int("expanded", len(expanded)))
		if o.metrics != nil {
			o.metrics.RecordCandidates("vector", len(vectorHits))
			o.metrics.RecordCandidates("graph", len(graphHits))
			o.metrics.RecordCandidates("expanded", len(expanded))
		}

		merged := make([]types.Candidate, 0, len(vectorHits)+len(graphHits)+len(expanded))
		merged = append(merged, vectorHits...)
		merged = append(merged, graphHits...)
		merged = append(merged, expanded...)
		return merged, nil
	}
}

// fromSource 调用单个检索源。失败按 fail-soft 记零候选，严格模式透传。
func (o *Orchestrator) fromSource(ctx context.Context, source Retriever, query string, topK int, filters Filters) ([]types.Candidate, error) {
	hits, err := source.Retrieve(ctx, query, topK, filters)
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordBackendFailure(source.Name())
		}
		if !o.cfg.FailSoft {
			return nil, err
		}
		o.logger.Warn("retrieval source failed, contributing zero candidates",
			zap.String("source", source.Name()),
			zap.Error(err))
		return nil, nil
	}
	return hits, nil
}

// expandVectorHits 对向量命中的前 ExpandTopVector 个做图谱上下文扩展。
func (o *Orchestrator) expandVectorHits(ctx context.Context, vectorHits []types.Candidate, docID string) []types.Candidate {
	if o.graph == nil || len(vectorHits) == 0 {
		return nil
	}
	limit := o.cfg.ExpandTopVector
	if limit > len(vectorHits) {
		limit = len(vectorHits)
	}
	var expanded []types.Candidate
	for _, hit := range vectorHits[:limit] {
		scope := docID
		if scope == "" {
			scope = hit.DocID
		}
		expanded = append(expanded, o.graph.ExpandChunkContext(ctx, hit.ChunkID, scope)...)
	}
	return expanded
}

// enrich 补全缺失的 chapter/subheading。尽力而为，失败保留原元数据。
func (o *Orchestrator) enrich(ctx context.Context, candidates []types.Candidate) {
	if o.structure == nil {
		return
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Metadata.Chapter != "" && c.Metadata.Subheading != "" {
			continue
		}
		structure, err := o.structure.GetStructure(ctx, c.ChunkID)
		if err != nil || structure == nil {
			continue
		}
		if c.Metadata.Chapter == "" {
			c.Metadata.Chapter = structure.Chapter
		}
		if c.Metadata.Subheading == "" {
			c.Metadata.Subheading = structure.Subheading
		}
	}
}

func (o *Orchestrator) recordMetrics(mode, status string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordRetrieval(mode, status, time.Since(start))
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
