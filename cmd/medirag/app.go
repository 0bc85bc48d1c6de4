package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/answering"
	"github.com/BaSui01/medirag/config"
	"github.com/BaSui01/medirag/embedding"
	"github.com/BaSui01/medirag/emotion"
	"github.com/BaSui01/medirag/graphstore"
	"github.com/BaSui01/medirag/ingest"
	"github.com/BaSui01/medirag/internal/cache"
	"github.com/BaSui01/medirag/internal/metrics"
	"github.com/BaSui01/medirag/registry"
	"github.com/BaSui01/medirag/rerank"
	"github.com/BaSui01/medirag/retriever"
	"github.com/BaSui01/medirag/vectorstore"
)

// app 进程级依赖容器：重资源（存储连接、模型客户端）只初始化一次，
// 按引用传给需要的组件。
type app struct {
	Orchestrator   *retriever.Orchestrator
	Agent          *answering.Agent
	GraphIngestor  *ingest.GraphIngestor
	VectorIngestor *ingest.VectorIngestor
	Registry       *registry.DocumentRegistry

	graphStore graphstore.Store
	cacheMgr   *cache.Manager
	logger     *zap.Logger
}

// newApp 按配置组装完整管线。
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	ctx := context.Background()

	// 向量存储
	vecStore := vectorstore.NewChromaStore(vectorstore.ChromaConfig{
		BaseURL:    cfg.Chroma.BaseURL,
		Collection: cfg.Chroma.Collection,
		Metric:     vectorstore.DistanceMetric(cfg.Chroma.Metric),
		Timeout:    cfg.Chroma.Timeout,
	}, logger)

	// 图存储：未启用 Neo4j 时用内存实现
	var graphStore graphstore.Store
	if cfg.Neo4j.Enabled {
		store, err := graphstore.NewNeo4jStore(ctx, graphstore.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Timeout:  cfg.Neo4j.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect graph store: %w", err)
		}
		graphStore = store
	} else {
		graphStore = graphstore.NewMemoryStore(logger)
	}

	// 文档注册表
	reg, err := registry.Open(cfg.Registry.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open document registry: %w", err)
	}

	// 模型客户端
	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		RPS:        cfg.Embedding.RPS,
		Timeout:    cfg.Embedding.Timeout,
	}, logger)

	extractor := emotion.NewLLMExtractor(emotion.LLMConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Concurrency: cfg.LLM.EmotionConcurrency,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	var reranker rerank.Provider
	switch cfg.Reranker.Provider {
	case "lexical":
		reranker = rerank.NewLexicalProvider()
	default:
		reranker = rerank.NewTEIProvider(rerank.TEIConfig{
			BaseURL: cfg.Reranker.BaseURL,
			APIKey:  cfg.Reranker.APIKey,
			Timeout: cfg.Reranker.Timeout,
		}, logger)
	}

	// 可选基础设施
	var cacheMgr *cache.Manager
	if cfg.Redis.Enabled {
		cacheMgr, err = cache.NewManager(cache.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			ResultTTL: cfg.Redis.ResultTTL,
			PoolSize:  cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn("result cache unavailable, continuing without it", zap.Error(err))
			cacheMgr = nil
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	// 检索管线
	vectorCfg := retriever.DefaultVectorConfig()
	vectorCfg.MinScore = cfg.Retrieval.MinVectorScore
	vectorCfg.FailSoft = cfg.Retrieval.FailSoft
	vectorRetriever := retriever.NewVectorRetriever(vectorCfg, vecStore, embedder, logger)

	graphCfg := retriever.DefaultGraphConfig()
	graphCfg.FailSoft = cfg.Retrieval.FailSoft
	graphCfg.MaxHops = cfg.Retrieval.MaxHops
	graphCfg.ExpandLimit = cfg.Retrieval.ExpandLimit
	graphRetriever := retriever.NewGraphRetriever(graphCfg, graphStore, extractor, logger)

	rerankCfg := retriever.DefaultRerankConfig()
	rerankCfg.MaxTextLen = cfg.Reranker.MaxTextLen
	rerankCfg.BatchSize = cfg.Reranker.BatchSize
	crossEncoder := retriever.NewCrossEncoderReranker(rerankCfg, reranker, logger).WithMetrics(collector)

	orchestrator := retriever.NewOrchestrator(
		retriever.OrchestratorConfig{
			DefaultTopK:     cfg.Retrieval.TopK,
			DefaultInitialK: cfg.Retrieval.InitialK,
			ExpandTopVector: cfg.Retrieval.ExpandTopVector,
			FailSoft:        cfg.Retrieval.FailSoft,
		},
		vectorRetriever, graphRetriever, graphStore, crossEncoder,
		cacheMgr, collector, logger,
	)

	// 回答侧
	prompts := answering.NewPromptBuilder(answering.DefaultPromptConfig(), logger)
	generator := answering.NewChatGenerator(answering.GeneratorConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	agent := answering.NewAgent(prompts, generator, answering.NewMemory(10), logger)

	// 摄取侧
	graphIngestor := ingest.NewGraphIngestor(ingest.DefaultGraphIngestorConfig(), graphStore, extractor, collector, logger)
	vectorIngestor := ingest.NewVectorIngestor(vecStore, embedder, collector, logger)

	return &app{
		Orchestrator:   orchestrator,
		Agent:          agent,
		GraphIngestor:  graphIngestor,
		VectorIngestor: vectorIngestor,
		Registry:       reg,
		graphStore:     graphStore,
		cacheMgr:       cacheMgr,
		logger:         logger,
	}, nil
}

// Close 释放所有持久连接。
func (a *app) Close() {
	if a.cacheMgr != nil {
		if err := a.cacheMgr.Close(); err != nil {
			a.logger.Warn("failed to close cache", zap.Error(err))
		}
	}
	if err := a.graphStore.Close(context.Background()); err != nil {
		a.logger.Warn("failed to close graph store", zap.Error(err))
	}
	if err := a.Registry.Close(); err != nil {
		a.logger.Warn("failed to close registry", zap.Error(err))
	}
}
