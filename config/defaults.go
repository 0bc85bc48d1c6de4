// =============================================================================
// 📦 MediRAG 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Chroma:    DefaultChromaConfig(),
		Neo4j:     DefaultNeo4jConfig(),
		Redis:     DefaultRedisConfig(),
		Registry:  DefaultRegistryConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Reranker:  DefaultRerankerConfig(),
		LLM:       DefaultLLMConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultChromaConfig 返回默认向量存储配置
func DefaultChromaConfig() ChromaConfig {
	return ChromaConfig{
		BaseURL:    "http://localhost:8000",
		Collection: "smart_chunks",
		Metric:     "cosine",
		Timeout:    30 * time.Second,
	}
}

// DefaultNeo4jConfig 返回默认图存储配置
func DefaultNeo4jConfig() Neo4jConfig {
	return Neo4jConfig{
		URI:      "neo4j://localhost:7687",
		Username: "neo4j",
		Password: "",
		Database: "neo4j",
		Timeout:  15 * time.Second,
		Enabled:  true,
	}
}

// DefaultRedisConfig 返回默认缓存配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		ResultTTL: 5 * time.Minute,
		PoolSize:  10,
		Enabled:   false,
	}
}

// DefaultRegistryConfig 返回默认文档注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Path: "medirag.db",
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		RPS:        0,
		Timeout:    30 * time.Second,
	}
}

// DefaultRerankerConfig 返回默认重排配置
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		Provider:   "tei",
		BaseURL:    "http://localhost:8080",
		MaxTextLen: 800,
		BatchSize:  16,
		Timeout:    30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:            "http://localhost:11434",
		Model:              "qwen2.5:7b",
		Temperature:        0.2,
		EmotionConcurrency: 8,
		Timeout:            120 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:            5,
		InitialK:        15,
		ExpandTopVector: 10,
		FailSoft:        true,
		MinVectorScore:  0,
		MaxHops:         2,
		ExpandLimit:     50,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "medirag",
		Addr:      ":9091",
	}
}
