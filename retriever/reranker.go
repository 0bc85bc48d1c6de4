package retriever

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/internal/metrics"
	"github.com/BaSui01/medirag/rerank"
	"github.com/BaSui01/medirag/types"
)

// RerankConfig 交叉编码器重排配置。
type RerankConfig struct {
	// MaxTextLen 送入模型前的文本截断长度（字符）。
	MaxTextLen int `json:"max_text_len" yaml:"max_text_len"`
	// BatchSize 打分批大小。
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// DefaultRerankConfig 返回默认配置。
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		MaxTextLen: 800,
		BatchSize:  16,
	}
}

// CrossEncoderReranker 用交叉编码器对候选做二次排序。
// 向量分与图谱分量纲不可比，重排统一到同一相关性尺度。
type CrossEncoderReranker struct {
	cfg      RerankConfig
	provider rerank.Provider
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewCrossEncoderReranker 创建重排器。
func NewCrossEncoderReranker(cfg RerankConfig, provider rerank.Provider, logger *zap.Logger) *CrossEncoderReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTextLen <= 0 {
		cfg.MaxTextLen = 800
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &CrossEncoderReranker{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(zap.String("component", "cross_encoder_reranker")),
	}
}

// WithMetrics 挂接指标采集器。
func (r *CrossEncoderReranker) WithMetrics(collector *metrics.Collector) *CrossEncoderReranker {
	r.metrics = collector
	return r
}

// Rerank 打分重排并截断到 topK。打分失败降级为保留输入顺序，
// 重排是质量增强而非正确性要求。
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []types.Candidate, topK int) []types.RankedResult {
	scorable := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Text != "" {
			scorable = append(scorable, c)
		}
	}
	if len(scorable) == 0 || topK <= 0 {
		return nil
	}

	pairs := make([]rerank.QueryDocPair, len(scorable))
	for i, c := range scorable {
		pairs[i] = rerank.QueryDocPair{
			Query:    query,
			Document: truncateText(c.Text, r.cfg.MaxTextLen),
		}
	}

	start := time.Now()
	scores, err := r.batchScore(ctx, pairs)
	if err != nil {
		r.logger.Warn("rerank scoring failed, keeping pre-rerank order", zap.Error(err))
		if r.metrics != nil {
			r.metrics.RecordRerank(r.provider.Name(), "error", time.Since(start))
			r.metrics.RecordRerankFallback()
		}
		return fallbackResults(scorable, topK)
	}
	if r.metrics != nil {
		r.metrics.RecordRerank(r.provider.Name(), "ok", time.Since(start))
	}

	results := make([]types.RankedResult, len(scorable))
	for i, c := range scorable {
		results[i] = types.RankedResult{Candidate: c, RerankScore: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (r *CrossEncoderReranker) batchScore(ctx context.Context, pairs []rerank.QueryDocPair) ([]float64, error) {
	scores := make([]float64, 0, len(pairs))
	for start := 0; start < len(pairs); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch, err := r.provider.Score(ctx, pairs[start:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, batch...)
	}
	return scores, nil
}

// fallbackResults 保留原顺序，用检索分充当重排分。
func fallbackResults(candidates []types.Candidate, topK int) []types.RankedResult {
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	results := make([]types.RankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = types.RankedResult{Candidate: c, RerankScore: c.Score}
	}
	return results
}

// truncateText 按 rune 截断，避免劈断多字节字符。
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
