package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/types"
)

// TEIConfig 配置 text-embeddings-inference 的 /rerank 端点。
// BGE / Jina 等交叉编码器模型均可通过该协议服务。
type TEIConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key,omitempty" yaml:"api_key"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// TEIProvider implements Provider against a TEI-style /rerank endpoint.
type TEIProvider struct {
	cfg     TEIConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewTEIProvider 创建 TEI 重排提供者。
func NewTEIProvider(cfg TEIConfig, logger *zap.Logger) *TEIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TEIProvider{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "tei_reranker")),
	}
}

func (p *TEIProvider) Name() string { return "tei-reranker" }

type teiRerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score 打分。/rerank 协议一次只接受一个 query，按 query 分组请求。
func (p *TEIProvider) Score(ctx context.Context, pairs []QueryDocPair) ([]float64, error) {
	scores := make([]float64, len(pairs))

	groups := make(map[string][]int)
	for i, pair := range pairs {
		groups[pair.Query] = append(groups[pair.Query], i)
	}

	for query, indices := range groups {
		texts := make([]string, len(indices))
		for j, idx := range indices {
			texts[j] = pairs[idx].Document
		}

		results, err := p.rerank(ctx, query, texts)
		if err != nil {
			return nil, err
		}
		if len(results) != len(indices) {
			return nil, fmt.Errorf("rerank result count mismatch: got %d want %d", len(results), len(indices))
		}
		for _, r := range results {
			if r.Index < 0 || r.Index >= len(indices) {
				return nil, fmt.Errorf("rerank index %d out of range", r.Index)
			}
			scores[indices[r.Index]] = r.Score
		}
	}
	return scores, nil
}

func (p *TEIProvider) rerank(ctx context.Context, query string, texts []string) ([]teiRerankResult, error) {
	data, err := json.Marshal(teiRerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithBackend(p.Name()).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewError(types.ErrUpstreamError, string(body)).
			WithBackend(p.Name()).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	var results []teiRerankResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return results, nil
}
