package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChromaConfig configures the Chroma Store implementation.
//
// Notes:
// - Collection is resolved lazily by name via get_or_create on first use.
// - The distance metric is stored as collection metadata ("hnsw:space").
type ChromaConfig struct {
	BaseURL    string         `json:"base_url" yaml:"base_url"`
	Collection string         `json:"collection" yaml:"collection"`
	Metric     DistanceMetric `json:"metric" yaml:"metric"`
	Tenant     string         `json:"tenant,omitempty" yaml:"tenant"`
	Database   string         `json:"database,omitempty" yaml:"database"`
	Timeout    time.Duration  `json:"timeout,omitempty" yaml:"timeout"`
}

// ChromaStore implements Store using Chroma's REST API.
type ChromaStore struct {
	cfg ChromaConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu           sync.Mutex
	collectionID string
}

// NewChromaStore creates a Chroma-backed Store.
func NewChromaStore(cfg ChromaConfig, logger *zap.Logger) *ChromaStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Collection == "" {
		cfg.Collection = "smart_chunks"
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &ChromaStore{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "chroma_store")),
	}
}

// Metric 返回距离度量。
func (s *ChromaStore) Metric() DistanceMetric { return s.cfg.Metric }

// chroma 度量名与内部命名的映射。
func chromaSpace(m DistanceMetric) string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricIP:
		return "ip"
	default:
		return "cosine"
	}
}

// ensureCollection 解析集合 ID。只在成功时落定结果：瞬时失败
// 返回错误，下一次调用重试。
func (s *ChromaStore) ensureCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	body := map[string]any{
		"name":          s.cfg.Collection,
		"get_or_create": true,
		"metadata": map[string]any{
			"hnsw:space": chromaSpace(s.cfg.Metric),
		},
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections", body, &resp); err != nil {
		return "", fmt.Errorf("chroma get_or_create collection: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma returned empty collection id for %q", s.cfg.Collection)
	}

	s.collectionID = resp.ID
	s.logger.Info("chroma collection ready",
		zap.String("collection", s.cfg.Collection),
		zap.String("id", s.collectionID),
		zap.String("metric", chromaSpace(s.cfg.Metric)))
	return s.collectionID, nil
}

// Upsert 按 chunk_id 幂等写入向量。
func (s *ChromaStore) Upsert(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(embeddings) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("chroma upsert: mismatched array lengths")
	}
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	endpoint := fmt.Sprintf("/api/v1/collections/%s/upsert", url.PathEscape(collectionID))
	if err := s.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("chroma upsert: %w", err)
	}

	s.logger.Debug("chroma upsert completed", zap.Int("count", len(ids)))
	return nil
}

// chroma 的查询响应对批量查询返回嵌套数组，取第一组。
type chromaQueryResponse struct {
	IDs       [][]string            `json:"ids"`
	Documents [][]string            `json:"documents"`
	Distances [][]float64           `json:"distances"`
	Metadatas [][]map[string]string `json:"metadatas"`
}

// Query 相似度查询。
func (s *ChromaStore) Query(ctx context.Context, queryEmbedding []float64, topK int) (*QueryResult, error) {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query_embeddings": [][]float64{queryEmbedding},
		"n_results":        topK,
		"include":          []string{"documents", "distances", "metadatas"},
	}

	var resp chromaQueryResponse
	endpoint := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(collectionID))
	if err := s.doJSON(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("chroma query: %w", err)
	}

	result := &QueryResult{}
	if len(resp.IDs) > 0 {
		result.IDs = resp.IDs[0]
	}
	if len(resp.Documents) > 0 {
		result.Documents = resp.Documents[0]
	}
	if len(resp.Distances) > 0 {
		result.Distances = resp.Distances[0]
	}
	if len(resp.Metadatas) > 0 {
		result.Metadatas = resp.Metadatas[0]
	}
	return result, nil
}

// DeleteDocument 按 doc_id 删除向量。
func (s *ChromaStore) DeleteDocument(ctx context.Context, docID string) error {
	collectionID, err := s.ensureCollection(ctx)
	if err != nil {
		return err
	}

	body := map[string]any{
		"where": map[string]any{"doc_id": docID},
	}
	endpoint := fmt.Sprintf("/api/v1/collections/%s/delete", url.PathEscape(collectionID))
	if err := s.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("chroma delete doc_id=%s: %w", docID, err)
	}

	s.logger.Debug("chroma document deleted", zap.String("doc_id", docID))
	return nil
}

func (s *ChromaStore) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Tenant != "" {
		req.Header.Set("X-Chroma-Tenant", s.cfg.Tenant)
	}
	if s.cfg.Database != "" {
		req.Header.Set("X-Chroma-Database", s.cfg.Database)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
