package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type memoryEntry struct {
	id        string
	embedding []float64
	document  string
	metadata  map[string]string
}

// MemoryStore 内存向量存储（用于测试和小规模应用）。
type MemoryStore struct {
	entries []memoryEntry
	metric  DistanceMetric
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore 创建内存向量存储。
func NewMemoryStore(metric DistanceMetric, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metric == "" {
		metric = MetricCosine
	}
	return &MemoryStore{
		entries: make([]memoryEntry, 0),
		metric:  metric,
		logger:  logger.With(zap.String("component", "memory_vector_store")),
	}
}

// Metric 返回距离度量。
func (s *MemoryStore) Metric() DistanceMetric { return s.metric }

// Upsert 按 id 幂等写入。
func (s *MemoryStore) Upsert(ctx context.Context, ids []string, embeddings [][]float64, documents []string, metadatas []map[string]string) error {
	if len(ids) != len(embeddings) || len(ids) != len(documents) || len(ids) != len(metadatas) {
		return fmt.Errorf("upsert: mismatched array lengths: ids=%d embeddings=%d documents=%d metadatas=%d",
			len(ids), len(embeddings), len(documents), len(metadatas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[string]int, len(s.entries))
	for i, e := range s.entries {
		index[e.id] = i
	}

	for i, id := range ids {
		if len(embeddings[i]) == 0 {
			return fmt.Errorf("upsert: entry %s has no embedding", id)
		}
		entry := memoryEntry{
			id:        id,
			embedding: embeddings[i],
			document:  documents[i],
			metadata:  metadatas[i],
		}
		if pos, ok := index[id]; ok {
			s.entries[pos] = entry
		} else {
			index[id] = len(s.entries)
			s.entries = append(s.entries, entry)
		}
	}

	s.logger.Debug("vectors upserted",
		zap.Int("count", len(ids)),
		zap.Int("total", len(s.entries)))
	return nil
}

// Query 返回 topK 个最近邻。
func (s *MemoryStore) Query(ctx context.Context, queryEmbedding []float64, topK int) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || topK <= 0 {
		return &QueryResult{}, nil
	}

	type scored struct {
		entry    memoryEntry
		distance float64
	}

	all := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, scored{entry: e, distance: s.distance(queryEmbedding, e.embedding)})
	}

	// ip 是相似度量纲，越大越近；其余是距离，越小越近。
	sort.Slice(all, func(i, j int) bool {
		if s.metric == MetricIP {
			return all[i].distance > all[j].distance
		}
		return all[i].distance < all[j].distance
	})

	if topK > len(all) {
		topK = len(all)
	}

	result := &QueryResult{
		IDs:       make([]string, 0, topK),
		Documents: make([]string, 0, topK),
		Distances: make([]float64, 0, topK),
		Metadatas: make([]map[string]string, 0, topK),
	}
	for _, sc := range all[:topK] {
		result.IDs = append(result.IDs, sc.entry.id)
		result.Documents = append(result.Documents, sc.entry.document)
		result.Distances = append(result.Distances, sc.distance)
		result.Metadatas = append(result.Metadatas, sc.entry.metadata)
	}
	return result, nil
}

// DeleteDocument 删除 metadata.doc_id 匹配的全部条目。
func (s *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.entries[:0]
	for _, e := range s.entries {
		if e.metadata["doc_id"] != docID {
			filtered = append(filtered, e)
		}
	}
	deleted := len(s.entries) - len(filtered)
	s.entries = filtered

	s.logger.Debug("document vectors deleted",
		zap.String("doc_id", docID),
		zap.Int("deleted", deleted),
		zap.Int("remaining", len(s.entries)))
	return nil
}

// Count 返回条目数。
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) distance(a, b []float64) float64 {
	switch s.metric {
	case MetricL2:
		return l2Distance(a, b)
	case MetricIP:
		return dotProduct(a, b)
	default:
		return 1.0 - cosineSimilarity(a, b)
	}
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func l2Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
