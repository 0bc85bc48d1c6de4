package graphstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/types"
)

type chunkNode struct {
	chunk types.Chunk
}

// MemoryStore 内存图存储，保存 Document→Chapter→Subheading→Chunk 层级
// 与 NEXT 顺序邻接表。用于测试与零依赖部署。
type MemoryStore struct {
	chunks   map[string]*chunkNode // chunk_id -> node
	order    []string              // 摄取顺序（扫描的确定性）
	docs     map[string]bool
	nextOut  map[string][]string // chunk_id -> successors
	nextIn   map[string][]string // chunk_id -> predecessors
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewMemoryStore 创建内存图存储。
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		chunks:  make(map[string]*chunkNode),
		docs:    make(map[string]bool),
		nextOut: make(map[string][]string),
		nextIn:  make(map[string][]string),
		logger:  logger.With(zap.String("component", "memory_graph_store")),
	}
}

// RunQuery 内存实现不支持原始查询。
func (s *MemoryStore) RunQuery(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	return nil, fmt.Errorf("memory graph store does not support raw queries")
}

// FulltextQueryChunks 以词项命中数为分值的子串全文查询。
func (s *MemoryStore) FulltextQueryChunks(ctx context.Context, query string, limit int, docID, emotion string) ([]ChunkRecord, error) {
	terms := parseFulltextTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ChunkRecord
	for _, id := range s.order {
		node := s.chunks[id]
		if !matchesFilters(node.chunk, docID, emotion) {
			continue
		}
		text := strings.ToLower(node.chunk.Text)
		hits := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits)
		out = append(out, ChunkRecord{
			ChunkID: node.chunk.ChunkID,
			DocID:   node.chunk.DocID,
			Text:    node.chunk.Text,
			Emotion: node.chunk.Emotion,
			Score:   &score,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// KeywordScanChunks 子串匹配兜底扫描，不带相关性分值。
func (s *MemoryStore) KeywordScanChunks(ctx context.Context, concepts []string, limit int, docID, emotion string) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ChunkRecord
	for _, id := range s.order {
		node := s.chunks[id]
		if !matchesFilters(node.chunk, docID, emotion) {
			continue
		}
		text := strings.ToLower(node.chunk.Text)
		matched := false
		for _, concept := range concepts {
			if concept != "" && strings.Contains(text, strings.ToLower(concept)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, ChunkRecord{
			ChunkID: node.chunk.ChunkID,
			DocID:   node.chunk.DocID,
			Text:    node.chunk.Text,
			Emotion: node.chunk.Emotion,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ExpandNext 沿 NEXT 边双向 BFS 展开。
func (s *MemoryStore) ExpandNext(ctx context.Context, seedIDs []string, docID string, maxHops, limit int) ([]ChunkRecord, error) {
	if len(seedIDs) == 0 || maxHops <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seeds := make(map[string]bool, len(seedIDs))
	for _, id := range seedIDs {
		seeds[id] = true
	}

	visited := make(map[string]bool)
	frontier := make([]string, 0, len(seedIDs))
	for _, id := range seedIDs {
		if _, ok := s.chunks[id]; ok {
			frontier = append(frontier, id)
			visited[id] = true
		}
	}

	var out []ChunkRecord
	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			neighbors := append(append([]string{}, s.nextOut[id]...), s.nextIn[id]...)
			for _, nb := range neighbors {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				node, ok := s.chunks[nb]
				if !ok {
					continue
				}
				if docID != "" && node.chunk.DocID != docID {
					continue
				}
				next = append(next, nb)
				if seeds[nb] {
					continue
				}
				out = append(out, ChunkRecord{
					ChunkID: node.chunk.ChunkID,
					DocID:   node.chunk.DocID,
					Text:    node.chunk.Text,
					Emotion: node.chunk.Emotion,
				})
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
		frontier = next
	}
	return out, nil
}

// GetStructure 返回块的层级归属。
func (s *MemoryStore) GetStructure(ctx context.Context, chunkID string) (*Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.chunks[chunkID]
	if !ok {
		return nil, nil
	}
	return &Structure{
		Chapter:    node.chunk.Chapter,
		Subheading: node.chunk.Subheading,
	}, nil
}

// ResolveDoc 返回块所属文档。
func (s *MemoryStore) ResolveDoc(ctx context.Context, chunkID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.chunks[chunkID]
	if !ok {
		return "", nil
	}
	return node.chunk.DocID, nil
}

// DocumentExists 判断文档是否已摄取。
func (s *MemoryStore) DocumentExists(ctx context.Context, docID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[docID], nil
}

// BatchIngest 幂等批量摄取。缺失的层级字段取默认值。
func (s *MemoryStore) BatchIngest(ctx context.Context, docID string, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[docID] = true
	for _, chunk := range chunks {
		chunk.DocID = docID
		if chunk.Chapter == "" {
			chunk.Chapter = "Unknown"
		}
		if chunk.Subheading == "" {
			chunk.Subheading = "Unknown"
		}
		if chunk.Emotion == "" {
			chunk.Emotion = "Neutral"
		}
		if _, exists := s.chunks[chunk.ChunkID]; !exists {
			s.order = append(s.order, chunk.ChunkID)
		}
		s.chunks[chunk.ChunkID] = &chunkNode{chunk: chunk}
	}

	s.logger.Debug("graph batch ingest completed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// BatchLink 建立 NEXT 边。自指边拒绝。
func (s *MemoryStore) BatchLink(ctx context.Context, pairs [][2]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pair := range pairs {
		from, to := pair[0], pair[1]
		if from == to {
			return fmt.Errorf("self NEXT link rejected: %s", from)
		}
		if _, ok := s.chunks[from]; !ok {
			continue
		}
		if _, ok := s.chunks[to]; !ok {
			continue
		}
		if containsString(s.nextOut[from], to) {
			continue
		}
		s.nextOut[from] = append(s.nextOut[from], to)
		s.nextIn[to] = append(s.nextIn[to], from)
	}
	return nil
}

// Close 无资源可释放。
func (s *MemoryStore) Close(ctx context.Context) error { return nil }

func matchesFilters(chunk types.Chunk, docID, emotion string) bool {
	if docID != "" && chunk.DocID != docID {
		return false
	}
	if emotion != "" && chunk.Emotion != emotion {
		return false
	}
	return true
}

// parseFulltextTerms 解析 "term1" OR "term2" 析取式为小写词项。
func parseFulltextTerms(query string) []string {
	var terms []string
	for _, part := range strings.Split(query, " OR ") {
		term := strings.ToLower(strings.Trim(strings.TrimSpace(part), `"`))
		if term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
