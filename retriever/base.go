package retriever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/types"
)

// fetchFunc 具体检索器的内部取数函数。
type fetchFunc func(ctx context.Context, query string, topK int, filters Filters) ([]types.Candidate, error)

// baseRetriever 封装所有检索器共享的后处理管线与失败语义。
// 具体检索器通过 run 回调注入取数逻辑，镜像教科书式的模板方法。
type baseRetriever struct {
	name     string
	failSoft bool
	logger   *zap.Logger
	cache    *resultCache
}

func newBaseRetriever(name string, failSoft bool, cacheSize int, logger *zap.Logger) *baseRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	var cache *resultCache
	if cacheSize > 0 {
		cache = newResultCache(cacheSize)
	}
	return &baseRetriever{
		name:     name,
		failSoft: failSoft,
		logger:   logger.With(zap.String("retriever", name)),
		cache:    cache,
	}
}

// run 执行完整检索管线：空查询守卫 → 缓存 → 取数 → 校验 →
// 去重 → 排序 → 截断。取数失败按 fail-soft 策略处理。
func (b *baseRetriever) run(ctx context.Context, query string, topK int, filters Filters, fetch fetchFunc) ([]types.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		return nil, nil
	}

	key := ""
	if b.cache != nil {
		key = cacheKey(query, topK, filters)
		if cached, ok := b.cache.get(key); ok {
			b.logger.Debug("retrieval cache hit", zap.String("query", query))
			return cached, nil
		}
	}

	raw, err := fetch(ctx, query, topK, filters)
	if err != nil {
		if b.failSoft {
			b.logger.Warn("retrieval failed, degrading to empty result",
				zap.String("query", query),
				zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	out := postprocess(raw, topK)

	if b.cache != nil {
		b.cache.put(key, out)
	}
	return out, nil
}

// postprocess 固定后处理：校验 → 去重保高分 → 降序 → 截断。
func postprocess(candidates []types.Candidate, topK int) []types.Candidate {
	deduped := dedupeKeepMax(validate(candidates))
	sortByScore(deduped)
	if topK > 0 && len(deduped) > topK {
		deduped = deduped[:topK]
	}
	return deduped
}

// validate 丢弃缺失必填字段或分数非有限的候选。
func validate(candidates []types.Candidate) []types.Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// dedupeKeepMax 按 (doc_id, chunk_id) 去重，保留分数更高者，
// 保持首次出现的位置。
func dedupeKeepMax(candidates []types.Candidate) []types.Candidate {
	index := make(map[[2]string]int, len(candidates))
	out := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Key()
		if pos, seen := index[key]; seen {
			if c.Score > out[pos].Score {
				out[pos] = c
			}
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out
}

// sortByScore 按分数降序稳定排序，平分保持插入顺序。
func sortByScore(candidates []types.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

// cacheKey 对 query|top_k|filters 求稳定哈希。
func cacheKey(query string, topK int, filters Filters) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(query)
	fmt.Fprintf(&sb, "|%d", topK)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%s", k, filters[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// resultCache 有界结果缓存，插入序淘汰（非严格 LRU）。
type resultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]types.Candidate
	order    []string
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		capacity: capacity,
		entries:  make(map[string][]types.Candidate, capacity),
	}
}

func (c *resultCache) get(key string) ([]types.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *resultCache) put(key string, value []types.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = value
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.order = append(c.order, key)
}
