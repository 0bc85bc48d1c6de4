package retriever

import (
	"strings"
	"sync"
	"unicode"
)

// 查询里无信息量的高频词，不作为图谱检索概念。
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "has": true,
	"have": true, "how": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true, "this": true,
	"to": true, "was": true, "what": true, "when": true, "where": true,
	"which": true, "who": true, "why": true, "will": true, "with": true,
	"do": true, "does": true, "can": true, "about": true, "not": true,
	"的": true, "了": true, "是": true, "在": true, "和": true, "与": true,
	"什么": true, "怎么": true, "如何": true, "哪些": true, "为什么": true,
}

// conceptExtractor 从查询中抽取概念词：专名跨度（连续首字母大写的词）
// 加长度达标的非停用词 token，小写去重。结果按查询串缓存。
type conceptExtractor struct {
	minTokenLen int

	mu    sync.Mutex
	cache map[string][]string
	order []string
	cap   int
}

func newConceptExtractor(minTokenLen, cacheSize int) *conceptExtractor {
	if minTokenLen <= 0 {
		minTokenLen = 3
	}
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &conceptExtractor{
		minTokenLen: minTokenLen,
		cache:       make(map[string][]string, cacheSize),
		cap:         cacheSize,
	}
}

// extract 返回查询的去重小写概念集。
func (e *conceptExtractor) extract(query string) []string {
	e.mu.Lock()
	if cached, ok := e.cache[query]; ok {
		e.mu.Unlock()
		return cached
	}
	e.mu.Unlock()

	concepts := extractConcepts(query, e.minTokenLen)

	e.mu.Lock()
	if _, exists := e.cache[query]; !exists {
		if len(e.order) >= e.cap {
			oldest := e.order[0]
			e.order = e.order[1:]
			delete(e.cache, oldest)
		}
		e.cache[query] = concepts
		e.order = append(e.order, query)
	}
	e.mu.Unlock()
	return concepts
}

func extractConcepts(query string, minTokenLen int) []string {
	tokens := tokenize(query)
	seen := make(map[string]bool)
	var concepts []string

	add := func(concept string) {
		concept = strings.ToLower(concept)
		if concept == "" || seen[concept] {
			return
		}
		seen[concept] = true
		concepts = append(concepts, concept)
	}

	// 专名跨度：连续首字母大写的 token 合并为一个概念。
	var span []string
	flush := func() {
		if len(span) > 0 {
			add(strings.Join(span, " "))
			span = span[:0]
		}
	}
	for _, tok := range tokens {
		if isCapitalized(tok) {
			span = append(span, tok)
			continue
		}
		flush()
	}
	flush()

	// 长度达标的普通 token。CJK 无大小写，按 rune 数判长。
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if stopwords[lower] {
			continue
		}
		length := len([]rune(tok))
		if hasCJK(tok) {
			if length >= 2 {
				add(tok)
			}
			continue
		}
		if length >= minTokenLen {
			add(tok)
		}
	}
	return concepts
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isCapitalized(tok string) bool {
	runes := []rune(tok)
	if len(runes) < 2 {
		return false
	}
	return unicode.IsUpper(runes[0]) && unicode.IsLower(runes[1])
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// buildFulltextQuery 将概念集拼为带引号的 OR 析取式。
func buildFulltextQuery(concepts []string) string {
	quoted := make([]string, 0, len(concepts))
	for _, c := range concepts {
		if c != "" {
			quoted = append(quoted, `"`+c+`"`)
		}
	}
	return strings.Join(quoted, " OR ")
}
