// Package emotion 提供文本情绪标签抽取，用于图谱的 Chunk→Emotion 边。
package emotion

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/medirag/types"
)

// 受控情绪标签集。模型输出落在集合外时回退 Neutral。
var validTags = map[string]bool{
	"Joy":      true,
	"Sadness":  true,
	"Anger":    true,
	"Fear":     true,
	"Love":     true,
	"Surprise": true,
	"Disgust":  true,
	"Neutral":  true,
}

const (
	// DefaultTag 兜底标签。
	DefaultTag = "Neutral"

	// 送入模型的文本上限，超长截断。
	maxTextLen = 800

	// 缓存条目上限。
	maxCacheEntries = 4096
)

// Extractor 情绪抽取接口。
type Extractor interface {
	Extract(ctx context.Context, text string) (string, error)
}

// LLMConfig 配置 OpenAI 兼容 chat 端点的情绪抽取器。
type LLMConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	APIKey      string        `json:"api_key,omitempty" yaml:"api_key"`
	Model       string        `json:"model" yaml:"model"`
	Concurrency int           `json:"concurrency,omitempty" yaml:"concurrency"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// LLMExtractor 通过 chat completion 抽取情绪标签，带 MD5 去重缓存。
type LLMExtractor struct {
	cfg     LLMConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	cache      map[string]string
	cacheOrder []string
}

// NewLLMExtractor 创建 LLM 情绪抽取器。
func NewLLMExtractor(cfg LLMConfig, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &LLMExtractor{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "emotion_extractor")),
		cache:   make(map[string]string),
	}
}

const systemPrompt = `You are an emotion classifier. Classify the dominant emotion of the given text.
Answer with exactly one word from: Joy, Sadness, Anger, Fear, Love, Surprise, Disgust, Neutral.`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract 返回文本的情绪标签。空文本与失败均回退 Neutral（带错误）。
func (e *LLMExtractor) Extract(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultTag, nil
	}
	// 按 rune 截断，避免劈断多字节字符。
	if runes := []rune(text); len(runes) > maxTextLen {
		text = string(runes[:maxTextLen])
	}

	key := cacheKey(text)
	if tag, ok := e.cacheGet(key); ok {
		return tag, nil
	}

	tag, err := e.classify(ctx, text)
	if err != nil {
		return DefaultTag, err
	}

	e.cachePut(key, tag)
	return tag, nil
}

// ExtractBatch 并发抽取，顺序与输入一致。单条失败回退 Neutral，不中断批次。
func (e *LLMExtractor) ExtractBatch(ctx context.Context, texts []string) []string {
	tags := make([]string, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			tag, err := e.Extract(gctx, text)
			if err != nil {
				e.logger.Warn("emotion extraction failed, defaulting",
					zap.Int("index", i),
					zap.Error(err))
				tag = DefaultTag
			}
			tags[i] = tag
			return nil
		})
	}
	_ = g.Wait()
	return tags
}

func (e *LLMExtractor) classify(ctx context.Context, text string) (string, error) {
	body := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.0,
		MaxTokens:   8,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, err.Error()).
			WithBackend("emotion-llm").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", types.NewError(types.ErrUpstreamError, string(raw)).
			WithBackend("emotion-llm").
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return NormalizeTag(chat.Choices[0].Message.Content), nil
}

// NormalizeTag 将模型输出归一到受控标签集。
func NormalizeTag(raw string) string {
	tag := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'.`))
	if len(tag) > 0 {
		tag = strings.ToUpper(tag[:1]) + strings.ToLower(tag[1:])
	}
	if validTags[tag] {
		return tag
	}
	return DefaultTag
}

func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (e *LLMExtractor) cacheGet(key string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tag, ok := e.cache[key]
	return tag, ok
}

func (e *LLMExtractor) cachePut(key, tag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cache[key]; exists {
		return
	}
	// 插入序淘汰，防缓存无界增长。
	if len(e.cacheOrder) >= maxCacheEntries {
		oldest := e.cacheOrder[0]
		e.cacheOrder = e.cacheOrder[1:]
		delete(e.cache, oldest)
	}
	e.cache[key] = tag
	e.cacheOrder = append(e.cacheOrder, key)
}

// StaticExtractor 固定返回同一标签，测试用。
type StaticExtractor struct {
	Tag string
}

func (s *StaticExtractor) Extract(ctx context.Context, text string) (string, error) {
	if s.Tag == "" {
		return DefaultTag, nil
	}
	return s.Tag, nil
}
