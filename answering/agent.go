package answering

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

// Generator 生成模型接口。
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// GeneratorConfig OpenAI 兼容 chat 端点的生成器配置。
type GeneratorConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	APIKey      string        `json:"api_key,omitempty" yaml:"api_key"`
	Model       string        `json:"model" yaml:"model"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

// ChatGenerator 基于 OpenAI 兼容 chat completion 协议的生成器。
type ChatGenerator struct {
	cfg     GeneratorConfig
	baseURL string
	client  *http.Client
}

// NewChatGenerator 创建生成器。
func NewChatGenerator(cfg GeneratorConfig) *ChatGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &ChatGenerator{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate 调用 chat completion。
func (g *ChatGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	body := map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": g.cfg.Temperature,
	}
	if g.cfg.MaxTokens > 0 {
		body["max_tokens"] = g.cfg.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, err.Error()).
			WithBackend("chat-llm").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", types.NewError(types.ErrUpstreamError, string(raw)).
			WithBackend("chat-llm").
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var chat struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("empty chat response")
	}
	return chat.Choices[0].Message.Content, nil
}

// Answer 一次问答的最终产物。
type Answer struct {
	Text      string              `json:"text"`
	Citations []Citation          `json:"citations,omitempty"`
	Context   []types.RankedResult `json:"context,omitempty"`
	Refused   bool                `json:"refused"`
}

// NoContextAnswer 空上下文时的固定拒答文案。
const NoContextAnswer = "I could not find relevant information in the ingested documents to answer this question."

// Agent 把检索结果变为有引用的回答。空上下文拒答而非杜撰。
type Agent struct {
	prompts   *PromptBuilder
	generator Generator
	memory    *Memory
	logger    *zap.Logger
}

// NewAgent 创建回答代理。memory 可为 nil（无会话记忆）。
func NewAgent(prompts *PromptBuilder, generator Generator, memory *Memory, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		prompts:   prompts,
		generator: generator,
		memory:    memory,
		logger:    logger.With(zap.String("component", "answering_agent")),
	}
}

// Answer 生成回答。检索结果为空时直接拒答，不调用生成模型。
func (a *Agent) Answer(ctx context.Context, query string, results []types.RankedResult) (*Answer, error) {
	system, user, included := a.prompts.Build(query, results)
	if len(included) == 0 {
		a.logger.Info("no context available, refusing to answer", zap.String("query", query))
		return &Answer{Text: NoContextAnswer, Refused: true}, nil
	}

	if a.memory != nil {
		if history := a.memory.Render(); history != "" {
			user = "Conversation so far:\n" + history + "\n\n" + user
		}
	}

	text, err := a.generator.Generate(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)

	if a.memory != nil {
		a.memory.Append(query, text)
	}

	a.logger.Info("answer generated",
		zap.String("query", query),
		zap.Int("context_chunks", len(included)),
		zap.Int("answer_len", len(text)))
	return &Answer{
		Text:      text,
		Citations: ExtractCitations(text, included),
		Context:   included,
	}, nil
}
