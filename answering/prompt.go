// Package answering 把检索结果组装为有据可依的生成回答：
// 构造提示词、管理引用、在无上下文时拒答。
package answering

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/BaSui01/medirag/types"
)

// PromptConfig 提示词构造配置。
type PromptConfig struct {
	// MaxContextTokens 上下文块总 token 预算，超出截断后续块。
	MaxContextTokens int `json:"max_context_tokens" yaml:"max_context_tokens"`
	// Encoding tiktoken 编码名。
	Encoding string `json:"encoding" yaml:"encoding"`
}

// DefaultPromptConfig 返回默认配置。
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		MaxContextTokens: 3000,
		Encoding:         "cl100k_base",
	}
}

const answerSystemPrompt = `You are a careful assistant answering questions strictly from the provided document excerpts.
Cite sources as [n] matching the numbered excerpts. If the excerpts do not contain the answer, say the information is not found in the documents.`

// PromptBuilder 按 token 预算把排好序的检索结果拼为提示词。
type PromptBuilder struct {
	cfg     PromptConfig
	encoder *tiktoken.Tiktoken
	logger  *zap.Logger
}

// NewPromptBuilder 创建提示词构造器。编码加载失败时退化为按字符估算。
func NewPromptBuilder(cfg PromptConfig, logger *zap.Logger) *PromptBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 3000
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "cl100k_base"
	}

	encoder, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, falling back to char estimate",
			zap.String("encoding", cfg.Encoding),
			zap.Error(err))
		encoder = nil
	}
	return &PromptBuilder{
		cfg:     cfg,
		encoder: encoder,
		logger:  logger.With(zap.String("component", "prompt_builder")),
	}
}

// Build 返回 (system, user) 提示词对，以及实际进入上下文的结果。
// results 为空时返回空上下文，由调用方决定拒答。
func (b *PromptBuilder) Build(query string, results []types.RankedResult) (string, string, []types.RankedResult) {
	var included []types.RankedResult
	var sb strings.Builder
	budget := b.cfg.MaxContextTokens

	for _, r := range results {
		block := formatExcerpt(len(included)+1, r)
		cost := b.countTokens(block)
		if cost > budget {
			break
		}
		budget -= cost
		sb.WriteString(block)
		included = append(included, r)
	}

	if len(included) == 0 {
		return answerSystemPrompt, "", nil
	}

	user := fmt.Sprintf("Document excerpts:\n%s\nQuestion: %s", sb.String(), query)
	return answerSystemPrompt, user, included
}

func (b *PromptBuilder) countTokens(text string) int {
	if b.encoder != nil {
		return len(b.encoder.Encode(text, nil, nil))
	}
	// 粗略估算：平均 4 字符一个 token。
	return len(text)/4 + 1
}

func formatExcerpt(n int, r types.RankedResult) string {
	var loc []string
	if r.Metadata.Chapter != "" {
		loc = append(loc, r.Metadata.Chapter)
	}
	if r.Metadata.Subheading != "" {
		loc = append(loc, r.Metadata.Subheading)
	}
	if r.Metadata.PageLabel != "" {
		loc = append(loc, "p. "+r.Metadata.PageLabel)
	}
	header := fmt.Sprintf("[%d]", n)
	if len(loc) > 0 {
		header += " (" + strings.Join(loc, ", ") + ")"
	}
	return fmt.Sprintf("%s %s\n\n", header, strings.TrimSpace(r.Text))
}
