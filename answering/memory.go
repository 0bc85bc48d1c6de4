package answering

import (
	"fmt"
	"strings"
	"sync"
)

// turn 一轮问答。
type turn struct {
	question string
	answer   string
}

// Memory 有界会话记忆，超出轮数上限淘汰最旧一轮。
type Memory struct {
	mu       sync.Mutex
	turns    []turn
	maxTurns int
}

// NewMemory 创建会话记忆。maxTurns <= 0 时取 10。
func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Memory{maxTurns: maxTurns}
}

// Append 记录一轮问答。
func (m *Memory) Append(question, answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn{question: question, answer: answer})
	if len(m.turns) > m.maxTurns {
		m.turns = m.turns[len(m.turns)-m.maxTurns:]
	}
}

// Render 把历史渲染为提示词片段。无历史返回空串。
func (m *Memory) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, t := range m.turns {
		fmt.Fprintf(&sb, "Q: %s\nA: %s\n", t.question, t.answer)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Clear 清空历史。
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
}

// Len 当前轮数。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}
