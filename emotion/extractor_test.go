package emotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"exact", "Joy", "Joy"},
		{"lowercase", "sadness", "Sadness"},
		{"uppercase", "ANGER", "Anger"},
		{"quoted", `"Fear"`, "Fear"},
		{"trailing period", "Love.", "Love"},
		{"whitespace", "  Surprise  ", "Surprise"},
		{"out of set", "Melancholy", DefaultTag},
		{"empty", "", DefaultTag},
		{"sentence", "The emotion is Joy", DefaultTag},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeTag(tt.raw))
		})
	}
}

// fakeChat 模拟 OpenAI 兼容 chat 端点，记录调用次数。
func fakeChat(t *testing.T, reply string, calls *atomic.Int64) *LLMExtractor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Zero(t, req.Temperature)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return NewLLMExtractor(LLMConfig{BaseURL: srv.URL, Model: "test-model"}, nil)
}

func TestLLMExtractor_Extract(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	e := fakeChat(t, "joy", &calls)

	tag, err := e.Extract(context.Background(), "what a wonderful recovery")
	require.NoError(t, err)
	assert.Equal(t, "Joy", tag, "model reply normalized into the controlled set")
}

func TestLLMExtractor_EmptyTextSkipsModel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	e := fakeChat(t, "Joy", &calls)

	tag, err := e.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTag, tag)
	assert.Zero(t, calls.Load(), "blank text never reaches the model")
}

func TestLLMExtractor_CacheDeduplicates(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	e := fakeChat(t, "Fear", &calls)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tag, err := e.Extract(ctx, "a frightening diagnosis")
		require.NoError(t, err)
		assert.Equal(t, "Fear", tag)
	}
	assert.Equal(t, int64(1), calls.Load(), "repeat text served from cache")
}

func TestLLMExtractor_TruncatesLongText(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen = req.Messages[1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "Neutral"}}},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewLLMExtractor(LLMConfig{BaseURL: srv.URL}, nil)
	_, err := e.Extract(context.Background(), strings.Repeat("x", 5000))
	require.NoError(t, err)
	assert.Len(t, seen, maxTextLen)
}

func TestLLMExtractor_TruncationKeepsMultibyteRunesIntact(t *testing.T) {
	t.Parallel()

	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		seen = req.Messages[1].Content
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "Neutral"}}},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewLLMExtractor(LLMConfig{BaseURL: srv.URL}, nil)
	_, err := e.Extract(context.Background(), strings.Repeat("病", maxTextLen+100))
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(seen), "truncation must not split a multibyte rune")
	assert.Equal(t, maxTextLen, utf8.RuneCountInString(seen))
	assert.Equal(t, strings.Repeat("病", maxTextLen), seen)
}

func TestLLMExtractor_FailureFallsBackWithError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	e := NewLLMExtractor(LLMConfig{BaseURL: srv.URL}, nil)
	tag, err := e.Extract(context.Background(), "some text")
	require.Error(t, err)
	assert.Equal(t, DefaultTag, tag, "failure still yields a usable tag")
}

func TestLLMExtractor_ExtractBatch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		reply := "Neutral"
		if strings.Contains(req.Messages[1].Content, "happy") {
			reply = "Joy"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)

	e := NewLLMExtractor(LLMConfig{BaseURL: srv.URL, Concurrency: 2}, nil)
	tags := e.ExtractBatch(context.Background(), []string{
		"a happy ending", "routine checkup", "", "a happy ending",
	})

	require.Len(t, tags, 4)
	assert.Equal(t, "Joy", tags[0])
	assert.Equal(t, "Neutral", tags[1])
	assert.Equal(t, DefaultTag, tags[2], "empty input gets default tag")
	assert.Equal(t, "Joy", tags[3], "order preserved, duplicate cached")
}

func TestLLMExtractor_ExtractBatchSurvivesFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	e := NewLLMExtractor(LLMConfig{BaseURL: srv.URL}, nil)
	tags := e.ExtractBatch(context.Background(), []string{"a", "b"})
	assert.Equal(t, []string{DefaultTag, DefaultTag}, tags)
}

func TestStaticExtractor(t *testing.T) {
	t.Parallel()

	tag, err := (&StaticExtractor{Tag: "Joy"}).Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Joy", tag)

	tag, err = (&StaticExtractor{}).Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, DefaultTag, tag)
}
