package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/medirag/types"
)

// fakeEmbeddings 回显每条输入长度作为一维向量，记录批次。
func fakeEmbeddings(t *testing.T, batches *atomic.Int64, shuffle bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		if batches != nil {
			batches.Add(1)
		}

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			pos := i
			if shuffle {
				pos = len(req.Input) - 1 - i
			}
			data[pos] = map[string]any{
				"index":     i,
				"embedding": []float64{float64(len(text))},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	t.Parallel()

	srv := fakeEmbeddings(t, nil, false)
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Dimensions: 1}, nil)

	vec, err := p.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, vec)
}

func TestOpenAIProvider_EmbedDocumentsBatches(t *testing.T) {
	t.Parallel()

	var batches atomic.Int64
	srv := fakeEmbeddings(t, &batches, false)
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Dimensions: 1, MaxBatch: 2}, nil)

	docs := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := p.EmbedDocuments(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	assert.Equal(t, int64(3), batches.Load(), "5 docs at batch size 2 means 3 requests")
	for i, doc := range docs {
		assert.Equal(t, float64(len(doc)), vectors[i][0])
	}
}

func TestOpenAIProvider_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := fakeEmbeddings(t, nil, true)
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Dimensions: 1}, nil)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float64{1}, vectors[0], "out-of-order response realigned by index")
	assert.Equal(t, []float64{2}, vectors[1])
	assert.Equal(t, []float64{3}, vectors[2])
}

func TestOpenAIProvider_EmptyInput(t *testing.T) {
	t.Parallel()

	var batches atomic.Int64
	srv := fakeEmbeddings(t, &batches, false)
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil)

	vectors, err := p.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, batches.Load())
}

func TestOpenAIProvider_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, nil)
	_, err := p.EmbedQuery(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestMapHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, types.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, types.ErrUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, types.ErrInvalidRequest, false},
		{"model missing", http.StatusNotFound, types.ErrModelNotFound, false},
		{"server error", http.StatusBadGateway, types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := mapHTTPError(tt.status, "msg", "backend")
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.status, e.HTTPStatus)
			assert.Equal(t, "backend", e.Backend)
		})
	}
}
