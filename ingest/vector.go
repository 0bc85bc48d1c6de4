package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/medirag/embedding"
	"github.com/BaSui01/medirag/internal/metrics"
	"github.com/BaSui01/medirag/types"
	"github.com/BaSui01/medirag/vectorstore"
)

// VectorIngestor 嵌入块文本并写入向量库。
type VectorIngestor struct {
	store    vectorstore.Store
	embedder embedding.Provider
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewVectorIngestor 创建向量摄取器。collector 可为 nil。
func NewVectorIngestor(store vectorstore.Store, embedder embedding.Provider, collector *metrics.Collector, logger *zap.Logger) *VectorIngestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIngestor{
		store:    store,
		embedder: embedder,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "vector_ingestor")),
	}
}

// Ingest 嵌入并按 chunk_id 幂等写入。结构化字段随 metadata 入库，
// 检索侧据此做等值过滤与结果组装。
func (v *VectorIngestor) Ingest(ctx context.Context, docID string, chunks []types.Chunk) error {
	start := time.Now()

	if docID == "" {
		return fmt.Errorf("ingest: empty doc_id")
	}
	if err := validateChunks(chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := v.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		v.record("error", len(chunks), start)
		return fmt.Errorf("embed documents doc_id=%s: %w", docID, err)
	}
	if len(embeddings) != len(chunks) {
		v.record("error", len(chunks), start)
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(embeddings), len(chunks))
	}

	ids := make([]string, len(chunks))
	metadatas := make([]map[string]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ChunkID
		metadatas[i] = chunkMetadata(docID, chunk)
	}

	if err := v.store.Upsert(ctx, ids, embeddings, texts, metadatas); err != nil {
		v.record("error", len(chunks), start)
		return fmt.Errorf("vector upsert doc_id=%s: %w", docID, err)
	}

	v.logger.Info("document ingested into vector store",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))
	v.record("ok", len(chunks), start)
	return nil
}

// Delete 按文档删除全部向量。
func (v *VectorIngestor) Delete(ctx context.Context, docID string) error {
	return v.store.DeleteDocument(ctx, docID)
}

func (v *VectorIngestor) record(status string, chunks int, start time.Time) {
	if v.metrics != nil {
		v.metrics.RecordIngest("vector", status, chunks, time.Since(start))
	}
}

func chunkMetadata(docID string, chunk types.Chunk) map[string]string {
	meta := map[string]string{"doc_id": docID}
	if chunk.Chapter != "" {
		meta["chapter"] = chunk.Chapter
	}
	if chunk.Subheading != "" {
		meta["subheading"] = chunk.Subheading
	}
	if chunk.Emotion != "" {
		meta["emotion"] = chunk.Emotion
	}
	if chunk.PageLabel != "" {
		meta["page_label"] = chunk.PageLabel
	}
	if chunk.PagePhysical > 0 {
		meta["page_physical"] = strconv.Itoa(chunk.PagePhysical)
	}
	return meta
}
