// Package graphstore 提供文档层级图的存储抽象及其实现（内存 / Neo4j）。
//
// 图模型：Document 1→N Chapter 1→N Subheading 1→N Chunk，
// 加上 Chunk→Chunk 的 NEXT 顺序边与 Chunk→Emotion 边。
// 不变式：chunk_id 全局唯一；NEXT 边严格按摄取顺序向前，不成环、不自指。
package graphstore

import (
	"context"

	"github.com/BaSui01/medirag/types"
)

// Record 原始图查询的一行结果。
type Record map[string]any

// ChunkRecord 图检索返回的块记录。Score 仅在全文索引路径下存在。
type ChunkRecord struct {
	ChunkID string
	DocID   string
	Text    string
	Emotion string
	Score   *float64
}

// Structure 块的结构化归属。
type Structure struct {
	Chapter    string
	Subheading string
}

// Store 图库接口。
type Store interface {
	// RunQuery 执行原始图查询（Cypher 或等价物）。
	RunQuery(ctx context.Context, query string, params map[string]any) ([]Record, error)

	// FulltextQueryChunks 全文索引查询。query 为带引号的 OR 析取式。
	// docID / emotion 为空表示不过滤。
	FulltextQueryChunks(ctx context.Context, query string, limit int, docID, emotion string) ([]ChunkRecord, error)

	// KeywordScanChunks 子串匹配兜底扫描（全文索引不可用或无命中时）。
	KeywordScanChunks(ctx context.Context, concepts []string, limit int, docID, emotion string) ([]ChunkRecord, error)

	// ExpandNext 沿 NEXT 边双向展开 seed 块，最多 maxHops 跳、limit 条，
	// 且不返回 seed 自身。docID 非空时限定同一文档。
	ExpandNext(ctx context.Context, seedIDs []string, docID string, maxHops, limit int) ([]ChunkRecord, error)

	// GetStructure 查询块的 chapter/subheading 归属。未知块返回 nil。
	GetStructure(ctx context.Context, chunkID string) (*Structure, error)

	// ResolveDoc 返回块所属文档；未知块返回空串。
	ResolveDoc(ctx context.Context, chunkID string) (string, error)

	// DocumentExists 判断文档节点是否存在。
	DocumentExists(ctx context.Context, docID string) (bool, error)

	// BatchIngest 幂等批量摄取块及其层级归属。
	BatchIngest(ctx context.Context, docID string, chunks []types.Chunk) error

	// BatchLink 批量建立 NEXT 顺序边（pair[0] → pair[1]）。
	BatchLink(ctx context.Context, pairs [][2]string) error

	// Close 释放连接。
	Close(ctx context.Context) error
}
