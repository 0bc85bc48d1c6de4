// Package types holds the shared data model of the retrieval pipeline.
package types

import "time"

// Chunk 是最小的可检索文本单元，携带结构化定位元数据。
// 一经入库不可变；按 chunk_id 重复摄取为幂等 upsert。
type Chunk struct {
	ChunkID      string `json:"chunk_id"`
	DocID        string `json:"doc_id"`
	Text         string `json:"text"`
	Chapter      string `json:"chapter,omitempty"`
	Subheading   string `json:"subheading,omitempty"`
	PageLabel    string `json:"page_label,omitempty"`
	PagePhysical int    `json:"page_physical,omitempty"`
	Emotion      string `json:"emotion,omitempty"`
}

// DocumentInfo 文档注册信息（registry 持久层）。
type DocumentInfo struct {
	DocID      string    `json:"doc_id" gorm:"primaryKey;column:doc_id"`
	Title      string    `json:"title" gorm:"column:title"`
	SourcePath string    `json:"source_path" gorm:"column:source_path"`
	TotalPages int       `json:"total_pages" gorm:"column:total_pages"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
}

// TableName 指定 gorm 表名。
func (DocumentInfo) TableName() string { return "documents" }
