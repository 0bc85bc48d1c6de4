// Package registry 维护已摄取文档的元信息（SQLite 持久化）。
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/medirag/types"
)

// DocumentRegistry 文档注册表。
type DocumentRegistry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open 打开（并按需建表）文档注册表。path 为 SQLite 文件路径，
// ":memory:" 用于测试。
func Open(path string, logger *zap.Logger) (*DocumentRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "medirag.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	if err := db.AutoMigrate(&types.DocumentInfo{}); err != nil {
		return nil, fmt.Errorf("migrate registry schema: %w", err)
	}

	logger.Info("document registry opened", zap.String("path", path))
	return &DocumentRegistry{
		db:     db,
		logger: logger.With(zap.String("component", "document_registry")),
	}, nil
}

// Register 注册文档，返回分配的 doc_id。docID 为空时生成 UUID。
// 重复注册同一 doc_id 为 upsert。
func (r *DocumentRegistry) Register(doc types.DocumentInfo) (string, error) {
	if doc.DocID == "" {
		doc.DocID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	err := r.db.Save(&doc).Error
	if err != nil {
		return "", fmt.Errorf("register document: %w", err)
	}

	r.logger.Info("document registered",
		zap.String("doc_id", doc.DocID),
		zap.String("title", doc.Title),
		zap.Int("total_pages", doc.TotalPages))
	return doc.DocID, nil
}

// Get 按 doc_id 查询。未注册返回 (nil, nil)。
func (r *DocumentRegistry) Get(docID string) (*types.DocumentInfo, error) {
	var doc types.DocumentInfo
	err := r.db.First(&doc, "doc_id = ?", docID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	return &doc, nil
}

// List 返回全部文档，按注册时间降序。
func (r *DocumentRegistry) List() ([]types.DocumentInfo, error) {
	var docs []types.DocumentInfo
	if err := r.db.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Exists 判断文档是否已注册。
func (r *DocumentRegistry) Exists(docID string) (bool, error) {
	var count int64
	if err := r.db.Model(&types.DocumentInfo{}).Where("doc_id = ?", docID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check document %s: %w", docID, err)
	}
	return count > 0, nil
}

// Remove 注销文档。删除不存在的文档不报错。
func (r *DocumentRegistry) Remove(docID string) error {
	if err := r.db.Delete(&types.DocumentInfo{}, "doc_id = ?", docID).Error; err != nil {
		return fmt.Errorf("remove document %s: %w", docID, err)
	}
	r.logger.Info("document removed", zap.String("doc_id", docID))
	return nil
}

// Close 关闭底层连接。
func (r *DocumentRegistry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
