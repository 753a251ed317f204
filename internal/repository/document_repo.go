package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fyerfyer/course-gen-system/internal/database"
	"github.com/fyerfyer/course-gen-system/internal/models"
)

// docRepository 文档仓储实现
type docRepository struct {
	db  *gorm.DB        // 数据库连接
	ctx context.Context // 上下文，可用于事务或超时控制
}

// NewDocumentRepository 创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{
		db:  database.MustDB(),
		ctx: context.Background(),
	}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{
		db:  db,
		ctx: context.Background(),
	}
}

// Create 创建文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Create(doc).Error
}

// Update 更新文档记录
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Save(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档列表，支持分页和筛选
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})

	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.DocumentStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			default:
				statusStr := fmt.Sprintf("%v", status)
				if statusStr != "" {
					query = query.Where("status = ?", statusStr)
				}
			}
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("uploaded_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("uploaded_at <= ?", endTime)
		}

		// 文件名过滤
		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	// 获取总数
	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	// 应用排序、分页并执行查询
	err = query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error

	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// Delete 删除文档记录及其章节
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.Chapter{}).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": time.Now(),
	}

	// 进入终态时记录完成时间
	if status == models.DocStatusReady || status == models.DocStatusError {
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SaveChapter 保存单个章节
func (r *docRepository) SaveChapter(chapter *models.Chapter) error {
	return r.db.Create(chapter).Error
}

// SaveChapters 批量保存章节
func (r *docRepository) SaveChapters(chapters []*models.Chapter) error {
	if len(chapters) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(chapters, 100).Error
	})
}

// UpdateChapter 更新章节记录
func (r *docRepository) UpdateChapter(chapter *models.Chapter) error {
	if chapter.ID == 0 {
		return errors.New("chapter ID cannot be zero")
	}

	return r.db.Save(chapter).Error
}

// GetChapter 根据ID获取章节
func (r *docRepository) GetChapter(chapterID uint) (*models.Chapter, error) {
	var chapter models.Chapter
	err := r.db.Where("id = ?", chapterID).First(&chapter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chapter not found: %d", chapterID)
		}
		return nil, err
	}
	return &chapter, nil
}

// GetChapters 获取文档的所有章节
func (r *docRepository) GetChapters(docID string) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&chapters).Error
	return chapters, err
}

// CountChapters 统计文档的章节数量
func (r *docRepository) CountChapters(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.Chapter{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteChapters 删除文档的所有章节
func (r *docRepository) DeleteChapters(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.Chapter{}).Error
}
