package repository

import "github.com/fyerfyer/course-gen-system/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据和章节的存储与检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其章节
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// SaveChapter 保存单个章节
	SaveChapter(chapter *models.Chapter) error

	// SaveChapters 批量保存章节
	SaveChapters(chapters []*models.Chapter) error

	// UpdateChapter 更新章节记录
	UpdateChapter(chapter *models.Chapter) error

	// GetChapter 根据ID获取章节
	GetChapter(chapterID uint) (*models.Chapter, error)

	// GetChapters 获取文档的所有章节
	GetChapters(docID string) ([]*models.Chapter, error)

	// CountChapters 统计文档的章节数量
	CountChapters(docID string) (int, error)

	// DeleteChapters 删除文档的所有章节
	DeleteChapters(docID string) error
}
