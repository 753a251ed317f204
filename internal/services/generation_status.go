package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
)

// DocumentStatusManager 文档状态管理器
// 负责管理文档生成的生命周期状态
type DocumentStatusManager struct {
	repo   repository.DocumentRepository // 文档仓储接口
	logger *logrus.Logger                // 日志记录器
	mu     sync.Mutex                    // 互斥锁，保证状态转换的原子性
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &DocumentStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// MarkAsUploaded 将文档标记为已上传状态
func (m *DocumentStatusManager) MarkAsUploaded(ctx context.Context, docID string, fileName string, filePath string, fileSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"filename": fileName,
	}).Info("Marking document as uploaded")

	doc := &models.Document{
		ID:         docID,
		FileName:   fileName,
		FileType:   getFileType(fileName),
		FilePath:   filePath,
		FileSize:   fileSize,
		Status:     models.DocStatusUploaded,
		UploadedAt: time.Now(),
		UpdatedAt:  time.Now(),
	}

	return m.repo.Create(doc)
}

// MarkAsProcessing 将文档标记为生成中状态
// 允许从uploaded、ready、error状态启动，processing状态下拒绝并发启动
func (m *DocumentStatusManager) MarkAsProcessing(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if doc.Status == models.DocStatusProcessing {
		return models.ErrAlreadyProcessing
	}

	if err := m.ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		return fmt.Errorf("invalid state transition: document %s is in %s state: %w",
			docID, doc.Status, err)
	}

	m.logger.WithField("doc_id", docID).Info("Marking document as processing")

	return m.repo.UpdateStatus(docID, models.DocStatusProcessing, "")
}

// MarkAsReady 将文档标记为生成完成状态
func (m *DocumentStatusManager) MarkAsReady(ctx context.Context, docID string, chapterCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	if err := m.ValidateStateTransition(doc.Status, models.DocStatusReady); err != nil {
		return fmt.Errorf("invalid state transition: document %s is in %s state: %w",
			docID, doc.Status, err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":        docID,
		"chapter_count": chapterCount,
	}).Info("Marking document as ready")

	if err := m.repo.UpdateStatus(docID, models.DocStatusReady, ""); err != nil {
		return err
	}

	// 更新文档记录，写入章节数量
	doc.Status = models.DocStatusReady
	doc.ChapterCount = chapterCount
	doc.Error = ""
	return m.repo.Update(doc)
}

// MarkAsFailed 将文档标记为生成失败状态
func (m *DocumentStatusManager) MarkAsFailed(ctx context.Context, docID string, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"error":  errorMsg,
	}).Error("Marking document as failed")

	return m.repo.UpdateStatus(docID, models.DocStatusError, errorMsg)
}

// RevertToUploaded 将文档回退到已上传状态
// 取消生成时调用，同时清空章节数量和错误信息
func (m *DocumentStatusManager) RevertToUploaded(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	m.logger.WithField("doc_id", docID).Info("Reverting document to uploaded state")

	doc.Status = models.DocStatusUploaded
	doc.ChapterCount = 0
	doc.Error = ""
	doc.ProcessedAt = nil
	return m.repo.Update(doc)
}

// GetStatus 获取文档当前状态
func (m *DocumentStatusManager) GetStatus(ctx context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return doc.Status, nil
}

// GetDocument 获取完整的文档对象
func (m *DocumentStatusManager) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return m.repo.GetByID(docID)
}

// ListDocuments 获取文档列表
func (m *DocumentStatusManager) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteDocument 删除文档状态记录
func (m *DocumentStatusManager) DeleteDocument(ctx context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithField("doc_id", docID).Info("Deleting document status record")
	return m.repo.Delete(docID)
}

// ValidateStateTransition 验证状态转换的有效性
func (m *DocumentStatusManager) ValidateStateTransition(from, to models.DocumentStatus) error {
	// ready和error不是终态，允许重新生成
	validTransitions := map[models.DocumentStatus][]models.DocumentStatus{
		models.DocStatusUploaded: {
			models.DocStatusProcessing,
		},
		models.DocStatusProcessing: {
			models.DocStatusReady,
			models.DocStatusError,
			models.DocStatusUploaded, // 取消生成回退
		},
		models.DocStatusReady: {
			models.DocStatusProcessing,
		},
		models.DocStatusError: {
			models.DocStatusProcessing,
		},
	}

	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}

	return models.ErrInvalidDocumentStatus
}

// getFileType 根据文件名获取文件类型
func getFileType(fileName string) string {
	ext := ""
	for i := len(fileName) - 1; i >= 0 && fileName[i] != '.'; i-- {
		ext = string(fileName[i]) + ext
	}
	return ext
}
