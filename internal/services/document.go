package services

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/internal/document"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/pkg/storage"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

// DocumentService 文档管理服务
// 负责文档的上传、查询和删除
type DocumentService struct {
	storage       storage.Storage               // 文件存储
	repo          repository.DocumentRepository // 文档仓储
	statusManager *DocumentStatusManager        // 状态管理器
	taskQueue     taskqueue.Queue               // 任务队列，删除文档时清理关联任务
	progress      *ProgressTracker              // 进度跟踪器
	logger        *logrus.Logger                // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建文档管理服务
func NewDocumentService(
	store storage.Storage,
	repo repository.DocumentRepository,
	statusManager *DocumentStatusManager,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:       store,
		repo:          repo,
		statusManager: statusManager,
		logger:        logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithDocumentLogger 设置日志记录器
func WithDocumentLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentTaskQueue 设置任务队列
func WithDocumentTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
	}
}

// WithDocumentProgress 设置进度跟踪器
func WithDocumentProgress(progress *ProgressTracker) DocumentOption {
	return func(s *DocumentService) {
		s.progress = progress
	}
}

// UploadDocument 上传文档
// 文件先落存储再写元数据，存储分配的ID就是文档ID
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	// 先校验类型，不支持的文件不落存储
	if _, err := document.ParserFactory(filename); err != nil {
		return nil, err
	}

	fileInfo, err := s.storage.Save(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":   fileInfo.ID,
		"filename": filename,
		"size":     fileInfo.Size,
	}).Info("Document uploaded")

	if err := s.statusManager.MarkAsUploaded(ctx, fileInfo.ID, filename, fileInfo.Path, fileInfo.Size); err != nil {
		// 元数据写入失败时回收已落的文件
		if delErr := s.storage.Delete(fileInfo.ID); delErr != nil {
			s.logger.WithError(delErr).WithField("doc_id", fileInfo.ID).Warn("Failed to clean up orphan file")
		}
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	return s.repo.GetByID(fileInfo.ID)
}

// GetDocument 获取文档元数据
func (s *DocumentService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return s.repo.GetByID(docID)
}

// ListDocuments 分页列出文档
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return s.repo.List(offset, limit, filters)
}

// GetChapters 获取文档的全部章节，按位置排序
func (s *DocumentService) GetChapters(ctx context.Context, docID string) ([]*models.Chapter, error) {
	if _, err := s.repo.GetByID(docID); err != nil {
		return nil, err
	}
	return s.repo.GetChapters(docID)
}

// DeleteDocument 删除文档及其全部关联数据
// 生成中的文档不允许删除，需要先取消
func (s *DocumentService) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return err
	}

	if doc.Status == models.DocStatusProcessing {
		return models.ErrAlreadyProcessing
	}

	s.logger.WithField("doc_id", docID).Info("Deleting document")

	// 清理队列中的关联任务
	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, docID)
		if err != nil {
			s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to list document tasks")
		} else {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithFields(logrus.Fields{
						"doc_id":  docID,
						"task_id": task.ID,
					}).Warn("Failed to delete task")
				}
			}
		}
	}

	// 清理残留的进度记录
	if s.progress != nil {
		if err := s.progress.Remove(docID); err != nil {
			s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to remove progress record")
		}
	}

	if err := s.storage.Delete(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to delete file from storage")
	}

	// 文档和章节在同一事务中删除
	return s.repo.Delete(docID)
}
