package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/internal/document"
	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/internal/segmenter"
	"github.com/fyerfyer/course-gen-system/pkg/storage"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

// detectMaxTokens 章节探测输出的Token上限
const detectMaxTokens = 2048

// chapterDetectOutput 章节探测的模型输出结构
type chapterDetectOutput struct {
	Chapters []segmenter.BoundarySuggestion `json:"chapters"`
}

// GenerationService 章节生成服务
// 负责编排提取、探测、切分、落库的完整流水线
// 生成在服务自有的goroutine中运行，生命周期不跟随请求上下文
type GenerationService struct {
	storage       storage.Storage               // 文件存储
	repo          repository.DocumentRepository // 文档仓储
	statusManager *DocumentStatusManager        // 状态管理器
	segmenter     *segmenter.Segmenter          // 章节切分器
	client        *llm.StructuredClient         // 结构化输出客户端
	enricher      *ChapterEnricher              // 章节扩充器
	progress      *ProgressTracker              // 进度跟踪器
	taskQueue     taskqueue.Queue               // 任务队列，非空时章节扩充走队列
	progressTTL   time.Duration                 // done进度的保留时长
	logger        *logrus.Logger                // 日志记录器

	mu   sync.Mutex                    // 保护runs
	runs map[string]context.CancelFunc // 进行中的生成，docID到取消函数
}

// GenerationOption 生成服务配置选项
type GenerationOption func(*GenerationService)

// NewGenerationService 创建章节生成服务
func NewGenerationService(
	store storage.Storage,
	repo repository.DocumentRepository,
	statusManager *DocumentStatusManager,
	seg *segmenter.Segmenter,
	client *llm.StructuredClient,
	progress *ProgressTracker,
	opts ...GenerationOption,
) *GenerationService {
	srv := &GenerationService{
		storage:       store,
		repo:          repo,
		statusManager: statusManager,
		segmenter:     seg,
		client:        client,
		progress:      progress,
		progressTTL:   time.Minute,
		logger:        logrus.New(),
		runs:          make(map[string]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.enricher == nil {
		srv.enricher = NewChapterEnricher(repo, client, srv.logger)
	}

	return srv
}

// WithGenerationLogger 设置日志记录器
func WithGenerationLogger(logger *logrus.Logger) GenerationOption {
	return func(s *GenerationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEnricher 设置章节扩充器
func WithEnricher(enricher *ChapterEnricher) GenerationOption {
	return func(s *GenerationService) {
		s.enricher = enricher
	}
}

// WithEnrichQueue 设置章节扩充的任务队列
// 配置后扩充任务入队异步处理，否则在流水线内同步执行
func WithEnrichQueue(queue taskqueue.Queue) GenerationOption {
	return func(s *GenerationService) {
		s.taskQueue = queue
	}
}

// WithProgressTTL 设置done进度记录的保留时长
func WithProgressTTL(ttl time.Duration) GenerationOption {
	return func(s *GenerationService) {
		if ttl > 0 {
			s.progressTTL = ttl
		}
	}
}

// Start 启动文档的章节生成
// 文档已在生成中时返回models.ErrAlreadyProcessing
func (s *GenerationService) Start(ctx context.Context, docID string) error {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	// 状态检查和转换由状态管理器原子完成
	if err := s.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		return err
	}

	// 重新生成时清掉上一轮的章节
	if err := s.repo.DeleteChapters(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to clear previous chapters")
	}

	// 生成goroutine使用服务自有的上下文，不跟随请求生命周期
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.runs[docID] = cancel
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"filename": doc.FileName,
	}).Info("Starting chapter generation")

	go s.run(runCtx, doc)

	return nil
}

// Cancel 取消文档的章节生成
// 文档不在生成中时返回models.ErrNotProcessing
// 取消后文档回到uploaded状态，已写入的章节和进度立即清除
func (s *GenerationService) Cancel(ctx context.Context, docID string) error {
	status, err := s.statusManager.GetStatus(ctx, docID)
	if err != nil {
		return err
	}
	if status != models.DocStatusProcessing {
		return models.ErrNotProcessing
	}

	s.mu.Lock()
	cancel, ok := s.runs[docID]
	if ok {
		delete(s.runs, docID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
	}

	s.logger.WithField("doc_id", docID).Info("Cancelling chapter generation")

	// 清理由取消方负责，生成goroutine观察到取消后直接退出
	if err := s.statusManager.RevertToUploaded(ctx, docID); err != nil {
		return fmt.Errorf("failed to revert document status: %w", err)
	}
	if err := s.repo.DeleteChapters(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to delete chapters on cancel")
	}
	if err := s.progress.Remove(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to remove progress on cancel")
	}

	return nil
}

// Progress 查询文档的生成进度
// 进度记录缺失时根据文档状态兜底
func (s *GenerationService) Progress(ctx context.Context, docID string) (*models.GenerationProgress, error) {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}

	progress, found, err := s.progress.Get(docID)
	if err != nil {
		return nil, err
	}
	if found {
		return progress, nil
	}

	// 没有进度记录时从状态推导
	step := models.StepUnknown
	switch doc.Status {
	case models.DocStatusReady:
		step = models.StepDone
	case models.DocStatusUploaded, models.DocStatusError:
		step = models.StepUnknown
	}

	return &models.GenerationProgress{
		DocumentID: docID,
		Step:       step,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

// run 执行生成流水线
// 观察到取消时直接退出，状态和数据清理由Cancel完成
func (s *GenerationService) run(ctx context.Context, doc *models.Document) {
	defer s.finishRun(doc.ID)

	// 正文提取
	s.setProgress(doc.ID, models.StepExtracting, "")
	content, err := s.extractContent(doc)
	if err != nil {
		s.failRun(ctx, doc.ID, fmt.Sprintf("failed to extract content: %v", err))
		return
	}
	if s.cancelled(ctx) {
		return
	}

	minLen := s.segmenter.Config().MinDocumentLength
	if len(strings.TrimSpace(content)) < minLen {
		s.failRun(ctx, doc.ID, fmt.Sprintf("document content too short: fewer than %d characters", minLen))
		return
	}

	// 章节探测
	s.setProgress(doc.ID, models.StepDetecting, "")
	suggestions, err := s.detectBoundaries(ctx, content)
	if err != nil {
		if s.cancelled(ctx) {
			return
		}
		s.failRun(ctx, doc.ID, fmt.Sprintf("failed to detect chapters: %v", err))
		return
	}
	if s.cancelled(ctx) {
		return
	}

	// 切分，定位全部失败时退化为单章节
	segments := s.segmenter.DetectChapters(content, suggestions)
	if len(segments) == 0 {
		s.failRun(ctx, doc.ID, "document produced no usable content")
		return
	}

	// 逐章落库，每章之间检查取消
	total := len(segments)
	s.setUnitProgress(doc.ID, models.StepSavingChapters, 0, total, "")
	inlineEnrich := s.taskQueue == nil && s.enricher != nil
	chapters := make([]*models.Chapter, 0, total)
	for i, seg := range segments {
		if s.cancelled(ctx) {
			return
		}

		chapter := &models.Chapter{
			DocumentID: doc.ID,
			Position:   i,
			Title:      seg.Title,
			Content:    seg.Content,
			Offset:     seg.Offset,
		}
		if err := s.repo.SaveChapter(chapter); err != nil {
			s.failRun(ctx, doc.ID, fmt.Sprintf("failed to save chapter %d: %v", i, err))
			return
		}
		chapters = append(chapters, chapter)

		// 内联扩充，单章失败不影响文档就绪
		if inlineEnrich {
			if err := s.enricher.EnrichChapter(ctx, chapter); err != nil && !s.cancelled(ctx) {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"doc_id":     doc.ID,
					"chapter_id": chapter.ID,
				}).Warn("Chapter enrichment failed")
			}
		}

		s.setUnitProgress(doc.ID, models.StepSavingChapters, i+1, total, seg.Title)
	}
	if s.cancelled(ctx) {
		return
	}

	// 配置了任务队列时章节扩充异步处理
	if s.taskQueue != nil {
		s.enqueueEnrichment(ctx, doc.ID, chapters)
	}

	if err := s.statusManager.MarkAsReady(ctx, doc.ID, len(chapters)); err != nil {
		// 取消和完成竞争时文档已回到uploaded，放弃标记
		s.logger.WithError(err).WithField("doc_id", doc.ID).Warn("Failed to mark document as ready")
		return
	}

	s.setProgress(doc.ID, models.StepDone, "")
	s.progress.ScheduleRemoval(doc.ID, s.progressTTL)

	s.logger.WithFields(logrus.Fields{
		"doc_id":        doc.ID,
		"chapter_count": len(chapters),
	}).Info("Chapter generation completed")
}

// extractContent 从存储读取文件并解析出正文
func (s *GenerationService) extractContent(doc *models.Document) (string, error) {
	reader, err := s.storage.Get(doc.ID)
	if err != nil {
		return "", fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	parser, err := document.ParserFactory(doc.FileName)
	if err != nil {
		return "", err
	}

	content, err := parser.ParseReader(reader, doc.FileName)
	if err != nil {
		return "", err
	}

	return content, nil
}

// detectBoundaries 调用大模型探测章节边界
func (s *GenerationService) detectBoundaries(ctx context.Context, content string) ([]segmenter.BoundarySuggestion, error) {
	var out chapterDetectOutput
	err := s.client.GenerateJSON(ctx,
		chapterDetectSystemPrompt,
		buildChapterDetectPrompt(content),
		detectMaxTokens,
		&out,
	)
	if err != nil {
		return nil, err
	}

	return out.Chapters, nil
}

// enqueueEnrichment 将章节扩充任务逐章入队
func (s *GenerationService) enqueueEnrichment(ctx context.Context, docID string, chapters []*models.Chapter) {
	for _, chapter := range chapters {
		payload := &taskqueue.ChapterEnrichPayload{
			DocumentID: docID,
			ChapterID:  chapter.ID,
			Title:      chapter.Title,
			Content:    chapter.Content,
		}
		if _, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskChapterEnrich, docID, payload); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"doc_id":     docID,
				"chapter_id": chapter.ID,
			}).Warn("Failed to enqueue chapter enrichment")
		}
	}
}

// failRun 将生成标记为失败
func (s *GenerationService) failRun(ctx context.Context, docID string, errorMsg string) {
	// 已取消时文档回到uploaded状态，不再写入错误
	if s.cancelled(ctx) {
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, docID, errorMsg); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Error("Failed to mark document as failed")
	}
	if err := s.progress.Remove(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to remove progress after failure")
	}
}

// finishRun 清理运行登记
func (s *GenerationService) finishRun(docID string) {
	s.mu.Lock()
	if cancel, ok := s.runs[docID]; ok {
		delete(s.runs, docID)
		cancel()
	}
	s.mu.Unlock()
}

// setProgress 更新进度，失败只记录日志
func (s *GenerationService) setProgress(docID string, step models.ProgressStep, label string) {
	if err := s.progress.Set(docID, step, label); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to update progress")
	}
}

// setUnitProgress 更新带单元计数的进度，失败只记录日志
func (s *GenerationService) setUnitProgress(docID string, step models.ProgressStep, current, total int, label string) {
	if err := s.progress.SetUnits(docID, step, current, total, label); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to update progress")
	}
}

// cancelled 检查生成是否已被取消
func (s *GenerationService) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// IsRunning 检查文档是否有进行中的生成goroutine
func (s *GenerationService) IsRunning(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[docID]
	return ok
}
