package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

// enrichMaxTokens 章节扩充输出的Token上限
const enrichMaxTokens = 1024

// enrichOutput 章节扩充的模型输出结构
type enrichOutput struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// ChapterEnricher 章节扩充器
// 为章节生成摘要和要点，可以内联执行，也可以作为队列任务处理器
type ChapterEnricher struct {
	repo   repository.DocumentRepository // 章节存储
	client *llm.StructuredClient         // 结构化输出客户端
	logger *logrus.Logger                // 日志记录器
}

// NewChapterEnricher 创建章节扩充器
func NewChapterEnricher(repo repository.DocumentRepository, client *llm.StructuredClient, logger *logrus.Logger) *ChapterEnricher {
	if logger == nil {
		logger = logrus.New()
	}

	return &ChapterEnricher{
		repo:   repo,
		client: client,
		logger: logger,
	}
}

// EnrichChapter 为单个章节生成摘要和要点并落库
// options可以按请求覆盖模型等生成参数
func (e *ChapterEnricher) EnrichChapter(ctx context.Context, chapter *models.Chapter, options ...llm.GenerateOption) error {
	var out enrichOutput
	err := e.client.GenerateJSON(ctx,
		chapterEnrichSystemPrompt,
		buildChapterEnrichPrompt(chapter.Title, chapter.Content),
		enrichMaxTokens,
		&out,
		options...,
	)
	if err != nil {
		return fmt.Errorf("failed to generate chapter enrichment: %w", err)
	}

	keyPoints, err := marshalKeyPoints(out.KeyPoints)
	if err != nil {
		return err
	}

	chapter.Summary = out.Summary
	chapter.KeyPoints = keyPoints
	chapter.Enriched = true

	if err := e.repo.UpdateChapter(chapter); err != nil {
		return fmt.Errorf("failed to save enriched chapter: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"doc_id":     chapter.DocumentID,
		"chapter_id": chapter.ID,
		"key_points": len(out.KeyPoints),
	}).Info("Chapter enriched successfully")

	return nil
}

// ProcessTask 实现taskqueue.Handler，处理队列中的章节扩充任务
func (e *ChapterEnricher) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	if task.Type != taskqueue.TaskChapterEnrich {
		return fmt.Errorf("unexpected task type: %s", task.Type)
	}

	var payload taskqueue.ChapterEnrichPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return taskqueue.ErrInvalidPayload
	}

	chapter, err := e.repo.GetChapter(payload.ChapterID)
	if err != nil {
		// 章节可能已随文档删除或取消被清掉，任务直接完成
		e.logger.WithFields(logrus.Fields{
			"task_id":    task.ID,
			"chapter_id": payload.ChapterID,
		}).Warn("Chapter no longer exists, skipping enrichment")
		return nil
	}

	var options []llm.GenerateOption
	if payload.Model != "" {
		options = append(options, llm.WithGenerateModel(payload.Model))
	}

	return e.EnrichChapter(ctx, chapter, options...)
}

// GetTaskTypes 返回此处理器支持的任务类型
func (e *ChapterEnricher) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskChapterEnrich}
}

// marshalKeyPoints 将要点列表编码为JSON列
func marshalKeyPoints(points []string) (datatypes.JSON, error) {
	if points == nil {
		points = []string{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key points: %w", err)
	}
	return datatypes.JSON(data), nil
}
