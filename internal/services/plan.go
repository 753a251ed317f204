package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
)

// planMaxTokens 课程大纲输出的Token上限
const planMaxTokens = 2048

// CoursePlan 课程大纲
type CoursePlan struct {
	Title    string   `json:"title"`
	Overview string   `json:"overview"`
	Lessons  []Lesson `json:"lessons"`
}

// Lesson 课程大纲中的单节课
type Lesson struct {
	Title      string   `json:"title"`
	Objectives []string `json:"objectives"`
	Chapters   []string `json:"chapters"`
}

// PlanService 课程大纲生成服务
// 基于文档的章节标题和摘要生成授课大纲
type PlanService struct {
	repo   repository.DocumentRepository // 章节来源
	client *llm.StructuredClient         // 结构化输出客户端
	logger *logrus.Logger                // 日志记录器
}

// NewPlanService 创建课程大纲生成服务
func NewPlanService(repo repository.DocumentRepository, client *llm.StructuredClient, logger *logrus.Logger) *PlanService {
	if logger == nil {
		logger = logrus.New()
	}

	return &PlanService{
		repo:   repo,
		client: client,
		logger: logger,
	}
}

// GeneratePlan 为文档生成课程大纲
// 文档必须已完成章节生成
func (s *PlanService) GeneratePlan(ctx context.Context, docID string) (*CoursePlan, error) {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}

	if doc.Status != models.DocStatusReady {
		return nil, fmt.Errorf("%w: document %s is in %s state, expected %s",
			models.ErrInvalidDocumentStatus, docID, doc.Status, models.DocStatusReady)
	}

	chapters, err := s.repo.GetChapters(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapters: %w", err)
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("document %s has no chapters", docID)
	}

	inputs := make([]planChapterInput, len(chapters))
	for i, ch := range chapters {
		inputs[i] = planChapterInput{
			Title:   ch.Title,
			Summary: ch.Summary,
		}
	}

	var plan CoursePlan
	err = s.client.GenerateJSON(ctx,
		coursePlanSystemPrompt,
		buildCoursePlanPrompt(inputs),
		planMaxTokens,
		&plan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate course plan: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":  docID,
		"lessons": len(plan.Lessons),
	}).Info("Course plan generated")

	return &plan, nil
}
