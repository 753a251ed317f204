package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/api/middleware"
	"github.com/fyerfyer/course-gen-system/api/model"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/services"
)

// GenerationHandler 处理章节生成相关的API请求
type GenerationHandler struct {
	generationService *services.GenerationService // 生成服务
	documentService   *services.DocumentService   // 文档服务
	planService       *services.PlanService       // 课程大纲服务
	logger            *logrus.Logger              // 日志记录器
}

// NewGenerationHandler 创建新的生成处理器
func NewGenerationHandler(
	generationService *services.GenerationService,
	documentService *services.DocumentService,
	planService *services.PlanService,
) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		documentService:   documentService,
		planService:       planService,
		logger:            middleware.GetLogger(),
	}
}

// StartGeneration 启动文档的章节生成
// POST /api/documents/:id/process
func (h *GenerationHandler) StartGeneration(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	err := h.generationService.Start(c.Request.Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
		case errors.Is(err, models.ErrAlreadyProcessing):
			c.JSON(http.StatusConflict, model.NewErrorResponse(
				http.StatusConflict,
				"document is already being processed",
			))
		default:
			h.logger.WithFields(logrus.Fields{
				"error":  err.Error(),
				"doc_id": req.ID,
			}).Error("Failed to start generation")

			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"failed to start generation",
			))
		}
		return
	}

	resp := model.GenerationStartResponse{
		DocumentID: req.ID,
		Status:     string(models.DocStatusProcessing),
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(resp))
}

// CancelGeneration 取消文档的章节生成
// POST /api/documents/:id/cancel
func (h *GenerationHandler) CancelGeneration(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	err := h.generationService.Cancel(c.Request.Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
		case errors.Is(err, models.ErrNotProcessing):
			c.JSON(http.StatusConflict, model.NewErrorResponse(
				http.StatusConflict,
				"document is not being processed",
			))
		default:
			h.logger.WithFields(logrus.Fields{
				"error":  err.Error(),
				"doc_id": req.ID,
			}).Error("Failed to cancel generation")

			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"failed to cancel generation",
			))
		}
		return
	}

	resp := model.GenerationCancelResponse{
		DocumentID: req.ID,
		Status:     string(models.DocStatusUploaded),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetProgress 查询文档的生成进度
// GET /api/documents/:id/progress
func (h *GenerationHandler) GetProgress(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	progress, err := h.generationService.Progress(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":  err.Error(),
			"doc_id": req.ID,
		}).Error("Failed to get generation progress")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to get generation progress",
		))
		return
	}

	resp := model.ProgressResponse{
		DocumentID:   req.ID,
		Step:         string(progress.Step),
		CurrentUnit:  progress.CurrentUnit,
		TotalUnits:   progress.TotalUnits,
		CurrentLabel: progress.CurrentLabel,
		UpdatedAt:    progress.UpdatedAt,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetChapters 获取文档的章节列表
// GET /api/documents/:id/chapters
func (h *GenerationHandler) GetChapters(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	chapters, err := h.documentService.GetChapters(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":  err.Error(),
			"doc_id": req.ID,
		}).Error("Failed to get chapters")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to get chapters",
		))
		return
	}

	infos := make([]model.ChapterInfo, len(chapters))
	for i, chapter := range chapters {
		infos[i] = model.NewChapterInfo(chapter)
	}

	resp := model.ChapterListResponse{
		DocumentID: req.ID,
		Total:      len(infos),
		Chapters:   infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GeneratePlan 基于文档章节生成课程大纲
// POST /api/documents/:id/plan
func (h *GenerationHandler) GeneratePlan(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	plan, err := h.planService.GeneratePlan(c.Request.Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "document not found"))
		case errors.Is(err, models.ErrInvalidDocumentStatus):
			c.JSON(http.StatusConflict, model.NewErrorResponse(
				http.StatusConflict,
				"document chapters are not ready",
			))
		default:
			h.logger.WithFields(logrus.Fields{
				"error":  err.Error(),
				"doc_id": req.ID,
			}).Error("Failed to generate course plan")

			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"failed to generate course plan",
			))
		}
		return
	}

	resp := model.CoursePlanResponse{
		DocumentID: req.ID,
		Plan:       plan,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
