package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	DocumentID   string     `json:"document_id"`            // 文档ID
	FileName     string     `json:"filename"`               // 文件名
	FileType     string     `json:"file_type"`              // 文件类型
	FileSize     int64      `json:"file_size"`              // 文件大小
	Status       string     `json:"status"`                 // 文档状态
	ChapterCount int        `json:"chapter_count"`          // 章节数量
	Error        string     `json:"error,omitempty"`        // 错误信息（如果有）
	UploadedAt   time.Time  `json:"uploaded_at"`            // 上传时间
	ProcessedAt  *time.Time `json:"processed_at,omitempty"` // 处理完成时间
}

// NewDocumentInfo 从文档模型构建响应信息
func NewDocumentInfo(doc *models.Document) DocumentInfo {
	return DocumentInfo{
		DocumentID:   doc.ID,
		FileName:     doc.FileName,
		FileType:     doc.FileType,
		FileSize:     doc.FileSize,
		Status:       string(doc.Status),
		ChapterCount: doc.ChapterCount,
		Error:        doc.Error,
		UploadedAt:   doc.UploadedAt,
		ProcessedAt:  doc.ProcessedAt,
	}
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success    bool   `json:"success"`     // 是否成功
	DocumentID string `json:"document_id"` // 文档ID
}

// GenerationStartResponse 启动生成的响应
type GenerationStartResponse struct {
	DocumentID string `json:"document_id"` // 文档ID
	Status     string `json:"status"`      // 启动后的文档状态
}

// GenerationCancelResponse 取消生成的响应
type GenerationCancelResponse struct {
	DocumentID string `json:"document_id"` // 文档ID
	Status     string `json:"status"`      // 取消后的文档状态
}

// ProgressResponse 生成进度响应
type ProgressResponse struct {
	DocumentID   string    `json:"document_id"`             // 文档ID
	Step         string    `json:"step"`                    // 当前阶段
	CurrentUnit  int       `json:"current_unit"`            // 当前阶段已完成的单元数
	TotalUnits   int       `json:"total_units"`             // 当前阶段的单元总数
	CurrentLabel string    `json:"current_label,omitempty"` // 正在处理的单元说明
	UpdatedAt    time.Time `json:"updated_at"`              // 更新时间
}

// ChapterInfo 章节信息
type ChapterInfo struct {
	ChapterID uint     `json:"chapter_id"`           // 章节ID
	Position  int      `json:"position"`             // 章节顺序
	Title     string   `json:"title"`                // 章节标题
	Content   string   `json:"content"`              // 章节正文
	Offset    int      `json:"offset"`               // 在原文档中的偏移
	Summary   string   `json:"summary,omitempty"`    // 章节摘要
	KeyPoints []string `json:"key_points,omitempty"` // 章节要点
	Enriched  bool     `json:"enriched"`             // 是否已扩充
}

// NewChapterInfo 从章节模型构建响应信息
func NewChapterInfo(chapter *models.Chapter) ChapterInfo {
	info := ChapterInfo{
		ChapterID: chapter.ID,
		Position:  chapter.Position,
		Title:     chapter.Title,
		Content:   chapter.Content,
		Offset:    chapter.Offset,
		Summary:   chapter.Summary,
		Enriched:  chapter.Enriched,
	}

	if len(chapter.KeyPoints) > 0 {
		// 反序列化失败时保留空要点，不让单条脏数据拖垮整个响应
		_ = json.Unmarshal(chapter.KeyPoints, &info.KeyPoints)
	}

	return info
}

// ChapterListResponse 章节列表响应
type ChapterListResponse struct {
	DocumentID string        `json:"document_id"` // 文档ID
	Total      int           `json:"total"`       // 章节总数
	Chapters   []ChapterInfo `json:"chapters"`    // 章节列表
}

// CoursePlanResponse 课程大纲响应
type CoursePlanResponse struct {
	DocumentID string               `json:"document_id"` // 文档ID
	Plan       *services.CoursePlan `json:"plan"`        // 生成的大纲
}
