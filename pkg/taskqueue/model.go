package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskChapterEnrich 章节扩充任务，为章节生成摘要和要点
	TaskChapterEnrich TaskType = "chapter_enrich"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ChapterEnrichPayload 章节扩充任务载荷
type ChapterEnrichPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
	ChapterID  uint   `json:"chapter_id"`  // 章节ID
	Title      string `json:"title"`       // 章节标题
	Content    string `json:"content"`     // 章节正文
	Model      string `json:"model"`       // 使用的模型名称（可选）
}

// ChapterEnrichResult 章节扩充任务结果
type ChapterEnrichResult struct {
	ChapterID uint     `json:"chapter_id"` // 章节ID
	Summary   string   `json:"summary"`    // 生成的摘要
	KeyPoints []string `json:"key_points"` // 生成的要点列表
	Error     string   `json:"error"`      // 错误信息（如果有）
}
