package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档生命周期状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待生成
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 章节生成进行中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusReady 章节生成完成，结果可用
	DocStatusReady DocumentStatus = "ready"
	// DocStatusError 章节生成失败
	DocStatusError DocumentStatus = "error"
)

// ProgressStep 生成流水线的进度阶段
type ProgressStep string

const (
	// StepExtracting 正文提取阶段
	StepExtracting ProgressStep = "extracting"
	// StepDetecting 章节探测阶段
	StepDetecting ProgressStep = "detecting"
	// StepSavingChapters 章节落库阶段
	StepSavingChapters ProgressStep = "saving_chapters"
	// StepDone 流水线完成
	StepDone ProgressStep = "done"
	// StepUnknown 进度记录缺失时的占位阶段
	StepUnknown ProgressStep = "unknown"
)

// Document 文档数据模型
// 用于存储上传文档的元数据和生成状态
type Document struct {
	ID           string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName     string         `gorm:"not null"`           // 文件名
	FileType     string         `gorm:"not null"`           // 文件类型
	FilePath     string         `gorm:"not null"`           // 文件路径
	FileSize     int64          `gorm:"not null"`           // 文件大小（字节）
	Status       DocumentStatus `gorm:"not null;index"`     // 生命周期状态
	UploadedAt   time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt  *time.Time     `gorm:"index"`              // 生成完成时间
	UpdatedAt    time.Time      `gorm:"not null;index"`     // 更新时间
	Error        string         `gorm:"type:text"`          // 错误信息
	ChapterCount int            `gorm:"not null;default:0"` // 章节数量
	Metadata     datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// Chapter 章节数据模型
// 章节是生成流水线从文档正文切分出的有序片段
type Chapter struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string         `gorm:"not null;index"`           // 所属文档ID
	Position   int            `gorm:"not null"`                 // 章节在文档中的序号
	Title      string         `gorm:"not null"`                 // 章节标题
	Content    string         `gorm:"type:text;not null"`       // 章节正文
	Offset     int            `gorm:"not null;default:0"`       // 章节起点在正文中的字节偏移
	Summary    string         `gorm:"type:text"`                // 章节摘要（扩充生成）
	KeyPoints  datatypes.JSON `gorm:"type:json"`                // 章节要点列表（扩充生成）
	Enriched   bool           `gorm:"not null;default:false"`   // 扩充内容是否已生成
	CreatedAt  time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time      `gorm:"not null"`                 // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (c *Chapter) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (c *Chapter) BeforeUpdate(tx *gorm.DB) (err error) {
	c.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Chapter) TableName() string {
	return "chapters"
}

// GenerationProgress 生成进度记录
// 只存在于缓存中，不落库
type GenerationProgress struct {
	DocumentID   string       `json:"document_id"`   // 文档ID
	Step         ProgressStep `json:"step"`          // 当前阶段
	CurrentUnit  int          `json:"current_unit"`  // 当前阶段已完成的单元数
	TotalUnits   int          `json:"total_units"`   // 当前阶段的单元总数
	CurrentLabel string       `json:"current_label"` // 正在处理的单元说明
	UpdatedAt    time.Time    `json:"updated_at"`    // 最近更新时间
}
