package models

import "errors"

var (
	// ErrDocumentNotFound 文档不存在错误
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")

	// ErrAlreadyProcessing 文档已在生成中，拒绝并发启动
	ErrAlreadyProcessing = errors.New("document is already being processed")

	// ErrNotProcessing 文档不在生成中，无法取消
	ErrNotProcessing = errors.New("document is not being processed")
)
