package llm

import (
	"errors"
	"fmt"
)

// LLMError 大模型调用错误类型
type LLMError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e LLMError) Error() string {
	return fmt.Sprintf("llm error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyPrompt    = 1007 // 提示词为空
	ErrCodeAuthFailed     = 1008 // 认证失败（密钥被服务端拒绝）
	ErrCodeUnavailable    = 1009 // 服务不可用
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyPrompt    = "prompt cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgAuthFailed     = "authentication rejected by generation service"
	ErrMsgUnavailable    = "generation service unavailable"
)

// NewLLMError 创建新的大模型错误
func NewLLMError(code int, message string) LLMError {
	return LLMError{
		Code:    code,
		Message: message,
	}
}

// WrapError 包装普通错误为LLM错误
func WrapError(err error, code int) LLMError {
	if err == nil {
		return LLMError{Code: code, Message: "unknown error"}
	}

	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	return LLMError{
		Code:    code,
		Message: err.Error(),
	}
}

// IsAuthError 判断错误是否为认证失败
// 运维上需要把"密钥无效"和"模型输出坏了"区分开
func IsAuthError(err error) bool {
	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Code == ErrCodeInvalidAPIKey || llmErr.Code == ErrCodeAuthFailed
	}
	return false
}

// IsUnavailable 判断错误是否为服务不可用
func IsUnavailable(err error) bool {
	var llmErr LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Code == ErrCodeUnavailable ||
			llmErr.Code == ErrCodeNetworkError ||
			llmErr.Code == ErrCodeTimeout
	}
	return false
}
