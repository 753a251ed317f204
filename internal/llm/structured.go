package llm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/pkg/jsonrepair"
)

// StructuredClient 结构化输出客户端
// 在普通大模型客户端之上增加JSON修复和解码
type StructuredClient struct {
	client Client
	logger *logrus.Logger
}

// NewStructuredClient 创建结构化输出客户端
func NewStructuredClient(client Client, logger *logrus.Logger) *StructuredClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &StructuredClient{
		client: client,
		logger: logger,
	}
}

// Client 返回底层的大模型客户端
func (s *StructuredClient) Client() Client {
	return s.client
}

// GenerateJSON 生成结构化JSON输出并解码到out
// 模型输出先经过修复流水线，修复失败时返回*jsonrepair.MalformedOutputError
// 通过options可以按请求覆盖模型和采样参数
func (s *StructuredClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, out interface{}, options ...GenerateOption) error {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})

	opts := make([]GenerateOption, 0, len(options)+1)
	if maxTokens > 0 {
		opts = append(opts, WithGenerateMaxTokens(maxTokens))
	}
	opts = append(opts, options...)

	resp, err := s.client.Chat(ctx, messages, opts...)
	if err != nil {
		return err
	}

	if resp.Truncated {
		s.logger.WithFields(logrus.Fields{
			"model":       resp.ModelName,
			"token_count": resp.TokenCount,
		}).Warn("Model output truncated by length limit, attempting repair")
	}

	if err := jsonrepair.Parse(resp.Text, out); err != nil {
		s.logger.WithFields(logrus.Fields{
			"model":       resp.ModelName,
			"output_size": len(resp.Text),
		}).Error("Failed to decode model output as JSON")
		return err
	}

	return nil
}
