package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/course-gen-system/internal/cache"
	"github.com/fyerfyer/course-gen-system/internal/models"
)

// progressKeyPrefix 进度记录的缓存键前缀
const progressKeyPrefix = "progress"

// ProgressTracker 生成进度跟踪器
// 进度记录只存在于缓存中，文档状态才是事实来源
type ProgressTracker struct {
	cache  cache.Cache    // 缓存后端
	ttl    time.Duration  // 进度记录的缓存过期时间
	logger *logrus.Logger // 日志记录器
}

// NewProgressTracker 创建生成进度跟踪器
func NewProgressTracker(c cache.Cache, ttl time.Duration, logger *logrus.Logger) *ProgressTracker {
	if logger == nil {
		logger = logrus.New()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &ProgressTracker{
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Set 记录文档当前的生成阶段
func (t *ProgressTracker) Set(docID string, step models.ProgressStep, label string) error {
	return t.SetUnits(docID, step, 0, 0, label)
}

// SetUnits 记录生成阶段和阶段内的单元进度
// current/total用于按章节等离散单元汇报进度，label描述正在处理的单元
func (t *ProgressTracker) SetUnits(docID string, step models.ProgressStep, current, total int, label string) error {
	progress := &models.GenerationProgress{
		DocumentID:   docID,
		Step:         step,
		CurrentUnit:  current,
		TotalUnits:   total,
		CurrentLabel: label,
		UpdatedAt:    time.Now(),
	}

	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	key := cache.GenerateCacheKey(progressKeyPrefix, docID)
	if err := t.cache.Set(key, string(data), t.ttl); err != nil {
		return fmt.Errorf("failed to store progress: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"doc_id": docID,
		"step":   step,
	}).Debug("Generation progress updated")

	return nil
}

// Get 获取文档的生成进度
// 记录不存在时返回found=false，调用方根据文档状态决定兜底值
func (t *ProgressTracker) Get(docID string) (*models.GenerationProgress, bool, error) {
	key := cache.GenerateCacheKey(progressKeyPrefix, docID)
	data, found, err := t.cache.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read progress: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var progress models.GenerationProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return &progress, true, nil
}

// Remove 删除文档的进度记录
func (t *ProgressTracker) Remove(docID string) error {
	key := cache.GenerateCacheKey(progressKeyPrefix, docID)
	return t.cache.Delete(key)
}

// ScheduleRemoval 在指定延迟后删除进度记录
// 完成后的进度保留一段时间，让轮询中的客户端看到done
func (t *ProgressTracker) ScheduleRemoval(docID string, after time.Duration) {
	time.AfterFunc(after, func() {
		if err := t.Remove(docID); err != nil {
			t.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to remove progress record")
		}
	})
}
