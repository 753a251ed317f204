package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 设置一个miniredis实例用于测试
// 返回Redis地址和一个清理函数
func setupRedisTest(t *testing.T) (string, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	return mr.Addr(), func() {
		mr.Close()
	}
}

// newTestQueue 创建连接到miniredis的测试队列
func newTestQueue(t *testing.T, redisAddr string) Queue {
	cfg := &Config{
		RedisAddr:   redisAddr,
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	}

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	return queue
}

// enrichPayload 构造测试用的章节扩充载荷
func enrichPayload(chapterID uint) *ChapterEnrichPayload {
	return &ChapterEnrichPayload{
		DocumentID: "doc-123",
		ChapterID:  chapterID,
		Title:      "Introduction",
		Content:    "chapter content used for enrichment",
	}
}

// TestNewRedisQueue 测试创建Redis队列实例
func TestNewRedisQueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	assert.NotNil(t, queue)

	err := queue.Close()
	assert.NoError(t, err)
}

// TestRedisQueue_Enqueue 测试队列入队功能
func TestRedisQueue_Enqueue(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(1))
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	// 验证任务已入队
	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskChapterEnrich, task.Type)
	assert.Equal(t, "doc-123", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)
	assert.NotNil(t, task.Payload)

	// 载荷应该可以解码回原始结构
	var decoded ChapterEnrichPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, uint(1), decoded.ChapterID)
	assert.Equal(t, "Introduction", decoded.Title)
}

// TestRedisQueue_EnqueueIn 测试延时入队功能
func TestRedisQueue_EnqueueIn(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.EnqueueIn(ctx, TaskChapterEnrich, "doc-123", enrichPayload(2), time.Second)
	assert.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, TaskChapterEnrich, task.Type)
	assert.Equal(t, StatusPending, task.Status)
}

// TestRedisQueue_GetTask 测试任务查询
func TestRedisQueue_GetTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	// 查询不存在的任务
	_, err := queue.GetTask(ctx, "missing-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	taskID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(3))
	require.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	assert.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
}

// TestRedisQueue_GetTasksByDocument 测试按文档查询任务
func TestRedisQueue_GetTasksByDocument(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	_, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-a", enrichPayload(1))
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, TaskChapterEnrich, "doc-a", enrichPayload(2))
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, TaskChapterEnrich, "doc-b", enrichPayload(3))
	require.NoError(t, err)

	tasks, err := queue.GetTasksByDocument(ctx, "doc-a")
	assert.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = queue.GetTasksByDocument(ctx, "doc-missing")
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_UpdateTaskStatus 测试任务状态更新
func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(4))
	require.NoError(t, err)

	// 进入处理中
	err = queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, "")
	assert.NoError(t, err)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)

	// 完成并写入结果
	result := &ChapterEnrichResult{
		ChapterID: 4,
		Summary:   "a generated summary",
		KeyPoints: []string{"point one", "point two"},
	}
	err = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, "")
	assert.NoError(t, err)

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var decoded ChapterEnrichResult
	require.NoError(t, UnmarshalPayload(task.Result, &decoded))
	assert.Equal(t, "a generated summary", decoded.Summary)
	assert.Len(t, decoded.KeyPoints, 2)
}

// TestRedisQueue_DeleteTask 测试任务删除
func TestRedisQueue_DeleteTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(5))
	require.NoError(t, err)

	err = queue.DeleteTask(ctx, taskID)
	assert.NoError(t, err)

	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// 文档任务集合也应同步移除
	tasks, err := queue.GetTasksByDocument(ctx, "doc-123")
	assert.NoError(t, err)
	assert.Empty(t, tasks)
}

// TestRedisQueue_WaitForTask 测试等待任务完成
func TestRedisQueue_WaitForTask(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	queue := newTestQueue(t, redisAddr)
	defer queue.Close()

	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(6))
	require.NoError(t, err)

	// 已完成的任务应立即返回
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, ""))

	task, err := queue.WaitForTask(ctx, taskID, 2*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)

	// 未完成的任务应在超时后返回错误
	pendingID, err := queue.Enqueue(ctx, TaskChapterEnrich, "doc-123", enrichPayload(7))
	require.NoError(t, err)

	_, err = queue.WaitForTask(ctx, pendingID, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

// TestNewQueueFactory 测试队列工厂
func TestNewQueueFactory(t *testing.T) {
	redisAddr, cleanup := setupRedisTest(t)
	defer cleanup()

	cfg := DefaultConfig()
	cfg.RedisAddr = redisAddr

	queue, err := NewQueue("redis", cfg)
	assert.NoError(t, err)
	assert.NotNil(t, queue)
	queue.Close()

	_, err = NewQueue("unknown", cfg)
	assert.Error(t, err)
}
