package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/course-gen-system/internal/cache"
	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/internal/segmenter"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

const testDocContent = `Chapter One: Basics
Go is a statically typed language designed at Google. It compiles quickly and ships with garbage collection.
Chapter Two: Concurrency
Goroutines are lightweight threads managed by the runtime. Channels let goroutines communicate safely.`

const testDetectResponse = `{"chapters": [
	{"title": "Basics", "snippet": "Chapter One: Basics"},
	{"title": "Concurrency", "snippet": "Chapter Two: Concurrency"}
]}`

const testEnrichResponse = `{"summary": "A short summary.", "key_points": ["point one", "point two", "point three"]}`

// testSegmenterConfig 缩小阈值以适配短小的测试文档
func testSegmenterConfig() segmenter.Config {
	cfg := segmenter.DefaultConfig()
	cfg.MinBoundaryGap = 10
	cfg.MinSegmentLength = 10
	cfg.MinPrefixLength = 8
	cfg.PrefixStep = 4
	cfg.LocateWindow = 50
	return cfg
}

type generationFixture struct {
	svc     *GenerationService
	repo    repository.DocumentRepository
	store   *memStorage
	manager *DocumentStatusManager
	tracker *ProgressTracker
}

func setupGeneration(t *testing.T, client llm.Client, opts ...GenerationOption) *generationFixture {
	t.Helper()

	repo := setupServiceRepo(t)
	store := newMemStorage()
	manager := NewDocumentStatusManager(repo, testLogger())
	seg := segmenter.NewSegmenter(testSegmenterConfig(), testLogger())

	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	tracker := NewProgressTracker(c, time.Minute, testLogger())

	structured := llm.NewStructuredClient(client, testLogger())
	svc := NewGenerationService(store, repo, manager, seg, structured, tracker,
		append([]GenerationOption{WithGenerationLogger(testLogger())}, opts...)...)

	return &generationFixture{
		svc:     svc,
		repo:    repo,
		store:   store,
		manager: manager,
		tracker: tracker,
	}
}

// uploadTestDoc 把内容写入存储并登记为已上传文档
func (f *generationFixture) uploadTestDoc(t *testing.T, content string) string {
	t.Helper()

	info, err := f.store.Save(strings.NewReader(content), "notes.txt")
	require.NoError(t, err)

	err = f.manager.MarkAsUploaded(context.Background(), info.ID, "notes.txt", info.Path, info.Size)
	require.NoError(t, err)

	return info.ID
}

func TestStartGeneratesChapters(t *testing.T) {
	client := &scriptClient{responses: []string{
		testDetectResponse,
		testEnrichResponse,
		testEnrichResponse,
	}}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	err := f.svc.Start(ctx, docID)
	require.NoError(t, err)

	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	doc, err := f.repo.GetByID(docID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChapterCount)

	chapters, err := f.repo.GetChapters(docID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Basics", chapters[0].Title)
	assert.Equal(t, "Concurrency", chapters[1].Title)
	assert.Equal(t, 0, chapters[0].Position)
	assert.Equal(t, 1, chapters[1].Position)
	assert.Contains(t, chapters[0].Content, "statically typed")
	assert.Contains(t, chapters[1].Content, "Goroutines")
	assert.Less(t, chapters[0].Offset, chapters[1].Offset)

	// 内联扩充在标记就绪前完成
	assert.True(t, chapters[0].Enriched)
	assert.True(t, chapters[1].Enriched)

	progress, err := f.svc.Progress(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, progress.Step)
}

func TestStartAlreadyProcessing(t *testing.T) {
	client := &scriptClient{blockCh: make(chan struct{})}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))

	err := f.svc.Start(ctx, docID)
	assert.ErrorIs(t, err, models.ErrAlreadyProcessing)

	require.NoError(t, f.svc.Cancel(ctx, docID))
}

func TestStartMissingDocument(t *testing.T) {
	f := setupGeneration(t, &scriptClient{})

	err := f.svc.Start(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestStartDocumentTooShort(t *testing.T) {
	f := setupGeneration(t, &scriptClient{})
	ctx := context.Background()

	docID := f.uploadTestDoc(t, "too short")

	require.NoError(t, f.svc.Start(ctx, docID))

	waitForStatus(t, f.repo, docID, models.DocStatusError)

	doc, err := f.repo.GetByID(docID)
	require.NoError(t, err)
	assert.Contains(t, doc.Error, "too short")

	// 失败后进度记录被清掉
	_, found, err := f.tracker.Get(docID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStartDetectionFailure(t *testing.T) {
	client := &scriptClient{err: llm.NewLLMError(llm.ErrCodeUnavailable, "service unavailable")}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))

	waitForStatus(t, f.repo, docID, models.DocStatusError)

	doc, err := f.repo.GetByID(docID)
	require.NoError(t, err)
	assert.Contains(t, doc.Error, "failed to detect chapters")
}

func TestStartFallbackWholeDocument(t *testing.T) {
	// 模型返回的摘录在原文中都找不到
	client := &scriptClient{responses: []string{
		`{"chapters": [{"title": "Ghost", "snippet": "this text appears nowhere in the document"}]}`,
		testEnrichResponse,
	}}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))

	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	chapters, err := f.repo.GetChapters(docID)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Full Document", chapters[0].Title)
	assert.Equal(t, 0, chapters[0].Offset)
}

func TestEnrichFailureDoesNotFailDocument(t *testing.T) {
	// 探测成功，扩充的脚本用尽报错
	client := &scriptClient{responses: []string{testDetectResponse}}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))

	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	chapters, err := f.repo.GetChapters(docID)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.False(t, chapters[0].Enriched)
	assert.False(t, chapters[1].Enriched)
}

func TestCancelGeneration(t *testing.T) {
	client := &scriptClient{blockCh: make(chan struct{})}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))

	// 等流水线走到探测阶段
	assert.Eventually(t, func() bool {
		progress, found, err := f.tracker.Get(docID)
		return err == nil && found && progress.Step == models.StepDetecting
	}, time.Second, 10*time.Millisecond)

	err := f.svc.Cancel(ctx, docID)
	require.NoError(t, err)

	doc, err := f.repo.GetByID(docID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, doc.Status)
	assert.Equal(t, 0, doc.ChapterCount)
	assert.Empty(t, doc.Error)

	count, err := f.repo.CountChapters(docID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, found, err := f.tracker.Get(docID)
	require.NoError(t, err)
	assert.False(t, found)

	// 生成goroutine观察到取消后退出，不会把文档改回processing
	assert.Eventually(t, func() bool {
		return !f.svc.IsRunning(docID)
	}, time.Second, 10*time.Millisecond)

	doc, err = f.repo.GetByID(docID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, doc.Status)
}

func TestCancelNotProcessing(t *testing.T) {
	f := setupGeneration(t, &scriptClient{})
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	err := f.svc.Cancel(ctx, docID)
	assert.ErrorIs(t, err, models.ErrNotProcessing)
}

func TestCancelMissingDocument(t *testing.T) {
	f := setupGeneration(t, &scriptClient{})

	err := f.svc.Cancel(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestRestartReplacesChapters(t *testing.T) {
	client := &scriptClient{responses: []string{
		testDetectResponse,
		testEnrichResponse,
		testEnrichResponse,
		// 第二轮只识别出一个章节
		`{"chapters": [{"title": "Everything", "snippet": "Chapter One: Basics"}]}`,
		testEnrichResponse,
	}}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))
	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	require.NoError(t, f.svc.Start(ctx, docID))
	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	chapters, err := f.repo.GetChapters(docID)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	assert.Equal(t, "Everything", chapters[0].Title)
}

func TestProgressFallbackFromStatus(t *testing.T) {
	client := &scriptClient{responses: []string{
		testDetectResponse,
		testEnrichResponse,
		testEnrichResponse,
	}}
	f := setupGeneration(t, client)
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	t.Run("uploaded document reports unknown", func(t *testing.T) {
		progress, err := f.svc.Progress(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.StepUnknown, progress.Step)
	})

	t.Run("ready document reports done after record expires", func(t *testing.T) {
		require.NoError(t, f.svc.Start(ctx, docID))
		waitForStatus(t, f.repo, docID, models.DocStatusReady)

		// 模拟done记录到期被移除
		require.NoError(t, f.tracker.Remove(docID))

		progress, err := f.svc.Progress(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, models.StepDone, progress.Step)
	})
}

// captureQueue 只记录入队调用的假队列
type captureQueue struct {
	taskqueue.Queue
	enqueued []*taskqueue.ChapterEnrichPayload
}

func (q *captureQueue) Enqueue(ctx context.Context, taskType taskqueue.TaskType, docID string, payload interface{}) (string, error) {
	q.enqueued = append(q.enqueued, payload.(*taskqueue.ChapterEnrichPayload))
	return "task-1", nil
}

func TestStartWithEnrichQueue(t *testing.T) {
	client := &scriptClient{responses: []string{testDetectResponse}}
	queue := &captureQueue{}
	f := setupGeneration(t, client, WithEnrichQueue(queue))
	ctx := context.Background()

	docID := f.uploadTestDoc(t, testDocContent)

	require.NoError(t, f.svc.Start(ctx, docID))
	waitForStatus(t, f.repo, docID, models.DocStatusReady)

	require.Len(t, queue.enqueued, 2)
	assert.Equal(t, docID, queue.enqueued[0].DocumentID)
	assert.Equal(t, "Basics", queue.enqueued[0].Title)
	assert.Equal(t, "Concurrency", queue.enqueued[1].Title)

	// 走队列时章节落库后不做内联扩充
	assert.Equal(t, 1, client.calls)
}
