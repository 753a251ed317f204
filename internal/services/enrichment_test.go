package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

func seedChapter(t *testing.T, repo repository.DocumentRepository) *models.Chapter {
	t.Helper()

	doc := &models.Document{
		ID:       "doc-1",
		FileName: "notes.md",
		Status:   models.DocStatusProcessing,
	}
	require.NoError(t, repo.Create(doc))

	chapter := &models.Chapter{
		DocumentID: "doc-1",
		Position:   0,
		Title:      "Introduction",
		Content:    "This chapter introduces the basic concepts of the course.",
	}
	require.NoError(t, repo.SaveChapter(chapter))
	return chapter
}

func TestEnrichChapter(t *testing.T) {
	repo := setupServiceRepo(t)
	chapter := seedChapter(t, repo)

	client := &scriptClient{responses: []string{
		`{"summary": "An introduction to the course.", "key_points": ["concept one", "concept two", "concept three"]}`,
	}}
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	err := enricher.EnrichChapter(context.Background(), chapter)
	require.NoError(t, err)

	saved, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.True(t, saved.Enriched)
	assert.Equal(t, "An introduction to the course.", saved.Summary)

	var points []string
	require.NoError(t, json.Unmarshal(saved.KeyPoints, &points))
	assert.Len(t, points, 3)
}

func TestEnrichChapterEmptyKeyPoints(t *testing.T) {
	repo := setupServiceRepo(t)
	chapter := seedChapter(t, repo)

	client := &scriptClient{responses: []string{
		`{"summary": "A short chapter."}`,
	}}
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	err := enricher.EnrichChapter(context.Background(), chapter)
	require.NoError(t, err)

	saved, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)

	// 缺失的要点列表存为空数组而不是null
	var points []string
	require.NoError(t, json.Unmarshal(saved.KeyPoints, &points))
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestEnrichChapterClientError(t *testing.T) {
	repo := setupServiceRepo(t)
	chapter := seedChapter(t, repo)

	client := &scriptClient{err: llm.NewLLMError(llm.ErrCodeUnavailable, "service unavailable")}
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	err := enricher.EnrichChapter(context.Background(), chapter)
	assert.Error(t, err)

	saved, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.False(t, saved.Enriched)
}

func TestProcessEnrichTask(t *testing.T) {
	repo := setupServiceRepo(t)
	chapter := seedChapter(t, repo)

	client := &scriptClient{responses: []string{
		`{"summary": "An introduction.", "key_points": ["one", "two", "three"]}`,
	}}
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	payload, err := taskqueue.MarshalPayload(&taskqueue.ChapterEnrichPayload{
		DocumentID: "doc-1",
		ChapterID:  chapter.ID,
		Title:      chapter.Title,
		Content:    chapter.Content,
	})
	require.NoError(t, err)

	task := &taskqueue.Task{
		ID:      "task-1",
		Type:    taskqueue.TaskChapterEnrich,
		Payload: payload,
	}

	err = enricher.ProcessTask(context.Background(), task)
	require.NoError(t, err)

	saved, err := repo.GetChapter(chapter.ID)
	require.NoError(t, err)
	assert.True(t, saved.Enriched)
}

func TestProcessEnrichTaskMissingChapter(t *testing.T) {
	repo := setupServiceRepo(t)

	client := &scriptClient{}
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	payload, err := taskqueue.MarshalPayload(&taskqueue.ChapterEnrichPayload{
		DocumentID: "doc-1",
		ChapterID:  999,
	})
	require.NoError(t, err)

	task := &taskqueue.Task{
		ID:      "task-1",
		Type:    taskqueue.TaskChapterEnrich,
		Payload: payload,
	}

	// 章节已被删除的任务直接完成，不触发模型调用
	err = enricher.ProcessTask(context.Background(), task)
	assert.NoError(t, err)
	assert.Equal(t, 0, client.calls)
}

func TestProcessEnrichTaskWrongType(t *testing.T) {
	repo := setupServiceRepo(t)
	enricher := NewChapterEnricher(repo, llm.NewStructuredClient(&scriptClient{}, testLogger()), testLogger())

	task := &taskqueue.Task{
		ID:   "task-1",
		Type: taskqueue.TaskType("unknown_type"),
	}

	err := enricher.ProcessTask(context.Background(), task)
	assert.Error(t, err)
}

func TestEnricherTaskTypes(t *testing.T) {
	enricher := NewChapterEnricher(nil, nil, testLogger())
	assert.Equal(t, []taskqueue.TaskType{taskqueue.TaskChapterEnrich}, enricher.GetTaskTypes())
}
