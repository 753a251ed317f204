package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
)

func seedReadyDocument(t *testing.T, repo repository.DocumentRepository) string {
	t.Helper()

	doc := &models.Document{
		ID:           "doc-1",
		FileName:     "course.md",
		Status:       models.DocStatusReady,
		ChapterCount: 2,
	}
	require.NoError(t, repo.Create(doc))

	chapters := []*models.Chapter{
		{DocumentID: "doc-1", Position: 0, Title: "Basics", Content: "basics content", Summary: "Covers the basics."},
		{DocumentID: "doc-1", Position: 1, Title: "Advanced", Content: "advanced content", Summary: "Covers advanced topics."},
	}
	require.NoError(t, repo.SaveChapters(chapters))
	return doc.ID
}

func TestGeneratePlan(t *testing.T) {
	repo := setupServiceRepo(t)
	docID := seedReadyDocument(t, repo)

	client := &scriptClient{responses: []string{
		`{"title": "Intro Course", "overview": "A two lesson course.", "lessons": [
			{"title": "Lesson 1", "objectives": ["understand basics"], "chapters": ["Basics"]},
			{"title": "Lesson 2", "objectives": ["master advanced topics"], "chapters": ["Advanced"]}
		]}`,
	}}
	svc := NewPlanService(repo, llm.NewStructuredClient(client, testLogger()), testLogger())

	plan, err := svc.GeneratePlan(context.Background(), docID)
	require.NoError(t, err)

	assert.Equal(t, "Intro Course", plan.Title)
	require.Len(t, plan.Lessons, 2)
	assert.Equal(t, "Lesson 1", plan.Lessons[0].Title)
	assert.Equal(t, []string{"Basics"}, plan.Lessons[0].Chapters)
}

func TestGeneratePlanDocumentNotReady(t *testing.T) {
	repo := setupServiceRepo(t)

	doc := &models.Document{
		ID:       "doc-1",
		FileName: "course.md",
		Status:   models.DocStatusUploaded,
	}
	require.NoError(t, repo.Create(doc))

	svc := NewPlanService(repo, llm.NewStructuredClient(&scriptClient{}, testLogger()), testLogger())

	_, err := svc.GeneratePlan(context.Background(), "doc-1")
	assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
}

func TestGeneratePlanNoChapters(t *testing.T) {
	repo := setupServiceRepo(t)

	doc := &models.Document{
		ID:       "doc-1",
		FileName: "course.md",
		Status:   models.DocStatusReady,
	}
	require.NoError(t, repo.Create(doc))

	svc := NewPlanService(repo, llm.NewStructuredClient(&scriptClient{}, testLogger()), testLogger())

	_, err := svc.GeneratePlan(context.Background(), "doc-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no chapters")
}

func TestGeneratePlanMissingDocument(t *testing.T) {
	repo := setupServiceRepo(t)
	svc := NewPlanService(repo, llm.NewStructuredClient(&scriptClient{}, testLogger()), testLogger())

	_, err := svc.GeneratePlan(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}
