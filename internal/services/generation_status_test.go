package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/course-gen-system/internal/models"
)

func TestMarkAsUploaded(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	err := manager.MarkAsUploaded(ctx, "doc-1", "lecture.pdf", "/data/doc-1", 2048)
	require.NoError(t, err)

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, doc.Status)
	assert.Equal(t, "lecture.pdf", doc.FileName)
	assert.Equal(t, "pdf", doc.FileType)
	assert.Equal(t, int64(2048), doc.FileSize)
}

func TestMarkAsProcessing(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "notes.md", "/data/doc-1", 100))

	t.Run("from uploaded", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, "doc-1")
		require.NoError(t, err)

		status, err := manager.GetStatus(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusProcessing, status)
	})

	t.Run("concurrent start rejected", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, "doc-1")
		assert.ErrorIs(t, err, models.ErrAlreadyProcessing)
	})

	t.Run("restart from ready", func(t *testing.T) {
		require.NoError(t, manager.MarkAsReady(ctx, "doc-1", 3))

		err := manager.MarkAsProcessing(ctx, "doc-1")
		assert.NoError(t, err)
	})

	t.Run("restart from error", func(t *testing.T) {
		require.NoError(t, manager.MarkAsFailed(ctx, "doc-1", "llm unavailable"))

		err := manager.MarkAsProcessing(ctx, "doc-1")
		assert.NoError(t, err)
	})

	t.Run("missing document", func(t *testing.T) {
		err := manager.MarkAsProcessing(ctx, "nonexistent")
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	})
}

func TestMarkAsReady(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "notes.txt", "/data/doc-1", 100))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))

	err := manager.MarkAsReady(ctx, "doc-1", 5)
	require.NoError(t, err)

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusReady, doc.Status)
	assert.Equal(t, 5, doc.ChapterCount)
	assert.Empty(t, doc.Error)
	assert.NotNil(t, doc.ProcessedAt)
}

func TestMarkAsReadyInvalidTransition(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "notes.txt", "/data/doc-1", 100))

	// uploaded不能直接到ready
	err := manager.MarkAsReady(ctx, "doc-1", 3)
	assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
}

func TestMarkAsFailed(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "notes.txt", "/data/doc-1", 100))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))

	err := manager.MarkAsFailed(ctx, "doc-1", "document content too short")
	require.NoError(t, err)

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusError, doc.Status)
	assert.Equal(t, "document content too short", doc.Error)
}

func TestRevertToUploaded(t *testing.T) {
	repo := setupServiceRepo(t)
	manager := NewDocumentStatusManager(repo, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.MarkAsUploaded(ctx, "doc-1", "notes.txt", "/data/doc-1", 100))
	require.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))

	err := manager.RevertToUploaded(ctx, "doc-1")
	require.NoError(t, err)

	doc, err := manager.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusUploaded, doc.Status)
	assert.Equal(t, 0, doc.ChapterCount)
	assert.Empty(t, doc.Error)
	assert.Nil(t, doc.ProcessedAt)

	// 回退后可以重新启动生成
	assert.NoError(t, manager.MarkAsProcessing(ctx, "doc-1"))
}

func TestValidateStateTransition(t *testing.T) {
	manager := NewDocumentStatusManager(nil, testLogger())

	tests := []struct {
		name  string
		from  models.DocumentStatus
		to    models.DocumentStatus
		valid bool
	}{
		{"uploaded to processing", models.DocStatusUploaded, models.DocStatusProcessing, true},
		{"uploaded to ready", models.DocStatusUploaded, models.DocStatusReady, false},
		{"processing to ready", models.DocStatusProcessing, models.DocStatusReady, true},
		{"processing to error", models.DocStatusProcessing, models.DocStatusError, true},
		{"processing to uploaded", models.DocStatusProcessing, models.DocStatusUploaded, true},
		{"ready to processing", models.DocStatusReady, models.DocStatusProcessing, true},
		{"error to processing", models.DocStatusError, models.DocStatusProcessing, true},
		{"ready to error", models.DocStatusReady, models.DocStatusError, false},
		{"error to ready", models.DocStatusError, models.DocStatusReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.ValidateStateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidDocumentStatus)
			}
		})
	}
}
