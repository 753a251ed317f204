package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/models"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/pkg/storage"
)

// testLogger 创建静音的测试日志记录器
func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// setupServiceRepo 创建基于内存数据库的文档仓储
func setupServiceRepo(t *testing.T) repository.DocumentRepository {
	dbName := fmt.Sprintf("file:svcdb_%d?mode=memory", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	err = db.AutoMigrate(&models.Document{}, &models.Chapter{})
	require.NoError(t, err, "Failed to run migrations")

	return repository.NewDocumentRepositoryWithDB(db)
}

// memStorage 内存文件存储，测试用
type memStorage struct {
	mu     sync.Mutex
	files  map[string][]byte
	names  map[string]string
	nextID int
}

func newMemStorage() *memStorage {
	return &memStorage{
		files: make(map[string][]byte),
		names: make(map[string]string),
	}
}

func (s *memStorage) Save(reader io.Reader, filename string) (storage.FileInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.FileInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("doc-%d", s.nextID)
	s.files[id] = data
	s.names[id] = filename

	return storage.FileInfo{
		ID:   id,
		Name: filename,
		Size: int64(len(data)),
		Path: "/mem/" + id,
	}, nil
}

func (s *memStorage) Get(id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, id)
	delete(s.names, id)
	return nil
}

func (s *memStorage) List() ([]storage.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]storage.FileInfo, 0, len(s.files))
	for id, data := range s.files {
		infos = append(infos, storage.FileInfo{
			ID:   id,
			Name: s.names[id],
			Size: int64(len(data)),
		})
	}
	return infos, nil
}

func (s *memStorage) Exists(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.files[id]
	return ok, nil
}

// scriptClient 按脚本返回响应的模拟大模型客户端
// responses按调用顺序依次弹出；blockCh非空时Chat会阻塞直到关闭或上下文取消
type scriptClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	blockCh   chan struct{}
}

func (c *scriptClient) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return c.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

func (c *scriptClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.GenerateOption) (*llm.Response, error) {
	if c.blockCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.blockCh:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("script exhausted after %d calls", c.calls)
	}

	text := c.responses[0]
	c.responses = c.responses[1:]
	return &llm.Response{Text: text, ModelName: "mock"}, nil
}

func (c *scriptClient) Name() string {
	return "script"
}

// waitForStatus 轮询等待文档到达指定状态
func waitForStatus(t *testing.T, repo repository.DocumentRepository, docID string, want models.DocumentStatus) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := repo.GetByID(docID)
		require.NoError(t, err)
		if doc.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	doc, _ := repo.GetByID(docID)
	t.Fatalf("document %s did not reach status %s, current: %s, error: %s",
		docID, want, doc.Status, doc.Error)
}
