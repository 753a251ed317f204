package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/course-gen-system/api"
	"github.com/fyerfyer/course-gen-system/api/handler"
	"github.com/fyerfyer/course-gen-system/api/middleware"
	appconfig "github.com/fyerfyer/course-gen-system/config"
	"github.com/fyerfyer/course-gen-system/internal/cache"
	"github.com/fyerfyer/course-gen-system/internal/database"
	"github.com/fyerfyer/course-gen-system/internal/llm"
	"github.com/fyerfyer/course-gen-system/internal/repository"
	"github.com/fyerfyer/course-gen-system/internal/segmenter"
	"github.com/fyerfyer/course-gen-system/internal/services"
	"github.com/fyerfyer/course-gen-system/pkg/storage"
	"github.com/fyerfyer/course-gen-system/pkg/taskqueue"
)

func main() {
	// 加载.env文件（不存在时静默跳过）
	_ = godotenv.Load()

	configFile := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "release", "Run mode (debug/release)")
	flag.Parse()

	cfg, err := appconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(*mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting course generation system...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 创建文件存储
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建缓存
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}
	structuredClient := llm.NewStructuredClient(llmClient, logger)

	// 初始化仓储和状态管理
	repo := repository.NewDocumentRepository()
	statusManager := services.NewDocumentStatusManager(repo, logger)

	// 章节切分器
	seg := segmenter.NewSegmenter(segmenterConfig(cfg), logger)

	// 进度跟踪器，done记录按配置的TTL保留
	progressTTL := time.Duration(cfg.Generate.ProgressTTL) * time.Second
	tracker := services.NewProgressTracker(cacheService, 24*time.Hour, logger)

	// 章节扩充器
	enricher := services.NewChapterEnricher(repo, structuredClient, logger)

	// 初始化任务队列和工作者（如果启用）
	var queue taskqueue.Queue
	var worker taskqueue.Worker
	if cfg.Queue.Enable {
		queue, worker, err = setupTaskQueue(cfg, enricher, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()

		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task queue worker: %v", err)
		}
		defer worker.Stop()

		logger.Info("Task queue initialized successfully")
	}

	// 组装生成服务
	generationOptions := []services.GenerationOption{
		services.WithGenerationLogger(logger),
		services.WithEnricher(enricher),
		services.WithProgressTTL(progressTTL),
	}
	if queue != nil && cfg.Generate.AsyncEnrich {
		generationOptions = append(generationOptions, services.WithEnrichQueue(queue))
		logger.Info("Chapter enrichment will use async task queue")
	}

	generationService := services.NewGenerationService(
		fileStorage, repo, statusManager, seg, structuredClient, tracker,
		generationOptions...,
	)

	documentOptions := []services.DocumentOption{
		services.WithDocumentLogger(logger),
		services.WithDocumentProgress(tracker),
	}
	if queue != nil {
		documentOptions = append(documentOptions, services.WithDocumentTaskQueue(queue))
	}
	documentService := services.NewDocumentService(fileStorage, repo, statusManager, documentOptions...)

	planService := services.NewPlanService(repo, structuredClient, logger)

	// 初始化API处理器和路由
	docHandler := handler.NewDocumentHandler(documentService)
	genHandler := handler.NewGenerationHandler(generationService, documentService, planService)
	r := api.SetupRouter(docHandler, genHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 设置日志系统
// 配置了日志文件时使用lumberjack做轮转
func setupLogger(cfg appconfig.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupDatabase 设置数据库
func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) error {
	dbConfig := &database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}
	return database.Setup(dbConfig, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	case "local", "":
		if err := os.MkdirAll(cfg.Storage.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %v", err)
		}
		return storage.NewLocalStorage(storage.LocalConfig{
			Path: cfg.Storage.Path,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

// setupCache 设置缓存服务
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.Cache.Type,
		DefaultTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	}

	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg *appconfig.Config) (llm.Client, error) {
	apiKey := cfg.LLM.APIKey
	if key := os.Getenv("TONGYI_API_KEY"); key != "" {
		apiKey = key
	}
	if apiKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	options := []llm.Option{
		llm.WithAPIKey(apiKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithTimeout(time.Duration(cfg.LLM.Timeout) * time.Second),
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
	}
	if cfg.LLM.Endpoint != "" {
		options = append(options, llm.WithBaseURL(cfg.LLM.Endpoint))
	}

	return llm.NewClient(cfg.LLM.Provider, options...)
}

// setupTaskQueue 设置任务队列和章节扩充工作者
func setupTaskQueue(cfg *appconfig.Config, enricher *services.ChapterEnricher, logger *logrus.Logger) (taskqueue.Queue, taskqueue.Worker, error) {
	queueConfig := &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"redis_addr":  cfg.Queue.RedisAddr,
		"concurrency": cfg.Queue.Concurrency,
	}).Info("Setting up task queue")

	queue, err := taskqueue.NewQueue(cfg.Queue.Type, queueConfig)
	if err != nil {
		return nil, nil, err
	}

	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		queue.Close()
		return nil, nil, fmt.Errorf("queue type %s does not support workers", cfg.Queue.Type)
	}

	worker := taskqueue.NewRedisWorker(redisQueue, queueConfig)
	worker.RegisterHandler(taskqueue.TaskChapterEnrich, enricher)

	return queue, worker, nil
}

// segmenterConfig 从应用配置构建切分器配置
func segmenterConfig(cfg *appconfig.Config) segmenter.Config {
	segCfg := segmenter.DefaultConfig()
	if cfg.Segment.MinBoundaryGap > 0 {
		segCfg.MinBoundaryGap = cfg.Segment.MinBoundaryGap
	}
	if cfg.Segment.MinSegmentLength > 0 {
		segCfg.MinSegmentLength = cfg.Segment.MinSegmentLength
	}
	if cfg.Segment.MinPrefixLength > 0 {
		segCfg.MinPrefixLength = cfg.Segment.MinPrefixLength
	}
	if cfg.Segment.PrefixStep > 0 {
		segCfg.PrefixStep = cfg.Segment.PrefixStep
	}
	if cfg.Segment.LocateWindow > 0 {
		segCfg.LocateWindow = cfg.Segment.LocateWindow
	}
	if cfg.Segment.MinDocumentLength > 0 {
		segCfg.MinDocumentLength = cfg.Segment.MinDocumentLength
	}
	if cfg.Segment.FallbackTitle != "" {
		segCfg.FallbackTitle = cfg.Segment.FallbackTitle
	}
	return segCfg
}
