package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/math-tutor/api"
	"github.com/fyerfyer/math-tutor/api/handler"
	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/fyerfyer/math-tutor/config"
	"github.com/fyerfyer/math-tutor/internal/cache"
	"github.com/fyerfyer/math-tutor/internal/compute"
	"github.com/fyerfyer/math-tutor/internal/database"
	"github.com/fyerfyer/math-tutor/internal/document"
	"github.com/fyerfyer/math-tutor/internal/embedding"
	"github.com/fyerfyer/math-tutor/internal/llm"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/repository"
	"github.com/fyerfyer/math-tutor/internal/services"
	"github.com/fyerfyer/math-tutor/internal/tokenizer"
	"github.com/fyerfyer/math-tutor/internal/vectordb"
	"github.com/fyerfyer/math-tutor/pkg/storage"
	"github.com/fyerfyer/math-tutor/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	mode := flag.String("mode", "release", "Run mode (debug/release)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(*mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting math tutor service...")

	// 初始化数据库
	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxLifetime:  time.Hour,
	}, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 文件存储
	fileStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 向量数据库
	vectorDB, err := setupVectorDB(cfg.VectorDB, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	// 分词器和分块器
	tk, err := tokenizer.New("tiktoken", tokenizer.Config{Model: cfg.LLM.Model})
	if err != nil {
		logger.Fatalf("Failed to initialize tokenizer: %v", err)
	}

	chunker := document.NewChunker(tk, document.ChunkerConfig{
		ChunkSize: cfg.Document.ChunkSize,
		Overlap:   cfg.Document.ChunkOverlap,
	})

	// 嵌入客户端
	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 大模型客户端
	llmClient, err := setupLLM(cfg.LLM)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 问答缓存
	qaCache, err := setupCache(cfg.Cache)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 任务队列（可选）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = taskqueue.NewQueue(cfg.Queue.Type, &taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			RetryLimit:    cfg.Queue.RetryLimit,
			RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
			Queues:        taskqueue.DefaultConfig().Queues,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 业务服务
	docRepo := repository.NewDocumentRepository()
	chatRepo := repository.NewChatRepository()

	documentOptions := []services.DocumentOption{
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	}
	if queue != nil {
		documentOptions = append(documentOptions, services.WithTaskQueue(queue))
		logger.Info("Document ingestion will use async task queue")
	}

	documentService := services.NewDocumentService(
		fileStorage,
		chunker,
		embedder,
		vectorDB,
		docRepo,
		documentOptions...,
	)

	retrievalService := services.NewRetrievalService(
		embedder,
		vectorDB,
		services.WithTopK(cfg.Retrieval.TopK),
		services.WithRetrievalLogger(logger),
	)

	sessionManager := services.NewSessionManager(chatRepo, logger)

	tutorService := services.NewTutorService(
		retrievalService,
		llmClient,
		sessionManager,
		qaCache,
		services.WithCacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		services.WithAnswerMaxTokens(cfg.LLM.MaxTokens),
		services.WithTutorLogger(logger),
	)

	quizService := services.NewQuizService(llmClient, logger)

	// 队列工作者
	var worker taskqueue.Worker
	if queue != nil {
		redisQueue, ok := queue.(*taskqueue.RedisQueue)
		if !ok {
			logger.Fatalf("Async ingestion requires a redis task queue")
		}

		worker = taskqueue.NewRedisWorker(redisQueue, nil)
		taskHandler := services.NewDocumentTaskHandler(documentService, queue, logger)
		for _, taskType := range taskHandler.GetTaskTypes() {
			worker.RegisterHandler(taskType, taskHandler)
		}

		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task queue worker: %v", err)
		}
		defer worker.Stop()
		logger.Info("Task queue worker started")
	}

	// API处理器
	handlers := api.Handlers{
		Document: handler.NewDocumentHandler(documentService),
		Tutor:    handler.NewTutorHandler(tutorService, quizService),
		Session:  handler.NewSessionHandler(sessionManager),
	}

	if cfg.Compute.Enable {
		computeClient := compute.NewMathClient(compute.DefaultConfig().
			WithBaseURL(cfg.Compute.BaseURL).
			WithTimeout(cfg.Compute.Timeout).
			WithRetry(cfg.Compute.MaxRetries, cfg.Compute.RetryDelay))
		handlers.Compute = handler.NewComputeHandler(computeClient)
	}

	if queue != nil {
		handlers.Task = handler.NewTaskHandler(queue)
	}

	router := api.SetupRouter(handlers)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号，优雅关闭
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
// 配置了日志文件时使用lumberjack做滚动切割
func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupStorage 设置课程材料文件存储
func setupStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
	default:
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %v", err)
		}
		return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Path})
	}
}

// setupVectorDB 设置向量数据库
// FAISS初始化失败时回退到内存实现
func setupVectorDB(cfg config.VectorDBConfig, logger *logrus.Logger) (vectordb.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector database directory: %v", err)
	}

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.Type,
		Path:              cfg.Path,
		Collection:        cfg.Collection,
		Dimension:         cfg.Dim,
		DistanceType:      vectordb.DistanceType(cfg.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		logger.Warnf("Failed to initialize %s vector database: %v, falling back to in-memory", cfg.Type, err)

		fallback, err := vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Collection:   cfg.Collection,
			Dimension:    cfg.Dim,
			DistanceType: vectordb.DistanceType(cfg.Distance),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		return fallback, nil
	}

	return repo, nil
}

// setupEmbedding 设置嵌入客户端
func setupEmbedding(cfg config.EmbedConfig) (embedding.Client, error) {
	opts := []embedding.Option{
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
	}

	if cfg.Provider == "azure" {
		opts = append(opts, embedding.WithAzure(cfg.AzureEndpoint, cfg.APIVersion))
	} else if cfg.Endpoint != "" {
		opts = append(opts, embedding.WithBaseURL(cfg.Endpoint))
	}

	return embedding.NewClient(cfg.Provider, opts...)
}

// setupLLM 设置大模型客户端
func setupLLM(cfg config.LLMConfig) (llm.Client, error) {
	opts := []llm.Option{
		llm.WithAPIKey(cfg.APIKey),
		llm.WithModel(cfg.Model),
		llm.WithMaxTokens(cfg.MaxTokens),
		llm.WithTemperature(cfg.Temperature),
	}

	if cfg.Provider == "azure" {
		opts = append(opts, llm.WithAzure(cfg.AzureEndpoint, cfg.APIVersion))
	} else if cfg.Endpoint != "" {
		opts = append(opts, llm.WithBaseURL(cfg.Endpoint))
	}

	return llm.NewClient(cfg.Provider, opts...)
}

// setupCache 设置问答缓存
func setupCache(cfg config.CacheConfig) (cache.Cache, error) {
	if !cfg.Enable {
		return nil, nil
	}

	return cache.NewCache(cache.Config{
		Type:          cfg.Type,
		RedisAddr:     cfg.Address,
		RedisPassword: cfg.Password,
		RedisDB:       cfg.DB,
		DefaultTTL:    time.Duration(cfg.TTL) * time.Second,
	})
}
