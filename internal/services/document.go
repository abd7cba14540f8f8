package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyerfyer/math-tutor/internal/document"
	"github.com/fyerfyer/math-tutor/internal/embedding"
	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/internal/repository"
	"github.com/fyerfyer/math-tutor/internal/vectordb"
	"github.com/fyerfyer/math-tutor/pkg/storage"
	"github.com/fyerfyer/math-tutor/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IngestResult 材料入库结果
// 记录分块写入向量库的逐条成败
type IngestResult struct {
	DocumentID   string   `json:"document_id"`   // 材料ID
	ChunkCount   int      `json:"chunk_count"`   // 分块总数
	StoredCount  int      `json:"stored_count"`  // 成功写入向量库的分块数
	FailedChunks []string `json:"failed_chunks"` // 写入失败的分块ID
}

// DocumentService 课程材料服务
// 负责协调材料解析、分块、向量化和入库
type DocumentService struct {
	storage      storage.Storage               // 文件存储服务
	chunker      *document.Chunker             // 文本分块器
	embedder     embedding.Client              // 嵌入模型客户端
	batcher      *embedding.BatchProcessor     // 批量嵌入处理器
	vectorDB     vectordb.Repository           // 向量数据库
	repo         repository.DocumentRepository // 材料元数据存储
	taskQueue    taskqueue.Queue               // 任务队列
	asyncEnabled bool                          // 是否启用异步处理
	batchSize    int                           // 嵌入批处理大小
	maxWorkers   int                           // 嵌入并行协程数
	timeout      time.Duration                 // 处理超时时间
	logger       *logrus.Logger                // 日志记录器
}

// DocumentOption 材料服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的材料服务
func NewDocumentService(
	store storage.Storage,
	chunker *document.Chunker,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	repo repository.DocumentRepository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:    store,
		chunker:    chunker,
		embedder:   embedder,
		vectorDB:   vectorDB,
		repo:       repo,
		batchSize:  16,              // 默认批处理大小
		maxWorkers: 4,               // 默认并行协程数
		timeout:    time.Minute * 5, // 默认超时时间
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.batcher = embedding.NewBatchProcessor(srv.embedder, srv.batchSize, srv.maxWorkers)

	return srv
}

// WithBatchSize 设置嵌入批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxWorkers 设置嵌入并行协程数
func WithMaxWorkers(workers int) DocumentOption {
	return func(s *DocumentService) {
		if workers > 0 {
			s.maxWorkers = workers
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTaskQueue 设置任务队列并启用异步处理
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// UploadDocument 保存上传的材料文件并创建元数据记录
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if fileType != "pdf" && fileType != "md" && fileType != "markdown" && fileType != "txt" {
		return nil, fmt.Errorf("%w: .%s", models.ErrUnsupportedFormat, fileType)
	}

	info, err := s.storage.Save(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc := &models.Document{
		ID:       uuid.New().String(),
		FileName: filename,
		FileType: fileType,
		FilePath: info.Path,
		FileSize: info.Size,
		Status:   models.DocStatusUploaded,
	}

	if err := s.repo.Create(doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"file_name":   filename,
		"file_size":   info.Size,
	}).Info("Document uploaded successfully")

	return doc, nil
}

// ProcessDocument 处理材料（解析、分块、向量化、入库）
// 启用异步处理时任务入队后立即返回，结果通过任务状态查询
func (s *DocumentService) ProcessDocument(ctx context.Context, documentID string) (*IngestResult, error) {
	if documentID == "" {
		return nil, errors.New("documentID cannot be empty")
	}

	doc, err := s.repo.GetByID(documentID)
	if err != nil {
		return nil, err
	}

	if s.asyncEnabled && s.taskQueue != nil {
		return nil, s.enqueueIngest(ctx, doc)
	}

	return s.IngestDocument(ctx, documentID)
}

// enqueueIngest 将材料入库任务加入队列
func (s *DocumentService) enqueueIngest(ctx context.Context, doc *models.Document) error {
	if err := s.repo.UpdateStatus(doc.ID, models.DocStatusProcessing, ""); err != nil {
		s.logger.WithError(err).Warn("Failed to mark document as processing")
	}

	payload := taskqueue.DocumentIngestPayload{
		DocumentID: doc.ID,
		FilePath:   doc.FilePath,
		FileName:   doc.FileName,
		FileType:   doc.FileType,
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentIngest, doc.ID, payload)
	if err != nil {
		s.failDocument(doc.ID, fmt.Sprintf("failed to enqueue ingest task: %v", err))
		return fmt.Errorf("failed to enqueue ingest task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"task_id":     taskID,
	}).Info("Document ingest task enqueued")

	return nil
}

// IngestDocument 同步执行材料入库流程
func (s *DocumentService) IngestDocument(ctx context.Context, documentID string) (*IngestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc, err := s.repo.GetByID(documentID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": documentID,
		"file_name":   doc.FileName,
	}).Info("Starting document ingestion")

	if err := s.repo.UpdateStatus(documentID, models.DocStatusProcessing, ""); err != nil {
		s.logger.WithError(err).Warn("Failed to mark document as processing")
	}

	// 解析材料内容
	content, err := s.parseDocument(doc)
	if err != nil {
		s.failDocument(documentID, fmt.Sprintf("failed to parse document: %v", err))
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	// 文本分块
	chunks, err := s.chunker.Chunk(content, doc.FileName)
	if err != nil {
		s.failDocument(documentID, fmt.Sprintf("failed to chunk content: %v", err))
		return nil, fmt.Errorf("failed to chunk content: %w", err)
	}

	if err := s.repo.UpdateProgress(documentID, 20); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	// 空材料视为处理完成
	if len(chunks) == 0 {
		if err := s.markCompleted(documentID, 0, nil); err != nil {
			return nil, err
		}
		return &IngestResult{DocumentID: documentID}, nil
	}

	// 记录分块，用于断点续传和失败重试
	dbChunks := make([]*models.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		dbChunks[i] = &models.DocumentChunk{
			DocumentID: documentID,
			ChunkID:    chunk.ID,
			Position:   chunk.Index,
			Text:       chunk.Text,
			TokenCount: chunk.TokenCount,
		}
	}
	if err := s.repo.SaveChunks(dbChunks); err != nil {
		s.logger.WithError(err).Error("Failed to save chunk records")
		// 分块记录仅用于跟踪，不中断入库
	}

	result, err := s.embedAndStore(ctx, doc, chunks)
	if err != nil {
		s.failDocument(documentID, err.Error())
		return nil, err
	}

	if err := s.markCompleted(documentID, result.ChunkCount, result.FailedChunks); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":  documentID,
		"chunk_count":  result.ChunkCount,
		"stored_count": result.StoredCount,
		"failed_count": len(result.FailedChunks),
	}).Info("Document ingestion completed")

	return result, nil
}

// parseDocument 从存储读取并解析材料内容
func (s *DocumentService) parseDocument(doc *models.Document) (string, error) {
	parser, err := document.ParserFactory(doc.FileName)
	if err != nil {
		return "", err
	}

	// 本地存储可以直接按路径解析，避免一次拷贝
	if local, ok := s.storage.(*storage.LocalStorage); ok && doc.FilePath != "" {
		if _, statErr := local.GetPath(storageID(doc.FilePath)); statErr == nil {
			return parser.Parse(doc.FilePath)
		}
	}

	reader, err := s.storage.Get(storageID(doc.FilePath))
	if err != nil {
		return "", fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	return parser.ParseReader(reader, doc.FileName)
}

// embedAndStore 向量化分块并写入向量库
// 单条失败不中断整体流程，失败的分块ID逐条上报
func (s *DocumentService) embedAndStore(ctx context.Context, doc *models.Document, chunks []document.Chunk) (*IngestResult, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	batchResult, err := s.batcher.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	result := &IngestResult{
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
	}

	// 嵌入失败的分块直接记为失败
	embedFailed := make(map[int]string)
	for _, failure := range batchResult.Failed {
		embedFailed[failure.Index] = failure.Err.Error()
	}

	var records []vectordb.ChunkRecord
	for i, chunk := range chunks {
		if reason, failed := embedFailed[i]; failed {
			result.FailedChunks = append(result.FailedChunks, chunk.ID)
			s.markChunkFailed(doc.ID, chunk.ID, reason)
			continue
		}

		records = append(records, vectordb.ChunkRecord{
			ID:         chunk.ID,
			Source:     chunk.Source,
			ChunkIndex: chunk.Index,
			Text:       chunk.Text,
			TokenCount: chunk.TokenCount,
			Vector:     batchResult.Vectors[i],
			CreatedAt:  time.Now(),
			Metadata: map[string]interface{}{
				"document_id": doc.ID,
			},
		})
	}

	if err := s.repo.UpdateProgress(doc.ID, 70); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}

	if len(records) > 0 {
		addResult, err := s.vectorDB.Add(records)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreWriteFailure, err)
		}

		for _, id := range addResult.Succeeded {
			result.StoredCount++
			s.markChunkStored(doc.ID, id)
		}
		for _, failure := range addResult.Failed {
			result.FailedChunks = append(result.FailedChunks, failure.ChunkID)
			s.markChunkFailed(doc.ID, failure.ChunkID, failure.Reason)
		}
	}

	return result, nil
}

// RetryFailedChunks 重试材料中尚未写入向量库的分块
// 依赖分块记录实现断点续传，已成功的分块不会重复嵌入
func (s *DocumentService) RetryFailedChunks(ctx context.Context, documentID string) (*IngestResult, error) {
	doc, err := s.repo.GetByID(documentID)
	if err != nil {
		return nil, err
	}

	pending, err := s.repo.GetPendingChunks(documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending chunks: %w", err)
	}

	if len(pending) == 0 {
		return &IngestResult{DocumentID: documentID}, nil
	}

	chunks := make([]document.Chunk, len(pending))
	for i, record := range pending {
		chunks[i] = document.Chunk{
			ID:         record.ChunkID,
			Text:       record.Text,
			Source:     doc.FileName,
			Index:      record.Position,
			TokenCount: record.TokenCount,
		}
	}

	result, err := s.embedAndStore(ctx, doc, chunks)
	if err != nil {
		return nil, err
	}

	if len(result.FailedChunks) == 0 {
		if err := s.repo.UpdateStatus(documentID, models.DocStatusCompleted, ""); err != nil {
			s.logger.WithError(err).Warn("Failed to update document status after retry")
		}
	}

	return result, nil
}

// DeleteDocument 删除材料及其相关数据
func (s *DocumentService) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := s.repo.GetByID(documentID)
	if err != nil {
		return err
	}

	s.logger.WithField("document_id", documentID).Info("Deleting document")

	// 1. 从向量库中删除该材料的所有分块
	if err := s.vectorDB.DeleteBySource(doc.FileName); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 2. 从存储中删除文件
	if err := s.storage.Delete(storageID(doc.FilePath)); err != nil {
		// 文件可能已被删除，记录错误但不中断流程
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 3. 删除元数据和分块记录
	if err := s.repo.Delete(documentID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	// 4. 清理相关任务
	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, documentID)
		if err == nil {
			for _, task := range tasks {
				_ = s.taskQueue.DeleteTask(ctx, task.ID)
			}
		}
	}

	s.logger.WithField("document_id", documentID).Info("Document deleted successfully")
	return nil
}

// GetDocument 获取材料记录
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return s.repo.GetByID(documentID)
}

// ListDocuments 获取材料列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return s.repo.List(offset, limit, filters)
}

// KnowledgeStats 返回知识库的即时统计信息
func (s *DocumentService) KnowledgeStats(ctx context.Context) (vectordb.Stats, error) {
	return s.vectorDB.Stats()
}

// ResetKnowledgeBase 清空知识库，销毁并重建空集合
func (s *DocumentService) ResetKnowledgeBase(ctx context.Context) error {
	s.logger.Warn("Resetting knowledge base")
	return s.vectorDB.Reset()
}

// markCompleted 更新材料状态为完成并记录分块统计
func (s *DocumentService) markCompleted(documentID string, chunkCount int, failedChunks []string) error {
	doc, err := s.repo.GetByID(documentID)
	if err != nil {
		return err
	}

	doc.Status = models.DocStatusCompleted
	doc.Progress = 100
	doc.ChunkCount = chunkCount
	now := time.Now()
	doc.ProcessedAt = &now

	if len(failedChunks) > 0 {
		if err := doc.SetFailedChunks(failedChunks); err != nil {
			s.logger.WithError(err).Warn("Failed to record failed chunks")
		}
	}

	return s.repo.Update(doc)
}

// markChunkStored 更新分块的入库标记
func (s *DocumentService) markChunkStored(documentID string, chunkID string) {
	if err := s.repo.MarkChunkStored(documentID, chunkID); err != nil {
		s.logger.WithError(err).WithField("chunk_id", chunkID).Warn("Failed to mark chunk as stored")
	}
}

// markChunkFailed 记录分块的失败原因
func (s *DocumentService) markChunkFailed(documentID string, chunkID string, reason string) {
	if err := s.repo.MarkChunkFailed(documentID, chunkID, reason); err != nil {
		s.logger.WithError(err).WithField("chunk_id", chunkID).Warn("Failed to mark chunk as failed")
	}
}

// failDocument 将材料标记为失败状态
func (s *DocumentService) failDocument(documentID string, errorMsg string) {
	if err := s.repo.UpdateStatus(documentID, models.DocStatusFailed, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"document_id": documentID,
			"error":       err,
		}).Error("Failed to mark document as failed")
	}
}

// storageID 从存储路径提取文件ID
func storageID(filePath string) string {
	base := filepath.Base(filePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
