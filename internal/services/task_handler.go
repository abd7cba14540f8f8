package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/math-tutor/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// DocumentTaskHandler 材料任务处理器
// 实现taskqueue.Handler接口，由队列工作者调用执行入库和删除任务
type DocumentTaskHandler struct {
	documents *DocumentService // 材料服务
	queue     taskqueue.Queue  // 任务队列，用于回写任务结果
	logger    *logrus.Logger   // 日志记录器
}

// NewDocumentTaskHandler 创建材料任务处理器
func NewDocumentTaskHandler(documents *DocumentService, queue taskqueue.Queue, logger *logrus.Logger) *DocumentTaskHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &DocumentTaskHandler{
		documents: documents,
		queue:     queue,
		logger:    logger,
	}
}

// GetTaskTypes 返回支持的任务类型
func (h *DocumentTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{
		taskqueue.TaskDocumentIngest,
		taskqueue.TaskDocumentDelete,
	}
}

// ProcessTask 处理任务
func (h *DocumentTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) error {
	h.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   task.Type,
		"document_id": task.DocumentID,
	}).Info("Processing document task")

	switch task.Type {
	case taskqueue.TaskDocumentIngest:
		return h.processIngest(ctx, task)
	case taskqueue.TaskDocumentDelete:
		return h.processDelete(ctx, task)
	default:
		return fmt.Errorf("unsupported task type: %s", task.Type)
	}
}

// processIngest 执行材料入库任务
func (h *DocumentTaskHandler) processIngest(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.DocumentIngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("%w: missing document_id", taskqueue.ErrInvalidPayload)
	}

	result, err := h.documents.IngestDocument(ctx, payload.DocumentID)
	if err != nil {
		return err
	}

	taskResult := taskqueue.DocumentIngestResult{
		DocumentID:   result.DocumentID,
		ChunkCount:   result.ChunkCount,
		StoredCount:  result.StoredCount,
		FailedChunks: result.FailedChunks,
	}

	// 结果先写回任务记录，状态流转由工作者完成
	if h.queue != nil {
		if err := h.queue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusProcessing, taskResult, ""); err != nil {
			h.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to save task result")
		}
	}

	return nil
}

// processDelete 执行材料删除任务
func (h *DocumentTaskHandler) processDelete(ctx context.Context, task *taskqueue.Task) error {
	var payload taskqueue.DocumentDeletePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.DocumentID == "" {
		return fmt.Errorf("%w: missing document_id", taskqueue.ErrInvalidPayload)
	}

	return h.documents.DeleteDocument(ctx, payload.DocumentID)
}
