package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/math-tutor/api/middleware"
	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/fyerfyer/math-tutor/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理异步任务状态查询的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTask 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	var req model.TaskIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid task id"))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "task not found"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"task_id": req.ID,
		}).Error("Failed to get task")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to get task"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(convertToTaskInfo(task)))
}

// GetDocumentTasks 获取材料相关的所有任务
// GET /api/documents/:id/tasks
func (h *TaskHandler) GetDocumentTasks(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "invalid document id"))
		return
	}

	tasks, err := h.queue.GetTasksByDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":       err.Error(),
			"document_id": req.ID,
		}).Error("Failed to get document tasks")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError, "failed to get document tasks"))
		return
	}

	infos := make([]model.TaskInfoResponse, len(tasks))
	for i, task := range tasks {
		infos[i] = convertToTaskInfo(task)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(infos))
}

// convertToTaskInfo 将任务转换为响应信息
func convertToTaskInfo(task *taskqueue.Task) model.TaskInfoResponse {
	info := taskqueue.NewTaskInfo(task)

	return model.TaskInfoResponse{
		TaskID:      info.ID,
		Type:        string(info.Type),
		DocumentID:  info.DocumentID,
		Status:      string(info.Status),
		Progress:    info.Progress,
		Error:       info.Error,
		CreatedAt:   info.CreatedAt,
		StartedAt:   info.StartedAt,
		CompletedAt: info.CompletedAt,
	}
}
