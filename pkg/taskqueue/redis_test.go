package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQueue 创建基于miniredis的测试队列
func newTestQueue(t *testing.T) Queue {
	mr := miniredis.RunT(t)

	queue, err := NewRedisQueue(&Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	return queue
}

func TestEnqueueAndGetTask(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	payload := &DocumentIngestPayload{
		DocumentID: "doc-1",
		FileName:   "algebra.pdf",
		FileType:   "pdf",
		ChunkSize:  600,
		Overlap:    100,
	}

	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskDocumentIngest, task.Type)
	assert.Equal(t, "doc-1", task.DocumentID)
	assert.Equal(t, StatusPending, task.Status)

	var decoded DocumentIngestPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, 600, decoded.ChunkSize)
	assert.Equal(t, 100, decoded.Overlap)
}

func TestGetTaskNotFound(t *testing.T) {
	queue := newTestQueue(t)

	_, err := queue.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestGetTasksByDocument(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-multi", &DocumentIngestPayload{DocumentID: "doc-multi"})
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, TaskDocumentDelete, "doc-multi", &DocumentDeletePayload{DocumentID: "doc-multi"})
	require.NoError(t, err)

	tasks, err := queue.GetTasksByDocument(ctx, "doc-multi")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = queue.GetTasksByDocument(ctx, "other-doc")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpdateTaskStatus(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-status", nil)
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)

	result := &DocumentIngestResult{DocumentID: "doc-status", ChunkCount: 5, StoredCount: 5}
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var decoded DocumentIngestResult
	require.NoError(t, UnmarshalPayload(task.Result, &decoded))
	assert.Equal(t, 5, decoded.StoredCount)
}

func TestUpdateTaskStatusWithError(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-fail", nil)
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, "embedding service unavailable"))

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "embedding service unavailable", task.Error)
}

func TestDeleteTask(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-del", nil)
	require.NoError(t, err)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err := queue.GetTasksByDocument(ctx, "doc-del")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDeleteTaskRemovesQueuedCopy(t *testing.T) {
	mr := miniredis.RunT(t)

	queue, err := NewRedisQueue(&Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-asynq", nil)
	require.NoError(t, err)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	// asynq侧的任务必须能用队列自己的ID定位到
	info, err := inspector.GetTaskInfo("default", taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, info.ID)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = inspector.GetTaskInfo("default", taskID)
	assert.Error(t, err, "queued copy must be gone after DeleteTask")
}

func TestWaitForTaskCompleted(t *testing.T) {
	queue := newTestQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskDocumentIngest, "doc-wait", nil)
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, nil, ""))

	task, err := queue.WaitForTask(ctx, taskID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestTaskInfoProgress(t *testing.T) {
	task := &Task{ID: "t1", Type: TaskDocumentIngest, Status: StatusPending}
	assert.Equal(t, 0.0, NewTaskInfo(task).Progress)

	task.Status = StatusCompleted
	assert.Equal(t, 100.0, NewTaskInfo(task).Progress)
}
