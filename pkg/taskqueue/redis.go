package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis键的命名空间，与缓存等共用实例时互不干扰
const (
	taskKeyPrefix     = "mathtutor:task:"
	docTasksKeyPrefix = "mathtutor:doctasks:"
	taskEventPrefix   = "mathtutor:taskevents:"

	// 任务记录的保留时间，过期后查询返回ErrTaskNotFound
	taskRecordTTL = 7 * 24 * time.Hour

	// WaitForTask的轮询间隔
	pollInterval = time.Second
)

func taskKey(taskID string) string {
	return taskKeyPrefix + taskID
}

func docTasksKey(documentID string) string {
	return docTasksKeyPrefix + documentID
}

func taskEventChannel(taskID string) string {
	return taskEventPrefix + taskID
}

// RedisQueue 基于asynq的任务队列
// asynq负责调度和重试，任务记录本身以JSON存在Redis里，
// 这样入队方、工作者和状态查询API看到同一份数据
type RedisQueue struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	redisClient *redis.Client
	cfg         *Config
	logger      *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列并验证连通性
func NewRedisQueue(cfg *Config) (Queue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RedisQueue{
		client:      asynq.NewClient(asynqOpt),
		inspector:   asynq.NewInspector(asynqOpt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	return q.submit(ctx, taskType, documentID, payload)
}

// EnqueueIn 延迟指定时间后执行任务
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return q.submit(ctx, taskType, documentID, payload, asynq.ProcessIn(delay))
}

// submit 持久化任务记录并提交到asynq
// asynq负载只携带任务ID，记录本体通过Redis共享
func (q *RedisQueue) submit(ctx context.Context, taskType TaskType, documentID string, payload interface{}, opts ...asynq.Option) (string, error) {
	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	if err := q.persistTask(ctx, task); err != nil {
		return "", err
	}

	// asynq侧使用同一个ID，Inspector按ID删除才能命中
	opts = append(opts, asynq.TaskID(task.ID))
	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued")

	return task.ID, nil
}

// persistTask 写入任务记录并维护材料到任务的索引
func (q *RedisQueue) persistTask(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, taskRecordTTL)
		if task.DocumentID != "" {
			pipe.SAdd(ctx, docTasksKey(task.DocumentID), task.ID)
			pipe.Expire(ctx, docTasksKey(task.DocumentID), taskRecordTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save task record: %w", err)
	}
	return nil
}

// GetTask 获取任务记录
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
	}
	return &task, nil
}

// GetTasksByDocument 获取材料相关的所有任务
// 已过期的任务记录从索引中跳过
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, docTasksKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// WaitForTask 阻塞等待任务进入终态
// timeout为0时只受ctx约束
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task.Status == StatusCompleted || task.Status == StatusFailed {
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-ticker.C:
		}
	}
}

// DeleteTask 删除任务记录和索引项
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if task.DocumentID != "" {
			pipe.SRem(ctx, docTasksKey(task.DocumentID), taskID)
		}
		pipe.Del(ctx, taskKey(taskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task record: %w", err)
	}

	// 已被工作者取走的任务asynq可能拒绝删除，只记录不报错
	if err := q.inspector.DeleteTask("default", taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Debug("Could not remove task from asynq")
	}

	return nil
}

// UpdateTaskStatus 更新任务状态、结果和错误信息
// result为nil时保留已有结果，处理器可以先写结果再由工作者流转状态
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	switch status {
	case StatusProcessing:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed:
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}

	if errMsg != "" {
		task.Error = errMsg
	}

	return q.persistTask(ctx, task)
}

// NotifyTaskUpdate 发布任务状态变更事件
func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.redisClient.Publish(ctx, taskEventChannel(taskID), "updated").Err()
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redisClient.Close()
}

// RedisWorker asynq服务端包装
// 负责状态流转，实际业务逻辑由注册的Handler执行
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建工作者，cfg为nil时沿用队列配置
func NewRedisWorker(queue *RedisQueue, cfg *Config) Worker {
	if cfg == nil {
		cfg = queue.cfg
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
			Logger: queue.logger,
		},
	)

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()
	for taskType, handler := range w.handlers {
		mux.HandleFunc(string(taskType), w.wrap(handler))
		w.logger.WithField("task_type", taskType).Info("Registered task handler")
	}
	return w.server.Start(mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// wrap 把Handler包装成asynq处理函数，统一状态流转和事件通知
func (w *RedisWorker) wrap(h Handler) asynq.HandlerFunc {
	return func(ctx context.Context, asynqTask *asynq.Task) error {
		taskID := string(asynqTask.Payload())

		task, err := w.queue.GetTask(ctx, taskID)
		if err != nil {
			w.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load task record")
			return err
		}

		w.setStatus(ctx, taskID, StatusProcessing, "")

		if err := h.ProcessTask(ctx, task); err != nil {
			w.setStatus(ctx, taskID, StatusFailed, err.Error())
			return err
		}

		w.setStatus(ctx, taskID, StatusCompleted, "")
		return nil
	}
}

// setStatus 更新状态并发布事件，失败只记录日志
// 结果由处理器自行写入，这里传nil避免覆盖
func (w *RedisWorker) setStatus(ctx context.Context, taskID string, status TaskStatus, errMsg string) {
	if err := w.queue.UpdateTaskStatus(ctx, taskID, status, nil, errMsg); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"task_id": taskID,
			"status":  status,
		}).Error("Failed to update task status")
	}
	if err := w.queue.NotifyTaskUpdate(ctx, taskID); err != nil {
		w.logger.WithError(err).WithField("task_id", taskID).Debug("Failed to publish task event")
	}
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}
