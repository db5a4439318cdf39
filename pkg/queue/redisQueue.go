package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/config"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = 5 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultPopTimeout   = 5 * time.Second
)

// RedisQueue keeps immediate tasks in a list and delayed tasks in a sorted
// set scored by execution time.
type RedisQueue struct {
	client          *redis.Client
	mainQueue       string
	delayedQueue    string
	processingQueue string
	metricsKey      string
	retryManager    *RetryManager
	dlqHandler      DLQHandler
	config          *RedisQueueConfig
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

type RedisQueueConfig struct {
	Prefix       string
	MaxRetries   int
	BaseDelay    time.Duration
	PollInterval time.Duration
	PopTimeout   time.Duration
	EnableDLQ    bool
}

// NewRedisQueueConfig maps the application queue settings.
func NewRedisQueueConfig(cfg *config.QueueConfig) *RedisQueueConfig {
	return &RedisQueueConfig{
		Prefix:       cfg.Prefix,
		MaxRetries:   cfg.MaxRetries,
		BaseDelay:    cfg.BaseDelay,
		PollInterval: cfg.PollInterval,
		PopTimeout:   defaultPopTimeout,
		EnableDLQ:    cfg.EnableDLQ,
	}
}

func (c *RedisQueueConfig) key(name string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "car_rental"
	}
	return prefix + ":" + name
}

func NewRedisQueue(client *redis.Client, cfg *RedisQueueConfig) *RedisQueue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaultPopTimeout
	}

	q := &RedisQueue{
		client:          client,
		mainQueue:       cfg.key("tasks"),
		delayedQueue:    cfg.key("tasks:delayed"),
		processingQueue: cfg.key("tasks:processing"),
		metricsKey:      cfg.key("queue:metrics"),
		retryManager:    NewRetryManager(cfg.MaxRetries, cfg.BaseDelay),
		config:          cfg,
		stopChan:        make(chan struct{}),
	}
	if cfg.EnableDLQ {
		q.dlqHandler = NewRedisDLQ(client, cfg.key("dlq"), q.mainQueue)
	}

	logrus.Infof("RedisQueue initialized: main=%s, delayed=%s", q.mainQueue, q.delayedQueue)
	return q
}

// DLQ returns the dead letter handler, nil when disabled.
func (r *RedisQueue) DLQ() DLQHandler {
	return r.dlqHandler
}

// Publish stores a task. Tasks due in the future wait in the delayed set.
func (r *RedisQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}
	if err := r.prepareTask(task); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if task.ExecuteAt.After(time.Now()) {
		err = r.client.ZAdd(ctx, r.delayedQueue, &redis.Z{
			Score:  float64(task.ExecuteAt.Unix()),
			Member: taskData,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish delayed task: %w", err)
		}
		logrus.Debugf("Task %s scheduled for %s", task.ID, task.ExecuteAt.Format(time.RFC3339))
		return nil
	}

	if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
		return fmt.Errorf("failed to publish immediate task: %w", err)
	}
	logrus.Debugf("Task %s published to main queue", task.ID)
	return nil
}

// Subscribe starts the delayed-task mover and the consumer loop.
func (r *RedisQueue) Subscribe(ctx context.Context, handler func(*Task) error) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	r.wg.Add(2)
	go r.processDelayedTasks(ctx)
	go r.processMainQueue(ctx, handler)

	logrus.Info("RedisQueue subscriber started")
	return nil
}

func (r *RedisQueue) processMainQueue(ctx context.Context, handler func(*Task) error) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
		}

		if err := r.processNext(ctx, handler); err != nil {
			logrus.Errorf("queue: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// processNext moves one task to the processing list, runs it and removes it.
func (r *RedisQueue) processNext(ctx context.Context, handler func(*Task) error) error {
	taskData, err := r.client.BRPopLPush(ctx, r.mainQueue, r.processingQueue, r.config.PopTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to move task to processing queue: %w", err)
	}
	defer func() {
		if err := r.client.LRem(context.Background(), r.processingQueue, 1, taskData).Err(); err != nil {
			logrus.Warnf("failed to remove task from processing queue: %v", err)
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		r.deadLetter(&Task{
			ID:        "corrupted_" + uuid.NewString(),
			Type:      "corrupted",
			Data:      map[string]interface{}{"raw_data": taskData},
			CreatedAt: time.Now(),
		}, fmt.Errorf("invalid task format: %w", err))
		return nil
	}

	if err := r.executeTaskWithRetry(ctx, &task, handler); err != nil {
		logrus.Warnf("Task %s failed after %d attempts: %v", task.ID, task.Attempts, err)
		r.deadLetter(&task, err)
		r.incrementMetric(ctx, "tasks_failure")
		return nil
	}

	r.incrementMetric(ctx, "tasks_success")
	logrus.Debugf("Task %s completed", task.ID)
	return nil
}

func (r *RedisQueue) executeTaskWithRetry(ctx context.Context, task *Task, handler func(*Task) error) error {
	for {
		task.Attempts++

		err := handler(task)
		if err == nil {
			return nil
		}

		shouldRetry, delay := r.retryManager.ShouldRetry(task, err)
		if !shouldRetry {
			return err
		}

		logrus.Warnf("Task %s failed (attempt %d/%d), retrying in %v: %v",
			task.ID, task.Attempts, task.MaxRetries, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopChan:
			return errors.New("queue closed")
		case <-time.After(delay):
		}
	}
}

func (r *RedisQueue) processDelayedTasks(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.moveReadyDelayedTasks(ctx); err != nil {
				logrus.Errorf("failed to process delayed tasks: %v", err)
			}
		}
	}
}

// moveReadyDelayedTasks moves due tasks to the main queue. Each member is
// removed with ZREM first so that two processes never both enqueue it.
func (r *RedisQueue) moveReadyDelayedTasks(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)

	tasks, err := r.client.ZRangeByScore(ctx, r.delayedQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed tasks: %w", err)
	}

	moved := 0
	for _, taskData := range tasks {
		removed, err := r.client.ZRem(ctx, r.delayedQueue, taskData).Result()
		if err != nil {
			return fmt.Errorf("failed to claim delayed task: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.mainQueue, taskData).Err(); err != nil {
			return fmt.Errorf("failed to move delayed task: %w", err)
		}
		moved++
	}

	if moved > 0 {
		logrus.Debugf("Moved %d delayed tasks to main queue", moved)
	}
	return nil
}

func (r *RedisQueue) deadLetter(task *Task, err error) {
	if r.dlqHandler == nil {
		return
	}
	r.dlqHandler.HandleFailedTask(task, err)
}

func (r *RedisQueue) prepareTask(task *Task) error {
	if task.ID == "" {
		task.ID = "task_" + uuid.NewString()
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = r.config.MaxRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.ExecuteAt.IsZero() {
		task.ExecuteAt = task.CreatedAt
	}
	return nil
}

func (r *RedisQueue) incrementMetric(ctx context.Context, metric string) {
	if err := r.client.HIncrBy(ctx, r.metricsKey, metric, 1).Err(); err != nil {
		logrus.Debugf("failed to record queue metric %s: %v", metric, err)
	}
}

// GetQueueStats returns current queue statistics
func (r *RedisQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	mainLen := pipe.LLen(ctx, r.mainQueue)
	delayedLen := pipe.ZCard(ctx, r.delayedQueue)
	processingLen := pipe.LLen(ctx, r.processingQueue)
	counters := pipe.HGetAll(ctx, r.metricsKey)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	stats := &QueueStats{
		MainQueue:       mainLen.Val(),
		DelayedQueue:    delayedLen.Val(),
		ProcessingQueue: processingLen.Val(),
		Timestamp:       time.Now(),
	}
	stats.Succeeded, _ = strconv.ParseInt(counters.Val()["tasks_success"], 10, 64)
	stats.Failed, _ = strconv.ParseInt(counters.Val()["tasks_failure"], 10, 64)
	return stats, nil
}

// Close stops the loops and waits for the task in flight.
func (r *RedisQueue) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()

	logrus.Info("RedisQueue closed")
	return nil
}

func (r *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

type QueueStats struct {
	MainQueue       int64     `json:"main_queue"`
	DelayedQueue    int64     `json:"delayed_queue"`
	ProcessingQueue int64     `json:"processing_queue"`
	Succeeded       int64     `json:"succeeded"`
	Failed          int64     `json:"failed"`
	Timestamp       time.Time `json:"timestamp"`
}
