package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DLQHandler keeps expiry tasks that exhausted their retries so an admin can
// inspect and requeue them.
type DLQHandler interface {
	HandleFailedTask(task *Task, err error)
	GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error)
	RequeueFailedTask(ctx context.Context, taskID string) error
	Size(ctx context.Context) (int64, error)
}

type FailedTask struct {
	Task          *Task     `json:"task"`
	ReservationID int64     `json:"reservation_id,omitempty"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
	Attempts      int       `json:"attempts"`
}

// RedisDLQ stores failed tasks in a sorted set scored by failure time.
type RedisDLQ struct {
	client    *redis.Client
	key       string
	mainQueue string
}

func NewRedisDLQ(client *redis.Client, key, mainQueue string) *RedisDLQ {
	return &RedisDLQ{client: client, key: key, mainQueue: mainQueue}
}

func newFailedTask(task *Task, err error, at time.Time) *FailedTask {
	ft := &FailedTask{Task: task, Error: err.Error(), FailedAt: at, Attempts: task.Attempts}
	if id, ok := task.GetInt64("reservation_id"); ok {
		ft.ReservationID = id
	}
	return ft
}

func (d *RedisDLQ) HandleFailedTask(task *Task, err error) {
	failed := newFailedTask(task, err, time.Now())

	data, marshalErr := json.Marshal(failed)
	if marshalErr != nil {
		logrus.Errorf("failed to marshal failed task %s: %v", task.ID, marshalErr)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.client.ZAdd(ctx, d.key, &redis.Z{Score: float64(failed.FailedAt.Unix()), Member: data}).Err(); err != nil {
		logrus.Errorf("failed to send task %s to DLQ: %v", task.ID, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"task_id":        task.ID,
		"reservation_id": failed.ReservationID,
		"attempts":       task.Attempts,
	}).Warnf("expiry task moved to DLQ: %v", err)
}

// GetFailedTasks returns the newest failures first.
func (d *RedisDLQ) GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := d.client.ZRevRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	out := make([]*FailedTask, 0, len(entries))
	for _, entry := range entries {
		if ft, ok := decodeFailedTask(entry); ok {
			out = append(out, ft)
		}
	}
	return out, nil
}

// RequeueFailedTask pushes a failed task back onto the ready list with a
// fresh attempt count.
func (d *RedisDLQ) RequeueFailedTask(ctx context.Context, taskID string) error {
	entries, err := d.client.ZRange(ctx, d.key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to read DLQ: %w", err)
	}

	entry, ft := findFailedTask(entries, taskID)
	if ft == nil {
		return fmt.Errorf("task %s not found in DLQ: %w", taskID, ErrTaskNotFound)
	}

	ft.Task.Attempts = 0
	ft.Task.ExecuteAt = time.Now()
	data, err := json.Marshal(ft.Task)
	if err != nil {
		return fmt.Errorf("failed to marshal task for requeue: %w", err)
	}

	pipe := d.client.TxPipeline()
	pipe.ZRem(ctx, d.key, entry)
	pipe.LPush(ctx, d.mainQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue task %s: %w", taskID, err)
	}

	logrus.Infof("Task %s requeued from DLQ", taskID)
	return nil
}

func (d *RedisDLQ) Size(ctx context.Context) (int64, error) {
	n, err := d.client.ZCard(ctx, d.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count DLQ: %w", err)
	}
	return n, nil
}

func decodeFailedTask(entry string) (*FailedTask, bool) {
	var ft FailedTask
	if err := json.Unmarshal([]byte(entry), &ft); err != nil || ft.Task == nil {
		logrus.Warnf("skipping unreadable DLQ entry: %v", err)
		return nil, false
	}
	return &ft, true
}

// findFailedTask returns the raw entry and the decoded task with taskID.
func findFailedTask(entries []string, taskID string) (string, *FailedTask) {
	for _, entry := range entries {
		ft, ok := decodeFailedTask(entry)
		if ok && ft.Task.ID == taskID {
			return entry, ft
		}
	}
	return "", nil
}
