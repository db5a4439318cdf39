package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrTaskNotFound = errors.New("task not found")

// ReservationExpirer expires one reservation; it reports false when there
// was nothing left to expire.
type ReservationExpirer interface {
	ExpireReservation(ctx context.Context, reservationID int64) (bool, error)
}

// TaskHandler dispatches queue tasks to the booking core.
type TaskHandler struct {
	expirer ReservationExpirer
	timeout time.Duration
}

func NewTaskHandler(expirer ReservationExpirer, timeout time.Duration) *TaskHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TaskHandler{expirer: expirer, timeout: timeout}
}

func (h *TaskHandler) HandleTask(task *Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	logrus.Debugf("handling task %s of type %s (attempt %d/%d)", task.ID, task.Type, task.Attempts, task.MaxRetries)

	switch task.Type {
	case TaskTypeExpireReservation:
		return h.handleExpireReservation(ctx, task)
	default:
		return Permanent(fmt.Errorf("unknown task type %q", task.Type))
	}
}

// handleExpireReservation is idempotent: a reservation that was paid,
// cancelled or already swept is left alone.
func (h *TaskHandler) handleExpireReservation(ctx context.Context, task *Task) error {
	reservationID, ok := task.GetInt64("reservation_id")
	if !ok || reservationID <= 0 {
		return Permanent(fmt.Errorf("task %s has no valid reservation_id", task.ID))
	}

	expired, err := h.expirer.ExpireReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("failed to expire reservation %d: %w", reservationID, err)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": reservationID,
		"expired":        expired,
	}).Debug("expiry task handled")
	return nil
}
