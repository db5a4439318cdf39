package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/queue"
)

type fakeProducer struct {
	keys []string
	err  error
}

func (p *fakeProducer) SendMessage(_ context.Context, key string, _ interface{}) error {
	p.keys = append(p.keys, key)
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

type fakeRabbit struct {
	published []interface{}
}

func (q *fakeRabbit) Publish(_ context.Context, message interface{}) error {
	q.published = append(q.published, message)
	return nil
}

func (q *fakeRabbit) Consume(context.Context, func(message []byte) error) error { return nil }

func (q *fakeRabbit) Close() error { return nil }

type fakeQueue struct {
	tasks []*queue.Task
}

func (q *fakeQueue) Publish(_ context.Context, task *queue.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, func(*queue.Task) error) error { return nil }

func (q *fakeQueue) Close() error { return nil }

func TestKafkaEventAdapterKeysByReservation(t *testing.T) {
	producer := &fakeProducer{}
	adapter := NewKafkaEventAdapter(producer)

	require.NoError(t, adapter.Publish(context.Background(), entity.ReservationEvent{Type: entity.EventReservationCreated, ReservationID: 42}))
	assert.Equal(t, []string{"42"}, producer.keys)
}

func TestStaffNotificationAdapterFilters(t *testing.T) {
	rabbit := &fakeRabbit{}
	adapter := NewStaffNotificationAdapter(rabbit)
	ctx := context.Background()

	for _, typ := range []entity.EventType{
		entity.EventReservationCreated,
		entity.EventPaymentSubmitted,
		entity.EventReservationConfirmed,
		entity.EventReservationCheckedIn,
		entity.EventReservationExpired,
	} {
		require.NoError(t, adapter.Publish(ctx, entity.ReservationEvent{Type: typ}))
	}
	assert.Len(t, rabbit.published, 3)
}

func TestFanoutJoinsErrors(t *testing.T) {
	broken := &fakeProducer{err: errors.New("kafka: leader not available")}
	healthy := &recordingPublisher{}
	fanout := Fanout{NewKafkaEventAdapter(broken), healthy}

	err := fanout.Publish(context.Background(), entity.ReservationEvent{Type: entity.EventReservationExpired, ReservationID: 1})
	assert.ErrorContains(t, err, "leader not available")
	assert.Equal(t, 1, healthy.count(entity.EventReservationExpired))
}

func TestQueueAdapterConvertsTask(t *testing.T) {
	q := &fakeQueue{}
	executeAt := time.Date(2024, 3, 1, 9, 15, 1, 0, time.UTC)

	err := NewQueueAdapter(q).Publish(context.Background(), &Task{
		ID:         "expire_reservation_1",
		Type:       TaskTypeExpireReservation,
		Data:       map[string]interface{}{"reservation_id": int64(1)},
		ExecuteAt:  executeAt,
		MaxRetries: 3,
	})
	require.NoError(t, err)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, queue.TaskTypeExpireReservation, q.tasks[0].Type)
	assert.Equal(t, executeAt, q.tasks[0].ExecuteAt)
}
