package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/kafka"
	"github.com/ds124wfegd/car-rental/pkg/rabbitMQ"
)

// KafkaEventAdapter streams every lifecycle event, keyed by reservation.
type KafkaEventAdapter struct {
	producer kafka.Producer
}

func NewKafkaEventAdapter(p kafka.Producer) *KafkaEventAdapter {
	return &KafkaEventAdapter{producer: p}
}

func (a *KafkaEventAdapter) Publish(ctx context.Context, event entity.ReservationEvent) error {
	return a.producer.SendMessage(ctx, strconv.FormatInt(event.ReservationID, 10), event)
}

// StaffNotificationAdapter forwards the events staff act on to the
// notification queue.
type StaffNotificationAdapter struct {
	queue rabbitMQ.Queue
}

func NewStaffNotificationAdapter(q rabbitMQ.Queue) *StaffNotificationAdapter {
	return &StaffNotificationAdapter{queue: q}
}

func (a *StaffNotificationAdapter) Publish(ctx context.Context, event entity.ReservationEvent) error {
	if !NotifiesStaff(event.Type) {
		return nil
	}
	return a.queue.Publish(ctx, event)
}

// NotifiesStaff reports whether staff are told about events of this type.
func NotifiesStaff(t entity.EventType) bool {
	switch t {
	case entity.EventPaymentSubmitted, entity.EventReservationConfirmed, entity.EventReservationExpired:
		return true
	}
	return false
}

// Fanout delivers an event to every publisher and joins their errors.
type Fanout []EventPublisher

func (f Fanout) Publish(ctx context.Context, event entity.ReservationEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
