package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

type fakeSender struct {
	chatIDs  []string
	messages []string
	err      error
}

func (s *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	if s.err != nil {
		return s.err
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.messages = append(s.messages, text)
	return nil
}

type fakeConsumer struct {
	handler func([]byte) error
}

func (c *fakeConsumer) Consume(_ context.Context, handler func(message []byte) error) error {
	c.handler = handler
	return nil
}

func encode(t *testing.T, event entity.ReservationEvent) []byte {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func TestHandleSendsStaffMessage(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "-100200")

	err := n.Handle(context.Background(), encode(t, entity.ReservationEvent{
		Type:          entity.EventPaymentSubmitted,
		ReservationID: 12,
		CarID:         3,
		UserID:        5,
		Amount:        4500,
		Method:        entity.PaymentMethodTransfer,
	}))
	require.NoError(t, err)

	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"-100200"}, sender.chatIDs)
	assert.Contains(t, sender.messages[0], "Reservation #12")
	assert.Contains(t, sender.messages[0], "TRANSFER")
}

func TestHandleSkipsAndDrops(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "chat")

	require.NoError(t, n.Handle(context.Background(), encode(t, entity.ReservationEvent{Type: entity.EventReservationCreated})))
	require.NoError(t, n.Handle(context.Background(), []byte("{broken")))
	assert.Empty(t, sender.messages)
}

func TestHandleSendFailureIsRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram API error: 502 Bad Gateway")}
	n := NewNotifier(sender, "chat")

	err := n.Handle(context.Background(), encode(t, entity.ReservationEvent{Type: entity.EventReservationExpired, ReservationID: 4}))
	assert.Error(t, err)
}

func TestRunSubscribes(t *testing.T) {
	sender := &fakeSender{}
	consumer := &fakeConsumer{}
	require.NoError(t, NewNotifier(sender, "chat").Run(context.Background(), consumer))

	require.NotNil(t, consumer.handler)
	require.NoError(t, consumer.handler(encode(t, entity.ReservationEvent{Type: entity.EventReservationConfirmed, ReservationID: 9})))
	require.Len(t, sender.messages, 1)
	assert.Contains(t, sender.messages[0], "confirmed")
}

func TestRender(t *testing.T) {
	for _, typ := range []entity.EventType{entity.EventPaymentSubmitted, entity.EventReservationConfirmed, entity.EventReservationExpired} {
		_, ok := Render(entity.ReservationEvent{Type: typ})
		assert.True(t, ok, typ)
	}
	for _, typ := range []entity.EventType{entity.EventReservationCreated, entity.EventReservationCancelled, entity.EventReservationCompleted} {
		_, ok := Render(entity.ReservationEvent{Type: typ})
		assert.False(t, ok, typ)
	}
}
