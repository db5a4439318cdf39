// Package notify turns staff notification messages into Telegram messages.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

type Consumer interface {
	Consume(ctx context.Context, handler func(message []byte) error) error
}

type Notifier struct {
	sender Sender
	chatID string
}

func NewNotifier(sender Sender, chatID string) *Notifier {
	return &Notifier{sender: sender, chatID: chatID}
}

// Run subscribes to the queue; messages are handled until ctx is done.
func (n *Notifier) Run(ctx context.Context, consumer Consumer) error {
	return consumer.Consume(ctx, func(message []byte) error {
		return n.Handle(ctx, message)
	})
}

// Handle delivers one queued event. Malformed messages are dropped so they
// are not redelivered forever.
func (n *Notifier) Handle(ctx context.Context, message []byte) error {
	var event entity.ReservationEvent
	if err := json.Unmarshal(message, &event); err != nil {
		logrus.Errorf("dropping malformed notification: %v", err)
		return nil
	}

	text, ok := Render(event)
	if !ok {
		return nil
	}
	if err := n.sender.SendMessage(ctx, n.chatID, text); err != nil {
		return fmt.Errorf("failed to notify staff about reservation %d: %w", event.ReservationID, err)
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": event.ReservationID,
		"event_type":     event.Type,
	}).Debug("staff notified")
	return nil
}

// Render builds the staff message for an event.
func Render(event entity.ReservationEvent) (string, bool) {
	switch event.Type {
	case entity.EventPaymentSubmitted:
		return fmt.Sprintf("Reservation #%d: %s payment of %d waits for verification (car %d, user %d)",
			event.ReservationID, event.Method, event.Amount, event.CarID, event.UserID), true
	case entity.EventReservationConfirmed:
		return fmt.Sprintf("Reservation #%d confirmed: car %d is booked, paid %d",
			event.ReservationID, event.CarID, event.Amount), true
	case entity.EventReservationExpired:
		return fmt.Sprintf("Reservation #%d expired without payment, car %d released",
			event.ReservationID, event.CarID), true
	}
	return "", false
}
