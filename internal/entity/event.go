package entity

import (
	"time"
)

type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventPaymentSubmitted     EventType = "payment.submitted"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationExpired   EventType = "reservation.expired"
	EventReservationCheckedIn EventType = "reservation.checked_in"
	EventReservationCompleted EventType = "reservation.completed"
)

// ReservationEvent is emitted after a lifecycle transition commits.
type ReservationEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	ReservationID int64             `json:"reservation_id"`
	UserID        int64             `json:"user_id"`
	CarID         int64             `json:"car_id"`
	Status        ReservationStatus `json:"status"`
	Amount        int64             `json:"amount,omitempty"`
	Method        PaymentMethod     `json:"method,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Actor identifies the caller of an operation.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanAccess reports whether the actor owns the reservation or is privileged.
func (a Actor) CanAccess(r *Reservation) bool {
	return a.IsAdmin() || a.UserID == r.UserID
}
