package entity

import (
	"time"
)

type ReservationStatus string

const (
	ReservationStatusPending        ReservationStatus = "PENDING"
	ReservationStatusWaitingPayment ReservationStatus = "WAITING_PAYMENT"
	ReservationStatusConfirmed      ReservationStatus = "CONFIRMED"
	ReservationStatusCompleted      ReservationStatus = "COMPLETED"
	ReservationStatusCancelled      ReservationStatus = "CANCELLED"
	ReservationStatusExpired        ReservationStatus = "EXPIRED"
)

const (
	DefaultLockTTL  = 15 * time.Minute
	DefaultLocation = "Main branch"
)

// ActiveStatuses are the unpaid statuses a user may hold at most one of.
var ActiveStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusWaitingPayment,
}

// CancellableStatuses are the statuses a user or admin may cancel from.
var CancellableStatuses = []ReservationStatus{
	ReservationStatusPending,
	ReservationStatusWaitingPayment,
	ReservationStatusConfirmed,
}

var transitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending: {
		ReservationStatusWaitingPayment,
		ReservationStatusCancelled,
		ReservationStatusExpired,
	},
	ReservationStatusWaitingPayment: {
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
		ReservationStatusExpired,
	},
	ReservationStatusConfirmed: {
		ReservationStatusCompleted,
		ReservationStatusCancelled,
	},
}

// CanTransition reports whether the reservation graph has an edge from -> to.
func CanTransition(from, to ReservationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edge leaves s.
func (s ReservationStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func (s ReservationStatus) IsActive() bool {
	return s.In(ActiveStatuses...)
}

func (s ReservationStatus) In(set ...ReservationStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// SourcesFor returns every status that may transition into to.
func SourcesFor(to ReservationStatus) []ReservationStatus {
	var from []ReservationStatus
	for _, s := range []ReservationStatus{
		ReservationStatusPending,
		ReservationStatusWaitingPayment,
		ReservationStatusConfirmed,
	} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

type Reservation struct {
	ID              int64             `json:"id" db:"id"`
	UserID          int64             `json:"user_id" db:"user_id"`
	CarID           int64             `json:"car_id" db:"car_id"`
	StartDate       time.Time         `json:"start_date" db:"start_date"`
	EndDate         time.Time         `json:"end_date" db:"end_date"`
	PickupLocation  string            `json:"pickup_location" db:"pickup_location"`
	DropoffLocation string            `json:"dropoff_location" db:"dropoff_location"`
	Status          ReservationStatus `json:"status" db:"status"`
	LockExpiresAt   *time.Time        `json:"lock_expires_at,omitempty" db:"lock_expires_at"`
	TotalPrice      int64             `json:"total_price" db:"total_price"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}

// LockLapsed reports whether the payment lock ran out before now.
// A reservation without a lock never lapses.
func (r *Reservation) LockLapsed(now time.Time) bool {
	return r.LockExpiresAt != nil && r.LockExpiresAt.Before(now)
}

// LapsedCursor pages through lapsed reservations in (lockExpiresAt, id)
// order. The zero value starts at the beginning.
type LapsedCursor struct {
	LockExpiresAt time.Time
	ID            int64
}

// After reports whether r sorts strictly after the cursor.
func (c LapsedCursor) After(r *Reservation) bool {
	if r.LockExpiresAt == nil {
		return false
	}
	if !r.LockExpiresAt.Equal(c.LockExpiresAt) {
		return r.LockExpiresAt.After(c.LockExpiresAt)
	}
	return r.ID > c.ID
}

// CursorOf returns the cursor positioned on r.
func CursorOf(r *Reservation) LapsedCursor {
	c := LapsedCursor{ID: r.ID}
	if r.LockExpiresAt != nil {
		c.LockExpiresAt = *r.LockExpiresAt
	}
	return c
}

// RentalDays is the number of started 24h periods in [start, end), at least one.
func RentalDays(start, end time.Time) int64 {
	d := end.Sub(start)
	days := int64(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}

// ReservationStatusView is the subset returned to the reservation owner.
type ReservationStatusView struct {
	ID            int64             `json:"id"`
	Status        ReservationStatus `json:"status"`
	LockExpiresAt *time.Time        `json:"lock_expires_at,omitempty"`
	TotalPrice    int64             `json:"total_price"`
	PaymentStatus *PaymentStatus    `json:"payment_status,omitempty"`
}

// DayOperations lists the pickups and returns scheduled for a day.
type DayOperations struct {
	Date     time.Time     `json:"date"`
	Pickups  []Reservation `json:"pickups"`
	Returns  []Reservation `json:"returns"`
	Timezone string        `json:"timezone"`
}

// CheckinSummaryDay counts checkins that happened on one calendar day.
type CheckinSummaryDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
