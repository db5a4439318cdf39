package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

// Reader holds the queries available both inside and outside a transaction.
// Lookups by key return entity.ErrNotFound when the row is missing.
type Reader interface {
	GetCar(ctx context.Context, id int64) (*entity.Car, error)
	ListCars(ctx context.Context) ([]entity.Car, error)

	GetReservation(ctx context.Context, id int64) (*entity.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID int64) ([]entity.Reservation, error)
	// ListCarReservations returns live reservations overlapping [start, end)
	// in a status that may block. carID 0 means every car.
	ListCarReservations(ctx context.Context, carID int64, start, end time.Time) ([]entity.Reservation, error)
	FindActiveByUser(ctx context.Context, userID int64) (*entity.Reservation, error)
	// ListLapsed returns unpaid reservations whose lock ran out before now,
	// ordered by (lockExpiresAt, id) and starting after the cursor.
	ListLapsed(ctx context.Context, now time.Time, after entity.LapsedCursor, limit int) ([]entity.Reservation, error)
	// ListScheduled returns confirmed or completed reservations starting or
	// ending inside [from, to).
	ListScheduled(ctx context.Context, from, to time.Time) ([]entity.Reservation, error)

	GetPayment(ctx context.Context, reservationID int64) (*entity.Payment, error)
	GetPaymentByCharge(ctx context.Context, chargeID string) (*entity.Payment, error)

	GetCheckin(ctx context.Context, reservationID int64) (*entity.CheckinCheckout, error)
	ListCheckins(ctx context.Context, from, to time.Time) ([]entity.CheckinCheckout, error)
}

// Tx is a unit of work. Conditional writers return false when the row was
// not in the expected prior state and nothing was changed.
type Tx interface {
	Reader

	// Row locks, held until the transaction ends.
	LockCar(ctx context.Context, id int64) (*entity.Car, error)
	LockReservation(ctx context.Context, id int64) (*entity.Reservation, error)
	LockPayment(ctx context.Context, reservationID int64) (*entity.Payment, error)

	// CreateReservation returns entity.ErrDuplicate when the user already
	// holds an active reservation.
	CreateReservation(ctx context.Context, r *entity.Reservation) error
	TransitionReservation(ctx context.Context, id int64, from []entity.ReservationStatus, to entity.ReservationStatus, now time.Time) (bool, error)
	// ExpireReservation moves an unpaid reservation whose lock lapsed before
	// now to EXPIRED.
	ExpireReservation(ctx context.Context, id int64, now time.Time) (bool, error)
	// CompleteReservation moves a CONFIRMED reservation to COMPLETED with
	// its final price.
	CompleteReservation(ctx context.Context, id int64, finalTotal int64, now time.Time) (bool, error)

	// CreatePayment returns entity.ErrDuplicate when the reservation already
	// has a payment.
	CreatePayment(ctx context.Context, p *entity.Payment) error
	// UpdateOpenPayment rewrites method, amount, status and charge of a
	// payment that is not yet PAID or EXPIRED.
	UpdateOpenPayment(ctx context.Context, p *entity.Payment) (bool, error)
	TransitionPayment(ctx context.Context, id int64, from []entity.PaymentStatus, to entity.PaymentStatus, now time.Time) (bool, error)

	// UpdateCarStatus leaves cars in MAINTENANCE untouched.
	UpdateCarStatus(ctx context.Context, carID int64, to entity.CarStatus, now time.Time) (bool, error)
	// ReturnCar records the odometer and releases the car unless it is in
	// MAINTENANCE.
	ReturnCar(ctx context.Context, carID int64, mileage int64, now time.Time) error

	CreateCheckin(ctx context.Context, c *entity.CheckinCheckout) error
	// CompleteCheckout writes the checkout half of a record that has a
	// checkin and no checkout yet.
	CompleteCheckout(ctx context.Context, c *entity.CheckinCheckout) (bool, error)
}

// Store is the transactional reservation store.
type Store interface {
	Reader
	// WithinTx runs fn in one transaction; a non-nil error rolls it back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}
