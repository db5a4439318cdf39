package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
)

type bookingService struct {
	store   database.Store
	clock   clockwork.Clock
	gateway PaymentGateway
	events  EventPublisher
	tasks   TaskPublisher
	opts    BookingOptions
}

// NewBookingService wires the booking state machine. gateway, events and
// tasks may be nil: without a gateway every method settles manually.
func NewBookingService(
	store database.Store,
	clock clockwork.Clock,
	gateway PaymentGateway,
	events EventPublisher,
	tasks TaskPublisher,
	opts BookingOptions,
) BookingService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = entity.DefaultLockTTL
	}
	if opts.MinorUnits <= 0 {
		opts.MinorUnits = 100
	}
	return &bookingService{
		store:   store,
		clock:   clock,
		gateway: gateway,
		events:  events,
		tasks:   tasks,
		opts:    opts,
	}
}

// CreateReservation books a car for [StartDate, EndDate) and holds it for
// LockTTL while the user pays. The overlap check and the insert share one
// transaction that holds the car row lock.
func (s *bookingService) CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, entity.ValidationError(entity.ReasonInvalidRange,
			"start %s must be before end %s", req.StartDate.Format(time.RFC3339), req.EndDate.Format(time.RFC3339))
	}

	pickup, dropoff := req.PickupLocation, req.DropoffLocation
	if pickup == "" {
		pickup = entity.DefaultLocation
	}
	if dropoff == "" {
		dropoff = entity.DefaultLocation
	}

	var created *entity.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()

		active, err := tx.FindActiveByUser(ctx, req.UserID)
		switch {
		case err == nil:
			return entity.ConflictError(entity.ReasonActiveExists,
				"user %d already holds reservation %d in %s", req.UserID, active.ID, active.Status)
		case !errors.Is(err, entity.ErrNotFound):
			return err
		}

		car, err := tx.LockCar(ctx, req.CarID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return entity.NotFoundError(entity.ReasonCarNotFound, "car %d not found", req.CarID)
			}
			return err
		}
		if !car.Bookable() {
			return entity.NotFoundError(entity.ReasonCarNotFound, "car %d is not available for booking", car.ID)
		}

		existing, err := tx.ListCarReservations(ctx, car.ID, req.StartDate, req.EndDate)
		if err != nil {
			return err
		}
		if c := entity.FirstConflict(existing, req.StartDate, req.EndDate, now); c != nil {
			return entity.ConflictError(entity.ReasonOverlap,
				"car %d is held by reservation %d from %s to %s", car.ID, c.ID,
				c.StartDate.Format(time.RFC3339), c.EndDate.Format(time.RFC3339))
		}

		lockExpiresAt := now.Add(s.opts.LockTTL)
		res := &entity.Reservation{
			UserID:          req.UserID,
			CarID:           car.ID,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			PickupLocation:  pickup,
			DropoffLocation: dropoff,
			Status:          entity.ReservationStatusWaitingPayment,
			LockExpiresAt:   &lockExpiresAt,
			TotalPrice:      entity.RentalDays(req.StartDate, req.EndDate) * car.PricePerDay,
			CreatedAt:       now,
		}
		if err := tx.CreateReservation(ctx, res); err != nil {
			if errors.Is(err, entity.ErrDuplicate) {
				return entity.ConflictError(entity.ReasonActiveExists,
					"user %d already holds an active reservation", req.UserID)
			}
			return err
		}

		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"user_id":        created.UserID,
		"car_id":         created.CarID,
		"total_price":    created.TotalPrice,
	}).Info("reservation created")

	s.scheduleExpiry(ctx, created)
	s.emit(ctx, entity.EventReservationCreated, created, nil)
	return created, nil
}

// CancelReservation soft-deletes a reservation on behalf of its owner or an
// admin. Payment and car rows are left as they are.
func (s *bookingService) CancelReservation(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Reservation, error) {
	var cancelled *entity.Reservation
	changed := false

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()

		res, err := s.lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(res) {
			return entity.ForbiddenError(entity.ReasonNotOwner, "reservation %d belongs to another user", res.ID)
		}
		if res.Status == entity.ReservationStatusCancelled {
			cancelled = res
			return nil
		}

		ok, err := tx.TransitionReservation(ctx, res.ID, entity.CancellableStatuses, entity.ReservationStatusCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return entity.StateError(entity.ReasonInvalidStatus, "reservation %d is %s and cannot be cancelled", res.ID, res.Status)
		}

		res.Status = entity.ReservationStatusCancelled
		res.UpdatedAt = now
		res.DeletedAt = &now
		cancelled = res
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logrus.WithFields(logrus.Fields{
			"reservation_id": cancelled.ID,
			"actor_id":       actor.UserID,
			"actor_role":     actor.Role,
		}).Info("reservation cancelled")
		s.emit(ctx, entity.EventReservationCancelled, cancelled, nil)
	}
	return cancelled, nil
}

func (s *bookingService) GetReservation(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, reservationLookupError(reservationID, err)
	}
	if !actor.CanAccess(res) {
		return nil, entity.ForbiddenError(entity.ReasonNotOwner, "reservation %d belongs to another user", res.ID)
	}
	return res, nil
}

func (s *bookingService) GetReservationStatus(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.ReservationStatusView, error) {
	res, err := s.GetReservation(ctx, reservationID, actor)
	if err != nil {
		return nil, err
	}

	view := &entity.ReservationStatusView{
		ID:            res.ID,
		Status:        res.Status,
		LockExpiresAt: res.LockExpiresAt,
		TotalPrice:    res.TotalPrice,
	}

	payment, err := s.store.GetPayment(ctx, res.ID)
	switch {
	case err == nil:
		view.PaymentStatus = &payment.Status
	case !errors.Is(err, entity.ErrNotFound):
		return nil, fmt.Errorf("failed to load payment status: %w", err)
	}
	return view, nil
}

func (s *bookingService) ListUserReservations(ctx context.Context, userID int64) ([]entity.Reservation, error) {
	reservations, err := s.store.ListReservationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of user %d: %w", userID, err)
	}
	return reservations, nil
}

func (s *bookingService) GetPayment(ctx context.Context, reservationID int64, actor entity.Actor) (*entity.Payment, error) {
	if _, err := s.GetReservation(ctx, reservationID, actor); err != nil {
		return nil, err
	}
	payment, err := s.store.GetPayment(ctx, reservationID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.NotFoundError(entity.ReasonPaymentNotFound, "reservation %d has no payment", reservationID)
		}
		return nil, err
	}
	return payment, nil
}

func (s *bookingService) lockReservation(ctx context.Context, tx database.Tx, id int64) (*entity.Reservation, error) {
	res, err := tx.LockReservation(ctx, id)
	if err != nil {
		return nil, reservationLookupError(id, err)
	}
	return res, nil
}

func reservationLookupError(id int64, err error) error {
	if errors.Is(err, entity.ErrNotFound) {
		return entity.NotFoundError(entity.ReasonReservationNotFound, "reservation %d not found", id)
	}
	return err
}

// scheduleExpiry queues a task that expires the reservation as soon as its
// lock runs out. The sweeper covers the reservation if the task is lost.
func (s *bookingService) scheduleExpiry(ctx context.Context, res *entity.Reservation) {
	if s.tasks == nil || res.LockExpiresAt == nil {
		return
	}

	task := &Task{
		ID:   fmt.Sprintf("expire_reservation_%d_%s", res.ID, uuid.NewString()),
		Type: TaskTypeExpireReservation,
		Data: map[string]interface{}{
			"reservation_id":  res.ID,
			"lock_expires_at": res.LockExpiresAt.Format(time.RFC3339),
		},
		ExecuteAt:  res.LockExpiresAt.Add(time.Second),
		MaxRetries: 3,
	}
	if err := s.tasks.Publish(ctx, task); err != nil {
		logrus.Warnf("failed to schedule expiry of reservation %d: %v", res.ID, err)
	}
}

// emit publishes a lifecycle event. Delivery is best effort and never fails
// the operation that already committed.
func (s *bookingService) emit(ctx context.Context, typ entity.EventType, res *entity.Reservation, payment *entity.Payment) {
	if s.events == nil {
		return
	}
	event := newEvent(typ, res, payment, s.clock.Now())
	if err := s.events.Publish(ctx, event); err != nil {
		logrus.Warnf("failed to publish %s for reservation %d: %v", typ, res.ID, err)
	}
}

func newEvent(typ entity.EventType, res *entity.Reservation, payment *entity.Payment, now time.Time) entity.ReservationEvent {
	event := entity.ReservationEvent{
		ID:            uuid.NewString(),
		Type:          typ,
		ReservationID: res.ID,
		UserID:        res.UserID,
		CarID:         res.CarID,
		Status:        res.Status,
		Amount:        res.TotalPrice,
		OccurredAt:    now,
	}
	if payment != nil {
		event.Amount = payment.Amount
		event.Method = payment.Method
	}
	return event
}
