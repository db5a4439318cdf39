package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
)

func (s *bookingService) ListLapsed(ctx context.Context, after entity.LapsedCursor, limit int) ([]entity.Reservation, error) {
	lapsed, err := s.store.ListLapsed(ctx, s.clock.Now(), after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list lapsed reservations: %w", err)
	}
	return lapsed, nil
}

// ExpireReservation reclaims one reservation whose payment lock ran out. It
// reports false when the reservation was settled, cancelled or already
// expired in the meantime.
func (s *bookingService) ExpireReservation(ctx context.Context, reservationID int64) (bool, error) {
	var expired *entity.Reservation

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()

		res, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return nil
			}
			return err
		}

		ok, err := tx.ExpireReservation(ctx, res.ID, now)
		if err != nil || !ok {
			return err
		}

		payment, err := tx.LockPayment(ctx, res.ID)
		switch {
		case err == nil:
			if _, err := tx.TransitionPayment(ctx, payment.ID, entity.OpenPaymentStatuses, entity.PaymentStatusExpired, now); err != nil {
				return err
			}
		case !errors.Is(err, entity.ErrNotFound):
			return err
		}

		if err := s.releaseCar(ctx, tx, res, now); err != nil {
			return err
		}

		res.Status = entity.ReservationStatusExpired
		res.UpdatedAt = now
		expired = res
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": expired.ID,
		"car_id":         expired.CarID,
	}).Info("reservation expired")
	s.emit(ctx, entity.EventReservationExpired, expired, nil)
	return true, nil
}

// releaseCar makes the car available again unless another reservation holds
// it right now or it is in maintenance.
func (s *bookingService) releaseCar(ctx context.Context, tx database.Tx, expired *entity.Reservation, now time.Time) error {
	covering, err := tx.ListCarReservations(ctx, expired.CarID, now, now.Add(time.Nanosecond))
	if err != nil {
		return err
	}
	for i := range covering {
		if covering[i].ID != expired.ID && entity.IsBlocking(&covering[i], now) {
			return nil
		}
	}

	_, err = tx.UpdateCarStatus(ctx, expired.CarID, entity.CarStatusAvailable, now)
	return err
}
