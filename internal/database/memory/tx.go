package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

// memTx mutates a private copy of the state. The store mutex is held for
// the whole transaction, so the row locks are no-ops.
type memTx struct {
	view
}

func (t *memTx) LockCar(ctx context.Context, id int64) (*entity.Car, error) {
	return t.GetCar(ctx, id)
}

func (t *memTx) LockReservation(ctx context.Context, id int64) (*entity.Reservation, error) {
	return t.GetReservation(ctx, id)
}

func (t *memTx) LockPayment(ctx context.Context, reservationID int64) (*entity.Payment, error) {
	return t.GetPayment(ctx, reservationID)
}

func (t *memTx) CreateReservation(_ context.Context, r *entity.Reservation) error {
	if r.Status.IsActive() {
		for _, existing := range t.s.reservations {
			if existing.UserID == r.UserID && existing.DeletedAt == nil && existing.Status.IsActive() {
				return fmt.Errorf("failed to create reservation: %w", entity.ErrDuplicate)
			}
		}
	}
	t.s.nextReservationID++
	r.ID = t.s.nextReservationID
	r.UpdatedAt = r.CreatedAt
	t.s.reservations[r.ID] = *r
	return nil
}

func (t *memTx) TransitionReservation(_ context.Context, id int64, from []entity.ReservationStatus, to entity.ReservationStatus, now time.Time) (bool, error) {
	r, ok := t.s.reservations[id]
	if !ok || !r.Status.In(from...) {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = now
	if to == entity.ReservationStatusCancelled {
		deletedAt := now
		r.DeletedAt = &deletedAt
	}
	t.s.reservations[id] = r
	return true, nil
}

func (t *memTx) ExpireReservation(_ context.Context, id int64, now time.Time) (bool, error) {
	r, ok := t.s.reservations[id]
	if !ok || !r.Status.IsActive() || r.DeletedAt != nil || !r.LockLapsed(now) {
		return false, nil
	}
	r.Status = entity.ReservationStatusExpired
	r.UpdatedAt = now
	t.s.reservations[id] = r
	return true, nil
}

func (t *memTx) CompleteReservation(_ context.Context, id int64, finalTotal int64, now time.Time) (bool, error) {
	r, ok := t.s.reservations[id]
	if !ok || r.Status != entity.ReservationStatusConfirmed {
		return false, nil
	}
	r.Status = entity.ReservationStatusCompleted
	r.TotalPrice = finalTotal
	r.UpdatedAt = now
	t.s.reservations[id] = r
	return true, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *entity.Payment) error {
	for _, existing := range t.s.payments {
		if existing.ReservationID == p.ReservationID {
			return fmt.Errorf("failed to create payment: %w", entity.ErrDuplicate)
		}
		if p.GatewayChargeID != nil && existing.GatewayChargeID != nil && *existing.GatewayChargeID == *p.GatewayChargeID {
			return fmt.Errorf("failed to create payment: %w", entity.ErrDuplicate)
		}
	}
	t.s.nextPaymentID++
	p.ID = t.s.nextPaymentID
	p.UpdatedAt = p.CreatedAt
	t.s.payments[p.ID] = *p
	return nil
}

func (t *memTx) UpdateOpenPayment(_ context.Context, p *entity.Payment) (bool, error) {
	existing, ok := t.s.payments[p.ID]
	if !ok || !existing.Status.IsOpen() {
		return false, nil
	}
	existing.Method = p.Method
	existing.Amount = p.Amount
	existing.Status = p.Status
	existing.GatewayChargeID = p.GatewayChargeID
	existing.GatewayChargeURL = p.GatewayChargeURL
	existing.UpdatedAt = p.UpdatedAt
	t.s.payments[p.ID] = existing
	return true, nil
}

func (t *memTx) TransitionPayment(_ context.Context, id int64, from []entity.PaymentStatus, to entity.PaymentStatus, now time.Time) (bool, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if p.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = now
	if to == entity.PaymentStatusPaid {
		paidAt := now
		p.PaidAt = &paidAt
	}
	t.s.payments[id] = p
	return true, nil
}

func (t *memTx) UpdateCarStatus(_ context.Context, carID int64, to entity.CarStatus, now time.Time) (bool, error) {
	car, ok := t.s.cars[carID]
	if !ok || car.Status == entity.CarStatusMaintenance {
		return false, nil
	}
	car.Status = to
	car.UpdatedAt = now
	t.s.cars[carID] = car
	return true, nil
}

func (t *memTx) ReturnCar(_ context.Context, carID int64, mileage int64, now time.Time) error {
	car, ok := t.s.cars[carID]
	if !ok {
		return fmt.Errorf("failed to return car %d: %w", carID, entity.ErrNotFound)
	}
	car.Mileage = mileage
	if car.Status != entity.CarStatusMaintenance {
		car.Status = entity.CarStatusAvailable
	}
	car.UpdatedAt = now
	t.s.cars[carID] = car
	return nil
}

func (t *memTx) CreateCheckin(_ context.Context, c *entity.CheckinCheckout) error {
	if _, ok := t.s.checkins[c.ReservationID]; ok {
		return fmt.Errorf("failed to create checkin: %w", entity.ErrDuplicate)
	}
	t.s.nextCheckinID++
	c.ID = t.s.nextCheckinID
	c.BeforePhotos = append([]string(nil), c.BeforePhotos...)
	t.s.checkins[c.ReservationID] = *c
	return nil
}

func (t *memTx) CompleteCheckout(_ context.Context, c *entity.CheckinCheckout) (bool, error) {
	existing, ok := t.s.checkins[c.ReservationID]
	if !ok || existing.CheckInTime == nil || existing.CheckOutTime != nil {
		return false, nil
	}
	existing.CheckOutTime = c.CheckOutTime
	existing.MileageAfter = c.MileageAfter
	existing.DamageReport = c.DamageReport
	existing.DamageCost = c.DamageCost
	existing.Fine = c.Fine
	existing.AfterPhotos = append([]string(nil), c.AfterPhotos...)
	t.s.checkins[c.ReservationID] = existing
	return true, nil
}
