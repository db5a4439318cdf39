package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
)

const defaultSummaryDays = 7

type checkinService struct {
	store  database.Store
	clock  clockwork.Clock
	events EventPublisher
	opts   CheckinOptions
}

func NewCheckinService(store database.Store, clock clockwork.Clock, events EventPublisher, opts CheckinOptions) CheckinService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &checkinService{
		store:  store,
		clock:  clock,
		events: events,
		opts:   opts,
	}
}

// Checkin records the pickup of a confirmed reservation.
func (s *checkinService) Checkin(ctx context.Context, reservationID int64, in *entity.CheckinInput) (*entity.CheckinCheckout, error) {
	if in == nil {
		in = &entity.CheckinInput{}
	}
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var record *entity.CheckinCheckout
	var res *entity.Reservation
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()

		var err error
		res, err = tx.LockReservation(ctx, reservationID)
		if err != nil {
			return reservationLookupError(reservationID, err)
		}
		if res.Status != entity.ReservationStatusConfirmed {
			return entity.StateError(entity.ReasonNotConfirmed, "reservation %d is %s, not CONFIRMED", res.ID, res.Status)
		}
		if s.opts.RestrictToStartDay && !sameDay(now, res.StartDate, s.opts.Location) {
			return entity.StateError(entity.ReasonNotCheckinDay,
				"reservation %d can be picked up only on %s", res.ID, res.StartDate.In(s.opts.Location).Format("2006-01-02"))
		}

		switch _, err := tx.GetCheckin(ctx, res.ID); {
		case err == nil:
			return entity.StateError(entity.ReasonAlreadyCheckedIn, "reservation %d is already checked in", res.ID)
		case !errors.Is(err, entity.ErrNotFound):
			return err
		}

		var mileage int64
		if in.MileageBefore != nil {
			mileage = *in.MileageBefore
		} else {
			car, err := tx.GetCar(ctx, res.CarID)
			if err != nil {
				return fmt.Errorf("failed to load car %d: %w", res.CarID, err)
			}
			mileage = car.Mileage
		}

		record = &entity.CheckinCheckout{
			ReservationID: res.ID,
			CheckInTime:   &now,
			MileageBefore: mileage,
			FuelLevel:     in.FuelLevel,
			DamageReport:  in.DamageReport,
			BeforePhotos:  in.Photos,
		}
		if err := tx.CreateCheckin(ctx, record); err != nil {
			if errors.Is(err, entity.ErrDuplicate) {
				return entity.StateError(entity.ReasonAlreadyCheckedIn, "reservation %d is already checked in", res.ID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"mileage_before": record.MileageBefore,
	}).Info("reservation checked in")
	s.emit(ctx, entity.EventReservationCheckedIn, res)
	return record, nil
}

// Checkout records the return, prices the fine and completes the
// reservation. The checkout row, the reservation and the car change together.
func (s *checkinService) Checkout(ctx context.Context, reservationID int64, in *entity.CheckoutInput) (*entity.CheckoutResult, error) {
	if in == nil {
		return nil, entity.ValidationError(entity.ReasonInvalidInput, "checkout details are required")
	}
	if in.DamageCost < 0 {
		return nil, entity.ValidationError(entity.ReasonInvalidInput, "damage cost %d must not be negative", in.DamageCost)
	}
	if err := validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var result *entity.CheckoutResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx database.Tx) error {
		now := s.clock.Now()

		res, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return reservationLookupError(reservationID, err)
		}

		record, err := tx.GetCheckin(ctx, res.ID)
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return entity.StateError(entity.ReasonNotCheckedIn, "reservation %d has not been checked in", res.ID)
			}
			return err
		}
		if record.CheckOutTime != nil {
			return entity.StateError(entity.ReasonAlreadyCheckedOut, "reservation %d is already checked out", res.ID)
		}
		if res.Status != entity.ReservationStatusConfirmed {
			return entity.StateError(entity.ReasonNotConfirmed, "reservation %d is %s, not CONFIRMED", res.ID, res.Status)
		}
		if in.MileageAfter < record.MileageBefore {
			return entity.ValidationError(entity.ReasonInvalidMileage,
				"mileage after %d is below mileage before %d", in.MileageAfter, record.MileageBefore)
		}

		breakdown := entity.ComputeFine(res.TotalPrice, record.MileageBefore, in.MileageAfter, in.DamageCost, in.IsFuelFull())

		mileageAfter := in.MileageAfter
		record.CheckOutTime = &now
		record.MileageAfter = &mileageAfter
		record.DamageCost = in.DamageCost
		record.Fine = breakdown.Fine
		record.AfterPhotos = in.Photos
		if in.DamageReport != "" {
			record.DamageReport = in.DamageReport
		}

		ok, err := tx.CompleteCheckout(ctx, record)
		if err != nil {
			return err
		}
		if !ok {
			return entity.StateError(entity.ReasonAlreadyCheckedOut, "reservation %d is already checked out", res.ID)
		}

		ok, err = tx.CompleteReservation(ctx, res.ID, breakdown.FinalTotal, now)
		if err != nil {
			return err
		}
		if !ok {
			return entity.StateError(entity.ReasonNotConfirmed, "reservation %d changed state during checkout", res.ID)
		}

		if err := tx.ReturnCar(ctx, res.CarID, in.MileageAfter, now); err != nil {
			return err
		}

		res.Status = entity.ReservationStatusCompleted
		res.TotalPrice = breakdown.FinalTotal
		res.UpdatedAt = now
		result = &entity.CheckoutResult{Reservation: res, Record: record, Breakdown: breakdown}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": result.Reservation.ID,
		"used_km":        result.Breakdown.UsedKm,
		"fine":           result.Breakdown.Fine,
		"final_total":    result.Breakdown.FinalTotal,
	}).Info("reservation checked out")
	s.emit(ctx, entity.EventReservationCompleted, result.Reservation)
	return result, nil
}

// TodayOperations lists the confirmed pickups and returns of the current
// calendar day in the configured timezone.
func (s *checkinService) TodayOperations(ctx context.Context) (*entity.DayOperations, error) {
	from := startOfDay(s.clock.Now(), s.opts.Location)
	to := from.AddDate(0, 0, 1)

	scheduled, err := s.store.ListScheduled(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled reservations: %w", err)
	}

	ops := &entity.DayOperations{
		Date:     from,
		Pickups:  []entity.Reservation{},
		Returns:  []entity.Reservation{},
		Timezone: s.opts.Location.String(),
	}
	for _, r := range scheduled {
		if !r.StartDate.Before(from) && r.StartDate.Before(to) {
			ops.Pickups = append(ops.Pickups, r)
		}
		if !r.EndDate.Before(from) && r.EndDate.Before(to) {
			ops.Returns = append(ops.Returns, r)
		}
	}
	return ops, nil
}

// CheckinSummary counts checkins per day over the last days calendar days,
// today included, oldest first.
func (s *checkinService) CheckinSummary(ctx context.Context, days int) ([]entity.CheckinSummaryDay, error) {
	if days <= 0 {
		days = defaultSummaryDays
	}

	today := startOfDay(s.clock.Now(), s.opts.Location)
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	records, err := s.store.ListCheckins(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkins: %w", err)
	}

	counts := make(map[string]int, days)
	for _, c := range records {
		counts[c.CheckInTime.In(s.opts.Location).Format("2006-01-02")]++
	}

	summary := make([]entity.CheckinSummaryDay, 0, days)
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		summary = append(summary, entity.CheckinSummaryDay{Date: key, Count: counts[key]})
	}
	return summary, nil
}

func (s *checkinService) emit(ctx context.Context, typ entity.EventType, res *entity.Reservation) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, newEvent(typ, res, nil, s.clock.Now())); err != nil {
		logrus.Warnf("failed to publish %s for reservation %d: %v", typ, res.ID, err)
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	return startOfDay(a, loc).Equal(startOfDay(b, loc))
}
