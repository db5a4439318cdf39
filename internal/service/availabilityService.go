package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
)

type availabilityService struct {
	store database.Reader
	clock clockwork.Clock
}

func NewAvailabilityService(store database.Reader, clock clockwork.Clock) AvailabilityService {
	return &availabilityService{store: store, clock: clock}
}

// Conflict reports whether [start, end) collides with a blocking reservation
// of the car right now.
func (s *availabilityService) Conflict(ctx context.Context, carID int64, start, end time.Time) (bool, error) {
	if err := checkRange(start, end); err != nil {
		return false, err
	}
	existing, err := s.store.ListCarReservations(ctx, carID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to list reservations of car %d: %w", carID, err)
	}
	return entity.Conflicts(existing, start, end, s.clock.Now()), nil
}

func (s *availabilityService) CheckCar(ctx context.Context, carID int64, start, end time.Time) (*entity.CarAvailability, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.NotFoundError(entity.ReasonCarNotFound, "car %d not found", carID)
		}
		return nil, err
	}

	result := &entity.CarAvailability{
		CarID:     car.ID,
		StartDate: start,
		EndDate:   end,
	}
	if !car.Bookable() {
		result.Reason = fmt.Sprintf("car is %s", car.Status)
		return result, nil
	}

	existing, err := s.store.ListCarReservations(ctx, car.ID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of car %d: %w", car.ID, err)
	}
	if c := entity.FirstConflict(existing, start, end, s.clock.Now()); c != nil {
		result.Reason = fmt.Sprintf("held by reservation %d until %s", c.ID, c.EndDate.Format(time.RFC3339))
		return result, nil
	}

	result.Available = true
	return result, nil
}

// AvailableCars lists bookable cars with no blocking reservation overlapping
// [start, end).
func (s *availabilityService) AvailableCars(ctx context.Context, start, end time.Time) ([]entity.Car, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	cars, err := s.store.ListCars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}
	existing, err := s.store.ListCarReservations(ctx, 0, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}

	byCar := make(map[int64][]entity.Reservation)
	for _, r := range existing {
		byCar[r.CarID] = append(byCar[r.CarID], r)
	}

	now := s.clock.Now()
	available := make([]entity.Car, 0, len(cars))
	for _, car := range cars {
		if !car.Bookable() {
			continue
		}
		if entity.Conflicts(byCar[car.ID], start, end, now) {
			continue
		}
		available = append(available, car)
	}
	return available, nil
}

func checkRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return entity.ValidationError(entity.ReasonInvalidRange,
			"start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}
