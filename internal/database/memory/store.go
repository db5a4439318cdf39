// Package memory is an in-process database.Store. Transactions are serialized
// behind one mutex and work on a copy of the state that replaces the live
// state only on commit, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/entity"
)

type state struct {
	cars         map[int64]entity.Car
	reservations map[int64]entity.Reservation
	payments     map[int64]entity.Payment
	checkins     map[int64]entity.CheckinCheckout // keyed by reservation id

	nextCarID         int64
	nextReservationID int64
	nextPaymentID     int64
	nextCheckinID     int64
}

func newState() *state {
	return &state{
		cars:         make(map[int64]entity.Car),
		reservations: make(map[int64]entity.Reservation),
		payments:     make(map[int64]entity.Payment),
		checkins:     make(map[int64]entity.CheckinCheckout),
	}
}

func (s *state) clone() *state {
	c := *s
	c.cars = make(map[int64]entity.Car, len(s.cars))
	for k, v := range s.cars {
		c.cars[k] = v
	}
	c.reservations = make(map[int64]entity.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	c.payments = make(map[int64]entity.Payment, len(s.payments))
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.checkins = make(map[int64]entity.CheckinCheckout, len(s.checkins))
	for k, v := range s.checkins {
		c.checkins[k] = v
	}
	return &c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ database.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

// AddCar inserts a car and returns it with its assigned ID.
func (s *Store) AddCar(car entity.Car) entity.Car {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.nextCarID++
	car.ID = s.state.nextCarID
	if car.Status == "" {
		car.Status = entity.CarStatusAvailable
	}
	s.state.cars[car.ID] = car
	return car
}

// PutReservation stores r as is, assigning an ID when it has none.
func (s *Store) PutReservation(r entity.Reservation) entity.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		s.state.nextReservationID++
		r.ID = s.state.nextReservationID
	}
	s.state.reservations[r.ID] = r
	return r
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memTx{view: view{s: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read() view {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view{s: s.state.clone()}
}

func (s *Store) GetCar(ctx context.Context, id int64) (*entity.Car, error) {
	return s.read().GetCar(ctx, id)
}

func (s *Store) ListCars(ctx context.Context) ([]entity.Car, error) {
	return s.read().ListCars(ctx)
}

func (s *Store) GetReservation(ctx context.Context, id int64) (*entity.Reservation, error) {
	return s.read().GetReservation(ctx, id)
}

func (s *Store) ListReservationsByUser(ctx context.Context, userID int64) ([]entity.Reservation, error) {
	return s.read().ListReservationsByUser(ctx, userID)
}

func (s *Store) ListCarReservations(ctx context.Context, carID int64, start, end time.Time) ([]entity.Reservation, error) {
	return s.read().ListCarReservations(ctx, carID, start, end)
}

func (s *Store) FindActiveByUser(ctx context.Context, userID int64) (*entity.Reservation, error) {
	return s.read().FindActiveByUser(ctx, userID)
}

func (s *Store) ListLapsed(ctx context.Context, now time.Time, after entity.LapsedCursor, limit int) ([]entity.Reservation, error) {
	return s.read().ListLapsed(ctx, now, after, limit)
}

func (s *Store) ListScheduled(ctx context.Context, from, to time.Time) ([]entity.Reservation, error) {
	return s.read().ListScheduled(ctx, from, to)
}

func (s *Store) GetPayment(ctx context.Context, reservationID int64) (*entity.Payment, error) {
	return s.read().GetPayment(ctx, reservationID)
}

func (s *Store) GetPaymentByCharge(ctx context.Context, chargeID string) (*entity.Payment, error) {
	return s.read().GetPaymentByCharge(ctx, chargeID)
}

func (s *Store) GetCheckin(ctx context.Context, reservationID int64) (*entity.CheckinCheckout, error) {
	return s.read().GetCheckin(ctx, reservationID)
}

func (s *Store) ListCheckins(ctx context.Context, from, to time.Time) ([]entity.CheckinCheckout, error) {
	return s.read().ListCheckins(ctx, from, to)
}

// view implements database.Reader over one state snapshot.
type view struct {
	s *state
}

func (v view) GetCar(_ context.Context, id int64) (*entity.Car, error) {
	car, ok := v.s.cars[id]
	if !ok {
		return nil, fmt.Errorf("car %d: %w", id, entity.ErrNotFound)
	}
	return &car, nil
}

func (v view) ListCars(_ context.Context) ([]entity.Car, error) {
	var cars []entity.Car
	for _, car := range v.s.cars {
		if car.DeletedAt == nil {
			cars = append(cars, car)
		}
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].ID < cars[j].ID })
	return cars, nil
}

func (v view) GetReservation(_ context.Context, id int64) (*entity.Reservation, error) {
	r, ok := v.s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, entity.ErrNotFound)
	}
	return &r, nil
}

func (v view) filterReservations(keep func(r *entity.Reservation) bool, less func(a, b *entity.Reservation) bool) []entity.Reservation {
	var out []entity.Reservation
	for _, r := range v.s.reservations {
		if keep(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

func (v view) ListReservationsByUser(_ context.Context, userID int64) ([]entity.Reservation, error) {
	return v.filterReservations(
		func(r *entity.Reservation) bool { return r.UserID == userID && r.DeletedAt == nil },
		func(a, b *entity.Reservation) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		},
	), nil
}

func (v view) ListCarReservations(_ context.Context, carID int64, start, end time.Time) ([]entity.Reservation, error) {
	return v.filterReservations(
		func(r *entity.Reservation) bool {
			return (carID == 0 || r.CarID == carID) &&
				r.DeletedAt == nil &&
				r.Status.In(entity.ReservationStatusPending, entity.ReservationStatusWaitingPayment, entity.ReservationStatusConfirmed) &&
				entity.Overlaps(r.StartDate, r.EndDate, start, end)
		},
		func(a, b *entity.Reservation) bool {
			if a.CarID != b.CarID {
				return a.CarID < b.CarID
			}
			return a.StartDate.Before(b.StartDate)
		},
	), nil
}

func (v view) FindActiveByUser(_ context.Context, userID int64) (*entity.Reservation, error) {
	for _, r := range v.s.reservations {
		if r.UserID == userID && r.DeletedAt == nil && r.Status.IsActive() {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("active reservation of user %d: %w", userID, entity.ErrNotFound)
}

func (v view) ListLapsed(_ context.Context, now time.Time, after entity.LapsedCursor, limit int) ([]entity.Reservation, error) {
	out := v.filterReservations(
		func(r *entity.Reservation) bool {
			return r.Status.IsActive() && r.DeletedAt == nil && r.LockLapsed(now) && after.After(r)
		},
		func(a, b *entity.Reservation) bool { return entity.CursorOf(b).After(a) },
	)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) ListScheduled(_ context.Context, from, to time.Time) ([]entity.Reservation, error) {
	within := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }
	return v.filterReservations(
		func(r *entity.Reservation) bool {
			return r.DeletedAt == nil &&
				r.Status.In(entity.ReservationStatusConfirmed, entity.ReservationStatusCompleted) &&
				(within(r.StartDate) || within(r.EndDate))
		},
		func(a, b *entity.Reservation) bool { return a.StartDate.Before(b.StartDate) },
	), nil
}

func (v view) GetPayment(_ context.Context, reservationID int64) (*entity.Payment, error) {
	for _, p := range v.s.payments {
		if p.ReservationID == reservationID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment of reservation %d: %w", reservationID, entity.ErrNotFound)
}

func (v view) GetPaymentByCharge(_ context.Context, chargeID string) (*entity.Payment, error) {
	for _, p := range v.s.payments {
		if p.GatewayChargeID != nil && *p.GatewayChargeID == chargeID {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment by charge %s: %w", chargeID, entity.ErrNotFound)
}

func (v view) GetCheckin(_ context.Context, reservationID int64) (*entity.CheckinCheckout, error) {
	c, ok := v.s.checkins[reservationID]
	if !ok {
		return nil, fmt.Errorf("checkin of reservation %d: %w", reservationID, entity.ErrNotFound)
	}
	return &c, nil
}

func (v view) ListCheckins(_ context.Context, from, to time.Time) ([]entity.CheckinCheckout, error) {
	var out []entity.CheckinCheckout
	for _, c := range v.s.checkins {
		if c.CheckInTime != nil && !c.CheckInTime.Before(from) && c.CheckInTime.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.Before(*out[j].CheckInTime) })
	return out, nil
}
