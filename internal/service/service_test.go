package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/database/memory"
	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu        sync.Mutex
	minAmount int64
	createErr error
	created   []gateway.ChargeRequest
	statuses  map[string]gateway.ChargeStatus
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{minAmount: 2000, statuses: make(map[string]gateway.ChargeStatus)}
}

func (g *fakeGateway) MinAmount() int64 { return g.minAmount }

func (g *fakeGateway) Currency() string { return "THB" }

func (g *fakeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (gateway.ChargeRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return gateway.ChargeRef{}, g.createErr
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("inv_%d", len(g.created))
	g.statuses[id] = gateway.ChargePending
	return gateway.ChargeRef{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *fakeGateway) RetrieveCharge(_ context.Context, chargeID string) (gateway.ChargeState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[chargeID]
	if !ok {
		return gateway.ChargeState{}, fmt.Errorf("charge %s not found", chargeID)
	}
	return gateway.ChargeState{ID: chargeID, Status: status}, nil
}

func (g *fakeGateway) markPaid(chargeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[chargeID] = gateway.ChargePaid
}

func (g *fakeGateway) charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(typ entity.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) types() []entity.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingTasks struct {
	mu    sync.Mutex
	tasks []*Task
}

func (r *recordingTasks) Publish(_ context.Context, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

type fixture struct {
	clock   *clockwork.FakeClock
	store   *memory.Store
	gateway *fakeGateway
	events  *recordingPublisher
	tasks   *recordingTasks
	booking BookingService
	car     entity.Car
}

// newFixture builds a booking service over the memory store. A nil gateway
// settles every method manually.
func newFixture(t *testing.T, gw *fakeGateway) *fixture {
	t.Helper()

	f := &fixture{
		clock:   clockwork.NewFakeClockAt(testNow),
		store:   memory.NewStore(),
		gateway: gw,
		events:  &recordingPublisher{},
		tasks:   &recordingTasks{},
	}
	f.car = f.store.AddCar(entity.Car{Brand: "Toyota", Model: "Yaris", PricePerDay: 1500, Mileage: 10000})

	var pg PaymentGateway
	if gw != nil {
		pg = gw
	}
	f.booking = NewBookingService(f.store, f.clock, pg, f.events, f.tasks, DefaultBookingOptions())
	return f
}

func day(d, hour int) time.Time {
	return time.Date(2024, 3, d, hour, 0, 0, 0, time.UTC)
}

func (f *fixture) create(t *testing.T, userID int64, start, end time.Time) *entity.Reservation {
	t.Helper()
	res, err := f.booking.CreateReservation(context.Background(), &CreateReservationRequest{
		UserID:    userID,
		CarID:     f.car.ID,
		StartDate: start,
		EndDate:   end,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) confirm(t *testing.T, res *entity.Reservation, method entity.PaymentMethod) *entity.PaymentReceipt {
	t.Helper()
	receipt, err := f.booking.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		ReservationID: res.ID,
		UserID:        res.UserID,
		Method:        method,
	})
	require.NoError(t, err)
	return receipt
}

// confirmed books, pays cash and approves a reservation.
func (f *fixture) confirmed(t *testing.T, userID int64, start, end time.Time) *entity.Reservation {
	t.Helper()
	res := f.create(t, userID, start, end)
	f.confirm(t, res, entity.PaymentMethodCash)
	_, err := f.booking.ApprovePayment(context.Background(), res.ID)
	require.NoError(t, err)
	return f.reservation(t, res.ID)
}

func (f *fixture) reservation(t *testing.T, id int64) *entity.Reservation {
	t.Helper()
	res, err := f.store.GetReservation(context.Background(), id)
	require.NoError(t, err)
	return res
}

func (f *fixture) payment(t *testing.T, reservationID int64) *entity.Payment {
	t.Helper()
	p, err := f.store.GetPayment(context.Background(), reservationID)
	require.NoError(t, err)
	return p
}

func (f *fixture) carStatus(t *testing.T) entity.CarStatus {
	t.Helper()
	car, err := f.store.GetCar(context.Background(), f.car.ID)
	require.NoError(t, err)
	return car.Status
}
