package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/entity"
)

func newCheckin(f *fixture, restrict bool) CheckinService {
	return NewCheckinService(f.store, f.clock, f.events, CheckinOptions{
		Location:           time.UTC,
		RestrictToStartDay: restrict,
	})
}

func TestCheckinRequiresConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, false)
	res := f.create(t, 1, day(1, 12), day(3, 12))

	_, err := svc.Checkin(context.Background(), res.ID, nil)
	assert.Equal(t, entity.KindState, entity.KindOf(err))
	assert.Equal(t, entity.ReasonNotConfirmed, entity.ReasonOf(err))

	_, err = svc.Checkin(context.Background(), 999, nil)
	assert.Equal(t, entity.ReasonReservationNotFound, entity.ReasonOf(err))
}

func TestCheckinOnlyOnStartDay(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, true)
	res := f.confirmed(t, 1, day(2, 12), day(4, 12))

	_, err := svc.Checkin(context.Background(), res.ID, nil)
	assert.Equal(t, entity.ReasonNotCheckinDay, entity.ReasonOf(err))

	f.clock.Advance(24 * time.Hour)
	_, err = svc.Checkin(context.Background(), res.ID, nil)
	assert.NoError(t, err)
}

func TestCheckinTwice(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, false)
	res := f.confirmed(t, 1, day(1, 12), day(3, 12))

	mileage := int64(12000)
	record, err := svc.Checkin(context.Background(), res.ID, &entity.CheckinInput{MileageBefore: &mileage, FuelLevel: "full"})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), record.MileageBefore)
	assert.Equal(t, "full", record.FuelLevel)

	_, err = svc.Checkin(context.Background(), res.ID, nil)
	assert.Equal(t, entity.ReasonAlreadyCheckedIn, entity.ReasonOf(err))
}

func TestCheckoutRejects(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, false)
	ctx := context.Background()
	res := f.confirmed(t, 1, day(1, 12), day(3, 12))

	_, err := svc.Checkout(ctx, res.ID, &entity.CheckoutInput{MileageAfter: 10100})
	assert.Equal(t, entity.ReasonNotCheckedIn, entity.ReasonOf(err))

	_, err = svc.Checkout(ctx, res.ID, nil)
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))

	_, err = svc.Checkout(ctx, res.ID, &entity.CheckoutInput{MileageAfter: 10100, DamageCost: -1})
	assert.Equal(t, entity.KindValidation, entity.KindOf(err))

	_, err = svc.Checkin(ctx, res.ID, nil)
	require.NoError(t, err)

	_, err = svc.Checkout(ctx, res.ID, &entity.CheckoutInput{MileageAfter: 9000})
	assert.Equal(t, entity.ReasonInvalidMileage, entity.ReasonOf(err))

	result, err := svc.Checkout(ctx, res.ID, &entity.CheckoutInput{MileageAfter: 10200, DamageCost: 500, DamageReport: "scratch"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.Breakdown.Fine)
	assert.Equal(t, "scratch", result.Record.DamageReport)
	require.NotNil(t, result.Record.MileageAfter)
	assert.Equal(t, int64(10200), *result.Record.MileageAfter)

	_, err = svc.Checkout(ctx, res.ID, &entity.CheckoutInput{MileageAfter: 10300})
	assert.Equal(t, entity.ReasonAlreadyCheckedOut, entity.ReasonOf(err))
}

func TestTodayOperations(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, false)
	other := f.store.AddCar(entity.Car{PricePerDay: 1000})

	pickup := f.confirmed(t, 1, day(1, 12), day(3, 12))
	f.store.PutReservation(entity.Reservation{
		UserID: 2, CarID: other.ID, StartDate: time.Date(2024, 2, 27, 10, 0, 0, 0, time.UTC), EndDate: day(1, 18),
		Status: entity.ReservationStatusConfirmed, TotalPrice: 4000, CreatedAt: testNow,
	})
	f.create(t, 3, day(20, 10), day(21, 10))

	ops, err := svc.TodayOperations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "UTC", ops.Timezone)
	assert.Equal(t, day(1, 0), ops.Date)
	require.Len(t, ops.Pickups, 1)
	assert.Equal(t, pickup.ID, ops.Pickups[0].ID)
	require.Len(t, ops.Returns, 1)
	assert.Equal(t, int64(2), ops.Returns[0].UserID)
}

func TestCheckinSummary(t *testing.T) {
	f := newFixture(t, nil)
	svc := newCheckin(f, false)

	res := f.confirmed(t, 1, day(1, 12), day(3, 12))
	_, err := svc.Checkin(context.Background(), res.ID, nil)
	require.NoError(t, err)

	summary, err := svc.CheckinSummary(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []entity.CheckinSummaryDay{
		{Date: "2024-02-28", Count: 0},
		{Date: "2024-02-29", Count: 0},
		{Date: "2024-03-01", Count: 1},
	}, summary)

	summary, err = svc.CheckinSummary(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, summary, 7)
}
