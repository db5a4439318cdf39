package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	first := f.confirm(t, res, entity.PaymentMethodCash)
	second := f.confirm(t, res, entity.PaymentMethodTransfer)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, entity.PaymentMethodCash, second.Payment.Method)
	assert.Equal(t, 1, f.events.count(entity.EventPaymentSubmitted))
}

func TestConfirmPaymentRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.create(t, 1, day(2, 10), day(3, 10))

	_, err := f.booking.ConfirmPayment(ctx, &ConfirmPaymentRequest{ReservationID: res.ID, UserID: 1, Method: "BITCOIN"})
	assert.Equal(t, entity.ReasonInvalidMethod, entity.ReasonOf(err))

	_, err = f.booking.ConfirmPayment(ctx, &ConfirmPaymentRequest{ReservationID: res.ID, UserID: 2, Method: entity.PaymentMethodCash})
	assert.Equal(t, entity.ReasonNotOwner, entity.ReasonOf(err))

	_, err = f.booking.ConfirmPayment(ctx, &ConfirmPaymentRequest{ReservationID: 999, UserID: 1, Method: entity.PaymentMethodCash})
	assert.Equal(t, entity.ReasonReservationNotFound, entity.ReasonOf(err))

	f.clock.Advance(entity.DefaultLockTTL + time.Second)
	_, err = f.booking.ConfirmPayment(ctx, &ConfirmPaymentRequest{ReservationID: res.ID, UserID: 1, Method: entity.PaymentMethodCash})
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, entity.ReasonExpired, entity.ReasonOf(err))

	_, err = f.store.GetPayment(ctx, res.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestApprovePaymentRequiresPayment(t *testing.T) {
	f := newFixture(t, nil)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	_, err := f.booking.ApprovePayment(context.Background(), res.ID)
	assert.Equal(t, entity.ReasonPaymentNotFound, entity.ReasonOf(err))
}

func TestApprovePaymentTwice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.confirmed(t, 1, day(2, 10), day(3, 10))

	payment, err := f.booking.ApprovePayment(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPaid, payment.Status)
	assert.Equal(t, 1, f.events.count(entity.EventReservationConfirmed))
}

func TestApproveAfterExpiry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.create(t, 1, day(2, 10), day(3, 10))
	f.confirm(t, res, entity.PaymentMethodCash)

	f.clock.Advance(entity.DefaultLockTTL + time.Second)
	expired, err := f.booking.ExpireReservation(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, expired)

	_, err = f.booking.ApprovePayment(ctx, res.ID)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, entity.ReasonExpired, entity.ReasonOf(err))
	assert.Equal(t, entity.PaymentStatusExpired, f.payment(t, res.ID).Status)
}

func TestApproveRacesExpiry(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, nil)
		ctx := context.Background()
		res := f.create(t, 1, day(2, 10), day(3, 10))
		f.confirm(t, res, entity.PaymentMethodCash)
		f.clock.Advance(entity.DefaultLockTTL + time.Second)

		var (
			wg         sync.WaitGroup
			approveErr error
			expired    bool
			expireErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.booking.ApprovePayment(ctx, res.ID)
		}()
		go func() {
			defer wg.Done()
			expired, expireErr = f.booking.ExpireReservation(ctx, res.ID)
		}()
		wg.Wait()
		require.NoError(t, expireErr)

		final := f.reservation(t, res.ID)
		payment := f.payment(t, res.ID)
		if expired {
			assert.Equal(t, entity.ReasonExpired, entity.ReasonOf(approveErr))
			assert.Equal(t, entity.ReservationStatusExpired, final.Status)
			assert.Equal(t, entity.PaymentStatusExpired, payment.Status)
			assert.Equal(t, entity.CarStatusAvailable, f.carStatus(t))
		} else {
			require.NoError(t, approveErr)
			assert.Equal(t, entity.ReservationStatusConfirmed, final.Status)
			assert.Equal(t, entity.PaymentStatusPaid, payment.Status)
			assert.Equal(t, entity.CarStatusBooked, f.carStatus(t))
		}
	}
}

func TestConfirmPaymentOpensCharge(t *testing.T) {
	gw := newFakeGateway()
	f := newFixture(t, gw)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	receipt := f.confirm(t, res, entity.PaymentMethodCreditCard)
	assert.Equal(t, entity.PaymentStatusPending, receipt.Payment.Status)
	require.NotNil(t, receipt.Payment.GatewayChargeID)
	assert.Equal(t, "inv_1", *receipt.Payment.GatewayChargeID)
	assert.Equal(t, "https://checkout.test/inv_1", receipt.ChargeURL)

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(150000), gw.created[0].Amount)
	assert.Equal(t, "THB", gw.created[0].Currency)

	again := f.confirm(t, res, entity.PaymentMethodQR)
	assert.True(t, again.Replayed)
	assert.Equal(t, "https://checkout.test/inv_1", again.ChargeURL)
	assert.Equal(t, 1, gw.charges())
	assert.Equal(t, entity.ReservationStatusWaitingPayment, f.reservation(t, res.ID).Status)
}

func TestConfirmPaymentSwitchesToManual(t *testing.T) {
	gw := newFakeGateway()
	f := newFixture(t, gw)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	card := f.confirm(t, res, entity.PaymentMethodCreditCard)
	cash := f.confirm(t, res, entity.PaymentMethodCash)

	assert.False(t, cash.Replayed)
	assert.Equal(t, card.Payment.ID, cash.Payment.ID)
	assert.Equal(t, entity.PaymentStatusWaitingVerify, cash.Payment.Status)
	assert.Nil(t, f.payment(t, res.ID).GatewayChargeID)
}

func TestConfirmPaymentAmountTooLow(t *testing.T) {
	gw := newFakeGateway()
	gw.minAmount = 1_000_000
	f := newFixture(t, gw)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	_, err := f.booking.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		ReservationID: res.ID, UserID: 1, Method: entity.PaymentMethodQR,
	})
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, entity.ReasonAmountTooLow, entity.ReasonOf(err))
	assert.Zero(t, gw.charges())

	// manual methods are not bound by the gateway minimum
	f.confirm(t, res, entity.PaymentMethodCash)
}

func TestConfirmPaymentGatewayFailureLeavesState(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = errors.New("503 Service Unavailable")
	f := newFixture(t, gw)
	res := f.create(t, 1, day(2, 10), day(3, 10))

	_, err := f.booking.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		ReservationID: res.ID, UserID: 1, Method: entity.PaymentMethodCreditCard,
	})
	assert.Equal(t, entity.KindExternalGateway, entity.KindOf(err))
	assert.Equal(t, entity.ReasonGatewayFailure, entity.ReasonOf(err))

	_, err = f.store.GetPayment(context.Background(), res.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.Equal(t, entity.ReservationStatusWaitingPayment, f.reservation(t, res.ID).Status)
}

func TestGatewayNotificationSettlesOnce(t *testing.T) {
	gw := newFakeGateway()
	f := newFixture(t, gw)
	ctx := context.Background()
	res := f.create(t, 1, day(2, 10), day(3, 10))
	f.confirm(t, res, entity.PaymentMethodCreditCard)
	gw.markPaid("inv_1")

	n := gateway.Notification{EventType: "invoice.paid", ChargeID: "inv_1", ChargeStatus: gateway.ChargePaid}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.booking.HandleGatewayNotification(ctx, n)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, entity.ReservationStatusConfirmed, f.reservation(t, res.ID).Status)
	assert.Equal(t, entity.PaymentStatusPaid, f.payment(t, res.ID).Status)
	assert.Equal(t, entity.CarStatusBooked, f.carStatus(t))
	assert.Equal(t, 1, f.events.count(entity.EventReservationConfirmed))
}

func TestGatewayNotificationIgnored(t *testing.T) {
	gw := newFakeGateway()
	f := newFixture(t, gw)
	ctx := context.Background()
	res := f.create(t, 1, day(2, 10), day(3, 10))
	f.confirm(t, res, entity.PaymentMethodCreditCard)

	tests := []struct {
		name string
		n    gateway.Notification
	}{
		{"unknown charge", gateway.Notification{ChargeID: "inv_404", ChargeStatus: gateway.ChargePaid}},
		{"non success", gateway.Notification{ChargeID: "inv_1", ChargeStatus: gateway.ChargeExpired}},
		{"not paid at provider", gateway.Notification{ChargeID: "inv_1", ChargeStatus: gateway.ChargePaid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.booking.HandleGatewayNotification(ctx, tt.n))
			assert.Equal(t, entity.ReservationStatusWaitingPayment, f.reservation(t, res.ID).Status)
			assert.Equal(t, entity.PaymentStatusPending, f.payment(t, res.ID).Status)
		})
	}
}

func TestGatewayNotificationAfterExpiry(t *testing.T) {
	gw := newFakeGateway()
	f := newFixture(t, gw)
	ctx := context.Background()
	res := f.create(t, 1, day(2, 10), day(3, 10))
	f.confirm(t, res, entity.PaymentMethodQR)

	f.clock.Advance(entity.DefaultLockTTL + time.Second)
	expired, err := f.booking.ExpireReservation(ctx, res.ID)
	require.NoError(t, err)
	require.True(t, expired)

	gw.markPaid("inv_1")
	err = f.booking.HandleGatewayNotification(ctx, gateway.Notification{ChargeID: "inv_1", ChargeStatus: gateway.ChargePaid})
	require.NoError(t, err)

	assert.Equal(t, entity.ReservationStatusExpired, f.reservation(t, res.ID).Status)
	assert.Equal(t, entity.PaymentStatusExpired, f.payment(t, res.ID).Status)
	assert.Zero(t, f.events.count(entity.EventReservationConfirmed))
}
