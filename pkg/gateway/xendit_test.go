package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/config"
)

type fakeInvoices struct {
	created  []float64
	invoice  xenditInvoice
	err      error
	currency string
}

func (f *fakeInvoices) Create(_ context.Context, _ string, amount float64, currency, _ string) (xenditInvoice, error) {
	f.created = append(f.created, amount)
	f.currency = currency
	return f.invoice, f.err
}

func (f *fakeInvoices) Get(_ context.Context, _ string) (xenditInvoice, error) {
	return f.invoice, f.err
}

func newTestXendit(api invoiceAPI) *Xendit {
	return newXendit(api, &config.GatewayConfig{
		CallbackToken: "secret-token",
		Currency:      "THB",
		MinAmount:     2000,
	})
}

func TestCreateChargeConvertsMinorUnits(t *testing.T) {
	api := &fakeInvoices{invoice: xenditInvoice{ID: "inv_1", URL: "https://checkout.test/inv_1"}}
	x := newTestXendit(api)

	ref, err := x.CreateCharge(context.Background(), ChargeRequest{ExternalID: "reservation-1", Amount: 150000})
	require.NoError(t, err)

	assert.Equal(t, ChargeRef{ID: "inv_1", URL: "https://checkout.test/inv_1"}, ref)
	assert.Equal(t, []float64{1500}, api.created)
	assert.Equal(t, "THB", api.currency)
}

func TestCreateChargeErrors(t *testing.T) {
	x := newTestXendit(&fakeInvoices{err: errors.New("503 Service Unavailable")})
	_, err := x.CreateCharge(context.Background(), ChargeRequest{ExternalID: "reservation-1", Amount: 5000})
	require.Error(t, err)

	x = newTestXendit(&fakeInvoices{})
	_, err = x.CreateCharge(context.Background(), ChargeRequest{ExternalID: "reservation-1", Amount: 5000})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestRetrieveChargeMapsStatus(t *testing.T) {
	tests := []struct {
		status string
		want   ChargeStatus
	}{
		{"PAID", ChargePaid},
		{"SETTLED", ChargePaid},
		{"PENDING", ChargePending},
		{"EXPIRED", ChargeExpired},
		{"UNKNOWN", ChargeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			x := newTestXendit(&fakeInvoices{invoice: xenditInvoice{ID: "inv_1", Status: tt.status, Amount: 1500}})
			state, err := x.RetrieveCharge(context.Background(), "inv_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Status)
			assert.Equal(t, int64(150000), state.Amount)
		})
	}
}

func TestParseNotification(t *testing.T) {
	x := newTestXendit(&fakeInvoices{})
	header := http.Header{}
	header.Set(CallbackTokenHeader, "secret-token")

	n, err := x.ParseNotification(header, []byte(`{"id":"inv_1","external_id":"reservation-1-abc","status":"PAID"}`))
	require.NoError(t, err)
	assert.Equal(t, "inv_1", n.ChargeID)
	assert.Equal(t, "invoice.paid", n.EventType)
	assert.True(t, n.Succeeded())

	n, err = x.ParseNotification(header, []byte(`{"id":"inv_2","status":"EXPIRED"}`))
	require.NoError(t, err)
	assert.False(t, n.Succeeded())
}

func TestParseNotificationRejects(t *testing.T) {
	x := newTestXendit(&fakeInvoices{})

	bad := http.Header{}
	bad.Set(CallbackTokenHeader, "wrong")
	_, err := x.ParseNotification(bad, []byte(`{"id":"inv_1","status":"PAID"}`))
	assert.ErrorIs(t, err, ErrInvalidCallbackToken)

	_, err = x.ParseNotification(http.Header{}, []byte(`{"id":"inv_1","status":"PAID"}`))
	assert.ErrorIs(t, err, ErrInvalidCallbackToken)

	good := http.Header{}
	good.Set(CallbackTokenHeader, "secret-token")
	_, err = x.ParseNotification(good, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = x.ParseNotification(good, []byte(`{"status":"PAID"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
