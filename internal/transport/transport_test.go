package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/car-rental/internal/database/memory"
	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/internal/service"
	"github.com/ds124wfegd/car-rental/internal/transport/middleware"
	"github.com/ds124wfegd/car-rental/internal/worker"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

type fakeParser struct {
	n   gateway.Notification
	err error
}

func (p *fakeParser) ParseNotification(http.Header, []byte) (gateway.Notification, error) {
	return p.n, p.err
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
	Reason  string          `json:"reason"`
}

type testAPI struct {
	router *gin.Engine
	clock  *clockwork.FakeClock
	store  *memory.Store
	car    entity.Car
}

func newTestAPI(t *testing.T, parser NotificationParser) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := memory.NewStore()
	car := store.AddCar(entity.Car{Brand: "Honda", Model: "City", PricePerDay: 1400, Mileage: 5000})

	booking := service.NewBookingService(store, clock, nil, nil, nil, service.DefaultBookingOptions())
	availability := service.NewAvailabilityService(store, clock)
	checkin := service.NewCheckinService(store, clock, nil, service.CheckinOptions{Location: time.UTC})
	sweeper := worker.NewExpirySweeper(booking, clock, time.Minute, 10)

	router := InitRoutes(Handlers{
		Cars:         NewCarHandler(availability, time.UTC),
		Reservations: NewReservationHandler(booking),
		Operations:   NewOperationsHandler(checkin, sweeper, nil),
		Webhook:      NewWebhookHandler(booking, parser),
	}, 5*time.Second)

	return &testAPI{router: router, clock: clock, store: store, car: car}
}

func (a *testAPI) do(t *testing.T, method, path string, userID int64, role entity.Role, body interface{}) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set(middleware.HeaderUserID, strconv.FormatInt(userID, 10))
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, string(role))
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func (a *testAPI) createReservation(t *testing.T, userID int64) entity.Reservation {
	t.Helper()
	code, resp := a.do(t, http.MethodPost, "/api/v1/reservations", userID, "", gin.H{
		"car_id":     a.car.ID,
		"start_date": "2024-03-02T10:00:00Z",
		"end_date":   "2024-03-04T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	var res entity.Reservation
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	return res
}

func reservationPath(id int64, suffix string) string {
	return "/api/v1/reservations/" + strconv.FormatInt(id, 10) + suffix
}

func adminPath(id int64, action string) string {
	return "/api/v1/admin/reservations/" + strconv.FormatInt(id, 10) + "/" + action
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	code, _ := api.do(t, http.MethodGet, "/health", 0, "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestReservationRequiresActor(t *testing.T) {
	api := newTestAPI(t, nil)

	code, _ := api.do(t, http.MethodGet, "/api/v1/reservations/my", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = api.do(t, http.MethodGet, "/api/v1/operations/today", 1, entity.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestReservationFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.createReservation(t, 1)
	assert.Equal(t, entity.ReservationStatusWaitingPayment, res.Status)
	assert.Equal(t, int64(2800), res.TotalPrice)

	code, resp := api.do(t, http.MethodPost, "/api/v1/reservations", 1, "", gin.H{
		"car_id":     api.car.ID,
		"start_date": "2024-03-10T10:00:00Z",
		"end_date":   "2024-03-11T10:00:00Z",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(entity.ReasonActiveExists), resp.Reason)

	code, _ = api.do(t, http.MethodGet, reservationPath(res.ID, ""), 2, "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = api.do(t, http.MethodPost, reservationPath(res.ID, "/payment"), 1, "", gin.H{"method": "CASH"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "payment recorded", resp.Message)

	code, resp = api.do(t, http.MethodPost, reservationPath(res.ID, "/payment"), 1, "", gin.H{"method": "CASH"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "payment already recorded", resp.Message)

	code, _ = api.do(t, http.MethodPost, adminPath(res.ID, "approve"), 1, entity.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = api.do(t, http.MethodPost, adminPath(res.ID, "approve"), 99, entity.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = api.do(t, http.MethodGet, reservationPath(res.ID, "/status"), 1, "", nil)
	require.Equal(t, http.StatusOK, code)
	var view entity.ReservationStatusView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, entity.ReservationStatusConfirmed, view.Status)

	code, resp = api.do(t, http.MethodPost, adminPath(res.ID, "checkout"), 99, entity.RoleAdmin, gin.H{"mileage_after": 5100})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(entity.ReasonNotCheckedIn), resp.Reason)

	code, resp = api.do(t, http.MethodPost, adminPath(res.ID, "checkin"), 99, entity.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = api.do(t, http.MethodPost, adminPath(res.ID, "checkout"), 99, entity.RoleAdmin, gin.H{"mileage_after": 5300, "fuel_full": false})
	require.Equal(t, http.StatusOK, code, resp.Error)
	var result entity.CheckoutResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, int64(1000), result.Breakdown.Fine)
	assert.Equal(t, int64(3800), result.Breakdown.FinalTotal)
}

func TestCancelOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.createReservation(t, 1)

	code, _ := api.do(t, http.MethodDelete, reservationPath(res.ID, ""), 2, "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := api.do(t, http.MethodDelete, reservationPath(res.ID, ""), 1, "", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = api.do(t, http.MethodDelete, reservationPath(999, ""), 1, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(entity.ReasonReservationNotFound), resp.Reason)

	code, _ = api.do(t, http.MethodDelete, "/api/v1/reservations/abc", 1, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaymentAfterExpiryOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.createReservation(t, 1)

	api.clock.Advance(entity.DefaultLockTTL + time.Minute)

	code, resp := api.do(t, http.MethodPost, reservationPath(res.ID, "/payment"), 1, "", gin.H{"method": "TRANSFER"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(entity.ReasonExpired), resp.Reason)

	code, resp = api.do(t, http.MethodPost, "/api/v1/admin/expiry/sweep", 99, entity.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var report worker.SweepReport
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 1, report.Expired)

	stored, err := api.store.GetReservation(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationStatusExpired, stored.Status)
}

func TestAvailabilityOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	api.createReservation(t, 1)

	code, resp := api.do(t, http.MethodGet, "/api/v1/cars/available?startDate=2024-03-03&endDate=2024-03-05", 0, "", nil)
	require.Equal(t, http.StatusOK, code)
	var cars []entity.Car
	require.NoError(t, json.Unmarshal(resp.Data, &cars))
	assert.Empty(t, cars)

	code, resp = api.do(t, http.MethodGet, "/api/v1/cars/1/check?startDate=2024-03-04T10:00:00Z&endDate=2024-03-05T10:00:00Z", 0, "", nil)
	require.Equal(t, http.StatusOK, code)
	var check entity.CarAvailability
	require.NoError(t, json.Unmarshal(resp.Data, &check))
	assert.True(t, check.Available)

	code, _ = api.do(t, http.MethodGet, "/api/v1/cars/available?startDate=tomorrow", 0, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = api.do(t, http.MethodGet, "/api/v1/cars/available?startDate=2024-03-05&endDate=2024-03-03", 0, "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(entity.ReasonInvalidRange), resp.Reason)

	code, _ = api.do(t, http.MethodGet, "/api/v1/cars/42/check?startDate=2024-03-03&endDate=2024-03-05", 0, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebhook(t *testing.T) {
	code, _ := newTestAPI(t, nil).do(t, http.MethodPost, "/api/v1/payments/webhook", 0, "", gin.H{})
	assert.Equal(t, http.StatusNotFound, code)

	api := newTestAPI(t, &fakeParser{err: gateway.ErrInvalidCallbackToken})
	code, _ = api.do(t, http.MethodPost, "/api/v1/payments/webhook", 0, "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, code)

	api = newTestAPI(t, &fakeParser{err: gateway.ErrMalformedPayload})
	code, _ = api.do(t, http.MethodPost, "/api/v1/payments/webhook", 0, "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	api = newTestAPI(t, &fakeParser{n: gateway.Notification{ChargeID: "inv_unknown", ChargeStatus: gateway.ChargePaid}})
	code, _ = api.do(t, http.MethodPost, "/api/v1/payments/webhook", 0, "", gin.H{})
	assert.Equal(t, http.StatusOK, code)
}

func TestOperationsOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)

	code, resp := api.do(t, http.MethodGet, "/api/v1/operations/today", 99, entity.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var ops entity.DayOperations
	require.NoError(t, json.Unmarshal(resp.Data, &ops))
	assert.Empty(t, ops.Pickups)

	code, _ = api.do(t, http.MethodGet, "/api/v1/operations/summary?days=0", 99, entity.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = api.do(t, http.MethodGet, "/api/v1/operations/summary?days=2", 99, entity.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var summary []entity.CheckinSummaryDay
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Len(t, summary, 2)

	code, _ = api.do(t, http.MethodGet, "/api/v1/admin/tasks/failed", 99, entity.RoleAdmin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStatusForCoversEveryKind(t *testing.T) {
	tests := map[entity.Kind]int{
		entity.KindValidation:      http.StatusBadRequest,
		entity.KindNotFound:        http.StatusNotFound,
		entity.KindForbidden:       http.StatusForbidden,
		entity.KindConflict:        http.StatusConflict,
		entity.KindState:           http.StatusUnprocessableEntity,
		entity.KindExternalGateway: http.StatusBadGateway,
		entity.KindUnknown:         http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}
