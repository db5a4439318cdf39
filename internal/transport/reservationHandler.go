package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/internal/service"
)

type ReservationHandler struct {
	booking service.BookingService
}

func NewReservationHandler(booking service.BookingService) *ReservationHandler {
	return &ReservationHandler{booking: booking}
}

func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var req service.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	req.UserID = actor(c).UserID

	res, err := h.booking.CreateReservation(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "reservation created, awaiting payment", res)
}

func (h *ReservationHandler) MyReservations(c *gin.Context) {
	reservations, err := h.booking.ListUserReservations(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	if reservations == nil {
		reservations = []entity.Reservation{}
	}
	respond(c, http.StatusOK, "", reservations)
}

func (h *ReservationHandler) GetReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.booking.GetReservation(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", res)
}

func (h *ReservationHandler) GetStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.booking.GetReservationStatus(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", view)
}

func (h *ReservationHandler) ConfirmPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Method entity.PaymentMethod `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}

	receipt, err := h.booking.ConfirmPayment(c.Request.Context(), &service.ConfirmPaymentRequest{
		ReservationID: id,
		UserID:        actor(c).UserID,
		Method:        body.Method,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	message := "payment recorded"
	switch {
	case receipt.Replayed:
		message = "payment already recorded"
	case receipt.ChargeURL != "":
		message = "complete the payment at charge_url"
	}
	respond(c, http.StatusOK, message, receipt)
}

func (h *ReservationHandler) GetPayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := h.booking.GetPayment(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", payment)
}

func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.booking.CancelReservation(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "reservation cancelled", res)
}

// ApprovePayment is the admin verification of a manual payment.
func (h *ReservationHandler) ApprovePayment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	payment, err := h.booking.ApprovePayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "payment approved", payment)
}
