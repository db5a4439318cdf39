package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/car-rental/internal/service"
)

type CarHandler struct {
	availability service.AvailabilityService
	location     *time.Location
}

func NewCarHandler(availability service.AvailabilityService, location *time.Location) *CarHandler {
	if location == nil {
		location = time.UTC
	}
	return &CarHandler{availability: availability, location: location}
}

// AvailableCars handles GET /cars/available?startDate=&endDate=
func (h *CarHandler) AvailableCars(c *gin.Context) {
	start, end, ok := queryRange(c, h.location)
	if !ok {
		return
	}

	cars, err := h.availability.AvailableCars(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", cars)
}

// CheckCar handles GET /cars/:id/check?startDate=&endDate=
func (h *CarHandler) CheckCar(c *gin.Context) {
	carID, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, end, ok := queryRange(c, h.location)
	if !ok {
		return
	}

	result, err := h.availability.CheckCar(c.Request.Context(), carID, start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", result)
}
