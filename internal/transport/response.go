package transport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/internal/transport/middleware"
)

type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Kind: entity.KindValidation.String()})
}

// statusFor maps every error kind to an HTTP status.
func statusFor(kind entity.Kind) int {
	switch kind {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindForbidden:
		return http.StatusForbidden
	case entity.KindConflict:
		return http.StatusConflict
	case entity.KindState:
		return http.StatusUnprocessableEntity
	case entity.KindExternalGateway:
		return http.StatusBadGateway
	case entity.KindUnknown:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	var domainErr *entity.Error
	if !errors.As(err, &domainErr) {
		logrus.WithField("path", c.Request.URL.Path).Errorf("internal error: %v", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := statusFor(domainErr.Kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, ErrorResponse{
		Error:  domainErr.Error(),
		Kind:   domainErr.Kind.String(),
		Reason: string(domainErr.Reason),
	})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) entity.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// parseDate accepts RFC 3339 timestamps and plain dates; plain dates are
// midnight in loc.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}

func queryRange(c *gin.Context, loc *time.Location) (time.Time, time.Time, bool) {
	start, err := parseDate(c.Query("startDate"), loc)
	if err != nil {
		badRequest(c, "invalid startDate")
		return time.Time{}, time.Time{}, false
	}
	end, err := parseDate(c.Query("endDate"), loc)
	if err != nil {
		badRequest(c, "invalid endDate")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
