package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/internal/service"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
)

const maxWebhookBody = 1 << 20

// NotificationParser authenticates and decodes a provider callback.
type NotificationParser interface {
	ParseNotification(header http.Header, body []byte) (gateway.Notification, error)
}

type WebhookHandler struct {
	booking service.BookingService
	parser  NotificationParser
}

func NewWebhookHandler(booking service.BookingService, parser NotificationParser) *WebhookHandler {
	return &WebhookHandler{booking: booking, parser: parser}
}

// PaymentCallback acknowledges with 200 once the notification is applied or
// deliberately ignored. Any other status makes the provider redeliver.
func (h *WebhookHandler) PaymentCallback(c *gin.Context) {
	if h.parser == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment gateway is not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "failed to read body")
		return
	}

	n, err := h.parser.ParseNotification(c.Request.Header, body)
	switch {
	case errors.Is(err, gateway.ErrInvalidCallbackToken):
		logrus.Warnf("rejected payment callback from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid callback token"})
		return
	case err != nil:
		badRequest(c, err.Error())
		return
	}

	if err := h.booking.HandleGatewayNotification(c.Request.Context(), n); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "ok"})
}
