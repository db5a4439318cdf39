package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/internal/service"
	"github.com/ds124wfegd/car-rental/internal/worker"
	"github.com/ds124wfegd/car-rental/pkg/queue"
)

// Sweeper runs one expiry pass on demand.
type Sweeper interface {
	SweepExpired(ctx context.Context) (worker.SweepReport, error)
}

// OperationsHandler serves the branch staff: pickups, returns, expiry and
// the failed task queue.
type OperationsHandler struct {
	checkin service.CheckinService
	sweeper Sweeper
	dlq     queue.DLQHandler
}

func NewOperationsHandler(checkin service.CheckinService, sweeper Sweeper, dlq queue.DLQHandler) *OperationsHandler {
	return &OperationsHandler{checkin: checkin, sweeper: sweeper, dlq: dlq}
}

func (h *OperationsHandler) Checkin(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var in entity.CheckinInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	record, err := h.checkin.Checkin(c.Request.Context(), id, &in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "checked in", record)
}

func (h *OperationsHandler) Checkout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var in entity.CheckoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.checkin.Checkout(c.Request.Context(), id, &in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "checked out", result)
}

func (h *OperationsHandler) Today(c *gin.Context) {
	ops, err := h.checkin.TodayOperations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", ops)
}

func (h *OperationsHandler) Summary(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 || days > 90 {
		badRequest(c, "days must be between 1 and 90")
		return
	}

	summary, err := h.checkin.CheckinSummary(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", summary)
}

func (h *OperationsHandler) SweepExpired(c *gin.Context) {
	report, err := h.sweeper.SweepExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "sweep completed", report)
}

func (h *OperationsHandler) FailedTasks(c *gin.Context) {
	if h.dlq == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	tasks, err := h.dlq.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	size, err := h.dlq.Size(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"tasks": tasks, "total": size})
}

func (h *OperationsHandler) RequeueTask(c *gin.Context) {
	if h.dlq == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "task queue is disabled"})
		return
	}

	taskID := c.Param("id")
	if err := h.dlq.RequeueFailedTask(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Kind: entity.KindNotFound.String()})
			return
		}
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "task requeued", gin.H{"id": taskID})
}
