package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/reserve"
)

type createReservationRequest struct {
	Machine   string `form:"machine" json:"machine" binding:"required"`
	Start     string `form:"start" json:"start" binding:"required"`
	End       string `form:"end" json:"end" binding:"required"`
	Comment   string `form:"comment" json:"comment"`
	EventLink string `form:"event_link" json:"event_link"`
}

// CreateReservation handles POST /api/reservations. Start and end are civil
// times in the workshop's zone, formatted MM/DD/YYYY HH:MM.
func (h *Handler) CreateReservation(c *gin.Context) {
	details, ok := h.actorDetails(c)
	if !ok {
		return
	}

	var req createReservationRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), reserve.CreateRequest{
		Actor:             details.Username,
		MachineStreamName: req.Machine,
		StartLocal:        req.Start,
		EndLocal:          req.End,
		Comment:           req.Comment,
		EventLink:         req.EventLink,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	maintainer := details.Role == model.RoleMaintainer
	c.JSON(http.StatusCreated, h.reservationViewFor(created, req.Machine, details.Username, maintainer))
}

// CancelReservation handles DELETE /api/reservations/:id. Cancelling an
// already-cancelled reservation succeeds without change.
func (h *Handler) CancelReservation(c *gin.Context) {
	details, ok := h.actorDetails(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid reservation ID"})
		return
	}

	cancelled, err := h.service.Cancel(c.Request.Context(), details.Username, id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	maintainer := details.Role == model.RoleMaintainer
	view := h.reservationViewFor(cancelled, h.streamNameOf(c, cancelled), details.Username, maintainer)
	view.State = string(model.StateCancelled)
	c.JSON(http.StatusOK, view)
}

// streamNameOf resolves a reservation's machine stream name when the
// association was not loaded with it.
func (h *Handler) streamNameOf(c *gin.Context, r *model.Reservation) string {
	if r.Machine.StreamName != "" {
		return r.Machine.StreamName
	}
	machine, err := h.store.GetMachine(c.Request.Context(), r.MachineID)
	if err != nil {
		return ""
	}
	return machine.StreamName
}

type rescheduleRequest struct {
	Start string `form:"start" json:"start" binding:"required"`
	End   string `form:"end" json:"end" binding:"required"`
}

// RescheduleReservation handles PUT /api/reservations/:id.
func (h *Handler) RescheduleReservation(c *gin.Context) {
	details, ok := h.actorDetails(c)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid reservation ID"})
		return
	}

	var req rescheduleRequest
	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	moved, err := h.service.Reschedule(c.Request.Context(), details.Username, id, req.Start, req.End)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	maintainer := details.Role == model.RoleMaintainer
	c.JSON(http.StatusOK, h.reservationViewFor(moved, h.streamNameOf(c, moved), details.Username, maintainer))
}
