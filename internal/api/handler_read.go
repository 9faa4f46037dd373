package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/mw"
	"makequeue-backend/internal/store"
	"makequeue-backend/internal/validate"
)

// defaultUpcomingHours bounds the upcoming view when the caller gives none.
const defaultUpcomingHours = 24

// WhoIsUsing handles GET /api/machines/:stream_name/current. A free machine
// answers {occupied: false}.
func (h *Handler) WhoIsUsing(c *gin.Context) {
	usage, err := h.service.WhoIsUsing(c.Request.Context(), c.Param("stream_name"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if usage == nil {
		c.JSON(http.StatusOK, gin.H{"occupied": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"occupied":     true,
		"user":         usage.Username,
		"display_name": usage.UserDisplay,
		"ends_local":   h.service.Localizer().FormatLocal(usage.EndsAt),
	})
}

// Upcoming handles GET /api/machines/:stream_name/upcoming?hours=N.
func (h *Handler) Upcoming(c *gin.Context) {
	hours := defaultUpcomingHours
	if param := c.Query("hours"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid hours parameter"})
			return
		}
		hours = parsed
	}

	streamName := c.Param("stream_name")
	reservations, err := h.service.UpcomingForMachine(c.Request.Context(), streamName,
		time.Duration(hours)*time.Hour)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	viewer, viewerIsMaintainer := h.viewerOf(c)
	views := make([]reservationView, len(reservations))
	for i := range reservations {
		views[i] = h.reservationViewFor(&reservations[i], streamName, viewer, viewerIsMaintainer)
	}
	c.JSON(http.StatusOK, views)
}

// UserSchedule handles GET /api/users/:username/schedule?from=&to=, with the
// bounds given as civil times. Omitted bounds default to the next seven days.
func (h *Handler) UserSchedule(c *gin.Context) {
	username := c.Param("username")
	if err := validate.Username(username); err != nil {
		h.abortWithError(c, err)
		return
	}

	localizer := h.service.Localizer()
	now := h.service.Clock().Now()
	window := store.Window{From: now, To: now.Add(7 * 24 * time.Hour)}

	if param := c.Query("from"); param != "" {
		from, err := localizer.ParseLocal(param)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		window.From = from
	}
	if param := c.Query("to"); param != "" {
		to, err := localizer.ParseLocal(param)
		if err != nil {
			h.abortWithError(c, err)
			return
		}
		window.To = to
	}
	if !window.From.Before(window.To) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	reservations, err := h.service.UserSchedule(c.Request.Context(), username, window)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	viewer, viewerIsMaintainer := h.viewerOf(c)
	views := make([]reservationView, len(reservations))
	for i := range reservations {
		views[i] = h.reservationViewFor(&reservations[i], "", viewer, viewerIsMaintainer)
	}
	c.JSON(http.StatusOK, views)
}

// FreeSlots handles GET /api/free_slots?type=&hours=. It lists gaps long
// enough for the requested duration on every available machine of the type.
func (h *Handler) FreeSlots(c *gin.Context) {
	typeID, err := strconv.ParseInt(c.Query("type"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid type parameter"})
		return
	}

	hours := 1.0
	if param := c.Query("hours"); param != "" {
		parsed, err := strconv.ParseFloat(param, 64)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid hours parameter"})
			return
		}
		hours = parsed
	}

	if _, err := h.store.GetMachineType(c.Request.Context(), typeID); err != nil {
		h.abortWithError(c, err)
		return
	}

	slots, err := h.service.FreeSlots(c.Request.Context(), typeID,
		time.Duration(hours*float64(time.Hour)))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	localizer := h.service.Localizer()
	views := make([]gin.H, len(slots))
	for i, slot := range slots {
		views[i] = gin.H{
			"machine":     slot.Machine.StreamName,
			"start_local": localizer.FormatLocal(slot.Start),
			"end_local":   localizer.FormatLocal(slot.End),
		}
	}
	c.JSON(http.StatusOK, views)
}

// viewerOf returns the authenticated viewer, if any, and whether they hold the
// maintainer role. Read endpoints stay public; the viewer only widens what the
// rendered reservations reveal.
func (h *Handler) viewerOf(c *gin.Context) (string, bool) {
	username := mw.Actor(c)
	if username == "" {
		return "", false
	}
	details, err := h.directory.GetUserDetails(c.Request.Context(), username)
	if err != nil || details == nil {
		return username, false
	}
	return username, details.Role == model.RoleMaintainer
}
