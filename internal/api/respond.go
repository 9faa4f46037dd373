package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/clock"
	"makequeue-backend/internal/model"
	"makequeue-backend/internal/mw"
	"makequeue-backend/internal/quota"
	"makequeue-backend/internal/reserve"
	"makequeue-backend/internal/store"
	"makequeue-backend/internal/validate"
)

// abortWithError maps a domain error onto the structured {kind, error} wire
// shape. Unexpected errors are logged with the request's correlation ID and
// surfaced as a generic failure.
func (h *Handler) abortWithError(c *gin.Context, err error) {
	var (
		invalidID  *validate.InvalidIdentifierError
		invalidIvl *reserve.InvalidIntervalError
		quotaErr   *quota.QuotaExceededError
		conflict   *store.ConflictError
	)

	switch {
	case errors.As(err, &invalidID):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": "invalid_identifier", "error": err.Error()})
	case errors.As(err, &invalidIvl):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": "invalid_interval", "error": err.Error()})
	case errors.Is(err, clock.ErrAmbiguousLocalTime):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": "ambiguous_local_time", "error": err.Error()})
	case errors.Is(err, reserve.ErrStartInPast):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": "start_in_past", "error": err.Error()})
	case errors.Is(err, reserve.ErrUnknownEvent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"kind": "unknown_event", "error": err.Error()})
	case errors.Is(err, reserve.ErrUnknownUser):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"kind": "unknown_user", "error": err.Error()})
	case errors.Is(err, reserve.ErrUnknownMachine):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"kind": "unknown_machine", "error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": err.Error()})
	case errors.Is(err, store.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"kind": "forbidden", "error": err.Error()})
	case errors.Is(err, reserve.ErrMachineUnavailable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"kind": "machine_unavailable", "error": err.Error()})
	case errors.Is(err, store.ErrDuplicateStreamName):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"kind": "duplicate_stream_name", "error": err.Error()})
	case errors.Is(err, store.ErrDecommissioned):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"kind": "decommissioned", "error": err.Error()})
	case errors.As(err, &quotaErr):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"kind":     "quota_exceeded",
			"error":    err.Error(),
			"rule":     quotaErr.Rule,
			"limit":    quotaErr.Limit,
			"observed": quotaErr.Observed,
		})
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"kind":      "conflict",
			"error":     err.Error(),
			"offenders": h.offenderViews(conflict.Offenders),
		})
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"kind": "timeout", "error": "the operation timed out, please retry"})
	default:
		log.Printf("request %s failed unexpectedly: %v", mw.GetRequestID(c), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"kind": "internal", "error": "internal server error"})
	}
}

// offenderView identifies a conflicting slot without exposing the owner's
// reservation ID to third parties.
type offenderView struct {
	User       string `json:"user"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
}

func (h *Handler) offenderViews(offenders []model.Reservation) []offenderView {
	localizer := h.service.Localizer()
	views := make([]offenderView, len(offenders))
	for i, r := range offenders {
		views[i] = offenderView{
			User:       r.UserID,
			StartLocal: localizer.FormatLocal(r.StartInstant),
			EndLocal:   localizer.FormatLocal(r.EndInstant),
		}
	}
	return views
}

// reservationView is the wire shape of a reservation. The ID is present only
// when the viewer owns the reservation or is a maintainer.
type reservationView struct {
	ID         *int64 `json:"id,omitempty"`
	Machine    string `json:"machine"`
	User       string `json:"user"`
	StartLocal string `json:"start_local"`
	EndLocal   string `json:"end_local"`
	State      string `json:"state"`
	Comment    string `json:"comment,omitempty"`
	EventLink  string `json:"event_link,omitempty"`
}

// reservationViewFor renders a reservation for the given viewer. machine may
// be empty when the association is not loaded; pass the stream name instead.
func (h *Handler) reservationViewFor(r *model.Reservation, streamName, viewer string, viewerIsMaintainer bool) reservationView {
	localizer := h.service.Localizer()
	if streamName == "" {
		streamName = r.Machine.StreamName
	}
	view := reservationView{
		Machine:    streamName,
		User:       r.UserID,
		StartLocal: localizer.FormatLocal(r.StartInstant),
		EndLocal:   localizer.FormatLocal(r.EndInstant),
		State:      string(r.StateAt(h.service.Clock().Now())),
		Comment:    r.Comment,
		EventLink:  r.EventLink,
	}
	if viewerIsMaintainer || (viewer != "" && viewer == r.UserID) {
		id := r.ID
		view.ID = &id
	}
	return view
}
