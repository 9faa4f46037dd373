package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/identity"
	"makequeue-backend/internal/model"
	"makequeue-backend/internal/mw"
	"makequeue-backend/internal/reserve"
	"makequeue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	service   *reserve.Service
	directory identity.Directory
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, service *reserve.Service, directory identity.Directory) *Handler {
	return &Handler{
		store:     s,
		service:   service,
		directory: directory,
	}
}

// actorDetails resolves the authenticated actor to its identity attributes.
// Aborts the request when the session names a user the directory no longer
// knows.
func (h *Handler) actorDetails(c *gin.Context) (*identity.UserDetails, bool) {
	username := mw.Actor(c)
	if username == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}
	details, err := h.directory.GetUserDetails(c.Request.Context(), username)
	if err != nil {
		h.abortWithError(c, err)
		return nil, false
	}
	if details == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user", "kind": "unknown_user"})
		return nil, false
	}
	return details, true
}

// requireMaintainer aborts with 403 unless the actor is a maintainer.
func (h *Handler) requireMaintainer(c *gin.Context) (*identity.UserDetails, bool) {
	details, ok := h.actorDetails(c)
	if !ok {
		return nil, false
	}
	if details.Role != model.RoleMaintainer {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "maintainer role required", "kind": "forbidden"})
		return nil, false
	}
	return details, true
}
