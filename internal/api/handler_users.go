package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/validate"
)

// GetUserInfo handles GET /api/users/:username, the check-in kiosk's lookup.
// A hit returns the user's display attributes; a miss is a bare 404 with no
// body, per the kiosk contract.
func (h *Handler) GetUserInfo(c *gin.Context) {
	username := c.Param("username")
	if err := validate.Username(username); err != nil {
		h.abortWithError(c, err)
		return
	}

	details, err := h.directory.GetUserDetails(c.Request.Context(), username)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if details == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":     details.Username,
		"display_name": details.DisplayName,
		"role":         details.Role,
	})
}
