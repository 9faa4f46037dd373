package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"makequeue-backend/internal/model"
	"makequeue-backend/internal/store"
)

// machineView is the wire shape of a machine.
type machineView struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	StreamName string `json:"stream_name"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Info       string `json:"info,omitempty"`
	Location   string `json:"location,omitempty"`
	Priority   *int   `json:"priority,omitempty"`
}

func machineViewOf(m *model.Machine) machineView {
	return machineView{
		ID:         m.ID,
		Name:       m.Name,
		StreamName: m.StreamName,
		Type:       m.MachineType.Name,
		Status:     string(m.Status),
		Info:       m.Info,
		Location:   m.Location,
		Priority:   m.Priority,
	}
}

// ListMachines handles GET /api/machines. By default only available machines
// are listed; status=any (or a concrete status) widens the view so
// maintainers can find machines whose future reservations need action.
func (h *Handler) ListMachines(c *gin.Context) {
	filter := store.MachineFilter{}

	switch statusParam := c.Query("status"); statusParam {
	case "":
		status := model.StatusAvailable
		filter.Status = &status
	case "any":
		// no status filter
	default:
		status := model.MachineStatus(statusParam)
		if !model.ValidStatus(status) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Status = &status
	}

	if typeParam := c.Query("type"); typeParam != "" {
		typeID, err := strconv.ParseInt(typeParam, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid type filter"})
			return
		}
		filter.MachineTypeID = &typeID
	}

	machines, err := h.store.ListMachines(c.Request.Context(), filter)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	views := make([]machineView, len(machines))
	for i := range machines {
		views[i] = machineViewOf(&machines[i])
	}
	c.JSON(http.StatusOK, views)
}

// GetMachine handles GET /api/machines/:stream_name. The detail view carries
// the next upcoming reservation slot, if any.
func (h *Handler) GetMachine(c *gin.Context) {
	machine, err := h.store.GetMachineByStreamName(c.Request.Context(), c.Param("stream_name"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	now := h.service.Clock().Now()
	upcoming, err := h.store.ListForMachine(c.Request.Context(), machine.ID,
		store.Window{From: now, To: now.Add(28 * 24 * time.Hour)})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	response := gin.H{"machine": machineViewOf(machine)}
	localizer := h.service.Localizer()
	for _, r := range upcoming {
		if r.StartInstant.After(now) {
			response["next_reservation_start"] = localizer.FormatLocal(r.StartInstant)
			break
		}
	}
	c.JSON(http.StatusOK, response)
}

// machineTypeView is the wire shape of a machine type. The booking form needs
// the slot bounds to validate input before submitting.
type machineTypeView struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	MinSlotMinutes     int    `json:"min_slot_minutes"`
	MaxDurationMinutes int    `json:"max_duration_minutes"`
	RequiresTraining   bool   `json:"requires_training"`
}

// ListMachineTypes handles GET /api/machine_types.
func (h *Handler) ListMachineTypes(c *gin.Context) {
	types, err := h.store.ListMachineTypes(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	views := make([]machineTypeView, len(types))
	for i, mt := range types {
		views[i] = machineTypeView{
			ID:                 mt.ID,
			Name:               mt.Name,
			MinSlotMinutes:     mt.MinSlotMinutes,
			MaxDurationMinutes: mt.MaxDurationMinutes,
			RequiresTraining:   mt.RequiresTraining,
		}
	}
	c.JSON(http.StatusOK, views)
}

type createMachineTypeRequest struct {
	Name               string `json:"name" binding:"required"`
	MinSlotMinutes     int    `json:"min_slot_minutes" binding:"required"`
	MaxDurationMinutes int    `json:"max_duration_minutes" binding:"required"`
	RequiresTraining   bool   `json:"requires_training"`
	Priority           int    `json:"priority"`
}

// CreateMachineType handles POST /api/machine_types. Maintainers only.
func (h *Handler) CreateMachineType(c *gin.Context) {
	if _, ok := h.requireMaintainer(c); !ok {
		return
	}

	var req createMachineTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MinSlotMinutes <= 0 || req.MaxDurationMinutes < req.MinSlotMinutes {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid slot bounds"})
		return
	}

	machineType := model.MachineType{
		Name:               req.Name,
		MinSlotMinutes:     req.MinSlotMinutes,
		MaxDurationMinutes: req.MaxDurationMinutes,
		RequiresTraining:   req.RequiresTraining,
		Priority:           req.Priority,
	}
	if err := h.store.CreateMachineType(c.Request.Context(), &machineType); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, machineTypeView{
		ID:                 machineType.ID,
		Name:               machineType.Name,
		MinSlotMinutes:     machineType.MinSlotMinutes,
		MaxDurationMinutes: machineType.MaxDurationMinutes,
		RequiresTraining:   machineType.RequiresTraining,
	})
}

type createMachineRequest struct {
	Name          string `json:"name" binding:"required"`
	StreamName    string `json:"stream_name" binding:"required"`
	MachineTypeID int64  `json:"machine_type_id" binding:"required"`
	Info          string `json:"info"`
	Location      string `json:"location"`
	Priority      *int   `json:"priority"`
}

// CreateMachine handles POST /api/machines. Maintainers only.
func (h *Handler) CreateMachine(c *gin.Context) {
	if _, ok := h.requireMaintainer(c); !ok {
		return
	}

	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetMachineType(c.Request.Context(), req.MachineTypeID); err != nil {
		h.abortWithError(c, err)
		return
	}

	machine := model.Machine{
		Name:          req.Name,
		StreamName:    req.StreamName,
		MachineTypeID: req.MachineTypeID,
		Info:          req.Info,
		Location:      req.Location,
		Priority:      req.Priority,
		Status:        model.StatusAvailable,
	}
	if err := h.store.CreateMachine(c.Request.Context(), &machine); err != nil {
		h.abortWithError(c, err)
		return
	}

	created, err := h.store.GetMachine(c.Request.Context(), machine.ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, machineViewOf(created))
}

type updateMachineRequest struct {
	Name       *string `json:"name"`
	StreamName *string `json:"stream_name"`
	Info       *string `json:"info"`
	Location   *string `json:"location"`
	Priority   *int    `json:"priority"`
	ClearPrio  bool    `json:"clear_priority"`
}

// UpdateMachine handles PUT /api/machines/:id. Maintainers only.
func (h *Handler) UpdateMachine(c *gin.Context) {
	if _, ok := h.requireMaintainer(c); !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid machine ID"})
		return
	}

	var req updateMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.store.UpdateMachine(c.Request.Context(), id, store.MachineUpdate{
		Name:       req.Name,
		StreamName: req.StreamName,
		Info:       req.Info,
		Location:   req.Location,
		Priority:   req.Priority,
		ClearPrio:  req.ClearPrio,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineViewOf(updated))
}

type transitionStatusRequest struct {
	Status model.MachineStatus `json:"status" binding:"required"`
}

// TransitionStatus handles PUT /api/machines/:id/status. Maintainers only;
// decommissioning is terminal.
func (h *Handler) TransitionStatus(c *gin.Context) {
	if _, ok := h.requireMaintainer(c); !ok {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid machine ID"})
		return
	}

	var req transitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !model.ValidStatus(req.Status) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid machine status"})
		return
	}

	updated, err := h.store.TransitionStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, machineViewOf(updated))
}
