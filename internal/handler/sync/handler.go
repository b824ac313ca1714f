package sync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/handler"
	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/purge"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	"github.com/jwalitptl/clinic-sync/internal/session"
	syncer "github.com/jwalitptl/clinic-sync/internal/sync"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
)

// Handler exposes the scheduler entry points: trigger a sync cycle, run the
// retention purge, and switch the current facility.
type Handler struct {
	coordinator *syncer.Coordinator
	purger      *purge.Purger
	session     *session.Provider
	facilities  repository.FacilityRepository
	clock       clock.Clock
}

func NewHandler(coordinator *syncer.Coordinator, purger *purge.Purger, sess *session.Provider, facilities repository.FacilityRepository, clk clock.Clock) *Handler {
	return &Handler{
		coordinator: coordinator,
		purger:      purger,
		session:     sess,
		facilities:  facilities,
		clock:       clk,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sync", h.TriggerSync)
	r.POST("/purge", h.TriggerPurge)
	r.GET("/facilities", h.ListFacilities)
	r.POST("/facility/switch", h.SwitchFacility)
}

// ListFacilities backs the facility picker on the switch screen.
func (h *Handler) ListFacilities(c *gin.Context) {
	facilities, err := h.facilities.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(facilities))
}

func (h *Handler) TriggerSync(c *gin.Context) {
	group := model.SyncGroup(c.Query("group"))
	if err := h.coordinator.SyncGroup(c.Request.Context(), group); err != nil {
		c.JSON(http.StatusBadGateway, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) TriggerPurge(c *gin.Context) {
	if err := h.purger.Run(c.Request.Context(), h.clock.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

type switchFacilityRequest struct {
	FacilityID uuid.UUID `json:"facility_id" binding:"required"`
}

// SwitchFacility changes the device's facility and immediately shrinks the
// local dataset to the new facility's sync group.
func (h *Handler) SwitchFacility(c *gin.Context) {
	var req switchFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	facility, err := h.session.SwitchFacility(c.Request.Context(), req.FacilityID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	if err := h.purger.DeletePatientsOutsideSyncGroup(c.Request.Context(), *facility); err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(facility))
}
