package overdue

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/handler"
	"github.com/jwalitptl/clinic-sync/internal/overdue"
	"github.com/jwalitptl/clinic-sync/internal/session"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
)

// Handler exposes the overdue work list. The facility defaults to the
// device's current facility; as_of defaults to now.
type Handler struct {
	engine  *overdue.Engine
	session *session.Provider
	clock   clock.Clock
}

func NewHandler(engine *overdue.Engine, sess *session.Provider, clk clock.Clock) *Handler {
	return &Handler{
		engine:  engine,
		session: sess,
		clock:   clk,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	list := r.Group("/overdue")
	{
		list.GET("", h.List)
		list.GET("/more-than-a-year", h.MoreThanAYear)
		list.GET("/search", h.Search)
	}
}

func (h *Handler) List(c *gin.Context) {
	facilityUUID, asOf, ok := h.scope(c)
	if !ok {
		return
	}
	rows, err := h.engine.List(c.Request.Context(), facilityUUID, asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rows))
}

func (h *Handler) MoreThanAYear(c *gin.Context) {
	facilityUUID, asOf, ok := h.scope(c)
	if !ok {
		return
	}
	rows, err := h.engine.MoreThanAYear(c.Request.Context(), facilityUUID, asOf)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rows))
}

func (h *Handler) Search(c *gin.Context) {
	facilityUUID, asOf, ok := h.scope(c)
	if !ok {
		return
	}

	tokens := strings.Fields(c.Query("q"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	var cursor *overdue.Cursor
	if after := c.Query("after_id"); after != "" {
		id, err := uuid.Parse(after)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid after_id"))
			return
		}
		date, err := time.Parse(time.RFC3339, c.Query("after_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid after_date"))
			return
		}
		cursor = &overdue.Cursor{ScheduledDate: date, AppointmentUUID: id}
	}

	page, err := h.engine.Search(c.Request.Context(), facilityUUID, asOf, tokens, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(page))
}

func (h *Handler) scope(c *gin.Context) (uuid.UUID, time.Time, bool) {
	asOf := h.clock.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid as_of"))
			return uuid.Nil, time.Time{}, false
		}
		asOf = parsed
	}

	if raw := c.Query("facility_id"); raw != "" {
		facilityUUID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid facility_id"))
			return uuid.Nil, time.Time{}, false
		}
		return facilityUUID, asOf, true
	}

	facility, err := h.session.CurrentFacility(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return uuid.Nil, time.Time{}, false
	}
	return facility.UUID, asOf, true
}
