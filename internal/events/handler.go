package events

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/middleware"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/response"
)

// Handler handles event HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an event handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the event routes on an authenticated group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("", h.Create)
	g.POST("/batch", h.CreateBatch)
	g.GET("", h.List)
	g.GET("/export.ics", h.Export)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/rollback/:version", h.Rollback)
}

func userID(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

func eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, false
	}
	return id, true
}

func parseRange(c *gin.Context) (start, end *time.Time, ok bool) {
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"start_date", &start}, {"end_date", &end}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		t, err := models.ParseTimestamp(v)
		if err != nil {
			response.BadRequest(c, "invalid "+p.key)
			return nil, nil, false
		}
		*p.dst = &t
	}
	return start, end, true
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var in models.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ev)
}

// CreateBatch handles POST /events/batch with a JSON array of events.
func (h *Handler) CreateBatch(c *gin.Context) {
	var in []models.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	list, err := h.svc.CreateBatch(c.Request.Context(), userID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, list)
}

// List handles GET /events?skip&limit&start_date&end_date.
func (h *Handler) List(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil {
		response.BadRequest(c, "invalid skip")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if err != nil {
		response.BadRequest(c, "invalid limit")
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), userID(c), ListFilter{Skip: skip, Limit: limit, Start: start, End: end})
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	response.OK(c, list)
}

// Export handles GET /events/export.ics.
func (h *Handler) Export(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}
	body, err := h.svc.Export(c.Request.Context(), userID(c), start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="events.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), id, userID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Update handles PUT /events/:id with a partial body.
func (h *Handler) Update(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	var patch models.EventPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.svc.Update(c.Request.Context(), id, userID(c), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}

// Delete handles DELETE /events/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, userID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rollback handles POST /events/:id/rollback/:version.
func (h *Handler) Rollback(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.BadRequest(c, "invalid version")
		return
	}
	ev, err := h.svc.Rollback(c.Request.Context(), id, userID(c), version)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ev)
}
