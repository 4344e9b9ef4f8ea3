package versions

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/middleware"
	"github.com/ems-calendar/backend/pkg/response"
)

// Handler handles history endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a history handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the history routes on the events group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/:id/history", h.List)
	g.GET("/:id/history/:version", h.Get)
	g.GET("/:id/changelog", h.Changelog)
	g.GET("/:id/diff/:v1/:v2", h.Diff)
}

func params(c *gin.Context, names ...string) (uuid.UUID, []int, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, nil, false
	}
	nums := make([]int, 0, len(names))
	for _, name := range names {
		n, err := strconv.Atoi(c.Param(name))
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid "+name)
			return uuid.Nil, nil, false
		}
		nums = append(nums, n)
	}
	return id, nums, true
}

func actor(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// List handles GET /events/:id/history.
func (h *Handler) List(c *gin.Context) {
	id, _, ok := params(c)
	if !ok {
		return
	}
	list, err := h.svc.List(c.Request.Context(), id, actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id/history/:version.
func (h *Handler) Get(c *gin.Context) {
	id, n, ok := params(c, "version")
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id, actor(c), n[0])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// Changelog handles GET /events/:id/changelog.
func (h *Handler) Changelog(c *gin.Context) {
	id, _, ok := params(c)
	if !ok {
		return
	}
	list, err := h.svc.Changelog(c.Request.Context(), id, actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Diff handles GET /events/:id/diff/:v1/:v2.
func (h *Handler) Diff(c *gin.Context) {
	id, n, ok := params(c, "v1", "v2")
	if !ok {
		return
	}
	d, err := h.svc.DiffVersions(c.Request.Context(), id, actor(c), n[0], n[1])
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, d)
}
