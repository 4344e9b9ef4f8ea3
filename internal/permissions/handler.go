package permissions

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/middleware"
	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/pkg/response"
)

// ShareRequest is the body for POST /events/:id/share.
type ShareRequest struct {
	Users []models.RoleAssignment `json:"users" binding:"required,min=1,dive"`
}

// UpdateRequest is the body for PUT /events/:id/permissions/:user_id.
type UpdateRequest struct {
	Role models.Role `json:"role" binding:"required"`
}

// Handler handles sharing endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a sharing handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the sharing routes on the events group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/:id/share", h.Share)
	g.GET("/:id/permissions", h.List)
	g.PUT("/:id/permissions/:user_id", h.Update)
	g.DELETE("/:id/permissions/:user_id", h.Revoke)
}

func ids(c *gin.Context, withUser bool) (eventID, userID uuid.UUID, ok bool) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return uuid.Nil, uuid.Nil, false
	}
	if withUser {
		userID, err = uuid.Parse(c.Param("user_id"))
		if err != nil {
			response.BadRequest(c, "invalid user id")
			return uuid.Nil, uuid.Nil, false
		}
	}
	return eventID, userID, true
}

func actor(c *gin.Context) uuid.UUID {
	return c.MustGet(middleware.ContextUserID).(uuid.UUID)
}

// Share handles POST /events/:id/share.
func (h *Handler) Share(c *gin.Context) {
	eventID, _, ok := ids(c, false)
	if !ok {
		return
	}
	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.svc.Share(c.Request.Context(), eventID, actor(c), req.Users)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// List handles GET /events/:id/permissions.
func (h *Handler) List(c *gin.Context) {
	eventID, _, ok := ids(c, false)
	if !ok {
		return
	}
	out, err := h.svc.List(c.Request.Context(), eventID, actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// Update handles PUT /events/:id/permissions/:user_id.
func (h *Handler) Update(c *gin.Context) {
	eventID, userID, ok := ids(c, true)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	out, err := h.svc.UpdateRole(c.Request.Context(), eventID, actor(c), userID, req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// Revoke handles DELETE /events/:id/permissions/:user_id.
func (h *Handler) Revoke(c *gin.Context) {
	eventID, userID, ok := ids(c, true)
	if !ok {
		return
	}
	if err := h.svc.Revoke(c.Request.Context(), eventID, actor(c), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
