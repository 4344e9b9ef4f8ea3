package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ems-calendar/backend/internal/models"
	"github.com/ems-calendar/backend/internal/store"
	"github.com/ems-calendar/backend/pkg/response"
	"github.com/ems-calendar/backend/pkg/utils"
)

const (
	// ContextUserID is the gin context key holding the authenticated user id.
	ContextUserID = "user_id"
	// ContextClaims is the gin context key holding the validated access token claims.
	ContextClaims = "claims"
)

// UserRepository is the user persistence the auth endpoints need.
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByLogin(ctx context.Context, login string) (*models.User, error)
	Create(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// RefreshRequest is the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	TokenPair
	User models.UserPublic `json:"user"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users   UserRepository
	jwt     *JWTService
	revoker Revoker
	logger  *zap.Logger
}

// NewHandler creates an auth handler. revoker may be nil, which disables logout blacklisting.
func NewHandler(users UserRepository, jwt *JWTService, revoker Revoker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, jwt: jwt, revoker: revoker, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.users.Create(c.Request.Context(), strings.TrimSpace(req.Username), strings.ToLower(req.Email), hash)
	if errors.Is(err, store.ErrDuplicate) {
		response.BadRequest(c, "username or email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	response.Created(c, user.ToPublic())
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := h.users.GetByLogin(ctx, strings.TrimSpace(req.UsernameOrEmail))
	if err != nil {
		h.logger.Error("get user", zap.Error(err))
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil || !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "incorrect username or password")
		return
	}
	if !user.IsActive {
		response.Unauthorized(c, "inactive user")
		return
	}
	pair, err := h.jwt.Pair(user.ID, user.Username)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	if err := h.users.TouchLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		h.logger.Warn("update last login", zap.Error(err))
	}
	response.OK(c, LoginResponse{TokenPair: *pair, User: user.ToPublic()})
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	claims, err := h.jwt.Validate(req.RefreshToken, TokenRefresh)
	if err != nil {
		response.Unauthorized(c, "invalid refresh token")
		return
	}
	if h.revoked(ctx, claims) {
		response.Unauthorized(c, "token has been revoked")
		return
	}
	user, err := h.users.GetByID(ctx, claims.UserID)
	if err != nil || user == nil || !user.IsActive {
		response.Unauthorized(c, "invalid refresh token")
		return
	}
	access, err := h.jwt.Generate(user.ID, user.Username, TokenAccess)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, gin.H{"access_token": access, "token_type": "bearer"})
}

// Logout handles POST /auth/logout by blacklisting the presented access token.
func (h *Handler) Logout(c *gin.Context) {
	claims := c.MustGet(ContextClaims).(*Claims)
	if h.revoker != nil && claims.ExpiresAt != nil {
		if err := h.revoker.Revoke(c.Request.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			h.logger.Error("revoke token", zap.Error(err))
			response.ServiceUnavailable(c, "failed to revoke token")
			return
		}
	}
	response.OK(c, gin.H{"message": "successfully logged out"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet(ContextUserID).(uuid.UUID)
	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	if user == nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}

// revoked reports whether the token was blacklisted; a failing blacklist lets the token through.
func (h *Handler) revoked(ctx context.Context, claims *Claims) bool {
	if h.revoker == nil {
		return false
	}
	ok, err := h.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		h.logger.Warn("token blacklist unavailable", zap.Error(err))
		return false
	}
	return ok
}
