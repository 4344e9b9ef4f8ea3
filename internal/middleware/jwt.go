package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ems-calendar/backend/internal/auth"
	"github.com/ems-calendar/backend/internal/store"
	"github.com/ems-calendar/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = auth.ContextUserID
	// ContextUsername is the key for the username in gin context.
	ContextUsername = "username"
)

// JWT returns a middleware that accepts only unrevoked access tokens of existing, active users and sets
// the user in context. A nil revoker skips the blacklist check.
func JWT(jwtService *auth.JWTService, users store.UserStore, revoker auth.Revoker, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1], auth.TokenAccess)
		if err != nil {
			response.Unauthorized(c, "could not validate credentials")
			c.Abort()
			return
		}
		if revoker != nil {
			revoked, err := revoker.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				logger.Warn("token blacklist unavailable", zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, "token has been revoked")
				c.Abort()
				return
			}
		}
		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Error("load user", zap.String("user_id", claims.UserID.String()), zap.Error(err))
			response.Internal(c, "internal server error")
			c.Abort()
			return
		}
		if user == nil {
			response.Unauthorized(c, "user not found")
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Forbidden(c, "inactive user")
			c.Abort()
			return
		}
		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Set(auth.ContextClaims, claims)
		c.Next()
	}
}
