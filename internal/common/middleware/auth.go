package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wanderlog/service-payment/internal/common/auth"
	"github.com/wanderlog/service-payment/internal/common/response"
)

const (
	contextClaims = "claims"
	contextActor  = "actor"
)

// AuthMiddleware verifies the bearer token and stores the caller in the context.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "authorization header missing")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			response.Unauthorized(c, "invalid authorization header")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(contextClaims, claims)
		c.Set(contextActor, auth.ActorFromClaims(claims))
		c.Next()
	}
}

// RequireAdmin rejects callers that fail the admin predicate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			response.Unauthorized(c, "unauthorized")
			return
		}
		if !actor.Admin {
			response.Forbidden(c, "admin access required")
			return
		}
		c.Next()
	}
}

// GetActor returns the authenticated caller.
func GetActor(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(contextActor)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok
}

// GetUserID returns the authenticated caller's id.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	actor, ok := GetActor(c)
	if !ok {
		return uuid.Nil, false
	}
	return actor.UserID, true
}
